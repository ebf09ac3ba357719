// Package telemetry reports panics and unexpected errors to Sentry.
//
// Usage in main:
//
//	if err := telemetry.Init(cfg.SentryDSN, "hlsproxy", cfg.Environment, version); err != nil {
//	    return err
//	}
//	defer telemetry.Flush()
package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
)

// Init initializes the Sentry SDK. An empty dsn leaves Sentry disabled, in
// which case every other function of this package is a no-op.
func Init(dsn, service, environment, release string) error {
	if dsn == "" {
		return nil
	}
	if environment == "" {
		environment = "development"
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		Release:          release,
		AttachStacktrace: true,
		Tags: map[string]string{
			"service": service,
		},
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			return scrub(event)
		},
	})
	if err != nil {
		return fmt.Errorf("sentry.Init: %w", err)
	}
	return nil
}

// CaptureError sends err to Sentry with the given tags.
func CaptureError(err error, tags map[string]string) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}

// CapturePanic reports a recovered panic value together with the request it
// happened in.
func CapturePanic(rec interface{}, r *http.Request, tags map[string]string) {
	hub := sentry.CurrentHub().Clone()
	hub.Scope().SetRequest(r)
	hub.Scope().SetTag("panic", "true")
	for k, v := range tags {
		hub.Scope().SetTag(k, v)
	}

	var err error
	switch v := rec.(type) {
	case error:
		err = v
	default:
		err = fmt.Errorf("panic: %v", v)
	}
	hub.CaptureException(err)
}

// Flush waits for buffered events to be sent. Call with defer in main.
func Flush() {
	sentry.Flush(2 * time.Second)
}

// scrub removes credentials from request data before events are sent.
func scrub(event *sentry.Event) *sentry.Event {
	if event == nil {
		return nil
	}
	event.User.IPAddress = ""
	if event.Request != nil {
		for k := range event.Request.Headers {
			switch k {
			case "Authorization", "Cookie", "X-Api-Key", "X-Auth-Token":
				event.Request.Headers[k] = "[redacted]"
			}
		}
		event.Request.Cookies = ""
		event.Request.QueryString = redactQuery(event.Request.QueryString)
	}
	return event
}
