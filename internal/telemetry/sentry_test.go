package telemetry

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/matryer/is"
)

func TestInitWithoutDSN(t *testing.T) {
	is := is.New(t)
	is.NoErr(Init("", "hlsproxy", "test", "dev")) // empty dsn disables sentry

	// all of these must be safe without a client
	CaptureError(errors.New("boom"), map[string]string{"route": "/proxy/m3u8"})
	CaptureError(nil, nil)
	CapturePanic("boom", httptest.NewRequest("GET", "/proxy/key", nil), nil)
	Flush()
}

func TestInitRejectsBadDSN(t *testing.T) {
	is := is.New(t)
	err := Init("not a dsn", "hlsproxy", "test", "dev")
	is.True(err != nil) // malformed dsn must fail
}

func TestScrub(t *testing.T) {
	is := is.New(t)
	event := &sentry.Event{
		User: sentry.User{IPAddress: "203.0.113.9"},
		Request: &sentry.Request{
			Headers:     map[string]string{"Cookie": "a=b", "Accept": "*/*"},
			Cookies:     "a=b",
			QueryString: "url=https%3A%2F%2Fcdn.example.com%2Fa.ts&headers=%7B%22Cookie%22%3A%22s%3D1%22%7D",
		},
	}
	out := scrub(event)
	is.Equal(out.User.IPAddress, "")                      // ip removed
	is.Equal(out.Request.Headers["Cookie"], "[redacted]") // cookie header redacted
	is.Equal(out.Request.Headers["Accept"], "*/*")        // other headers kept
	is.Equal(out.Request.Cookies, "")                     // cookies removed
	is.Equal(out.Request.QueryString, "headers=%5Bredacted%5D&url=https%3A%2F%2Fcdn.example.com%2Fa.ts")
	is.True(scrub(nil) == nil) // nil event
}

func TestRedactQuery(t *testing.T) {
	is := is.New(t)
	is.Equal(redactQuery(""), "")                                  // empty
	is.Equal(redactQuery("url=x&headers="), "url=x&headers=")      // no token
	is.Equal(redactQuery("%zz"), "[redacted]")                     // unparsable
	is.Equal(redactQuery("headers=abc"), "headers=%5Bredacted%5D") // token replaced
}
