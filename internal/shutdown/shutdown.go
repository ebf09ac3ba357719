// Package shutdown runs an HTTP server until its context ends, then drains it.
package shutdown

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Serve starts srv and blocks until ctx is done or the server fails. On
// cancellation it stops accepting connections and waits up to drainTimeout
// for active ones, relays included, to finish.
func Serve(ctx context.Context, srv *http.Server, drainTimeout time.Duration, log *logrus.Entry) error {
	serverErr := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	log.WithField("timeout", drainTimeout.String()).Info("draining connections")
	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	if err := srv.Shutdown(drainCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
		return err
	}

	log.Info("server stopped cleanly")
	return nil
}
