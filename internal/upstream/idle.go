package upstream

import (
	"context"
	"io"
	"sync"
	"time"
)

// idleBody cancels its request when no bytes arrive for timeout. Every
// successful read restarts the timer, so a body that keeps flowing is
// never cut.
type idleBody struct {
	io.ReadCloser
	ctx     context.Context
	timeout time.Duration
	timer   *time.Timer
	cancel  context.CancelCauseFunc
	once    sync.Once
}

func newIdleBody(ctx context.Context, body io.ReadCloser, timeout time.Duration, cancel context.CancelCauseFunc) *idleBody {
	b := &idleBody{ReadCloser: body, ctx: ctx, timeout: timeout, cancel: cancel}
	b.timer = time.AfterFunc(timeout, func() { cancel(ErrStalled) })
	return b
}

func (b *idleBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if n > 0 {
		b.timer.Reset(b.timeout)
	}
	if err != nil && err != io.EOF && context.Cause(b.ctx) == ErrStalled {
		return n, ErrStalled
	}
	return n, err
}

func (b *idleBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(func() {
		b.timer.Stop()
		b.cancel(nil)
	})
	return err
}
