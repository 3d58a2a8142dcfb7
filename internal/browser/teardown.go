// internal/browser/teardown.go
package browser

import (
	"context"
	"time"
)

// scoped returns a context carrying the session's chromedp target that also
// ends when the caller's ctx does. Every CDP call goes through one so a test
// deadline interrupts a hung browser.
func scoped(session, caller context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(session)
	stop := context.AfterFunc(caller, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// TeardownContext bounds cleanup work by timeout alone. It keeps ctx's values
// so loggers and run ids survive, but a canceled or expired test context does
// not stop browsers from being closed and reports from being written.
func TeardownContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}
