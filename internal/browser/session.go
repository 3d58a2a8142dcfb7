// internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chatprobe/internal/config"
)

// Session is one browser instance driven over CDP. It implements Driver.
type Session struct {
	id          string
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	logger      *zap.Logger

	onClose func()

	mu       sync.Mutex
	isClosed bool
}

var _ Driver = (*Session)(nil)

// NewSession launches a browser and returns once the first target is attached.
// The browser lives until Quit is called or parent is canceled.
func NewSession(parent context.Context, cfg config.BrowserConfig, logger *zap.Logger, onClose func()) (*Session, error) {
	sessionID := uuid.NewString()
	log := logger.With(zap.String("session_id", sessionID))

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, DefaultAllocatorOptions(cfg)...)
	browserCtx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(log.Sugar().Debugf),
		chromedp.WithErrorf(log.Sugar().Debugf),
	)

	s := &Session{
		id:          sessionID,
		ctx:         browserCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
		logger:      log,
		onClose:     onClose,
	}

	// The first Run binds the browser process to browserCtx, so it must not
	// run under a derived deadline. A watchdog enforces the launch timeout.
	timeout := cfg.LaunchTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	watchdog := time.AfterFunc(timeout, cancel)
	err := chromedp.Run(browserCtx)
	stopped := watchdog.Stop()
	if err != nil || !stopped {
		cancel()
		allocCancel()
		if err == nil {
			err = fmt.Errorf("launch exceeded %s", timeout)
		}
		return nil, &DriverError{Op: "launch", Err: err}
	}

	log.Debug("Browser session started.")
	return s, nil
}

// ID returns the session ID.
func (s *Session) ID() string {
	return s.id
}

// runActions executes chromedp actions bounded by both the session lifetime
// and the caller's context.
func (s *Session) runActions(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := scoped(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating.", zap.String("url", url))
	err := s.runActions(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	return wrapDriverErr("navigate", err)
}

func (s *Session) Refresh(ctx context.Context) error {
	err := s.runActions(ctx,
		chromedp.Reload(),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	return wrapDriverErr("refresh", err)
}

// selectorFor maps a Locator onto a chromedp selector and query options.
func selectorFor(loc Locator) (string, []chromedp.QueryOption, error) {
	switch loc.Strategy {
	case ByID:
		return fmt.Sprintf(`[id=%q]`, loc.Selector), []chromedp.QueryOption{chromedp.ByQueryAll}, nil
	case ByClassName:
		return "." + loc.Selector, []chromedp.QueryOption{chromedp.ByQueryAll}, nil
	case ByCSS:
		return loc.Selector, []chromedp.QueryOption{chromedp.ByQueryAll}, nil
	case ByXPath:
		return loc.Selector, []chromedp.QueryOption{chromedp.BySearch}, nil
	default:
		return "", nil, fmt.Errorf("unsupported locator strategy %q for %s", loc.Strategy, loc.Role)
	}
}

func (s *Session) queryNodes(ctx context.Context, loc Locator) ([]*cdp.Node, error) {
	sel, opts, err := selectorFor(loc)
	if err != nil {
		return nil, err
	}
	// AtLeast(0) turns the query into a snapshot instead of a wait.
	opts = append(opts, chromedp.AtLeast(0))

	var nodes []*cdp.Node
	if err := s.runActions(ctx, chromedp.Nodes(sel, &nodes, opts...)); err != nil {
		return nil, wrapDriverErr("find "+loc.Role, err)
	}
	return nodes, nil
}

func (s *Session) Find(ctx context.Context, loc Locator) (Element, error) {
	nodes, err := s.queryNodes(ctx, loc)
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, &ElementNotFoundError{Locator: loc}
	}
	return &element{s: s, node: nodes[0], loc: loc}, nil
}

func (s *Session) FindAll(ctx context.Context, loc Locator) ([]Element, error) {
	nodes, err := s.queryNodes(ctx, loc)
	if err != nil {
		return nil, err
	}
	elems := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		elems = append(elems, &element{s: s, node: n, loc: loc})
	}
	return elems, nil
}

// SaveScreenshot captures the viewport as PNG.
func (s *Session) SaveScreenshot(ctx context.Context, path string) error {
	var buf []byte
	if err := s.runActions(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return wrapDriverErr("screenshot", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create screenshot dir: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("failed to write screenshot: %w", err)
	}
	return nil
}

// Quit closes the browser. It is safe to call more than once.
func (s *Session) Quit(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.mu.Unlock()

	s.logger.Debug("Closing browser session.")

	done := make(chan error, 1)
	go func() { done <- chromedp.Cancel(s.ctx) }()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	// Whatever happened above, make sure the process is gone.
	s.cancel()
	s.allocCancel()

	if s.onClose != nil {
		s.onClose()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return wrapDriverErr("quit", err)
	}
	return nil
}

// callOnNode invokes fn with the node bound to `this` and decodes the result.
func (s *Session) callOnNode(ctx context.Context, node *cdp.Node, fn string, res interface{}) error {
	return s.runActions(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithNodeID(node.NodeID).Do(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = runtime.ReleaseObject(obj.ObjectID).Do(ctx) }()

		v, exc, err := runtime.CallFunctionOn(fn).
			WithObjectID(obj.ObjectID).
			WithReturnByValue(true).
			Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return exc
		}
		if res == nil || v == nil || len(v.Value) == 0 {
			return nil
		}
		return json.Unmarshal([]byte(v.Value), res)
	}))
}
