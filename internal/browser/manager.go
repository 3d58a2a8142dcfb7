// internal/browser/manager.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/chatprobe/internal/config"
)

// ErrManagerClosed is returned by Launch after Shutdown.
var ErrManagerClosed = errors.New("browser manager is shut down")

// sessionFactory is replaced in tests to avoid starting real browsers.
type sessionFactory func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger, onClose func()) (Driver, error)

func newChromedpSession(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger, onClose func()) (Driver, error) {
	return NewSession(ctx, cfg, logger, onClose)
}

// Manager hands out one browser per caller and guarantees every browser it
// launched is closed by Shutdown, even if a caller forgot to Quit.
type Manager struct {
	ctx     context.Context
	cfg     config.BrowserConfig
	logger  *zap.Logger
	factory sessionFactory

	mu       sync.Mutex
	sessions map[int]Driver
	nextID   int
	closed   bool
	wg       sync.WaitGroup
}

var _ Launcher = (*Manager)(nil)

// NewManager creates a manager whose browsers are bound to ctx.
func NewManager(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	return &Manager{
		ctx:      ctx,
		cfg:      cfg,
		logger:   logger.Named("browser_manager"),
		factory:  newChromedpSession,
		sessions: make(map[int]Driver),
	}
}

// Launch starts a new browser instance. ctx is only checked up front; launch
// time is bounded by browser.launch_timeout.
func (m *Manager) Launch(ctx context.Context) (Driver, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	id := m.nextID
	m.nextID++
	m.wg.Add(1)
	m.mu.Unlock()

	var once sync.Once
	onClose := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.sessions, id)
			m.mu.Unlock()
			m.wg.Done()
		})
	}

	if err := ctx.Err(); err != nil {
		onClose()
		return nil, err
	}
	// The browser outlives this call, so it is bound to the manager's context.
	drv, err := m.factory(m.ctx, m.cfg, m.logger, onClose)
	if err != nil {
		onClose()
		return nil, fmt.Errorf("failed to launch %s: %w", m.cfg.Kind, err)
	}

	m.mu.Lock()
	m.sessions[id] = drv
	m.mu.Unlock()
	m.logger.Debug("Browser launched.", zap.Int("active", m.ActiveSessions()))
	return drv, nil
}

// ActiveSessions reports how many launched browsers are still open.
func (m *Manager) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown closes every open browser concurrently and waits for them, up to ctx.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	open := make([]Driver, 0, len(m.sessions))
	for _, d := range m.sessions {
		open = append(open, d)
	}
	m.mu.Unlock()

	if len(open) > 0 {
		m.logger.Info("Closing browsers still open at shutdown.", zap.Int("count", len(open)))
	}
	for _, d := range open {
		go func(d Driver) {
			if err := d.Quit(ctx); err != nil {
				m.logger.Warn("Error closing browser during shutdown.", zap.Error(err))
			}
		}(d)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for browsers to close: %w", ctx.Err())
	}
}
