// internal/chatpage/page.go

// Package chatpage drives a chat widget through the browser capability. It
// turns clicks, keystrokes and DOM snapshots into chat level operations and
// owns every wait needed to observe the widget's asynchronous updates.
package chatpage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/chatprobe/internal/browser"
	"github.com/xkilldash9x/chatprobe/internal/config"
	"github.com/xkilldash9x/chatprobe/internal/wait"
)

// ErrUnsupported is returned for operations the widget variant has no control for.
var ErrUnsupported = errors.New("operation not supported by this chat widget")

// MessageSource exposes the most recent messages of a live chat. Reporting
// depends only on this, not on a concrete page.
type MessageSource interface {
	// RecentBotMessages returns up to the last n bot messages, oldest first.
	// n <= 0 returns all of them.
	RecentBotMessages(ctx context.Context, n int) ([]string, error)
	RecentUserMessages(ctx context.Context, n int) ([]string, error)
}

// ChatPage is the chat level contract shared by every widget variant.
type ChatPage interface {
	MessageSource

	Variant() Variant
	// Load navigates to the widget and waits for the open control.
	Load(ctx context.Context) error
	Open(ctx context.Context) error
	Close(ctx context.Context) error
	// Send clears the input, types message and submits it. A zero Submit
	// uses the variant default.
	Send(ctx context.Context, message string, how Submit) error
	// SendAndAwaitResponse sends message and blocks until at least one new bot
	// message appeared. It returns every bot message added since the send.
	SendAndAwaitResponse(ctx context.Context, message string, how Submit) ([]string, error)
	// ResetState reloads the page and leaves an empty, closed chat.
	ResetState(ctx context.Context) error

	// Snapshots. None of these wait.
	IsPanelVisible(ctx context.Context) (bool, error)
	UserMessages(ctx context.Context) ([]string, error)
	BotMessages(ctx context.Context) ([]string, error)
	IsSendControlEnabled(ctx context.Context) (bool, error)
}

// Options carries the target and timing inputs of a page.
type Options struct {
	URL string
	// Timeout bounds UI state waits (visibility, clickability).
	Timeout time.Duration
	// PageTimeout bounds page loads and reloads.
	PageTimeout time.Duration
	// ResponseTimeout bounds the wait for a bot reply.
	ResponseTimeout time.Duration
	PollInterval    time.Duration
}

// OptionsFromConfig builds page options from the target and wait sections.
func OptionsFromConfig(target config.TargetConfig, w config.WaitConfig) Options {
	return Options{
		URL:             target.URL,
		Timeout:         w.Timeout,
		PageTimeout:     target.PageTimeout,
		ResponseTimeout: w.ResponseTimeout,
		PollInterval:    w.PollInterval,
	}
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = wait.DefaultTimeout
	}
	if o.PageTimeout <= 0 {
		o.PageTimeout = o.Timeout
	}
	if o.ResponseTimeout <= 0 {
		o.ResponseTimeout = o.Timeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = wait.DefaultInterval
	}
	return o
}

// -- Structs and Constructors --

// Page implements ChatPage for any Variant.
type Page struct {
	drv    browser.Driver
	v      Variant
	loc    Locators
	opts   Options
	logger *zap.Logger
}

var (
	_ ChatPage = (*Page)(nil)
	_ ChatPage = (*LaraigoPage)(nil)
)

// NewPage builds the generic page for v.
func NewPage(drv browser.Driver, v Variant, opts Options, logger *zap.Logger) *Page {
	return &Page{
		drv:    drv,
		v:      v,
		loc:    v.Locators,
		opts:   opts.withDefaults(),
		logger: logger.Named("chatpage").With(zap.String("widget", v.Name)),
	}
}

// New returns the richest page type available for v: a *LaraigoPage for the
// Laraigo widget, a *Page otherwise.
func New(drv browser.Driver, v Variant, opts Options, logger *zap.Logger) ChatPage {
	if v.Name == config.WidgetLaraigo {
		return &LaraigoPage{Page: NewPage(drv, v, opts, logger)}
	}
	return NewPage(drv, v, opts, logger)
}

func (p *Page) Variant() Variant { return p.v }

// Driver returns the browser the page drives.
func (p *Page) Driver() browser.Driver { return p.drv }

// -- Wait helpers --

// retryable treats a missing element or a stale node as "not yet".
func retryable(err error) bool {
	return errors.Is(err, browser.ErrElementNotFound) || errors.Is(err, browser.ErrDriverFailure)
}

func (p *Page) waitFor(ctx context.Context, timeout time.Duration, desc string, probe func(ctx context.Context) (bool, error)) error {
	return wait.For(ctx, wait.Options{
		Timeout:     timeout,
		Interval:    p.opts.PollInterval,
		Description: desc,
		Retry:       retryable,
	}, probe)
}

// waitClickable waits until loc is present, displayed and enabled.
func (p *Page) waitClickable(ctx context.Context, loc browser.Locator) (browser.Element, error) {
	return wait.Until(ctx, wait.Options{
		Timeout:     p.opts.Timeout,
		Interval:    p.opts.PollInterval,
		Description: loc.Role + " to become clickable",
		Retry:       retryable,
	}, func(ctx context.Context) (browser.Element, bool, error) {
		el, err := p.drv.Find(ctx, loc)
		if err != nil {
			return nil, false, err
		}
		shown, err := el.IsDisplayed(ctx)
		if err != nil || !shown {
			return nil, false, err
		}
		enabled, err := el.IsEnabled(ctx)
		if err != nil || !enabled {
			return nil, false, err
		}
		return el, true, nil
	})
}

func (p *Page) waitPresent(ctx context.Context, loc browser.Locator, timeout time.Duration) error {
	return p.waitFor(ctx, timeout, loc.Role+" to be present", func(ctx context.Context) (bool, error) {
		_, err := p.drv.Find(ctx, loc)
		return err == nil, err
	})
}

func (p *Page) waitVisibility(ctx context.Context, loc browser.Locator, want bool) error {
	desc := loc.Role + " to become visible"
	if !want {
		desc = loc.Role + " to become hidden"
	}
	return p.waitFor(ctx, p.opts.Timeout, desc, func(ctx context.Context) (bool, error) {
		shown, err := p.isVisible(ctx, loc)
		return shown == want, err
	})
}

// isVisible reports false for an absent element.
func (p *Page) isVisible(ctx context.Context, loc browser.Locator) (bool, error) {
	if loc.IsZero() {
		return false, fmt.Errorf("%w: no locator for %s", ErrUnsupported, loc.Role)
	}
	el, err := p.drv.Find(ctx, loc)
	if errors.Is(err, browser.ErrElementNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return el.IsDisplayed(ctx)
}

func (p *Page) texts(ctx context.Context, loc browser.Locator) ([]string, error) {
	els, err := p.drv.FindAll(ctx, loc)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(els))
	for _, el := range els {
		t, err := el.Text(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (p *Page) count(ctx context.Context, loc browser.Locator) (int, error) {
	els, err := p.drv.FindAll(ctx, loc)
	return len(els), err
}

func lastN(msgs []string, n int) []string {
	if n <= 0 || n >= len(msgs) {
		return msgs
	}
	return msgs[len(msgs)-n:]
}

// -- Chat operations --

func (p *Page) Load(ctx context.Context) error {
	p.logger.Debug("Loading chat page.", zap.String("url", p.opts.URL))
	if err := p.drv.Navigate(ctx, p.opts.URL); err != nil {
		return err
	}
	return p.waitPresent(ctx, p.loc.Open, p.opts.PageTimeout)
}

func (p *Page) Open(ctx context.Context) error {
	visible, err := p.IsPanelVisible(ctx)
	if err != nil || visible {
		return err
	}
	toggle, err := p.waitClickable(ctx, p.loc.Open)
	if err != nil {
		return err
	}
	p.logger.Debug("Opening chat panel.")
	if err := toggle.Click(ctx); err != nil {
		return err
	}
	return p.waitVisibility(ctx, p.loc.Panel, true)
}

func (p *Page) Close(ctx context.Context) error {
	visible, err := p.IsPanelVisible(ctx)
	if err != nil || !visible {
		return err
	}
	closer, err := p.waitClickable(ctx, p.loc.Close)
	if err != nil {
		return err
	}
	p.logger.Debug("Closing chat panel.")
	if err := closer.Click(ctx); err != nil {
		return err
	}
	return p.waitVisibility(ctx, p.loc.Panel, false)
}

func (p *Page) Send(ctx context.Context, message string, how Submit) error {
	if how == 0 {
		how = p.v.DefaultSubmit()
	}
	if !p.v.Supports(how) {
		return fmt.Errorf("%w: submit by %s on %s widget", ErrUnsupported, how, p.v.Name)
	}
	if p.v.AutoOpen {
		if err := p.Open(ctx); err != nil {
			return err
		}
	}

	input, err := p.waitClickable(ctx, p.loc.Input)
	if err != nil {
		return err
	}
	// Leftovers from an earlier failed attempt would be concatenated otherwise.
	if err := input.Clear(ctx); err != nil {
		return err
	}
	if err := input.Type(ctx, message); err != nil {
		return err
	}

	p.logger.Debug("Submitting message.", zap.String("message", message), zap.Stringer("submit", how))
	if how == SubmitEnter {
		return input.PressEnter(ctx)
	}
	send, err := p.drv.Find(ctx, p.loc.Send)
	if err != nil {
		return err
	}
	return send.Click(ctx)
}

func (p *Page) SendAndAwaitResponse(ctx context.Context, message string, how Submit) ([]string, error) {
	// A widget that greets on open must be open before the baseline count.
	if p.v.AutoOpen {
		if err := p.Open(ctx); err != nil {
			return nil, err
		}
	}
	before, err := p.count(ctx, p.loc.BotMessages)
	if err != nil {
		return nil, err
	}
	if err := p.Send(ctx, message, how); err != nil {
		return nil, err
	}

	if p.v.ConfirmUserEcho {
		err := p.waitFor(ctx, p.opts.Timeout, fmt.Sprintf("user message %q to render", message), func(ctx context.Context) (bool, error) {
			users, err := p.texts(ctx, p.loc.UserMessages)
			return slices.Contains(users, message), err
		})
		if err != nil {
			return nil, err
		}
	}

	replies, err := wait.Until(ctx, wait.Options{
		Timeout:     p.opts.ResponseTimeout,
		Interval:    p.opts.PollInterval,
		Description: "a new bot message to appear",
		Retry:       retryable,
	}, func(ctx context.Context) ([]string, bool, error) {
		bots, err := p.texts(ctx, p.loc.BotMessages)
		if err != nil {
			return nil, false, err
		}
		if len(bots) <= before {
			return nil, false, nil
		}
		return bots[before:], true, nil
	})
	if err != nil {
		return nil, err
	}
	p.logger.Debug("Bot replied.", zap.Int("new_messages", len(replies)))
	return replies, nil
}

func (p *Page) ResetState(ctx context.Context) error {
	p.logger.Debug("Resetting chat state.")
	if err := p.drv.Refresh(ctx); err != nil {
		return err
	}
	if err := p.waitPresent(ctx, p.loc.Open, p.opts.PageTimeout); err != nil {
		return err
	}
	if p.v.HistoryPersists {
		if err := p.Open(ctx); err != nil {
			return err
		}
		if err := p.clearHistory(ctx); err != nil {
			return err
		}
	}
	return p.Close(ctx)
}

// clearHistory presses the history refresh control while the panel is open
// and waits until no user message is left.
func (p *Page) clearHistory(ctx context.Context) error {
	if p.loc.HistoryRefresh.IsZero() {
		return fmt.Errorf("%w: history refresh", ErrUnsupported)
	}
	visible, err := p.IsPanelVisible(ctx)
	if err != nil || !visible {
		return err
	}
	btn, err := p.drv.Find(ctx, p.loc.HistoryRefresh)
	if err != nil {
		return err
	}
	if err := btn.Click(ctx); err != nil {
		return err
	}
	return p.waitFor(ctx, p.opts.Timeout, "chat history to be cleared", func(ctx context.Context) (bool, error) {
		n, err := p.count(ctx, p.loc.UserMessages)
		return n == 0, err
	})
}

// -- Snapshots --

func (p *Page) IsPanelVisible(ctx context.Context) (bool, error) {
	return p.isVisible(ctx, p.loc.Panel)
}

func (p *Page) UserMessages(ctx context.Context) ([]string, error) {
	return p.texts(ctx, p.loc.UserMessages)
}

func (p *Page) BotMessages(ctx context.Context) ([]string, error) {
	return p.texts(ctx, p.loc.BotMessages)
}

func (p *Page) IsSendControlEnabled(ctx context.Context) (bool, error) {
	if p.loc.Send.IsZero() {
		return false, fmt.Errorf("%w: %s widget has no send button", ErrUnsupported, p.v.Name)
	}
	btn, err := p.drv.Find(ctx, p.loc.Send)
	if err != nil {
		return false, err
	}
	return btn.IsEnabled(ctx)
}

func (p *Page) RecentBotMessages(ctx context.Context, n int) ([]string, error) {
	msgs, err := p.BotMessages(ctx)
	if err != nil {
		return nil, err
	}
	return lastN(msgs, n), nil
}

func (p *Page) RecentUserMessages(ctx context.Context, n int) ([]string, error) {
	msgs, err := p.UserMessages(ctx)
	if err != nil {
		return nil, err
	}
	return lastN(msgs, n), nil
}
