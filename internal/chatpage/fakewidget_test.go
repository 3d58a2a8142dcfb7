// internal/chatpage/fakewidget_test.go
package chatpage

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/xkilldash9x/chatprobe/internal/browser"
)

// fakeWidget is an in-memory chat widget behind the browser.Driver contract.
// Bot replies arrive asynchronously after delay, like the real widgets.
type fakeWidget struct {
	mu  sync.Mutex
	loc Locators

	// persist keeps the conversation across reloads, as Laraigo does.
	persist bool
	delay   time.Duration
	reply   func(msg string) []string
	// greeting lands as bot messages each time the panel opens.
	greeting []string

	panel   bool
	menu    bool
	idle    bool
	input   string
	users   []string
	bots    []string
	gen     int
	missing map[browser.Locator]bool

	navigated   string
	refreshes   int
	uploads     map[string][]string
	sharedLoc   bool
	screenshots []string
	quit        bool
}

var _ browser.Driver = (*fakeWidget)(nil)

func newFakeWidget(v Variant) *fakeWidget {
	return &fakeWidget{
		loc:     v.Locators,
		persist: v.HistoryPersists,
		delay:   20 * time.Millisecond,
		reply:   func(msg string) []string { return []string{"echo: " + msg} },
		missing: make(map[browser.Locator]bool),
		uploads: make(map[string][]string),
	}
}

func (w *fakeWidget) remove(loc browser.Locator) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.missing[loc] = true
}

func (w *fakeWidget) seed(users, bots []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.users = append(w.users, users...)
	w.bots = append(w.bots, bots...)
}

func (w *fakeWidget) botCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.bots)
}

// resetLocked models a page load.
func (w *fakeWidget) resetLocked() {
	w.gen++
	w.panel = false
	w.menu = false
	w.input = ""
	if !w.persist {
		w.users = nil
		w.bots = nil
	}
}

func (w *fakeWidget) Navigate(_ context.Context, url string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.navigated = url
	w.resetLocked()
	return nil
}

func (w *fakeWidget) Refresh(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.refreshes++
	w.resetLocked()
	return nil
}

func (w *fakeWidget) known(loc browser.Locator) bool {
	if loc.IsZero() {
		return false
	}
	for _, l := range []browser.Locator{
		w.loc.Open, w.loc.Close, w.loc.Panel, w.loc.Input, w.loc.Send,
		w.loc.HistoryRefresh, w.loc.AttachButton, w.loc.AttachMenu,
		w.loc.ImageInput, w.loc.FileInput, w.loc.AudioInput, w.loc.VideoInput,
		w.loc.ShareLocation, w.loc.IdleMessage, w.loc.IdleClose,
	} {
		if l == loc {
			return true
		}
	}
	return false
}

func (w *fakeWidget) Find(_ context.Context, loc browser.Locator) (browser.Element, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.missing[loc] || !w.known(loc) {
		return nil, &browser.ElementNotFoundError{Locator: loc}
	}
	return &fakeElement{w: w, loc: loc}, nil
}

func (w *fakeWidget) FindAll(_ context.Context, loc browser.Locator) ([]browser.Element, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var src []string
	switch loc {
	case w.loc.UserMessages:
		src = w.users
	case w.loc.BotMessages:
		src = w.bots
	}
	els := make([]browser.Element, 0, len(src))
	for _, text := range src {
		els = append(els, &fakeElement{w: w, loc: loc, text: text})
	}
	return els, nil
}

func (w *fakeWidget) SaveScreenshot(_ context.Context, path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.screenshots = append(w.screenshots, path)
	return nil
}

func (w *fakeWidget) Quit(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.quit = true
	return nil
}

// submitLocked mirrors the widgets: blank input is ignored, the user message
// renders at once and replies land later unless the page reloads first.
func (w *fakeWidget) submitLocked() {
	msg := strings.TrimSpace(w.input)
	w.input = ""
	if msg == "" {
		return
	}
	w.users = append(w.users, msg)
	replies := w.reply(msg)
	if len(replies) == 0 {
		return
	}
	gen := w.gen
	time.AfterFunc(w.delay, func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.gen == gen {
			w.bots = append(w.bots, replies...)
		}
	})
}

func (w *fakeWidget) openLocked() {
	w.panel = true
	w.bots = append(w.bots, w.greeting...)
}

type fakeElement struct {
	w    *fakeWidget
	loc  browser.Locator
	text string
}

func (e *fakeElement) Click(context.Context) error {
	w := e.w
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case e.loc == w.loc.Open && e.loc == w.loc.Close:
		if w.panel {
			w.panel = false
		} else {
			w.openLocked()
		}
	case e.loc == w.loc.Open:
		if !w.panel {
			w.openLocked()
		}
	case e.loc == w.loc.Close:
		w.panel = false
	case e.loc == w.loc.Send:
		w.submitLocked()
	case e.loc == w.loc.HistoryRefresh:
		w.users, w.bots = nil, nil
	case e.loc == w.loc.AttachButton:
		w.menu = true
	case e.loc == w.loc.Input:
		w.menu = false
	case e.loc == w.loc.ShareLocation:
		w.sharedLoc = true
		w.menu = false
	case e.loc == w.loc.IdleClose:
		w.idle = false
	}
	return nil
}

func (e *fakeElement) Clear(context.Context) error {
	e.w.mu.Lock()
	defer e.w.mu.Unlock()
	e.w.input = ""
	return nil
}

func (e *fakeElement) Type(_ context.Context, text string) error {
	e.w.mu.Lock()
	defer e.w.mu.Unlock()
	e.w.input += text
	return nil
}

func (e *fakeElement) PressEnter(context.Context) error {
	e.w.mu.Lock()
	defer e.w.mu.Unlock()
	if e.loc == e.w.loc.Input {
		e.w.submitLocked()
	}
	return nil
}

func (e *fakeElement) SetFiles(_ context.Context, paths ...string) error {
	e.w.mu.Lock()
	defer e.w.mu.Unlock()
	e.w.uploads[e.loc.Role] = append(e.w.uploads[e.loc.Role], paths...)
	return nil
}

func (e *fakeElement) IsDisplayed(context.Context) (bool, error) {
	w := e.w
	w.mu.Lock()
	defer w.mu.Unlock()
	switch e.loc {
	case w.loc.Panel, w.loc.Input, w.loc.Send, w.loc.HistoryRefresh, w.loc.AttachButton:
		return w.panel, nil
	case w.loc.AttachMenu:
		return w.menu, nil
	case w.loc.IdleMessage, w.loc.IdleClose:
		return w.idle, nil
	case w.loc.Close:
		if w.loc.Close != w.loc.Open {
			return w.panel, nil
		}
	}
	return true, nil
}

func (e *fakeElement) IsEnabled(context.Context) (bool, error) { return true, nil }

func (e *fakeElement) Text(context.Context) (string, error) { return e.text, nil }
