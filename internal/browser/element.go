// internal/browser/element.go
package browser

import (
	"context"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

const (
	jsIsDisplayed = `function() {
		const style = window.getComputedStyle(this);
		if (style.display === 'none' || style.visibility === 'hidden' || style.opacity === '0') {
			return false;
		}
		const rect = this.getBoundingClientRect();
		return rect.width > 0 && rect.height > 0;
	}`
	jsIsEnabled = `function() { return !this.disabled && !this.hasAttribute('aria-disabled'); }`
	jsText      = `function() { return (this.innerText || this.textContent || '').trim(); }`
	// Assigning through the native setter keeps framework-managed inputs in sync.
	jsClear = `function() {
		this.focus();
		const proto = Object.getPrototypeOf(this);
		const desc = Object.getOwnPropertyDescriptor(proto, 'value');
		if (desc && desc.set) { desc.set.call(this, ''); } else { this.value = ''; }
		this.dispatchEvent(new Event('input', { bubbles: true }));
		this.dispatchEvent(new Event('change', { bubbles: true }));
	}`
)

// element is a chromedp backed Element. Handles go stale after navigation.
type element struct {
	s    *Session
	node *cdp.Node
	loc  Locator
}

func (e *element) ids() []cdp.NodeID { return []cdp.NodeID{e.node.NodeID} }

func (e *element) Click(ctx context.Context) error {
	return wrapDriverErr("click "+e.loc.Role, e.s.runActions(ctx, chromedp.MouseClickNode(e.node)))
}

func (e *element) Clear(ctx context.Context) error {
	return wrapDriverErr("clear "+e.loc.Role, e.s.callOnNode(ctx, e.node, jsClear, nil))
}

func (e *element) Type(ctx context.Context, text string) error {
	err := e.s.runActions(ctx, chromedp.SendKeys(e.ids(), text, chromedp.ByNodeID))
	return wrapDriverErr("type into "+e.loc.Role, err)
}

func (e *element) PressEnter(ctx context.Context) error {
	err := e.s.runActions(ctx, chromedp.SendKeys(e.ids(), kb.Enter, chromedp.ByNodeID))
	return wrapDriverErr("press enter on "+e.loc.Role, err)
}

func (e *element) SetFiles(ctx context.Context, paths ...string) error {
	err := e.s.runActions(ctx, dom.SetFileInputFiles(paths).WithNodeID(e.node.NodeID))
	return wrapDriverErr("set files on "+e.loc.Role, err)
}

func (e *element) IsDisplayed(ctx context.Context) (bool, error) {
	var visible bool
	err := e.s.callOnNode(ctx, e.node, jsIsDisplayed, &visible)
	return visible, wrapDriverErr("check visibility of "+e.loc.Role, err)
}

func (e *element) IsEnabled(ctx context.Context) (bool, error) {
	var enabled bool
	err := e.s.callOnNode(ctx, e.node, jsIsEnabled, &enabled)
	return enabled, wrapDriverErr("check enabled state of "+e.loc.Role, err)
}

func (e *element) Text(ctx context.Context) (string, error) {
	var text string
	err := e.s.callOnNode(ctx, e.node, jsText, &text)
	return text, wrapDriverErr("read text of "+e.loc.Role, err)
}
