// internal/chatpage/laraigo.go
package chatpage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chatprobe/internal/browser"
)

// LaraigoPage adds the Laraigo widget's history, attachment and idle bubble
// controls to the generic page.
type LaraigoPage struct {
	*Page
}

// NewLaraigoPage builds a page for the Laraigo variant.
func NewLaraigoPage(drv browser.Driver, opts Options, logger *zap.Logger) *LaraigoPage {
	return &LaraigoPage{Page: NewPage(drv, Laraigo, opts, logger)}
}

// WaitForPageLoad waits for the open button, bounded by the page timeout.
func (p *LaraigoPage) WaitForPageLoad(ctx context.Context) error {
	return p.waitPresent(ctx, p.loc.Open, p.opts.PageTimeout)
}

// RefreshChat clears the visible conversation. On this widget the refresh
// control empties the history; it is a no-op while the window is closed.
func (p *LaraigoPage) RefreshChat(ctx context.Context) error {
	return p.clearHistory(ctx)
}

// -- Attachments --

func (p *LaraigoPage) IsAttachmentsMenuVisible(ctx context.Context) (bool, error) {
	return p.isVisible(ctx, p.loc.AttachMenu)
}

// OpenAttachmentsMenu shows the attachment menu. It does nothing while the
// chat window is closed.
func (p *LaraigoPage) OpenAttachmentsMenu(ctx context.Context) error {
	visible, err := p.IsPanelVisible(ctx)
	if err != nil || !visible {
		return err
	}
	btn, err := p.drv.Find(ctx, p.loc.AttachButton)
	if err != nil {
		return err
	}
	if err := btn.Click(ctx); err != nil {
		return err
	}
	return p.waitVisibility(ctx, p.loc.AttachMenu, true)
}

// CloseAttachmentsMenu dismisses the menu by clicking the message input.
func (p *LaraigoPage) CloseAttachmentsMenu(ctx context.Context) error {
	visible, err := p.IsAttachmentsMenuVisible(ctx)
	if err != nil || !visible {
		return err
	}
	input, err := p.drv.Find(ctx, p.loc.Input)
	if err != nil {
		return err
	}
	if err := input.Click(ctx); err != nil {
		return err
	}
	return p.waitVisibility(ctx, p.loc.AttachMenu, false)
}

func (p *LaraigoPage) ensureAttachmentsMenu(ctx context.Context) error {
	visible, err := p.IsAttachmentsMenuVisible(ctx)
	if err != nil || visible {
		return err
	}
	return p.OpenAttachmentsMenu(ctx)
}

// upload feeds a local file to one of the menu's file inputs, then closes the menu.
func (p *LaraigoPage) upload(ctx context.Context, loc browser.Locator, path string) error {
	abs, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("invalid upload path %q: %w", path, err)
	}
	if abs, err = filepath.Abs(abs); err != nil {
		return fmt.Errorf("invalid upload path %q: %w", path, err)
	}
	if err := p.ensureAttachmentsMenu(ctx); err != nil {
		return err
	}
	input, err := p.drv.Find(ctx, loc)
	if err != nil {
		return err
	}
	p.logger.Debug("Uploading attachment.", zap.String("input", loc.Role), zap.String("path", abs))
	if err := input.SetFiles(ctx, abs); err != nil {
		return err
	}
	return p.CloseAttachmentsMenu(ctx)
}

func (p *LaraigoPage) UploadImage(ctx context.Context, path string) error {
	return p.upload(ctx, p.loc.ImageInput, path)
}

func (p *LaraigoPage) UploadFile(ctx context.Context, path string) error {
	return p.upload(ctx, p.loc.FileInput, path)
}

func (p *LaraigoPage) UploadAudio(ctx context.Context, path string) error {
	return p.upload(ctx, p.loc.AudioInput, path)
}

func (p *LaraigoPage) UploadVideo(ctx context.Context, path string) error {
	return p.upload(ctx, p.loc.VideoInput, path)
}

// ShareLocation clicks the location entry. The widget closes the menu itself.
func (p *LaraigoPage) ShareLocation(ctx context.Context) error {
	if err := p.ensureAttachmentsMenu(ctx); err != nil {
		return err
	}
	btn, err := p.drv.Find(ctx, p.loc.ShareLocation)
	if err != nil {
		return err
	}
	return btn.Click(ctx)
}

// -- Idle bubble --

func (p *LaraigoPage) IsIdleMessageVisible(ctx context.Context) (bool, error) {
	return p.isVisible(ctx, p.loc.IdleMessage)
}

// HideIdleMessage closes the idle bubble if one is showing. A bubble without
// a close control is left alone.
func (p *LaraigoPage) HideIdleMessage(ctx context.Context) error {
	visible, err := p.IsIdleMessageVisible(ctx)
	if err != nil || !visible {
		return err
	}
	btn, err := p.drv.Find(ctx, p.loc.IdleClose)
	if errors.Is(err, browser.ErrElementNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := btn.Click(ctx); err != nil {
		return err
	}
	return p.waitVisibility(ctx, p.loc.IdleMessage, false)
}
