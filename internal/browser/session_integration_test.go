// internal/browser/session_integration_test.go
package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/chatprobe/internal/config"
)

// browserSlots bounds concurrent Chrome processes across the package's tests.
var browserSlots = semaphore.NewWeighted(2)

const integrationPage = `<!DOCTYPE html>
<html><body>
  <button id="toggle" onclick="document.getElementById('panel').classList.toggle('hidden')">toggle</button>
  <div id="panel" class="hidden">
    <input id="box" type="text" value="stale">
    <button id="send" disabled>send</button>
    <div id="log"><p class="msg">first</p><p class="msg">second</p></div>
  </div>
  <style>.hidden { display: none; }</style>
</body></html>`

// newIntegrationSession launches a real browser or skips the test.
func newIntegrationSession(t *testing.T) (*Session, string) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser integration test in short mode")
	}

	cfg := config.BrowserConfig{Kind: "chrome", Headless: true, LaunchTimeout: 30 * time.Second}
	if ResolveExecPath(cfg) == "" {
		cfg.Kind = "chromium"
		if ResolveExecPath(cfg) == "" {
			t.Skip("no Chrome or Chromium binary found; set CHROMEDP_BROWSER to run browser tests")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, browserSlots.Acquire(ctx, 1))
	t.Cleanup(func() { browserSlots.Release(1) })

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(integrationPage))
	}))
	t.Cleanup(srv.Close)

	s, err := NewSession(context.Background(), cfg, zaptest.NewLogger(t), nil)
	if err != nil {
		t.Skipf("browser could not be started: %v", err)
	}
	t.Cleanup(func() { _ = s.Quit(context.Background()) })
	return s, srv.URL
}

func TestSession_Integration(t *testing.T) {
	s, url := newIntegrationSession(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, s.Navigate(ctx, url))

	panel, err := s.Find(ctx, ID("panel", "panel"))
	require.NoError(t, err)
	visible, err := panel.IsDisplayed(ctx)
	require.NoError(t, err)
	assert.False(t, visible)

	toggle, err := s.Find(ctx, ID("toggle", "toggle"))
	require.NoError(t, err)
	require.NoError(t, toggle.Click(ctx))
	visible, err = panel.IsDisplayed(ctx)
	require.NoError(t, err)
	assert.True(t, visible)

	box, err := s.Find(ctx, ID("input", "box"))
	require.NoError(t, err)
	require.NoError(t, box.Clear(ctx))
	require.NoError(t, box.Type(ctx, "Hola"))

	send, err := s.Find(ctx, ID("send", "send"))
	require.NoError(t, err)
	enabled, err := send.IsEnabled(ctx)
	require.NoError(t, err)
	assert.False(t, enabled)

	msgs, err := s.FindAll(ctx, CSS("messages", "#log p.msg"))
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	text, err := msgs[1].Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", text)

	xmsgs, err := s.FindAll(ctx, XPath("messages", "//div[@id='log']/p[contains(@class, 'msg')]"))
	require.NoError(t, err)
	assert.Len(t, xmsgs, 2)

	_, err = s.Find(ctx, ID("missing", "nope"))
	assert.ErrorIs(t, err, ErrElementNotFound)

	shot := filepath.Join(t.TempDir(), "shots", "page.png")
	require.NoError(t, s.SaveScreenshot(ctx, shot))
	info, err := os.Stat(shot)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	require.NoError(t, s.Refresh(ctx))
	panel, err = s.Find(ctx, ID("panel", "panel"))
	require.NoError(t, err)
	visible, err = panel.IsDisplayed(ctx)
	require.NoError(t, err)
	assert.False(t, visible, "reload restores the initial state")

	require.NoError(t, s.Quit(ctx))
	require.NoError(t, s.Quit(ctx), "quit is idempotent")
}
