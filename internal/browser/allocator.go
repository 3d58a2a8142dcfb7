// internal/browser/allocator.go
package browser

import (
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/chatprobe/internal/config"
)

// lookPath is replaced in tests.
var lookPath = exec.LookPath

// executableCandidates lists binary names searched on PATH per browser kind.
var executableCandidates = map[string][]string{
	"chrome":   {"google-chrome", "google-chrome-stable", "chrome"},
	"chromium": {"chromium", "chromium-browser"},
	"edge":     {"microsoft-edge", "microsoft-edge-stable", "msedge"},
}

// browserEnvVars override discovery, in order of precedence.
var browserEnvVars = []string{"CHROMEDP_BROWSER", "CHROME_PATH"}

// ResolveExecPath picks the browser binary: explicit config first, then the
// environment, then PATH. An empty result lets chromedp use its own search.
func ResolveExecPath(cfg config.BrowserConfig) string {
	if cfg.ExecPath != "" {
		return cfg.ExecPath
	}
	for _, key := range browserEnvVars {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	for _, name := range executableCandidates[strings.ToLower(cfg.Kind)] {
		if p, err := lookPath(name); err == nil {
			return p
		}
	}
	return ""
}

// launchFlags returns the command line switches applied on top of chromedp's
// defaults. User supplied args win over the built-ins.
func launchFlags(cfg config.BrowserConfig) map[string]interface{} {
	flags := map[string]interface{}{
		"headless":                 cfg.Headless,
		"no-sandbox":               true,
		"disable-dev-shm-usage":    true,
		"disable-gpu":              true,
		"disable-extensions":       true,
		"disable-infobars":         true,
		"no-first-run":             true,
		"no-default-browser-check": true,
	}
	for _, arg := range cfg.Args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			flags[name] = value
		} else {
			flags[name] = true
		}
	}
	return flags
}

// DefaultAllocatorOptions builds the exec allocator options for one browser instance.
func DefaultAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := make([]chromedp.ExecAllocatorOption, 0, len(chromedp.DefaultExecAllocatorOptions)+16)
	opts = append(opts, chromedp.DefaultExecAllocatorOptions[:]...)

	flags := launchFlags(cfg)
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		opts = append(opts, chromedp.Flag(name, flags[name]))
	}

	if cfg.Viewport.Width > 0 && cfg.Viewport.Height > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.Viewport.Width, cfg.Viewport.Height))
	}
	if p := ResolveExecPath(cfg); p != "" {
		opts = append(opts, chromedp.ExecPath(p))
	}
	return opts
}
