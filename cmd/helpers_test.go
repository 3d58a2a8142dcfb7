// cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/chatprobe/internal/config"
	"github.com/xkilldash9x/chatprobe/internal/observability"
)

// executeCommand runs root with args and returns everything it printed.
func executeCommand(t *testing.T, root *cobra.Command, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(observability.ResetForTest)

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// writeConfig writes a config file whose logs and reports stay inside a
// temporary directory and returns its path. extra is appended verbatim.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	body := "logger:\n" +
		"  level: debug\n" +
		"  logs_dir: " + filepath.Join(dir, "logs") + "\n" +
		"report:\n" +
		"  dir: " + filepath.Join(dir, "reports") + "\n" +
		extra
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// newTestConfig returns the defaults with every output path under a
// temporary directory.
func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewDefaultConfig()
	cfg.LoggerCfg.LogsDir = filepath.Join(dir, "logs")
	cfg.ReportCfg.Dir = filepath.Join(dir, "reports")
	return cfg
}
