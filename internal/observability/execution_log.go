// File: internal/observability/execution_log.go
package observability

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/chatprobe/internal/config"
)

// FileTimestampLayout names every per-run artifact (logs and screenshots).
const FileTimestampLayout = "20060102_150405"

// ExecutionLog is the human-oriented per-run test log. Each line has a fixed
// shape so it can be grepped or tailed while a run is in progress.
type ExecutionLog struct {
	logger *zap.Logger
	path   string
}

// NewExecutionLog creates <dir>/test_execution_<ts>.log, rotated through lumberjack.
func NewExecutionLog(cfg config.LoggerConfig, dir string, ts time.Time) (*ExecutionLog, error) {
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand logs dir %q: %w", dir, err)
	}
	if err := os.MkdirAll(expanded, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create logs dir: %w", err)
	}

	path := filepath.Join(expanded, ExecutionLogName(ts))
	encCfg := zapcore.EncoderConfig{
		TimeKey:          "ts",
		LevelKey:         "level",
		MessageKey:       "msg",
		EncodeTime:       zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		ConsoleSeparator: " - ",
	}
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(newRotatingFile(cfg, path)),
		zap.DebugLevel,
	)
	return &ExecutionLog{logger: zap.New(core), path: path}, nil
}

// NewExecutionLogTo builds an execution log over an arbitrary core. Tests use
// it with an observer core.
func NewExecutionLogTo(core zapcore.Core) *ExecutionLog {
	return &ExecutionLog{logger: zap.New(core)}
}

// ExecutionLogName is the file name used for a run started at ts.
func ExecutionLogName(ts time.Time) string {
	return "test_execution_" + ts.Format(FileTimestampLayout) + ".log"
}

// Path returns the file backing the log, empty when not file backed.
func (l *ExecutionLog) Path() string { return l.path }

func (l *ExecutionLog) TestStart(name string) {
	l.logger.Info(fmt.Sprintf("TEST START: %s", name))
}

func (l *ExecutionLog) TestEnd(name, status string, duration time.Duration) {
	l.logger.Info(fmt.Sprintf("TEST END: %s - Status: %s - Duration: %.2f seconds", name, status, duration.Seconds()))
}

func (l *ExecutionLog) TestFailure(name, message string) {
	l.logger.Error(fmt.Sprintf("TEST FAILURE: %s - Error: %s", name, message))
}

func (l *ExecutionLog) ResponseTime(name, query string, elapsed time.Duration) {
	l.logger.Info(fmt.Sprintf("RESPONSE TIME: %s - Query: '%s' - Time: %.2f seconds", name, query, elapsed.Seconds()))
}

// Sync flushes the underlying writer.
func (l *ExecutionLog) Sync() error {
	return l.logger.Sync()
}
