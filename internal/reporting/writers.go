// internal/reporting/writers.go
package reporting

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xkilldash9x/chatprobe/internal/config"
)

// Artifact formats understood by NewWriter.
const (
	FormatHTML  = "html"
	FormatJSON  = "json"
	FormatJUnit = "junit"
)

// NewWriter creates the writer for format, targeting path.
func NewWriter(format, path, title string) (Writer, error) {
	switch format {
	case FormatHTML:
		return &HTMLWriter{Path: path, Title: title}, nil
	case FormatJSON:
		return &JSONWriter{Path: path}, nil
	case FormatJUnit:
		return &JUnitWriter{Path: path, SuiteName: title}, nil
	default:
		return nil, fmt.Errorf("unsupported report format: %s", format)
	}
}

// DefaultWriters returns one writer per artifact file named in cfg. An empty
// file name disables that artifact.
func DefaultWriters(cfg config.ReportConfig, dir string) []Writer {
	var ws []Writer
	for _, a := range []struct{ format, file string }{
		{FormatHTML, cfg.HTMLFile},
		{FormatJSON, cfg.JSONFile},
		{FormatJUnit, cfg.JUnitFile},
	} {
		if a.file == "" {
			continue
		}
		path := a.file
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		// Formats are constants above, so this cannot fail.
		w, _ := NewWriter(a.format, path, cfg.Title)
		ws = append(ws, w)
	}
	return ws
}

// writeFile creates parent directories and writes data, reporting failures as *Error.
func writeFile(op, path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &Error{Op: op, Path: path, Err: err}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &Error{Op: op, Path: path, Err: err}
	}
	return nil
}

// SummarySaver persists a finished run. The history store implements it.
type SummarySaver interface {
	SaveRun(ctx context.Context, s Summary) error
}

// StoreWriter records the run in the history store.
type StoreWriter struct {
	Store SummarySaver
}

func (w *StoreWriter) Name() string { return "history store" }

func (w *StoreWriter) Write(ctx context.Context, run *Run) error {
	if err := w.Store.SaveRun(ctx, run.Summary); err != nil {
		return &Error{Op: "save run " + run.Summary.RunID, Err: err}
	}
	return nil
}

// JSONWriter writes the run summary keyed by test name.
type JSONWriter struct {
	Path string
}

func (w *JSONWriter) Name() string { return "json summary" }

func (w *JSONWriter) Write(_ context.Context, run *Run) error {
	data, err := run.Summary.IndentedJSON()
	if err != nil {
		return &Error{Op: "encode summary", Path: w.Path, Err: err}
	}
	return writeFile("write summary", w.Path, append(data, '\n'))
}
