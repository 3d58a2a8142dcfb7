// internal/reporting/summary.go
package reporting

import (
	"bytes"
	stdjson "encoding/json"
	"math"
	"path/filepath"
	"time"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/chatprobe/internal/recorder"
)

const (
	StatusPassed = "passed"
	StatusFailed = "failed"
)

// SummaryRow is the compact, report-facing projection of one test record.
type SummaryRow struct {
	Name         string            `json:"name"`
	SentMessage  *string           `json:"sent_message"`
	ResponseText recorder.Response `json:"response_text"`
	// Duration is in seconds, rounded to two decimals.
	Duration   float64 `json:"duration"`
	Error      *string `json:"error"`
	Screenshot *string `json:"screenshot"`
	Status     string  `json:"status"`
}

// Failed reports whether the row is a failure.
func (r SummaryRow) Failed() bool { return r.Status == StatusFailed }

// Project builds the summary row for rec. The screenshot is reduced to its
// file name and the status follows the error field alone.
func Project(rec recorder.Record) SummaryRow {
	row := SummaryRow{
		Name:         rec.TestID,
		SentMessage:  rec.SentMessage,
		ResponseText: rec.Response,
		Error:        rec.Error,
		Status:       StatusPassed,
	}
	if rec.Duration != nil {
		row.Duration = roundTo(rec.Duration.Seconds(), 2)
	}
	if rec.ScreenshotPath != nil && *rec.ScreenshotPath != "" {
		base := filepath.Base(*rec.ScreenshotPath)
		row.Screenshot = &base
	}
	if rec.Error != nil {
		row.Status = StatusFailed
	}
	return row
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Summary is the run-level aggregate: exactly one row per completed test.
type Summary struct {
	RunID      string
	Title      string
	StartedAt  time.Time
	FinishedAt time.Time
	Rows       []SummaryRow
}

// BuildSummary projects every completed record. Records still in flight are skipped.
func BuildSummary(runID, title string, started, finished time.Time, records []recorder.Record) Summary {
	s := Summary{RunID: runID, Title: title, StartedAt: started, FinishedAt: finished}
	for _, rec := range records {
		if !rec.Completed {
			continue
		}
		s.Rows = append(s.Rows, Project(rec))
	}
	return s
}

func (s Summary) Total() int { return len(s.Rows) }

func (s Summary) Failed() int {
	n := 0
	for _, r := range s.Rows {
		if r.Failed() {
			n++
		}
	}
	return n
}

func (s Summary) Passed() int { return s.Total() - s.Failed() }

// Elapsed is the wall time of the run.
func (s Summary) Elapsed() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Row returns the row for a test name.
func (s Summary) Row(name string) (SummaryRow, bool) {
	for _, r := range s.Rows {
		if r.Name == name {
			return r, true
		}
	}
	return SummaryRow{}, false
}

// MarshalJSON renders the summary as an object keyed by test name, in run order.
func (s Summary) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, row := range s.Rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(row.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(row)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// IndentedJSON is the human-readable form embedded in reports.
func (s Summary) IndentedJSON() ([]byte, error) {
	raw, err := s.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := indentJSON(&out, raw); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// indentJSON pretty prints while keeping the run order of the keys.
func indentJSON(dst *bytes.Buffer, src []byte) error {
	return stdjson.Indent(dst, src, "", "  ")
}
