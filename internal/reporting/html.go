// internal/reporting/html.go
package reporting

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"path/filepath"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/xkilldash9x/chatprobe/internal/recorder"
)

const reportCSS = `
body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; margin: 2em; color: #222; }
table { border-collapse: collapse; width: 100%; margin: 10px 0; }
th, td { padding: 8px; border: 1px solid #ddd; text-align: left; vertical-align: top; }
.test-data { margin: 15px 0; border: 1px solid #ddd; padding: 10px; border-radius: 5px; background-color: #f8f8f8; }
.test-data pre, #test-data-summary pre { white-space: pre-wrap; max-height: 300px; overflow: auto; margin-top: 10px; }
.passed { color: #2e7d32; }
.failed { color: #c62828; }
img.screenshot { max-width: 640px; border: 1px solid #ccc; }
`

// HTMLWriter renders the human-readable report: a Markdown document converted
// to HTML, with the run summary block injected before </body>.
type HTMLWriter struct {
	Path  string
	Title string
}

func (w *HTMLWriter) Name() string { return "html report" }

func (w *HTMLWriter) Write(_ context.Context, run *Run) error {
	md, err := renderMarkdown(w.Title, run, filepath.Dir(w.Path))
	if err != nil {
		return &Error{Op: "render report", Path: w.Path, Err: err}
	}

	converter := goldmark.New(
		goldmark.WithExtensions(extension.Table),
		goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
	)
	var body bytes.Buffer
	if err := converter.Convert(md, &body); err != nil {
		return &Error{Op: "render report", Path: w.Path, Err: err}
	}

	var doc bytes.Buffer
	fmt.Fprintf(&doc, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n<style>%s</style>\n</head>\n<body>\n",
		html.EscapeString(w.Title), reportCSS)
	doc.Write(body.Bytes())
	doc.WriteString("</body>\n</html>\n")

	summaryJSON, err := run.Summary.IndentedJSON()
	if err != nil {
		return &Error{Op: "encode summary", Path: w.Path, Err: err}
	}
	return writeFile("write report", w.Path, InjectSummary(doc.Bytes(), summaryJSON))
}

// InjectSummary inserts the run summary block before the last </body>, or
// appends it when the document has none.
func InjectSummary(doc, summaryJSON []byte) []byte {
	block := fmt.Sprintf(`<div id="test-data-summary" style="margin: 20px; padding: 15px; border: 1px solid #ddd; border-radius: 5px;">
<h2>Test Data Summary</h2>
<details>
<summary>Click to view JSON summary of all tests</summary>
<pre style="max-height: 500px; overflow: auto;">%s</pre>
</details>
</div>
`, html.EscapeString(string(summaryJSON)))

	idx := bytes.LastIndex(doc, []byte("</body>"))
	if idx < 0 {
		return append(append([]byte(nil), doc...), block...)
	}
	out := make([]byte, 0, len(doc)+len(block))
	out = append(out, doc[:idx]...)
	out = append(out, block...)
	out = append(out, doc[idx:]...)
	return out
}

var mdEscaper = strings.NewReplacer(
	"|", `\|`,
	"*", `\*`,
	"_", `\_`,
	"`", "\\`",
	"[", `\[`,
	"]", `\]`,
	"\r\n", "<br>",
	"\n", "<br>",
)

// cell makes arbitrary text safe inside a Markdown table cell.
func cell(s string) string {
	return mdEscaper.Replace(html.EscapeString(s))
}

func renderMarkdown(title string, run *Run, reportDir string) ([]byte, error) {
	s := run.Summary
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", cell(title))
	b.WriteString("| Run | Started | Duration | Tests | Passed | Failed |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %s | %s | %.2f sec | %d | %d | %d |\n\n",
		cell(s.RunID), s.StartedAt.Format(time.RFC3339), s.Elapsed().Seconds(), s.Total(), s.Passed(), s.Failed())

	byID := make(map[string]recorder.Record, len(run.Records))
	for _, rec := range run.Records {
		byID[rec.TestID] = rec
	}

	for _, row := range s.Rows {
		rec := byID[row.Name]
		fmt.Fprintf(&b, "## <span class=\"%s\">%s</span> %s\n\n", row.Status, strings.ToUpper(row.Status), cell(row.Name))
		b.WriteString("<div class=\"test-data\">\n\n### Test Data\n\n")
		b.WriteString("| Field | Value |\n|---|---|\n")
		if rec.SentMessage != nil {
			fmt.Fprintf(&b, "| Sent Message | %s |\n", cell(*rec.SentMessage))
		}
		if !rec.Response.IsZero() {
			parts := rec.Response.Values()
			for i := range parts {
				parts[i] = cell(parts[i])
			}
			fmt.Fprintf(&b, "| Bot Response | %s |\n", strings.Join(parts, "<br>"))
		}
		if rec.ResponseTime != nil {
			fmt.Fprintf(&b, "| Response Time | %.2f ms |\n", roundTo(float64(*rec.ResponseTime)/float64(time.Millisecond), 2))
		}
		fmt.Fprintf(&b, "| Test Duration | %.2f sec |\n", row.Duration)
		if rec.Error != nil {
			fmt.Fprintf(&b, "| Error | %s |\n", cell(*rec.Error))
		}
		if rec.CaptureError != nil {
			fmt.Fprintf(&b, "| Capture Note | %s |\n", cell(*rec.CaptureError))
		}
		if rec.ScreenshotPath != nil {
			link := *rec.ScreenshotPath
			if rel, err := filepath.Rel(reportDir, link); err == nil {
				link = rel
			}
			link = filepath.ToSlash(link)
			fmt.Fprintf(&b, "| Screenshot | <a href=\"%s\"><img class=\"screenshot\" src=\"%s\" alt=\"%s\"></a> |\n",
				html.EscapeString(link), html.EscapeString(link), html.EscapeString(filepath.Base(link)))
		}

		raw, err := json.MarshalIndent(rawRecord(rec), "", "  ")
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(&b, "\n<details><summary>Raw Test Data</summary><pre>%s</pre></details>\n\n</div>\n\n",
			html.EscapeString(string(raw)))
	}
	return []byte(b.String()), nil
}

// rawRecordJSON is the debugging view of a record shown in the report.
type rawRecordJSON struct {
	TestID         string            `json:"test_id"`
	StartTime      time.Time         `json:"start_time"`
	SentMessage    *string           `json:"sent_message"`
	ResponseText   recorder.Response `json:"response_text"`
	ResponseTimeMS *float64          `json:"response_time_ms"`
	Duration       *float64          `json:"duration"`
	Error          *string           `json:"error"`
	CaptureError   *string           `json:"capture_error,omitempty"`
	Screenshot     *string           `json:"screenshot"`
}

func rawRecord(rec recorder.Record) rawRecordJSON {
	out := rawRecordJSON{
		TestID:       rec.TestID,
		StartTime:    rec.StartTime,
		SentMessage:  rec.SentMessage,
		ResponseText: rec.Response,
		Error:        rec.Error,
		CaptureError: rec.CaptureError,
		Screenshot:   rec.ScreenshotPath,
	}
	if rec.ResponseTime != nil {
		ms := roundTo(float64(*rec.ResponseTime)/float64(time.Millisecond), 2)
		out.ResponseTimeMS = &ms
	}
	if rec.Duration != nil {
		d := roundTo(rec.Duration.Seconds(), 2)
		out.Duration = &d
	}
	return out
}
