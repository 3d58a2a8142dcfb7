// internal/reporting/junit.go
package reporting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/xkilldash9x/chatprobe/internal/recorder"
)

// JUnitWriter writes a JUnit XML report with one testcase per test.
type JUnitWriter struct {
	Path      string
	SuiteName string
}

func (w *JUnitWriter) Name() string { return "junit report" }

func (w *JUnitWriter) Write(_ context.Context, run *Run) error {
	doc := BuildJUnit(w.SuiteName, run)
	doc.Indent(2)
	data, err := doc.WriteToBytes()
	if err != nil {
		return &Error{Op: "encode junit", Path: w.Path, Err: err}
	}
	return writeFile("write junit", w.Path, data)
}

// BuildJUnit assembles the JUnit document for a run.
func BuildJUnit(suiteName string, run *Run) *etree.Document {
	s := run.Summary
	if suiteName == "" {
		suiteName = "chatprobe"
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	suites := doc.CreateElement("testsuites")
	suites.CreateAttr("name", suiteName)
	suites.CreateAttr("tests", fmt.Sprint(s.Total()))
	suites.CreateAttr("failures", fmt.Sprint(s.Failed()))
	suites.CreateAttr("time", seconds(s.Elapsed()))

	suite := suites.CreateElement("testsuite")
	suite.CreateAttr("name", suiteName)
	suite.CreateAttr("tests", fmt.Sprint(s.Total()))
	suite.CreateAttr("failures", fmt.Sprint(s.Failed()))
	suite.CreateAttr("errors", "0")
	suite.CreateAttr("time", seconds(s.Elapsed()))
	if !s.StartedAt.IsZero() {
		suite.CreateAttr("timestamp", s.StartedAt.UTC().Format("2006-01-02T15:04:05"))
	}
	props := suite.CreateElement("properties")
	prop := props.CreateElement("property")
	prop.CreateAttr("name", "run_id")
	prop.CreateAttr("value", s.RunID)

	byID := make(map[string]recorder.Record, len(run.Records))
	for _, rec := range run.Records {
		byID[rec.TestID] = rec
	}

	for _, row := range s.Rows {
		rec := byID[row.Name]
		tc := suite.CreateElement("testcase")
		tc.CreateAttr("name", row.Name)
		tc.CreateAttr("classname", className(row.Name))
		tc.CreateAttr("time", fmt.Sprintf("%.2f", row.Duration))

		if row.Screenshot != nil || rec.ResponseTime != nil {
			tprops := tc.CreateElement("properties")
			if rec.ScreenshotPath != nil {
				p := tprops.CreateElement("property")
				p.CreateAttr("name", "screenshot")
				p.CreateAttr("value", *rec.ScreenshotPath)
			}
			if rec.ResponseTime != nil {
				p := tprops.CreateElement("property")
				p.CreateAttr("name", "response_time_ms")
				p.CreateAttr("value", fmt.Sprintf("%.2f", roundTo(float64(*rec.ResponseTime)/float64(time.Millisecond), 2)))
			}
		}

		if row.Failed() {
			f := tc.CreateElement("failure")
			f.CreateAttr("message", *row.Error)
			f.CreateAttr("type", "AssertionError")
			f.SetText(*row.Error)
		}

		var out strings.Builder
		if row.SentMessage != nil {
			fmt.Fprintf(&out, "sent: %s\n", *row.SentMessage)
		}
		if !row.ResponseText.IsZero() {
			fmt.Fprintf(&out, "response: %s\n", row.ResponseText.Join(" | "))
		}
		if rec.CaptureError != nil {
			fmt.Fprintf(&out, "capture: %s\n", *rec.CaptureError)
		}
		if out.Len() > 0 {
			tc.CreateElement("system-out").SetText(out.String())
		}
	}
	return doc
}

// className groups parametrized cases under their scenario name.
func className(testID string) string {
	if i := strings.IndexByte(testID, '['); i > 0 {
		return "chatprobe." + testID[:i]
	}
	return "chatprobe." + testID
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.2f", d.Seconds())
}
