// internal/recorder/recorder.go

// Package recorder keeps the per-test data captured during a run. Records are
// keyed by test identity and every key has its own lock, so parallel tests
// never contend with each other.
package recorder

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	ErrUnknownTest = errors.New("no record for test")
	ErrCompleted   = errors.New("test record is already completed")
)

// Record is the data captured for one test invocation. Unset optional fields
// are nil.
type Record struct {
	TestID       string
	StartTime    time.Time
	SentMessage  *string
	Response     Response
	ResponseTime *time.Duration
	Duration     *time.Duration
	Error        *string
	// CaptureError notes a failed best-effort capture. It never marks the test failed.
	CaptureError   *string
	ScreenshotPath *string
	Completed      bool
}

// Failed reports whether an error was recorded.
func (r Record) Failed() bool { return r.Error != nil }

// Option sets fields in a partial update. Fields without an option are left alone.
type Option func(*Record)

func WithSentMessage(msg string) Option {
	return func(r *Record) { r.SentMessage = &msg }
}

func WithResponse(resp Response) Option {
	return func(r *Record) { r.Response = resp.clone() }
}

// WithResponseText records a single-text response.
func WithResponseText(text string) Option { return WithResponse(Text(text)) }

// WithResponses records a list response.
func WithResponses(texts []string) Option { return WithResponse(Texts(texts)) }

func WithResponseTime(d time.Duration) Option {
	return func(r *Record) { r.ResponseTime = &d }
}

type entry struct {
	mu  sync.Mutex
	rec Record
}

// Recorder is the run-wide arena of test records.
type Recorder struct {
	entries sync.Map // test id -> *entry
	now     func() time.Time
}

// New creates an empty recorder.
func New() *Recorder {
	return &Recorder{now: time.Now}
}

// Start creates the record for id with StartTime set and everything else
// empty. Starting an id again replaces its record.
func (r *Recorder) Start(id string) *Scope {
	r.entries.Store(id, &entry{rec: Record{TestID: id, StartTime: r.now()}})
	return &Scope{r: r, id: id}
}

// Scope returns the accessor for an existing record.
func (r *Recorder) Scope(id string) (*Scope, error) {
	if _, ok := r.entries.Load(id); !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownTest, id)
	}
	return &Scope{r: r, id: id}, nil
}

func (r *Recorder) mutate(id string, fn func(*Record)) error {
	v, ok := r.entries.Load(id)
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownTest, id)
	}
	e := v.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rec.Completed {
		return fmt.Errorf("%w: %q", ErrCompleted, id)
	}
	fn(&e.rec)
	return nil
}

// Update merges the given fields into the record for id.
func (r *Recorder) Update(id string, opts ...Option) error {
	return r.mutate(id, func(rec *Record) {
		for _, opt := range opts {
			opt(rec)
		}
	})
}

func (r *Recorder) SetDuration(id string, d time.Duration) error {
	return r.mutate(id, func(rec *Record) { rec.Duration = &d })
}

func (r *Recorder) SetError(id, msg string) error {
	return r.mutate(id, func(rec *Record) { rec.Error = &msg })
}

func (r *Recorder) SetCaptureError(id, msg string) error {
	return r.mutate(id, func(rec *Record) { rec.CaptureError = &msg })
}

func (r *Recorder) SetScreenshot(id, path string) error {
	return r.mutate(id, func(rec *Record) { rec.ScreenshotPath = &path })
}

// Complete freezes the record and returns its final state.
func (r *Recorder) Complete(id string) (Record, error) {
	var out Record
	err := r.mutate(id, func(rec *Record) {
		rec.Completed = true
		out = rec.clone()
	})
	return out, err
}

// Get returns a copy of the record for id.
func (r *Recorder) Get(id string) (Record, bool) {
	v, ok := r.entries.Load(id)
	if !ok {
		return Record{}, false
	}
	e := v.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.clone(), true
}

// All returns copies of every record ordered by start time, then id.
func (r *Recorder) All() []Record {
	var out []Record
	r.entries.Range(func(_, v any) bool {
		e := v.(*entry)
		e.mu.Lock()
		out = append(out, e.rec.clone())
		e.mu.Unlock()
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].TestID < out[j].TestID
	})
	return out
}

func (rec Record) clone() Record {
	rec.Response = rec.Response.clone()
	return rec
}

// Scope is the write handle a running test holds for its own record.
type Scope struct {
	r  *Recorder
	id string
}

func (s *Scope) ID() string { return s.id }

// Record merges the given fields into this test's record.
func (s *Scope) Record(opts ...Option) error { return s.r.Update(s.id, opts...) }

// Get returns a copy of this test's record.
func (s *Scope) Get() Record {
	rec, _ := s.r.Get(s.id)
	return rec
}
