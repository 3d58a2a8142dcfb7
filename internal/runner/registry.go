// internal/runner/registry.go
package runner

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// TagAll selects every scenario compatible with the target widget.
const TagAll = "all"

// Scenario is one registered test. With Params set it is instantiated once
// per literal input.
type Scenario struct {
	Name string
	// Tags are the suites the scenario belongs to, e.g. "ui" or "responses".
	Tags []string
	// Widgets restricts the scenario to these target.widget values. Empty
	// means any widget.
	Widgets []string
	Params  []string
	Body    func(t *T)
}

// Case is one runnable instance of a Scenario.
type Case struct {
	// ID is the unique test identity: Name, or Name[param] when parametrized.
	ID       string
	Scenario *Scenario
	Param    string
	HasParam bool
}

// Filter selects scenarios for a run.
type Filter struct {
	// Tags are OR-ed. Empty or containing TagAll matches every tag.
	Tags []string
	// Widget is the configured target.widget.
	Widget string
	// Names, when set, keeps only scenarios with one of these names.
	Names []string
}

func (f Filter) matches(s *Scenario) bool {
	if len(s.Widgets) > 0 && f.Widget != "" && !slices.Contains(s.Widgets, f.Widget) {
		return false
	}
	if len(f.Names) > 0 && !slices.Contains(f.Names, s.Name) {
		return false
	}
	if len(f.Tags) == 0 || slices.Contains(f.Tags, TagAll) {
		return true
	}
	for _, tag := range f.Tags {
		if slices.Contains(s.Tags, tag) {
			return true
		}
	}
	return false
}

// Registry holds the scenarios known to a run, in registration order.
type Registry struct {
	mu        sync.RWMutex
	scenarios []*Scenario
	byName    map[string]*Scenario
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Scenario)}
}

// Register adds a scenario. Names must be unique.
func (r *Registry) Register(s Scenario) error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("scenario name is required")
	}
	if s.Body == nil {
		return fmt.Errorf("scenario %q has no body", s.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byName[s.Name]; dup {
		return fmt.Errorf("scenario %q is already registered", s.Name)
	}
	s.Tags = slices.Clone(s.Tags)
	s.Widgets = slices.Clone(s.Widgets)
	s.Params = slices.Clone(s.Params)
	r.scenarios = append(r.scenarios, &s)
	r.byName[s.Name] = &s
	return nil
}

// MustRegister is Register for built-in scenarios that cannot collide.
func (r *Registry) MustRegister(s Scenario) {
	if err := r.Register(s); err != nil {
		panic(err)
	}
}

// Len reports the number of registered scenarios.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.scenarios)
}

// Tags lists every tag in use, sorted.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var tags []string
	for _, s := range r.scenarios {
		for _, t := range s.Tags {
			if !slices.Contains(tags, t) {
				tags = append(tags, t)
			}
		}
	}
	slices.Sort(tags)
	return tags
}

// Cases expands the scenarios selected by f into runnable cases. A parameter
// value that occurs more than once in a scenario gets its position appended
// to keep test ids unique.
func (r *Registry) Cases(f Filter) []Case {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var cases []Case
	for _, s := range r.scenarios {
		if !f.matches(s) {
			continue
		}
		if len(s.Params) == 0 {
			cases = append(cases, Case{ID: s.Name, Scenario: s})
			continue
		}
		counts := make(map[string]int, len(s.Params))
		for _, p := range s.Params {
			counts[p]++
		}
		seen := make(map[string]int, len(s.Params))
		for _, p := range s.Params {
			label := p
			if counts[p] > 1 {
				label = fmt.Sprintf("%s%d", p, seen[p])
				seen[p]++
			}
			cases = append(cases, Case{
				ID:       fmt.Sprintf("%s[%s]", s.Name, label),
				Scenario: s,
				Param:    p,
				HasParam: true,
			})
		}
	}
	return cases
}
