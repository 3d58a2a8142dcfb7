// internal/scenarios/suite.go
package scenarios

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/chatprobe/internal/chatpage"
	"github.com/xkilldash9x/chatprobe/internal/runner"
)

// Env is what an expectation expression can see.
type Env struct {
	// Message is the text that was sent.
	Message string `expr:"message"`
	// Responses are the bot messages added after the send, oldest first.
	Responses []string `expr:"responses"`
	// Response is Responses joined with newlines.
	Response string `expr:"response"`
	// ResponseTime is the send-to-reply time in seconds.
	ResponseTime float64  `expr:"response_time"`
	UserMessages []string `expr:"user_messages"`
	BotMessages  []string `expr:"bot_messages"`
}

// Expectation is a compiled boolean expr-lang expression over Env, e.g.
//
//	any(responses, {# startsWith "Hola Blanquiazul"})
type Expectation struct {
	source  string
	program *vm.Program
}

// CompileExpectation checks src against Env and compiles it.
func CompileExpectation(src string) (*Expectation, error) {
	program, err := expr.Compile(src, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("invalid expectation %q: %w", src, err)
	}
	return &Expectation{source: src, program: program}, nil
}

// Eval runs the expectation.
func (e *Expectation) Eval(env Env) (bool, error) {
	out, err := expr.Run(e.program, env)
	if err != nil {
		return false, fmt.Errorf("evaluating %q: %w", e.source, err)
	}
	ok, isBool := out.(bool)
	if !isBool {
		return false, fmt.Errorf("expectation %q returned %T, not bool", e.source, out)
	}
	return ok, nil
}

func (e *Expectation) String() string { return e.source }

// UnmarshalYAML compiles the expression while decoding, so a suite with a
// broken expectation fails to load instead of failing every case.
func (e *Expectation) UnmarshalYAML(node *yaml.Node) error {
	var src string
	if err := node.Decode(&src); err != nil {
		return err
	}
	compiled, err := CompileExpectation(src)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*e = *compiled
	return nil
}

// SuiteCase is one parametrized response check.
type SuiteCase struct {
	Name string `yaml:"name"`
	// Params are the messages sent, one test each.
	Params []string     `yaml:"params"`
	Expect *Expectation `yaml:"expect"`
	// MaxResponseTime, when set, also fails slow replies.
	MaxResponseTime time.Duration `yaml:"max_response_time"`
	// Submit is "click" or "enter"; empty uses the widget default.
	Submit string `yaml:"submit"`
	// Description is prefixed to the failure message.
	Description string `yaml:"description"`
}

// Suite is a YAML file of response checks for one widget.
type Suite struct {
	Name   string      `yaml:"name"`
	Widget string      `yaml:"widget"`
	Tags   []string    `yaml:"tags"`
	Cases  []SuiteCase `yaml:"cases"`
}

// ParseSuite decodes and validates a suite document. Unknown fields are errors.
func ParseSuite(data []byte) (*Suite, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var s Suite
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decoding suite: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadSuiteFile reads a suite from disk. A leading ~ is expanded.
func LoadSuiteFile(path string) (*Suite, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("expanding suite path %q: %w", path, err)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("reading suite file: %w", err)
	}
	s, err := ParseSuite(data)
	if err != nil {
		return nil, fmt.Errorf("suite file %s: %w", expanded, err)
	}
	return s, nil
}

func (s *Suite) Validate() error {
	var errs []error
	if s.Name == "" {
		errs = append(errs, errors.New("suite name is required"))
	}
	v, err := chatpage.VariantFor(s.Widget)
	if err != nil {
		errs = append(errs, err)
	}
	if len(s.Cases) == 0 {
		errs = append(errs, fmt.Errorf("suite %q has no cases", s.Name))
	}
	for i, c := range s.Cases {
		if c.Name == "" {
			errs = append(errs, fmt.Errorf("case %d: name is required", i))
		}
		if len(c.Params) == 0 {
			errs = append(errs, fmt.Errorf("case %q: at least one param is required", c.Name))
		}
		if c.Expect == nil {
			errs = append(errs, fmt.Errorf("case %q: expect is required", c.Name))
		}
		how, err := chatpage.ParseSubmit(c.Submit)
		if err != nil {
			errs = append(errs, fmt.Errorf("case %q: %w", c.Name, err))
		} else if how != 0 && v.Name != "" && !v.Supports(how) {
			errs = append(errs, fmt.Errorf("case %q: widget %s cannot submit by %s", c.Name, v.Name, how))
		}
	}
	return errors.Join(errs...)
}

// Register adds one scenario per case.
func (s *Suite) Register(reg *runner.Registry) error {
	for _, c := range s.Cases {
		how, err := chatpage.ParseSubmit(c.Submit)
		if err != nil {
			return err
		}
		if err := reg.Register(runner.Scenario{
			Name:    c.Name,
			Tags:    s.Tags,
			Widgets: []string{strings.ToLower(s.Widget)},
			Params:  c.Params,
			Body:    responseCheck(c, how),
		}); err != nil {
			return fmt.Errorf("suite %s: %w", s.Name, err)
		}
	}
	return nil
}
