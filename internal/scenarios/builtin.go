// internal/scenarios/builtin.go

// Package scenarios holds the chat checks chatprobe ships with: UI scenarios
// written in Go and response suites described in YAML.
package scenarios

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/chatprobe/internal/chatpage"
	"github.com/xkilldash9x/chatprobe/internal/config"
	"github.com/xkilldash9x/chatprobe/internal/recorder"
	"github.com/xkilldash9x/chatprobe/internal/runner"
	"github.com/xkilldash9x/chatprobe/internal/wait"
)

// Scenario tags.
const (
	TagUI        = "ui"
	TagResponses = "responses"
	TagLaraigo   = "laraigo"
	TagExamples  = "examples"
)

// echoTimeout bounds the wait for a sent message to show up in the chat.
const echoTimeout = 10 * time.Second

// replyBudget is the slowest acceptable first reply in the bot response scenarios.
var replyBudget = 5 * time.Second

//go:embed suites/*.yaml
var builtinSuites embed.FS

// BuiltinSuites parses the embedded response suites.
func BuiltinSuites() ([]*Suite, error) {
	entries, err := fs.ReadDir(builtinSuites, "suites")
	if err != nil {
		return nil, err
	}
	var suites []*Suite
	for _, e := range entries {
		data, err := builtinSuites.ReadFile(path.Join("suites", e.Name()))
		if err != nil {
			return nil, err
		}
		s, err := ParseSuite(data)
		if err != nil {
			return nil, fmt.Errorf("builtin suite %s: %w", e.Name(), err)
		}
		suites = append(suites, s)
	}
	return suites, nil
}

// RegisterBuiltins registers every built-in UI scenario and response suite.
func RegisterBuiltins(reg *runner.Registry) error {
	for _, s := range demoUI() {
		if err := reg.Register(s); err != nil {
			return err
		}
	}
	for _, s := range laraigoUI() {
		if err := reg.Register(s); err != nil {
			return err
		}
	}
	suites, err := BuiltinSuites()
	if err != nil {
		return err
	}
	for _, s := range suites {
		if err := s.Register(reg); err != nil {
			return err
		}
	}
	return nil
}

// -- Shared steps --

// exchange sends msg, waits for the reply and records the round trip.
func exchange(t *runner.T, msg string, how chatpage.Submit) ([]string, time.Duration) {
	t.Helper()
	start := time.Now()
	responses, err := t.Page().SendAndAwaitResponse(t.Context(), msg, how)
	elapsed := time.Since(start)
	if err != nil {
		t.Record(recorder.WithSentMessage(msg))
		require.NoError(t, err, "waiting for the bot to answer %q", msg)
	}
	recordExchange(t, msg, responses, elapsed)
	return responses, elapsed
}

// recordExchange stores one round trip. The demo widget answers with a single
// bubble and is reported as text; Laraigo replies are kept as a list.
func recordExchange(t *runner.T, msg string, responses []string, elapsed time.Duration) {
	resp := recorder.WithResponses(responses)
	if t.Page().Variant().Name == config.WidgetDemo && len(responses) > 0 {
		resp = recorder.WithResponseText(responses[len(responses)-1])
	}
	t.Record(recorder.WithSentMessage(msg), resp, recorder.WithResponseTime(elapsed))
}

func awaitUserMessage(t *runner.T, msg string) {
	t.Helper()
	err := wait.For(t.Context(), wait.Options{
		Timeout:     echoTimeout,
		Description: fmt.Sprintf("user message %q to be displayed", msg),
	}, func(ctx context.Context) (bool, error) {
		users, err := t.Page().UserMessages(ctx)
		return slices.Contains(users, msg), err
	})
	require.NoError(t, err, "user message not displayed in chat")
}

func panelVisible(t *runner.T) bool {
	t.Helper()
	visible, err := t.Page().IsPanelVisible(t.Context())
	require.NoError(t, err, "reading panel visibility")
	return visible
}

func userMessages(t *runner.T) []string {
	t.Helper()
	users, err := t.Page().UserMessages(t.Context())
	require.NoError(t, err, "reading user messages")
	return users
}

func botMessages(t *runner.T) []string {
	t.Helper()
	bots, err := t.Page().BotMessages(t.Context())
	require.NoError(t, err, "reading bot messages")
	return bots
}

func open(t *runner.T) {
	t.Helper()
	require.NoError(t, t.Page().Open(t.Context()), "opening the chat")
}

// responseCheck is the body of one YAML suite case.
func responseCheck(c SuiteCase, how chatpage.Submit) func(*runner.T) {
	return func(t *runner.T) {
		msg := t.Param()
		open(t)
		responses, elapsed := exchange(t, msg, how)
		awaitUserMessage(t, msg)

		env := Env{
			Message:      msg,
			Responses:    responses,
			Response:     strings.Join(responses, "\n"),
			ResponseTime: elapsed.Seconds(),
			UserMessages: userMessages(t),
			BotMessages:  botMessages(t),
		}
		ok, err := c.Expect.Eval(env)
		require.NoError(t, err)

		what := c.Description
		if what == "" {
			what = "expectation not met"
		}
		assert.True(t, ok, "%s for %q. Expected %s. Responses: %q", what, msg, c.Expect, responses)
		if c.MaxResponseTime > 0 {
			assert.LessOrEqual(t, elapsed, c.MaxResponseTime, "response time for %q", msg)
		}
	}
}
