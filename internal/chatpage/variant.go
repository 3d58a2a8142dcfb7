// internal/chatpage/variant.go
package chatpage

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/chatprobe/internal/config"
)

// Submit selects how a typed message is submitted.
type Submit int

const (
	SubmitClick Submit = iota + 1
	SubmitEnter
)

func (s Submit) String() string {
	switch s {
	case SubmitClick:
		return "click"
	case SubmitEnter:
		return "enter"
	default:
		return fmt.Sprintf("Submit(%d)", int(s))
	}
}

// ParseSubmit accepts "click" or "enter". The empty string yields 0, meaning
// the variant's default.
func ParseSubmit(s string) (Submit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return 0, nil
	case "click":
		return SubmitClick, nil
	case "enter":
		return SubmitEnter, nil
	default:
		return 0, fmt.Errorf("unknown submit mode %q (want click or enter)", s)
	}
}

// Variant describes one chat widget deployment: its locator table plus the
// handful of behavioral differences between widgets.
type Variant struct {
	Name     string
	Locators Locators
	// Submits lists the supported submission paths. The first is the default.
	Submits []Submit
	// ConfirmUserEcho makes SendAndAwaitResponse wait for the sent message to
	// render before it waits for the bot.
	ConfirmUserEcho bool
	// AutoOpen opens the panel before sending when it is closed.
	AutoOpen bool
	// HistoryPersists means a page reload restores the conversation, so
	// ResetState must clear it explicitly.
	HistoryPersists bool
}

var (
	Demo = Variant{
		Name:     config.WidgetDemo,
		Locators: DemoLocators,
		Submits:  []Submit{SubmitClick, SubmitEnter},
	}
	Laraigo = Variant{
		Name:            config.WidgetLaraigo,
		Locators:        LaraigoLocators,
		Submits:         []Submit{SubmitEnter},
		ConfirmUserEcho: true,
		AutoOpen:        true,
		HistoryPersists: true,
	}
)

// VariantFor returns the variant registered under a target.widget name.
func VariantFor(name string) (Variant, error) {
	switch strings.ToLower(name) {
	case config.WidgetDemo:
		return Demo, nil
	case config.WidgetLaraigo:
		return Laraigo, nil
	default:
		return Variant{}, fmt.Errorf("unknown chat widget %q", name)
	}
}

// DefaultSubmit is the first supported submission path.
func (v Variant) DefaultSubmit() Submit {
	if len(v.Submits) == 0 {
		return SubmitEnter
	}
	return v.Submits[0]
}

// Supports reports whether the widget accepts the submission path.
func (v Variant) Supports(s Submit) bool {
	for _, have := range v.Submits {
		if have == s {
			return true
		}
	}
	return false
}
