// internal/browser/interface.go
package browser

import (
	"context"
	"fmt"
)

// Strategy is how a Locator's selector is interpreted.
type Strategy string

const (
	ByID        Strategy = "id"
	ByCSS       Strategy = "css"
	ByXPath     Strategy = "xpath"
	ByClassName Strategy = "class"
)

// Locator identifies one UI element by semantic role and lookup strategy.
type Locator struct {
	Role     string
	Strategy Strategy
	Selector string
}

// ID, CSS, XPath and Class build locators for a role.
func ID(role, id string) Locator          { return Locator{Role: role, Strategy: ByID, Selector: id} }
func CSS(role, sel string) Locator        { return Locator{Role: role, Strategy: ByCSS, Selector: sel} }
func XPath(role, expr string) Locator     { return Locator{Role: role, Strategy: ByXPath, Selector: expr} }
func Class(role, className string) Locator { return Locator{Role: role, Strategy: ByClassName, Selector: className} }

// IsZero reports whether the locator is unset.
func (l Locator) IsZero() bool { return l.Selector == "" }

func (l Locator) String() string {
	return fmt.Sprintf("%s (%s=%q)", l.Role, l.Strategy, l.Selector)
}

// Element is a handle to a node located on the current page.
type Element interface {
	Click(ctx context.Context) error
	Clear(ctx context.Context) error
	Type(ctx context.Context, text string) error
	PressEnter(ctx context.Context) error
	SetFiles(ctx context.Context, paths ...string) error
	IsDisplayed(ctx context.Context) (bool, error)
	IsEnabled(ctx context.Context) (bool, error)
	Text(ctx context.Context) (string, error)
}

// Driver is the browser capability consumed by page abstractions. A Driver
// owns exactly one browser instance.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Refresh(ctx context.Context) error
	// Find returns the first match or an *ElementNotFoundError. It does not wait.
	Find(ctx context.Context, loc Locator) (Element, error)
	// FindAll returns every match in document order, possibly none.
	FindAll(ctx context.Context, loc Locator) ([]Element, error)
	SaveScreenshot(ctx context.Context, path string) error
	Quit(ctx context.Context) error
}

// Launcher acquires a fresh, exclusively owned Driver.
type Launcher interface {
	Launch(ctx context.Context) (Driver, error)
}
