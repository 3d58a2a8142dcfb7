// internal/browser/errors_test.go
package browser

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorTaxonomy(t *testing.T) {
	loc := ID("chat toggle", "chat-toggle-button")

	notFound := fmt.Errorf("opening chat: %w", &ElementNotFoundError{Locator: loc})
	assert.ErrorIs(t, notFound, ErrElementNotFound)
	assert.NotErrorIs(t, notFound, ErrDriverFailure)
	assert.Contains(t, notFound.Error(), `chat toggle (id="chat-toggle-button")`)

	cause := errors.New("websocket closed")
	driverErr := wrapDriverErr("navigate", cause)
	assert.ErrorIs(t, driverErr, ErrDriverFailure)
	assert.ErrorIs(t, driverErr, cause)
	assert.Equal(t, "browser navigate failed: websocket closed", driverErr.Error())

	assert.Nil(t, wrapDriverErr("click", nil))
	assert.Same(t, notFound, wrapDriverErr("click", notFound), "taxonomy errors pass through")
}

func TestSelectorFor(t *testing.T) {
	tests := []struct {
		loc  Locator
		want string
	}{
		{ID("panel", "chat-panel"), `[id="chat-panel"]`},
		{Class("close", "header-close-button-chatweb"), ".header-close-button-chatweb"},
		{CSS("bot", ".chat-message-chatweb-bot p"), ".chat-message-chatweb-bot p"},
		{XPath("bot", "//div[@id='chat-display']/div"), "//div[@id='chat-display']/div"},
	}
	for _, tt := range tests {
		got, opts, err := selectorFor(tt.loc)
		assert.NoError(t, err)
		assert.Equal(t, tt.want, got)
		assert.Len(t, opts, 1)
	}

	_, _, err := selectorFor(Locator{Role: "weird", Strategy: "link-text", Selector: "x"})
	assert.Error(t, err)
}
