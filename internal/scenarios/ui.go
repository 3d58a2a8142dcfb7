// internal/scenarios/ui.go
package scenarios

import (
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/chatprobe/internal/chatpage"
	"github.com/xkilldash9x/chatprobe/internal/config"
	"github.com/xkilldash9x/chatprobe/internal/recorder"
	"github.com/xkilldash9x/chatprobe/internal/runner"
)

var conversation = []string{"Hola", "¿Cómo estás?", "Necesito ayuda"}

func demoUI() []runner.Scenario {
	tags := []string{TagUI, TagExamples}
	widgets := []string{config.WidgetDemo}
	return []runner.Scenario{
		{
			Name: "test_open_chat_panel", Tags: tags, Widgets: widgets,
			Body: func(t *runner.T) {
				require.False(t, panelVisible(t), "panel should start closed")
				open(t)
				assert.True(t, panelVisible(t), "panel should be visible after opening it")
			},
		},
		{
			Name: "test_close_chat_panel", Tags: tags, Widgets: widgets,
			Body: func(t *runner.T) {
				require.NoError(t, t.Page().ResetState(t.Context()), "resetting the chat")
				require.False(t, panelVisible(t), "panel should start closed")
				open(t)
				require.True(t, panelVisible(t), "panel should be visible after opening it")
				require.NoError(t, t.Page().Close(t.Context()), "closing the chat")
				assert.False(t, panelVisible(t), "panel should be hidden after closing it")
			},
		},
		{
			Name: "test_open_close_idempotent", Tags: tags, Widgets: widgets,
			Body: func(t *runner.T) {
				open(t)
				open(t)
				require.True(t, panelVisible(t), "a second open must leave the panel open")
				require.NoError(t, t.Page().Close(t.Context()))
				require.NoError(t, t.Page().Close(t.Context()))
				assert.False(t, panelVisible(t), "a second close must leave the panel closed")
			},
		},
		{
			Name: "test_send_button_functionality", Tags: tags, Widgets: widgets,
			Body: func(t *runner.T) {
				open(t)
				enabled, err := t.Page().IsSendControlEnabled(t.Context())
				require.NoError(t, err)
				require.True(t, enabled, "send button should be enabled")

				msg := "Hola, esto es un test"
				require.NoError(t, t.Page().Send(t.Context(), msg, chatpage.SubmitClick))
				t.Record(recorder.WithSentMessage(msg))
				awaitUserMessage(t, msg)
			},
		},
		{
			Name: "test_enter_key_send", Tags: tags, Widgets: widgets,
			Body: func(t *runner.T) {
				open(t)
				msg := "Mensaje enviado con Enter"
				require.NoError(t, t.Page().Send(t.Context(), msg, chatpage.SubmitEnter))
				t.Record(recorder.WithSentMessage(msg))
				awaitUserMessage(t, msg)
			},
		},
		{
			Name: "test_bot_response", Tags: tags, Widgets: widgets,
			Body: func(t *runner.T) {
				open(t)
				botReplies(t, chatpage.SubmitClick)
			},
		},
		{
			Name: "test_reset_chat_for_specific_test", Tags: tags, Widgets: widgets,
			Body: func(t *runner.T) {
				ctx := t.Context()
				open(t)
				require.NoError(t, t.Page().Send(ctx, "Mensaje inicial", 0))
				require.NoError(t, t.Page().ResetState(ctx), "resetting the chat")
				require.False(t, panelVisible(t), "panel should be closed after a reset")

				open(t)
				after := "Mensaje después del reinicio"
				require.NoError(t, t.Page().Send(ctx, after, 0))
				awaitUserMessage(t, after)
				assert.Equal(t, []string{after}, userMessages(t))
			},
		},
		{
			Name: "test_multiple_messages_conversation", Tags: tags, Widgets: widgets,
			Body: func(t *runner.T) {
				open(t)
				multiTurn(t)
			},
		},
	}
}

// botReplies greets the bot and checks the reply came within replyBudget.
func botReplies(t *runner.T, how chatpage.Submit) {
	t.Helper()
	responses, elapsed := exchange(t, "Hola", how)
	require.NotEmpty(t, responses, "the bot should answer")
	assert.Less(t, elapsed, replyBudget, "the bot took too long to answer")
	assert.NotEmpty(t, botMessages(t), "there should be at least one bot message")
	assert.Contains(t, userMessages(t), "Hola", "the greeting should be in the chat")
}

// multiTurn sends the whole conversation and records the last exchange with
// the total time taken.
func multiTurn(t *runner.T) {
	t.Helper()
	start := time.Now()
	var last []string
	for _, msg := range conversation {
		last, _ = exchange(t, msg, 0)
	}
	recordExchange(t, conversation[len(conversation)-1], last, time.Since(start))

	users := userMessages(t)
	for _, msg := range conversation {
		assert.Contains(t, users, msg, "message %q should be in the chat", msg)
	}
	assert.GreaterOrEqual(t, len(botMessages(t)), len(conversation), "there should be a bot reply per user message")
}

func laraigoUI() []runner.Scenario {
	tags := []string{TagUI, TagLaraigo}
	widgets := []string{config.WidgetLaraigo}
	return []runner.Scenario{
		{
			Name: "test_laraigo_open_chat_window", Tags: tags, Widgets: widgets,
			Body: func(t *runner.T) {
				require.NoError(t, t.Laraigo().WaitForPageLoad(t.Context()))
				require.False(t, panelVisible(t), "chat window should start closed")
				open(t)
				assert.True(t, panelVisible(t), "chat window should be visible after opening it")
			},
		},
		{
			Name: "test_laraigo_enter_key_send", Tags: tags, Widgets: widgets,
			Body: func(t *runner.T) {
				open(t)
				msg := "Mensaje enviado con Enter"
				exchange(t, msg, chatpage.SubmitEnter)
				assert.Contains(t, userMessages(t), msg, "message sent with Enter should be in the chat")
			},
		},
		{
			Name: "test_laraigo_bot_response", Tags: tags, Widgets: widgets,
			Body: func(t *runner.T) {
				open(t)
				botReplies(t, 0)
			},
		},
		{
			Name: "test_laraigo_refresh_chat", Tags: tags, Widgets: widgets,
			Body: func(t *runner.T) {
				open(t)
				exchange(t, "Mensaje antes de refrescar", 0)
				require.Len(t, userMessages(t), 1, "one user message before refreshing")
				require.NotEmpty(t, botMessages(t), "at least one bot message before refreshing")

				require.NoError(t, t.Laraigo().RefreshChat(t.Context()), "refreshing the chat")
				assert.Empty(t, userMessages(t), "no user messages after refreshing")
				assert.Empty(t, botMessages(t), "no bot messages after refreshing")
			},
		},
		{
			Name: "test_laraigo_attachments_menu", Tags: tags, Widgets: widgets,
			Body: func(t *runner.T) {
				ctx, lp := t.Context(), t.Laraigo()
				open(t)
				visible, err := lp.IsAttachmentsMenuVisible(ctx)
				require.NoError(t, err)
				require.False(t, visible, "attachments menu should start hidden")

				require.NoError(t, lp.OpenAttachmentsMenu(ctx))
				visible, err = lp.IsAttachmentsMenuVisible(ctx)
				require.NoError(t, err)
				require.True(t, visible, "attachments menu should be visible after opening it")

				require.NoError(t, lp.CloseAttachmentsMenu(ctx))
				visible, err = lp.IsAttachmentsMenuVisible(ctx)
				require.NoError(t, err)
				assert.False(t, visible, "attachments menu should be hidden after closing it")
			},
		},
		{
			Name: "test_laraigo_multiple_messages_conversation", Tags: tags, Widgets: widgets,
			Body: func(t *runner.T) {
				open(t)
				multiTurn(t)
			},
		},
		{
			Name: "test_laraigo_reset_chat_state", Tags: tags, Widgets: widgets,
			Body: func(t *runner.T) {
				ctx := t.Context()
				open(t)
				exchange(t, "Mensaje antes del reinicio", 0)

				require.NoError(t, t.Page().ResetState(ctx), "resetting the chat")
				require.False(t, panelVisible(t), "chat window should be closed after a reset")

				open(t)
				require.True(t, panelVisible(t), "chat window should open after a reset")
				require.Empty(t, userMessages(t), "a reset must leave an empty history")

				after := "Mensaje después del reinicio"
				exchange(t, after, 0)
				assert.Equal(t, []string{after}, userMessages(t))
			},
		},
		{
			Name: "test_laraigo_idle_message_visibility", Tags: tags, Widgets: widgets,
			Body: func(t *runner.T) {
				ctx, lp := t.Context(), t.Laraigo()
				open(t)
				idle, err := lp.IsIdleMessageVisible(ctx)
				require.NoError(t, err)
				if !idle {
					t.Logger().Info("Idle message not shown; nothing to hide.")
					return
				}
				require.NoError(t, lp.HideIdleMessage(ctx))
				idle, err = lp.IsIdleMessageVisible(ctx)
				require.NoError(t, err)
				assert.False(t, idle, "idle message should be hidden after closing it")
			},
		},
	}
}
