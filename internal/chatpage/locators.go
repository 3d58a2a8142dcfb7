// internal/chatpage/locators.go
package chatpage

import "github.com/xkilldash9x/chatprobe/internal/browser"

// Locators maps every semantic role a chat widget can expose onto a lookup.
// Roles a widget does not have are left zero.
type Locators struct {
	Open         browser.Locator
	Close        browser.Locator
	Panel        browser.Locator
	Input        browser.Locator
	Send         browser.Locator
	BotMessages  browser.Locator
	UserMessages browser.Locator

	// Widget specific extras.
	HistoryRefresh browser.Locator
	AttachButton   browser.Locator
	AttachMenu     browser.Locator
	ImageInput     browser.Locator
	FileInput      browser.Locator
	AudioInput     browser.Locator
	VideoInput     browser.Locator
	ShareLocation  browser.Locator
	IdleMessage    browser.Locator
	IdleClose      browser.Locator
}

// DemoLocators targets the bundled demo widget. One button both opens and
// closes the panel.
var DemoLocators = Locators{
	Open:         browser.ID("chat toggle", "chat-toggle-button"),
	Close:        browser.ID("chat toggle", "chat-toggle-button"),
	Panel:        browser.ID("chat panel", "chat-panel"),
	Input:        browser.ID("chat input", "chat-input"),
	Send:         browser.ID("send button", "send-button"),
	BotMessages:  browser.XPath("bot messages", "//div[@id='chat-display']/div[contains(@class, 'bot-message')]"),
	UserMessages: browser.XPath("user messages", "//div[@id='chat-display']/div[contains(@class, 'user-message')]"),
}

// LaraigoLocators targets the Laraigo web chat.
var LaraigoLocators = Locators{
	Open:         browser.ID("chat open button", "chat-open-chatweb"),
	Close:        browser.Class("chat close button", "header-close-button-chatweb"),
	Panel:        browser.ID("chat window", "chat-window"),
	Input:        browser.ID("chat input", "chat-input-chatweb"),
	BotMessages:  browser.CSS("bot messages", ".chat-message-chatweb-bot p"),
	UserMessages: browser.CSS("user messages", ".chat-message-chatweb-user p"),

	HistoryRefresh: browser.ID("history refresh button", "chat-history-refresh"),
	AttachButton:   browser.ID("attachments button", "input-attach-button-show"),
	AttachMenu:     browser.ID("attachments menu", "attachmentmenu"),
	ImageInput:     browser.ID("image upload input", "input-image-button"),
	FileInput:      browser.ID("file upload input", "input-file-button"),
	AudioInput:     browser.ID("audio upload input", "input-audio-button"),
	VideoInput:     browser.ID("video upload input", "input-video-button"),
	ShareLocation:  browser.ID("share location button", "input-location-button"),
	IdleMessage:    browser.ID("idle message", "chat-idle-message"),
	IdleClose:      browser.CSS("idle message close button", "#chat-idle-message .speech-bubble-times"),
}
