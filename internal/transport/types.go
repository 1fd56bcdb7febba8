// Package transport defines the messaging surface the bot talks through.
//
// The conversation layer only ever sees these types; the Telegram adapter
// lives in a subpackage and is the sole place telebot types appear.
package transport

import (
	"context"
	"errors"
)

type UpdateKind string

const (
	// UpdateContactConnected fires when a user opens a private chat with the
	// bot for the first time (Telegram: /start).
	UpdateContactConnected UpdateKind = "contact_connected"
	UpdateMessage          UpdateKind = "message"
)

type Update struct {
	Kind    UpdateKind
	Contact *Contact
	Message *Message
}

// Contact is the user behind a direct conversation.
type Contact struct {
	ID          int64
	DisplayName string
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// ErrContactNotReady reports that the recipient cannot currently receive
// messages (blocked the bot, deactivated, chat gone).
var ErrContactNotReady = errors.New("transport: contact not ready")

// Sender delivers plain text to a single contact.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

type Adapter interface {
	Sender

	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
