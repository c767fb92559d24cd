// Package chat abstracts the messaging platforms Shipmate can be driven from
// (Discord, Slack, etc.).
package chat

import "context"

// Adapter is the interface that platform-specific implementations must
// satisfy. Each adapter handles connection management, inbound event
// delivery, and outbound message/document/poll sending for one platform.
type Adapter interface {
	// Connect establishes a connection to the chat platform. Calling
	// Connect on an already-connected adapter re-establishes the
	// connection (used by the connectivity watchdog).
	Connect(ctx context.Context) error

	// Listen returns a channel of inbound events from the platform.
	// The channel is closed when the context is cancelled or the adapter
	// is closed. Listen must only be called after Connect.
	Listen(ctx context.Context) (<-chan Event, error)

	// SendText delivers a text message to a user. A non-nil keyboard
	// requests quick-pick buttons; nil removes any previous keyboard.
	SendText(ctx context.Context, userID int64, text string, kb *Keyboard) error

	// SendDocument delivers a file attachment to a user.
	SendDocument(ctx context.Context, userID int64, doc Document) error

	// SendPoll posts a multiple-choice poll to a user and returns the
	// platform's poll identifier, used to correlate later vote events.
	SendPoll(ctx context.Context, userID int64, poll Poll) (string, error)

	// Ping probes platform liveness. The connectivity watchdog calls it
	// periodically and triggers a reconnect on failure.
	Ping(ctx context.Context) error

	// Close gracefully shuts down the adapter connection.
	Close() error
}

// EventType tags the variant carried by an Event.
type EventType string

const (
	// EventMessage is a plain text message (optionally carrying a shared
	// contact phone number).
	EventMessage EventType = "message"
	// EventPoll reports the current vote state of a previously sent poll.
	EventPoll EventType = "poll"
)

// Event is an inbound chat event. Message events carry UserID and Text
// (and ContactPhone when the user shared a contact). Poll events carry
// PollID and the indexes of options with at least one vote; their UserID
// may be zero on platforms that report poll state anonymously.
type Event struct {
	Type         EventType
	UserID       int64
	Username     string
	Text         string
	ContactPhone string
	PollID       string
	Selected     []int
}

// Keyboard describes a reply quick-pick keyboard: rows of buttons.
type Keyboard struct {
	Rows [][]Button
}

// Button is a single quick-pick button. RequestContact asks the platform
// to share the user's phone number when tapped (platforms without contact
// sharing render it as a plain button).
type Button struct {
	Text           string
	RequestContact bool
}

// SingleRow builds a one-row keyboard from button labels.
func SingleRow(labels ...string) *Keyboard {
	row := make([]Button, 0, len(labels))
	for _, l := range labels {
		row = append(row, Button{Text: l})
	}
	return &Keyboard{Rows: [][]Button{row}}
}

// Document is an outbound file attachment.
type Document struct {
	Filename string
	Data     []byte
	MimeType string
}

// Poll is an outbound multiple-choice poll.
type Poll struct {
	Question      string
	Options       []string
	AllowMultiple bool
	Keyboard      *Keyboard
}

// BotCommand is one entry of a platform command menu.
type BotCommand struct {
	Command     string
	Description string
}

// CommandRegistrar is an optional interface adapters can implement to
// publish the bot's command menu to the platform after connecting.
type CommandRegistrar interface {
	RegisterCommands(ctx context.Context, commands []BotCommand) error
}
