// Package discord implements the chat Adapter for Discord using the
// Gateway WebSocket. The bot converses over direct messages; target
// selection uses native Discord polls.
package discord

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/shipmatebot/shipmate/internal/chat"
)

// pollDurationHours is how long a target-selection poll stays open.
const pollDurationHours = 1

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	Open() error
	Close() error
	AddHandler(handler interface{}) func()
	User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error)
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelFileSend(channelID, name string, r io.Reader, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

// realSession wraps *discordgo.Session to implement the session interface.
type realSession struct {
	s *discordgo.Session
}

func (r *realSession) Open() error  { return r.s.Open() }
func (r *realSession) Close() error { return r.s.Close() }
func (r *realSession) AddHandler(handler interface{}) func() {
	return r.s.AddHandler(handler)
}
func (r *realSession) User(userID string, options ...discordgo.RequestOption) (*discordgo.User, error) {
	return r.s.User(userID, options...)
}
func (r *realSession) UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	return r.s.UserChannelCreate(recipientID, options...)
}
func (r *realSession) ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return r.s.ChannelMessageSend(channelID, content, options...)
}
func (r *realSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return r.s.ChannelMessageSendComplex(channelID, data, options...)
}
func (r *realSession) ChannelFileSend(channelID, name string, rd io.Reader, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return r.s.ChannelFileSend(channelID, name, rd, options...)
}
func (r *realSession) ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	return r.s.ApplicationCommandBulkOverwrite(appID, guildID, commands, options...)
}

// Adapter implements chat.Adapter for Discord via the Gateway WebSocket.
type Adapter struct {
	sess      session
	botToken  string
	mu        sync.Mutex
	connected bool
	closed    bool
	botUserID string
	inbound   chan chat.Event
	// DM channel cache, user ID -> channel ID.
	channels map[int64]string
	// Cumulative vote state per poll message, answer index set. Discord
	// reports vote adds one answer at a time; the state machine wants
	// the full selection on every event.
	votes       map[string]map[int]bool
	removeFuncs []func()
}

// AdapterOpts holds parameters for creating a Discord Adapter.
type AdapterOpts struct {
	BotToken string
	// For testing: inject a mock session instead of real Discord API.
	Session session
}

// New creates a Discord Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	a := &Adapter{
		botToken: opts.BotToken,
		inbound:  make(chan chat.Event, 100),
		channels: make(map[int64]string),
		votes:    make(map[string]map[int]bool),
	}
	if opts.Session != nil {
		a.sess = opts.Session
	}
	return a, nil
}

// Connect establishes the Discord Gateway WebSocket connection.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("discord: adapter already closed")
	}
	if a.connected {
		return nil
	}

	if a.sess == nil {
		dg, err := discordgo.New("Bot " + a.botToken)
		if err != nil {
			return fmt.Errorf("discord: create session: %w", err)
		}
		dg.Identify.Intents = discordgo.IntentsDirectMessages |
			discordgo.IntentsMessageContent |
			discordgo.IntentDirectMessagePolls |
			discordgo.IntentGuildMessagePolls
		a.sess = &realSession{s: dg}
	}

	a.sess.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		a.mu.Lock()
		a.botUserID = r.User.ID
		a.mu.Unlock()
		log.Printf("discord: connected as %s (ID: %s)", r.User.Username, r.User.ID)
	})
	a.sess.AddHandler(func(_ *discordgo.Session, d *discordgo.Disconnect) {
		log.Printf("discord: gateway disconnected, discordgo will auto-reconnect")
	})
	a.sess.AddHandler(func(_ *discordgo.Session, r *discordgo.Resumed) {
		log.Printf("discord: gateway session resumed")
	})

	if err := a.sess.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}

	a.connected = true
	return nil
}

// Listen returns a channel of inbound events from Discord. Registers
// message and poll-vote handlers on the Gateway session. Must be called
// after Connect.
func (a *Adapter) Listen(ctx context.Context) (<-chan chat.Event, error) {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return nil, fmt.Errorf("discord: not connected")
	}
	a.mu.Unlock()

	removeMsg := a.sess.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		a.handleMessage(m)
	})
	removeVote := a.sess.AddHandler(func(_ *discordgo.Session, v *discordgo.MessagePollVoteAdd) {
		a.handlePollVote(v)
	})

	a.mu.Lock()
	a.removeFuncs = append(a.removeFuncs, removeMsg, removeVote)
	a.mu.Unlock()

	return a.inbound, nil
}

// SendText delivers a text message to the user's DM channel. Discord has
// no reply keyboards, so keyboard buttons are rendered as a suggestions
// line under the message.
func (a *Adapter) SendText(ctx context.Context, userID int64, text string, kb *chat.Keyboard) error {
	channelID, err := a.dmChannel(userID)
	if err != nil {
		return err
	}
	if _, err := a.sess.ChannelMessageSend(channelID, renderKeyboard(text, kb)); err != nil {
		return fmt.Errorf("discord: send message: %w", err)
	}
	return nil
}

// SendDocument delivers a file attachment to the user's DM channel.
func (a *Adapter) SendDocument(ctx context.Context, userID int64, doc chat.Document) error {
	channelID, err := a.dmChannel(userID)
	if err != nil {
		return err
	}
	if _, err := a.sess.ChannelFileSend(channelID, doc.Filename, bytes.NewReader(doc.Data)); err != nil {
		return fmt.Errorf("discord: send file %s: %w", doc.Filename, err)
	}
	return nil
}

// SendPoll posts a native Discord poll to the user's DM channel and
// returns the poll message ID.
func (a *Adapter) SendPoll(ctx context.Context, userID int64, poll chat.Poll) (string, error) {
	channelID, err := a.dmChannel(userID)
	if err != nil {
		return "", err
	}

	answers := make([]discordgo.PollAnswer, 0, len(poll.Options))
	for _, opt := range poll.Options {
		answers = append(answers, discordgo.PollAnswer{
			Media: &discordgo.PollMedia{Text: opt},
		})
	}
	data := &discordgo.MessageSend{
		Content: renderKeyboard("", poll.Keyboard),
		Poll: &discordgo.Poll{
			Question:         discordgo.PollMedia{Text: poll.Question},
			Answers:          answers,
			AllowMultiselect: poll.AllowMultiple,
			Duration:         pollDurationHours,
		},
	}
	msg, err := a.sess.ChannelMessageSendComplex(channelID, data)
	if err != nil {
		return "", fmt.Errorf("discord: send poll: %w", err)
	}

	a.mu.Lock()
	a.votes[msg.ID] = make(map[int]bool)
	a.mu.Unlock()
	return msg.ID, nil
}

// Ping probes the Discord REST API with a self-lookup.
func (a *Adapter) Ping(ctx context.Context) error {
	if _, err := a.sess.User("@me"); err != nil {
		return fmt.Errorf("discord: ping: %w", err)
	}
	return nil
}

// RegisterCommands publishes the command menu as global application
// commands (chat.CommandRegistrar).
func (a *Adapter) RegisterCommands(ctx context.Context, commands []chat.BotCommand) error {
	a.mu.Lock()
	appID := a.botUserID
	a.mu.Unlock()
	if appID == "" {
		return fmt.Errorf("discord: bot user ID not known yet")
	}

	appCmds := make([]*discordgo.ApplicationCommand, 0, len(commands))
	for _, c := range commands {
		appCmds = append(appCmds, &discordgo.ApplicationCommand{
			Name:        strings.TrimPrefix(c.Command, "/"),
			Description: c.Description,
		})
	}
	if _, err := a.sess.ApplicationCommandBulkOverwrite(appID, "", appCmds); err != nil {
		return fmt.Errorf("discord: register commands: %w", err)
	}
	return nil
}

// Close gracefully shuts down the adapter connection.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.connected = false
	for _, remove := range a.removeFuncs {
		remove()
	}
	close(a.inbound)
	if a.sess != nil {
		return a.sess.Close()
	}
	return nil
}

// dmChannel resolves (and caches) the DM channel for a user.
func (a *Adapter) dmChannel(userID int64) (string, error) {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return "", fmt.Errorf("discord: not connected")
	}
	if id, ok := a.channels[userID]; ok {
		a.mu.Unlock()
		return id, nil
	}
	a.mu.Unlock()

	ch, err := a.sess.UserChannelCreate(strconv.FormatInt(userID, 10))
	if err != nil {
		return "", fmt.Errorf("discord: open dm channel: %w", err)
	}

	a.mu.Lock()
	a.channels[userID] = ch.ID
	a.mu.Unlock()
	return ch.ID, nil
}

// handleMessage converts a Discord DM into a chat.Event.
func (a *Adapter) handleMessage(m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	// Conversations happen over DMs; guild chatter is ignored.
	if m.GuildID != "" {
		return
	}

	a.mu.Lock()
	botID := a.botUserID
	a.mu.Unlock()
	if m.Author.ID == botID {
		return
	}

	userID, err := strconv.ParseInt(m.Author.ID, 10, 64)
	if err != nil {
		log.Printf("discord: unparsable user ID %q", m.Author.ID)
		return
	}

	a.inbound <- chat.Event{
		Type:     chat.EventMessage,
		UserID:   userID,
		Username: m.Author.Username,
		Text:     m.Content,
	}
}

// handlePollVote folds a vote-add gateway event into the poll's
// cumulative selection and emits the full state.
func (a *Adapter) handlePollVote(v *discordgo.MessagePollVoteAdd) {
	userID, err := strconv.ParseInt(v.UserID, 10, 64)
	if err != nil {
		return
	}

	a.mu.Lock()
	set, tracked := a.votes[v.MessageID]
	if !tracked {
		a.mu.Unlock()
		return
	}
	// Discord assigns 1-based answer IDs in option order.
	set[v.AnswerID-1] = true
	selected := make([]int, 0, len(set))
	for i := range set {
		selected = append(selected, i)
	}
	a.mu.Unlock()
	sort.Ints(selected)

	a.inbound <- chat.Event{
		Type:     chat.EventPoll,
		UserID:   userID,
		PollID:   v.MessageID,
		Selected: selected,
	}
}

// renderKeyboard appends keyboard button labels as a suggestions line.
func renderKeyboard(text string, kb *chat.Keyboard) string {
	if kb == nil || len(kb.Rows) == 0 {
		return text
	}
	var labels []string
	for _, row := range kb.Rows {
		for _, b := range row {
			labels = append(labels, b.Text)
		}
	}
	suffix := "Suggestions: " + strings.Join(labels, " | ")
	if text == "" {
		return suffix
	}
	return text + "\n\n" + suffix
}
