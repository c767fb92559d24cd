// Package slack implements the chat Adapter for Slack using Socket Mode.
// The bot converses over direct messages. Slack has no native polls, so
// target selection degrades to a numbered option list answered via the
// "All targets" quick reply.
package slack

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/shipmatebot/shipmate/internal/chat"
)

// maxReconnectAttempts limits Socket Mode reconnection retries before
// giving up.
const maxReconnectAttempts = 10

// baseBackoff is the initial backoff duration for reconnection.
const baseBackoff = 2 * time.Second

// maxBackoff caps the exponential backoff for reconnection.
const maxBackoff = 2 * time.Minute

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	AuthTest() (*slackapi.AuthTestResponse, error)
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
	OpenConversation(params *slackapi.OpenConversationParameters) (*slackapi.Channel, bool, bool, error)
	UploadFileV2(params slackapi.UploadFileV2Parameters) (*slackapi.FileSummary, error)
	GetUserInfo(userID string) (*slackapi.User, error)
}

// socketClient abstracts the Socket Mode client methods we use.
type socketClient interface {
	Run() error
	EventsChan() chan socketmode.Event
	Ack(req socketmode.Request, payload ...interface{})
}

// realSocketClient wraps *socketmode.Client to implement socketClient.
type realSocketClient struct {
	client *socketmode.Client
}

func (r *realSocketClient) Run() error                        { return r.client.Run() }
func (r *realSocketClient) EventsChan() chan socketmode.Event { return r.client.Events }
func (r *realSocketClient) Ack(req socketmode.Request, payload ...interface{}) {
	r.client.Ack(req, payload...)
}

// Adapter implements chat.Adapter for Slack Socket Mode.
type Adapter struct {
	client    slackClient
	socket    socketClient
	appToken  string
	botToken  string
	botUserID string

	mu        sync.Mutex
	connected bool
	closed    bool
	inbound   chan chat.Event
	// Slack user IDs are strings; the rest of the system keys users by
	// int64. We hash inbound IDs and keep the reverse map for sends.
	userIDs map[int64]string
	// DM channel cache, hashed user ID -> channel ID.
	channels   map[int64]string
	cancelFunc context.CancelFunc
}

// AdapterOpts holds parameters for creating a Slack Adapter.
type AdapterOpts struct {
	AppToken string // xapp-... Slack app-level token for Socket Mode
	BotToken string // xoxb-... Slack bot token
	// For testing: inject mock clients instead of real Slack API.
	Client slackClient
	Socket socketClient
}

// New creates a Slack Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if opts.Socket == nil && opts.Client == nil && opts.AppToken == "" {
		return nil, fmt.Errorf("slack: app token is required for socket mode")
	}

	a := &Adapter{
		appToken: opts.AppToken,
		botToken: opts.BotToken,
		inbound:  make(chan chat.Event, 100),
		userIDs:  make(map[int64]string),
		channels: make(map[int64]string),
	}
	if opts.Client != nil {
		a.client = opts.Client
	}
	if opts.Socket != nil {
		a.socket = opts.Socket
	}
	return a, nil
}

// Connect establishes the Socket Mode connection and resolves the bot's
// own user ID for self-message filtering.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("slack: adapter already closed")
	}
	if a.connected {
		return nil
	}

	if a.client == nil {
		api := slackapi.New(a.botToken, slackapi.OptionAppLevelToken(a.appToken))
		a.client = api
		a.socket = &realSocketClient{client: socketmode.New(api)}
	}

	auth, err := a.client.AuthTest()
	if err != nil {
		return fmt.Errorf("slack: auth test: %w", err)
	}
	a.botUserID = auth.UserID

	a.connected = true
	return nil
}

// Listen returns a channel of inbound events. Starts the Socket Mode
// event pump in a background goroutine. Must be called after Connect.
func (a *Adapter) Listen(ctx context.Context) (<-chan chat.Event, error) {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return nil, fmt.Errorf("slack: not connected")
	}
	a.mu.Unlock()

	listenCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancelFunc = cancel
	a.mu.Unlock()

	go a.runWithReconnect(listenCtx)
	go a.pumpEvents(listenCtx)

	return a.inbound, nil
}

// SendText delivers a text message to the user's DM. Slack reply
// keyboards don't exist; buttons are rendered as a suggestions line.
func (a *Adapter) SendText(ctx context.Context, userID int64, text string, kb *chat.Keyboard) error {
	channelID, err := a.dmChannel(userID)
	if err != nil {
		return err
	}
	_, _, err = a.client.PostMessage(channelID, slackapi.MsgOptionText(renderKeyboard(text, kb), false))
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

// SendDocument uploads a file to the user's DM.
func (a *Adapter) SendDocument(ctx context.Context, userID int64, doc chat.Document) error {
	channelID, err := a.dmChannel(userID)
	if err != nil {
		return err
	}
	_, err = a.client.UploadFileV2(slackapi.UploadFileV2Parameters{
		Reader:   bytes.NewReader(doc.Data),
		Filename: doc.Filename,
		FileSize: len(doc.Data),
		Channel:  channelID,
	})
	if err != nil {
		return fmt.Errorf("slack: upload file %s: %w", doc.Filename, err)
	}
	return nil
}

// SendPoll renders the poll as a numbered option list. Slack has no poll
// primitive, so selections arrive as text replies handled by the dialog
// quick-reply path rather than vote events; the returned poll ID is a
// synthetic correlation token.
func (a *Adapter) SendPoll(ctx context.Context, userID int64, poll chat.Poll) (string, error) {
	channelID, err := a.dmChannel(userID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(poll.Question)
	for i, opt := range poll.Options {
		fmt.Fprintf(&b, "\n%d. %s", i+1, opt)
	}
	text := renderKeyboard(b.String(), poll.Keyboard)

	_, ts, err := a.client.PostMessage(channelID, slackapi.MsgOptionText(text, false))
	if err != nil {
		return "", fmt.Errorf("slack: post poll: %w", err)
	}
	return "poll-" + ts, nil
}

// Ping probes the Slack Web API with an auth test.
func (a *Adapter) Ping(ctx context.Context) error {
	if _, err := a.client.AuthTest(); err != nil {
		return fmt.Errorf("slack: ping: %w", err)
	}
	return nil
}

// Close shuts down the adapter and closes the inbound channel.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.connected = false
	if a.cancelFunc != nil {
		a.cancelFunc()
	}
	close(a.inbound)
	return nil
}

// dmChannel resolves (and caches) the DM channel for a hashed user ID.
func (a *Adapter) dmChannel(userID int64) (string, error) {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return "", fmt.Errorf("slack: not connected")
	}
	if id, ok := a.channels[userID]; ok {
		a.mu.Unlock()
		return id, nil
	}
	slackID, ok := a.userIDs[userID]
	a.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("slack: unknown user %d", userID)
	}

	ch, _, _, err := a.client.OpenConversation(&slackapi.OpenConversationParameters{
		Users:    []string{slackID},
		ReturnIM: true,
	})
	if err != nil {
		return "", fmt.Errorf("slack: open dm: %w", err)
	}

	a.mu.Lock()
	a.channels[userID] = ch.ID
	a.mu.Unlock()
	return ch.ID, nil
}

// runWithReconnect runs the Socket Mode client and retries with
// exponential backoff when Run() returns an error.
func (a *Adapter) runWithReconnect(ctx context.Context) {
	for attempt := 0; attempt < maxReconnectAttempts; attempt++ {
		err := a.socket.Run()
		if err == nil {
			return // clean shutdown
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * baseBackoff
		if wait > maxBackoff {
			wait = maxBackoff
		}
		log.Printf("slack: socket mode disconnected (attempt %d/%d): %v, reconnecting in %v",
			attempt+1, maxReconnectAttempts, err, wait)

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
	log.Printf("slack: socket mode exhausted %d reconnection attempts, giving up", maxReconnectAttempts)
}

// pumpEvents reads Socket Mode events and converts them to chat events.
func (a *Adapter) pumpEvents(ctx context.Context) {
	events := a.socket.EventsChan()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			a.handleSocketEvent(evt)
		}
	}
}

// handleSocketEvent processes a single Socket Mode event.
func (a *Adapter) handleSocketEvent(evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeEventsAPI:
		apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		if evt.Request != nil {
			a.socket.Ack(*evt.Request)
		}
		a.handleEventsAPI(apiEvent)

	case socketmode.EventTypeConnecting:
		log.Printf("slack: connecting to Socket Mode...")
	case socketmode.EventTypeConnected:
		log.Printf("slack: connected to Socket Mode")
	case socketmode.EventTypeConnectionError:
		log.Printf("slack: connection error: %v", evt.Data)
	case socketmode.EventTypeDisconnect:
		log.Printf("slack: server requested disconnect, will reconnect")
	}
}

// handleEventsAPI processes Events API callbacks.
func (a *Adapter) handleEventsAPI(event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	if ev, ok := event.InnerEvent.Data.(*slackevents.MessageEvent); ok {
		a.handleMessage(ev)
	}
}

// handleMessage converts a Slack DM into a chat.Event.
func (a *Adapter) handleMessage(ev *slackevents.MessageEvent) {
	if ev.User == a.botUserID {
		return
	}
	// Filter bot messages and message subtypes (edits, deletes, etc.).
	if ev.BotID != "" || ev.SubType != "" {
		return
	}
	// Conversations happen over DMs (im channels).
	if ev.ChannelType != "" && ev.ChannelType != "im" {
		return
	}

	userID := hashUserID(ev.User)
	a.mu.Lock()
	a.userIDs[userID] = ev.User
	if _, ok := a.channels[userID]; !ok {
		a.channels[userID] = ev.Channel
	}
	a.mu.Unlock()

	a.inbound <- chat.Event{
		Type:     chat.EventMessage,
		UserID:   userID,
		Username: a.resolveUserName(ev.User),
		Text:     ev.Text,
	}
}

// resolveUserName looks up a user's display name. Falls back to user ID.
func (a *Adapter) resolveUserName(userID string) string {
	if userID == "" {
		return ""
	}
	user, err := a.client.GetUserInfo(userID)
	if err != nil {
		return userID
	}
	if user.Profile.DisplayName != "" {
		return user.Profile.DisplayName
	}
	return user.RealName
}

// hashUserID maps a Slack string user ID onto the int64 key space the
// rest of the system uses.
func hashUserID(slackID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(slackID))
	return int64(h.Sum64())
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
	return text + "\n\nSuggestions: " + strings.Join(labels, " | ")
}
