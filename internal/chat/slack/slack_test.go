package slack

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	slackapi "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/shipmatebot/shipmate/internal/chat"
)

// --- Mock Slack clients ---

type postedMessage struct {
	channelID string
	options   []slackapi.MsgOption
}

type mockClient struct {
	mu       sync.Mutex
	authErr  error
	postErr  error
	posted   []postedMessage
	uploads  []slackapi.UploadFileV2Parameters
	openDMs  []string
	userInfo map[string]*slackapi.User
}

func (m *mockClient) AuthTest() (*slackapi.AuthTestResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.authErr != nil {
		return nil, m.authErr
	}
	return &slackapi.AuthTestResponse{UserID: "UBOT", User: "shipmate"}, nil
}

func (m *mockClient) PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.postErr != nil {
		return "", "", m.postErr
	}
	m.posted = append(m.posted, postedMessage{channelID: channelID, options: options})
	return channelID, fmt.Sprintf("170000000%d.000100", len(m.posted)), nil
}

func (m *mockClient) OpenConversation(params *slackapi.OpenConversationParameters) (*slackapi.Channel, bool, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openDMs = append(m.openDMs, params.Users...)
	ch := &slackapi.Channel{}
	ch.ID = "D" + params.Users[0]
	return ch, false, false, nil
}

func (m *mockClient) UploadFileV2(params slackapi.UploadFileV2Parameters) (*slackapi.FileSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads = append(m.uploads, params)
	return &slackapi.FileSummary{ID: "F1", Title: params.Filename}, nil
}

func (m *mockClient) GetUserInfo(userID string) (*slackapi.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.userInfo[userID]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("users_not_found")
}

// renderedText extracts the text a PostMessage call would have sent.
func renderedText(t *testing.T, msg postedMessage) string {
	t.Helper()
	_, values, err := slackapi.UnsafeApplyMsgOptions("tok", msg.channelID, "https://slack.test/api/", msg.options...)
	if err != nil {
		t.Fatalf("apply msg options: %v", err)
	}
	return values.Get("text")
}

type mockSocket struct {
	events  chan socketmode.Event
	runErrs chan error
	acked   int
	mu      sync.Mutex
}

func newMockSocket() *mockSocket {
	return &mockSocket{
		events:  make(chan socketmode.Event, 10),
		runErrs: make(chan error, 10),
	}
}

func (m *mockSocket) Run() error {
	if err, ok := <-m.runErrs; ok {
		return err
	}
	return nil
}

func (m *mockSocket) EventsChan() chan socketmode.Event { return m.events }

func (m *mockSocket) Ack(req socketmode.Request, payload ...interface{}) {
	m.mu.Lock()
	m.acked++
	m.mu.Unlock()
}

func newConnectedAdapter(t *testing.T) (*Adapter, *mockClient) {
	t.Helper()
	client := &mockClient{userInfo: make(map[string]*slackapi.User)}
	a, err := New(AdapterOpts{Client: client, Socket: newMockSocket()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return a, client
}

// seedUser registers a Slack user as if a DM had already arrived, and
// returns the hashed ID the rest of the system would use.
func seedUser(a *Adapter, slackID string) int64 {
	userID := hashUserID(slackID)
	a.mu.Lock()
	a.userIDs[userID] = slackID
	a.mu.Unlock()
	return userID
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(AdapterOpts{}); err == nil {
		t.Error("expected error without tokens")
	}
	if _, err := New(AdapterOpts{BotToken: "xoxb-1"}); err == nil {
		t.Error("expected error without app token")
	}
	if _, err := New(AdapterOpts{BotToken: "xoxb-1", AppToken: "xapp-1"}); err != nil {
		t.Errorf("New with both tokens: %v", err)
	}
}

func TestConnect_ResolvesBotUserID(t *testing.T) {
	a, _ := newConnectedAdapter(t)
	if a.botUserID != "UBOT" {
		t.Errorf("botUserID = %q, want UBOT", a.botUserID)
	}
}

func TestConnect_AuthFailure(t *testing.T) {
	client := &mockClient{authErr: fmt.Errorf("invalid_auth")}
	a, err := New(AdapterOpts{Client: client, Socket: newMockSocket()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.Connect(context.Background()); err == nil {
		t.Error("expected auth error")
	}
}

func TestSendText_OpensAndCachesDM(t *testing.T) {
	a, client := newConnectedAdapter(t)
	userID := seedUser(a, "U123")

	if err := a.SendText(context.Background(), userID, "hello", nil); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if err := a.SendText(context.Background(), userID, "again", nil); err != nil {
		t.Fatalf("SendText: %v", err)
	}

	if len(client.openDMs) != 1 || client.openDMs[0] != "U123" {
		t.Errorf("openDMs = %v, want one conversation open", client.openDMs)
	}
	if len(client.posted) != 2 || client.posted[0].channelID != "DU123" {
		t.Errorf("posted = %+v", client.posted)
	}
}

func TestSendText_UnknownUser(t *testing.T) {
	a, _ := newConnectedAdapter(t)
	if err := a.SendText(context.Background(), 99, "x", nil); err == nil {
		t.Error("expected unknown-user error")
	}
}

func TestSendText_RendersKeyboard(t *testing.T) {
	a, client := newConnectedAdapter(t)
	userID := seedUser(a, "U123")

	kb := chat.SingleRow("master", "develop")
	if err := a.SendText(context.Background(), userID, "Enter a branch", kb); err != nil {
		t.Fatalf("SendText: %v", err)
	}

	got := renderedText(t, client.posted[0])
	if !strings.Contains(got, "Enter a branch") || !strings.Contains(got, "Suggestions: master | develop") {
		t.Errorf("text = %q", got)
	}
}

func TestSendDocument(t *testing.T) {
	a, client := newConnectedAdapter(t)
	userID := seedUser(a, "U123")

	doc := chat.Document{Filename: "output_log.txt", Data: []byte("log body")}
	if err := a.SendDocument(context.Background(), userID, doc); err != nil {
		t.Fatalf("SendDocument: %v", err)
	}

	if len(client.uploads) != 1 {
		t.Fatalf("uploads = %d, want 1", len(client.uploads))
	}
	up := client.uploads[0]
	if up.Filename != "output_log.txt" || up.FileSize != len("log body") || up.Channel != "DU123" {
		t.Errorf("upload = %+v", up)
	}
}

func TestSendPoll_NumbersOptions(t *testing.T) {
	a, client := newConnectedAdapter(t)
	userID := seedUser(a, "U123")

	id, err := a.SendPoll(context.Background(), userID, chat.Poll{
		Question: "Select the targets you want to upload",
		Options:  []string{"App", "Widget"},
		Keyboard: chat.SingleRow("All targets"),
	})
	if err != nil {
		t.Fatalf("SendPoll: %v", err)
	}
	if !strings.HasPrefix(id, "poll-") {
		t.Errorf("poll ID = %q, want poll- prefix", id)
	}

	got := renderedText(t, client.posted[0])
	for _, want := range []string{"Select the targets", "1. App", "2. Widget", "All targets"} {
		if !strings.Contains(got, want) {
			t.Errorf("text %q missing %q", got, want)
		}
	}
}

func TestHandleMessage_DMBecomesEvent(t *testing.T) {
	a, client := newConnectedAdapter(t)
	client.userInfo["U123"] = &slackapi.User{
		RealName: "Alice Smith",
		Profile:  slackapi.UserProfile{DisplayName: "alice"},
	}

	a.handleMessage(&slackevents.MessageEvent{
		User: "U123", Channel: "D999", ChannelType: "im", Text: "/upload",
	})

	ev := <-a.inbound
	if ev.Type != chat.EventMessage || ev.Text != "/upload" || ev.Username != "alice" {
		t.Errorf("event = %+v", ev)
	}
	if ev.UserID != hashUserID("U123") {
		t.Errorf("UserID = %d, want hash of U123", ev.UserID)
	}

	// The inbound channel is learned from the event, so sends work
	// without an explicit OpenConversation.
	if err := a.SendText(context.Background(), ev.UserID, "ok", nil); err != nil {
		t.Fatalf("SendText after inbound: %v", err)
	}
	if client.posted[0].channelID != "D999" {
		t.Errorf("channelID = %q, want D999", client.posted[0].channelID)
	}
	if len(client.openDMs) != 0 {
		t.Errorf("openDMs = %v, want none", client.openDMs)
	}
}

func TestHandleMessage_Filters(t *testing.T) {
	a, _ := newConnectedAdapter(t)

	// Self-messages, bot messages, subtype edits, and channel chatter
	// are all dropped.
	a.handleMessage(&slackevents.MessageEvent{User: "UBOT", ChannelType: "im", Text: "hi"})
	a.handleMessage(&slackevents.MessageEvent{User: "U1", BotID: "B1", ChannelType: "im", Text: "hi"})
	a.handleMessage(&slackevents.MessageEvent{User: "U1", SubType: "message_changed", ChannelType: "im", Text: "hi"})
	a.handleMessage(&slackevents.MessageEvent{User: "U1", ChannelType: "channel", Text: "hi"})

	select {
	case ev := <-a.inbound:
		t.Errorf("unexpected event %+v", ev)
	default:
	}
}

func TestHandleSocketEvent_AcksEventsAPI(t *testing.T) {
	a, _ := newConnectedAdapter(t)
	socket := a.socket.(*mockSocket)

	a.handleSocketEvent(socketmode.Event{
		Type:    socketmode.EventTypeEventsAPI,
		Request: &socketmode.Request{EnvelopeID: "env-1"},
		Data: slackevents.EventsAPIEvent{
			Type: slackevents.CallbackEvent,
			InnerEvent: slackevents.EventsAPIInnerEvent{
				Data: &slackevents.MessageEvent{User: "U5", Channel: "D5", ChannelType: "im", Text: "hello"},
			},
		},
	})

	socket.mu.Lock()
	acked := socket.acked
	socket.mu.Unlock()
	if acked != 1 {
		t.Errorf("acked = %d, want 1", acked)
	}
	ev := <-a.inbound
	if ev.Text != "hello" {
		t.Errorf("event = %+v", ev)
	}
}

func TestResolveUserName_Fallbacks(t *testing.T) {
	a, client := newConnectedAdapter(t)
	client.userInfo["U1"] = &slackapi.User{RealName: "Bob Jones"}

	if got := a.resolveUserName("U1"); got != "Bob Jones" {
		t.Errorf("resolveUserName = %q, want real name fallback", got)
	}
	// Lookup failure falls back to the raw ID.
	if got := a.resolveUserName("U404"); got != "U404" {
		t.Errorf("resolveUserName = %q, want U404", got)
	}
}

func TestHashUserID(t *testing.T) {
	if hashUserID("U123") != hashUserID("U123") {
		t.Error("hash not deterministic")
	}
	if hashUserID("U123") == hashUserID("U124") {
		t.Error("distinct IDs collided")
	}
}

func TestPing(t *testing.T) {
	a, client := newConnectedAdapter(t)
	if err := a.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
	client.authErr = fmt.Errorf("down")
	if err := a.Ping(context.Background()); err == nil {
		t.Error("expected ping error")
	}
}

func TestClose(t *testing.T) {
	a, _ := newConnectedAdapter(t)
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := <-a.inbound; ok {
		t.Error("inbound channel not closed")
	}
	if err := a.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
