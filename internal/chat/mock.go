package chat

import (
	"context"
	"fmt"
	"sync"
)

// SentMessage records one outbound SendText call made against a MockAdapter.
type SentMessage struct {
	UserID   int64
	Text     string
	Keyboard *Keyboard
}

// SentPoll records one outbound SendPoll call.
type SentPoll struct {
	UserID int64
	Poll   Poll
	ID     string
}

// SentDocument records one outbound SendDocument call.
type SentDocument struct {
	UserID int64
	Doc    Document
}

// MockAdapter implements Adapter for testing. It records outbound traffic
// and allows simulating inbound events via SimulateInbound.
type MockAdapter struct {
	mu          sync.Mutex
	connected   bool
	closed      bool
	connects    int
	inbound     chan Event
	sent        []SentMessage
	polls       []SentPoll
	documents   []SentDocument
	registered  []BotCommand
	pingErr     error
	pollCounter int
}

// NewMockAdapter creates a MockAdapter with a buffered inbound channel.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		inbound: make(chan Event, 100),
	}
}

// Connect marks the adapter as connected and counts the call, so tests can
// observe watchdog-triggered reconnects.
func (m *MockAdapter) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("mock adapter: already closed")
	}
	m.connected = true
	m.connects++
	return nil
}

// Listen returns the inbound event channel. Must be called after Connect.
func (m *MockAdapter) Listen(ctx context.Context) (<-chan Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, fmt.Errorf("mock adapter: not connected")
	}
	return m.inbound, nil
}

// SendText records the outbound message.
func (m *MockAdapter) SendText(ctx context.Context, userID int64, text string, kb *Keyboard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return fmt.Errorf("mock adapter: not connected")
	}
	m.sent = append(m.sent, SentMessage{UserID: userID, Text: text, Keyboard: kb})
	return nil
}

// SendDocument records the outbound document.
func (m *MockAdapter) SendDocument(ctx context.Context, userID int64, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return fmt.Errorf("mock adapter: not connected")
	}
	m.documents = append(m.documents, SentDocument{UserID: userID, Doc: doc})
	return nil
}

// SendPoll records the outbound poll and returns a synthetic poll ID.
func (m *MockAdapter) SendPoll(ctx context.Context, userID int64, poll Poll) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return "", fmt.Errorf("mock adapter: not connected")
	}
	m.pollCounter++
	id := fmt.Sprintf("poll-%d", m.pollCounter)
	m.polls = append(m.polls, SentPoll{UserID: userID, Poll: poll, ID: id})
	return id, nil
}

// Ping returns the configured ping error (nil by default).
func (m *MockAdapter) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pingErr
}

// RegisterCommands records the command menu (implements CommandRegistrar).
func (m *MockAdapter) RegisterCommands(ctx context.Context, commands []BotCommand) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registered = append([]BotCommand(nil), commands...)
	return nil
}

// Close shuts down the mock adapter and closes the inbound channel.
func (m *MockAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.connected = false
	close(m.inbound)
	return nil
}

// --- Test helpers ---

// SimulateInbound sends an event into the inbound channel as if it came
// from the chat platform. Safe to call from any goroutine.
func (m *MockAdapter) SimulateInbound(ev Event) {
	m.inbound <- ev
}

// SetPingErr makes subsequent Ping calls return err.
func (m *MockAdapter) SetPingErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
}

// Connects returns how many times Connect has been called.
func (m *MockAdapter) Connects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}

// LastSent returns the most recently sent text message.
// Returns zero value and false if nothing was sent.
func (m *MockAdapter) LastSent() (SentMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return SentMessage{}, false
	}
	return m.sent[len(m.sent)-1], true
}

// AllSent returns a copy of all sent text messages.
func (m *MockAdapter) AllSent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// Polls returns a copy of all sent polls.
func (m *MockAdapter) Polls() []SentPoll {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentPoll, len(m.polls))
	copy(out, m.polls)
	return out
}

// Documents returns a copy of all sent documents.
func (m *MockAdapter) Documents() []SentDocument {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentDocument, len(m.documents))
	copy(out, m.documents)
	return out
}

// Registered returns the command menu registered via RegisterCommands.
func (m *MockAdapter) Registered() []BotCommand {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]BotCommand(nil), m.registered...)
}
