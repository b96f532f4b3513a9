package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pigeon-im/pigeon/internal/bus"
	"github.com/pigeon-im/pigeon/internal/status"
)

// Loopback is an in-memory transport used by tests and demo mode. It confirms
// every accepted send with a synthetic server message id and can be toggled
// offline or told to fail.
type Loopback struct {
	mu        sync.Mutex
	bus       *bus.Bus
	connected bool
	nextID    int
	sends     []SendRequest
	reads     []string
	typings   []TypingSignal
	sendErr   error
	readErr   error
	// ConfirmDelay postpones the synthetic confirmation event.
	ConfirmDelay time.Duration
	// DropClientID simulates transports that lose the correlation id.
	DropClientID bool
}

// NewLoopback creates a disconnected loopback transport publishing on b.
func NewLoopback(b *bus.Bus) *Loopback {
	return &Loopback{bus: b}
}

// IsConnected implements Transport.
func (l *Loopback) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

// Connect implements Transport.
func (l *Loopback) Connect(_ context.Context) error {
	l.mu.Lock()
	l.connected = true
	l.mu.Unlock()
	l.bus.Emit(bus.KindTransportConnected, nil)
	return nil
}

// Disconnect implements Transport.
func (l *Loopback) Disconnect() {
	l.mu.Lock()
	l.connected = false
	l.mu.Unlock()
	l.bus.Emit(bus.KindTransportDisconnected, nil)
}

// Send implements Transport. Accepted sends are confirmed with a receipt
// event carrying a synthetic server id.
func (l *Loopback) Send(_ context.Context, req SendRequest) error {
	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return fmt.Errorf("loopback: not connected")
	}
	if l.sendErr != nil {
		err := l.sendErr
		l.mu.Unlock()
		return err
	}
	l.nextID++
	serverID := fmt.Sprintf("srv-%d", l.nextID)
	l.sends = append(l.sends, req)
	delay := l.ConfirmDelay
	drop := l.DropClientID
	l.mu.Unlock()

	confirm := Event{
		Type:           EventReceipt,
		ConversationID: req.ConversationID,
		MessageID:      serverID,
		ClientID:       req.ClientID,
		Status:         status.Sent,
		Timestamp:      time.Now().UnixMilli(),
	}
	if drop {
		confirm.ClientID = ""
	}
	if delay > 0 {
		go func() {
			time.Sleep(delay)
			l.bus.Emit(bus.KindTransportReceipt, confirm)
		}()
	} else {
		l.bus.Emit(bus.KindTransportReceipt, confirm)
	}
	return nil
}

// MarkRead implements Transport.
func (l *Loopback) MarkRead(_ context.Context, conversationID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.readErr != nil {
		return l.readErr
	}
	l.reads = append(l.reads, conversationID)
	return nil
}

// TypingSignal is one recorded Typing call.
type TypingSignal struct {
	ConversationID string
	Active         bool
}

// Typing implements Transport.
func (l *Loopback) Typing(_ context.Context, conversationID string, active bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.typings = append(l.typings, TypingSignal{ConversationID: conversationID, Active: active})
	return nil
}

// Deliver injects an inbound event as if it arrived off the wire.
func (l *Loopback) Deliver(evt Event) {
	kind := bus.KindTransportMessage
	switch evt.Type {
	case EventReceipt:
		kind = bus.KindTransportReceipt
	case EventPresence:
		kind = bus.KindTransportPresence
	}
	l.bus.Emit(kind, evt)
}

// FailSends makes subsequent sends return err (nil restores success).
func (l *Loopback) FailSends(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sendErr = err
}

// FailReads makes subsequent MarkRead calls return err.
func (l *Loopback) FailReads(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.readErr = err
}

// Sends returns a copy of the accepted send requests in order.
func (l *Loopback) Sends() []SendRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]SendRequest, len(l.sends))
	copy(out, l.sends)
	return out
}

// Typings returns the recorded typing signals in order.
func (l *Loopback) Typings() []TypingSignal {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]TypingSignal, len(l.typings))
	copy(out, l.typings)
	return out
}

// Reads returns the conversation ids passed to MarkRead, in order.
func (l *Loopback) Reads() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.reads))
	copy(out, l.reads)
	return out
}

// StaticSource is a Source backed by a fixed listing, for tests and demo mode.
type StaticSource struct {
	Conversations []RemoteConversation
	Err           error
}

// ListConversations implements Source.
func (s *StaticSource) ListConversations(_ context.Context) ([]RemoteConversation, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]RemoteConversation, len(s.Conversations))
	copy(out, s.Conversations)
	return out, nil
}

var _ Transport = (*Loopback)(nil)
var _ Source = (*StaticSource)(nil)
