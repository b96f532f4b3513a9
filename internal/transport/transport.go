// Package transport defines the event source/sink boundary of the sync core.
// Wire format is out of scope here: a concrete transport decodes whatever it
// speaks into Events and publishes them on the bus under "transport.".
package transport

import (
	"context"

	"github.com/pigeon-im/pigeon/internal/model"
	"github.com/pigeon-im/pigeon/internal/status"
)

// EventType classifies inbound transport events.
type EventType string

const (
	// EventMessage is a new inbound message or the server echo of an
	// optimistic send.
	EventMessage EventType = "message"
	// EventReceipt is a delivery/read acknowledgement for a known message.
	EventReceipt EventType = "receipt"
	// EventPresence is a participant presence update.
	EventPresence EventType = "presence"
	// EventMessageDeleted is a delete-for-everyone notification.
	EventMessageDeleted EventType = "message_deleted"
)

// Event is a normalized inbound transport event. Sender is already reduced to
// a typed descriptor; nothing past this boundary deals with raw sender shapes.
type Event struct {
	Type           EventType
	ConversationID string
	MessageID      string
	// ClientID carries the sender's correlation id when the server echoes it
	// back. Empty for peers' messages and on transports that drop it.
	ClientID    string
	Sender      model.Sender
	RecipientID string
	Body        string
	Attachments []model.Attachment
	ReplyToID   string
	Status      status.Status
	Timestamp   int64 // unix millis

	// Presence fields, set only for EventPresence.
	UserID         string
	PresenceStatus string
	LastSeen       int64
}

// SendRequest is an outgoing message dispatch.
type SendRequest struct {
	ConversationID string
	Body           string
	Kind           string
	ReplyToID      string
	Attachments    []model.Attachment
	ClientID       string
}

// Transport delivers outgoing traffic and exposes connectivity state. Inbound
// events do not flow through this interface: the concrete transport publishes
// them on the bus as "transport.*" events.
type Transport interface {
	IsConnected() bool
	Connect(ctx context.Context) error
	Disconnect()
	// Send dispatches a message. A nil error means accepted for delivery;
	// the actual confirmation arrives later as an EventMessage or
	// EventReceipt carrying the request's ClientID.
	Send(ctx context.Context, req SendRequest) error
	// MarkRead notifies the authoritative side that a conversation was read.
	MarkRead(ctx context.Context, conversationID string) error
	// Typing signals that the local user started or stopped typing.
	// Best effort; failures are ignored by callers.
	Typing(ctx context.Context, conversationID string, active bool) error
}

// RemoteConversation is one entry of the authoritative bulk listing.
type RemoteConversation struct {
	ID           string
	Participants []string
	Name         string
	AvatarURL    string
	UnreadCount  int
	LastMessage  model.LastMessage
}

// Source is the authoritative read path: a bulk conversation listing used for
// full cache population and periodic drift reconciliation.
type Source interface {
	ListConversations(ctx context.Context) ([]RemoteConversation, error)
}
