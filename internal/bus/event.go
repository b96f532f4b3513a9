package bus

import "time"

// Event kinds published by the core. Subscribers filter by namespace prefix,
// e.g. "transport." or "message.".
const (
	KindTransportMessage      = "transport.message"
	KindTransportReceipt      = "transport.receipt"
	KindTransportPresence     = "transport.presence"
	KindTransportConnected    = "transport.connected"
	KindTransportDisconnected = "transport.disconnected"

	KindMessageUpserted   = "message.upserted"
	KindMessageReplaced   = "message.replaced"
	KindMessageSendFailed = "message.send_failed"
	KindMessageDeleted    = "message.deleted"

	KindConversationUpdated = "conversation.updated"
	KindConversationRemoved = "conversation.removed"

	KindUnreadChanged = "unread.changed"

	KindSessionStateChanged = "session.state_changed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// MessageRef is the payload for message.* events: enough to re-project the
// affected message without handing out live cache records.
type MessageRef struct {
	ConversationID string
	MessageID      string
	// Slot is the correlation id; renderers use it to replace a temporary
	// bubble in place instead of appending a second one.
	Slot string
	// ForActiveView is set when the message belongs to the open conversation
	// and should be painted immediately rather than only counted.
	ForActiveView bool
	// StatusOnly marks an update that changed nothing but the delivery
	// status; renderers repaint the glyph, not the bubble.
	StatusOnly bool
}
