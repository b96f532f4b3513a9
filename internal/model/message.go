package model

import (
	"github.com/pigeon-im/pigeon/internal/status"
)

// Sender is the normalized sender descriptor. Inbound events may carry the
// sender as a bare id, an embedded user object, or a legacy shape; the
// transport layer normalizes all of them into this before anything else
// sees the message.
type Sender struct {
	ID        string
	Name      string
	AvatarURL string
}

// Attachment describes a stored media object referenced by a message.
type Attachment struct {
	URL       string
	Filename  string
	Size      int64
	Kind      string
	Thumbnail string
}

// Message is a single message record owned by the conversation cache.
type Message struct {
	// ID is the server message id once known; before confirmation it holds a
	// temporary client-generated id (see NewTempMessageID).
	ID string
	// CorrelationID is the stable client-chosen id used to match a temporary
	// send to its server confirmation, independent of either's final id.
	CorrelationID  string
	ConversationID string
	Sender         Sender
	Body           string
	Attachments    []Attachment
	ReplyToID      string
	Status         status.Status
	CreatedAt      int64 // unix millis
	Temporary      bool
	Deleted        bool

	// Own is the cached ownership decision. Once OwnershipDetermined is set
	// the decision is immutable: authorship must never flicker.
	Own                 bool
	OwnershipDetermined bool
	OwnerUserID         string
}

// UpgradeStatus applies newStatus only if it moves strictly forward in the
// delivery ordering (or enters the terminal error state). Returns whether the
// transition was applied; on false the status is unchanged.
func (m *Message) UpgradeStatus(newStatus status.Status) bool {
	if !status.CanUpgrade(m.Status, newStatus) {
		return false
	}
	m.Status = newStatus
	return true
}

// Preview returns the content summary used in conversation list rows.
func (m *Message) Preview() string {
	if m.Deleted {
		return "Message deleted"
	}
	if m.Body != "" {
		return m.Body
	}
	if len(m.Attachments) > 0 {
		return "[" + m.Attachments[0].Kind + "]"
	}
	return ""
}

// Clone returns a copy safe to hand outside the cache.
func (m *Message) Clone() *Message {
	c := *m
	if m.Attachments != nil {
		c.Attachments = make([]Attachment, len(m.Attachments))
		copy(c.Attachments, m.Attachments)
	}
	return &c
}
