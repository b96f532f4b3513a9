// Package render defines the boundary between the sync core and whatever
// paints it. The core hands out read-only projections and assumes nothing
// about paint timing beyond "eventually, after the call returns".
package render

import (
	"github.com/pigeon-im/pigeon/internal/status"
)

// ConversationItem is the list-row projection of a conversation.
type ConversationItem struct {
	ID            string
	Name          string
	AvatarURL     string
	Preview       string
	PreviewStatus status.Status
	PreviewOwn    bool
	LastActivity  int64
	UnreadCount   int
	HasNewMessage bool
}

// MessageItem is the bubble projection of a message. Slot identifies the UI
// position: a confirmed message replaces the temporary one sharing its slot
// instead of appearing as a second bubble.
type MessageItem struct {
	ID             string
	Slot           string // correlation id; stable across temp→confirmed swap
	ConversationID string
	SenderID       string
	SenderName     string
	Body           string
	AttachmentURLs []string
	Status         status.Status
	StatusGlyph    string
	StatusTitle    string
	CreatedAt      int64
	Own            bool
	Deleted        bool
}

// Renderer paints projections. Implementations must not mutate core state;
// user actions flow back through the send pipeline and aggregator instead.
type Renderer interface {
	// ConversationList repaints the conversation list. Items arrive sorted by
	// last activity descending.
	ConversationList(items []ConversationItem)
	// Message inserts or replaces (by Slot) a single message bubble.
	Message(item MessageItem)
	// MessageStatus updates only the status glyph/tooltip of a message.
	MessageStatus(conversationID, messageID string, st status.Status)
	// Badge updates the global unread badge.
	Badge(total int)
}

// Discard is a Renderer that drops everything. Used when no UI is attached
// and in tests.
type Discard struct{}

func (Discard) ConversationList([]ConversationItem) {}
func (Discard) Message(MessageItem) {}
func (Discard) MessageStatus(string, string, status.Status) {}
func (Discard) Badge(int) {}
