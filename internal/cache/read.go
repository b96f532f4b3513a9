package cache

import (
	"github.com/pigeon-im/pigeon/internal/model"
	"github.com/pigeon-im/pigeon/internal/render"
	"github.com/pigeon-im/pigeon/internal/status"
)

// Conversation returns a clone of the conversation, or nil.
func (c *Cache) Conversation(id string) *model.Conversation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if conv, ok := c.conversations[id]; ok {
		return conv.Clone()
	}
	return nil
}

// Message returns a clone of the message, or nil.
func (c *Cache) Message(id string) *model.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if m, ok := c.messages[id]; ok {
		return m.Clone()
	}
	return nil
}

// MessageByCorrelation returns a clone of the message with the given
// correlation id, or nil.
func (c *Cache) MessageByCorrelation(correlationID string) *model.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if id, ok := c.byCorrelation[correlationID]; ok {
		if m, ok := c.messages[id]; ok {
			return m.Clone()
		}
	}
	return nil
}

// FindConversationForParticipants returns a clone of the conversation whose
// participant set equals the unordered pair {idA, idB}, or nil.
func (c *Cache) FindConversationForParticipants(idA, idB string) *model.Conversation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, conv := range c.conversations {
		if conv.HasParticipants(idA, idB) {
			return conv.Clone()
		}
	}
	return nil
}

// TemporaryMessages returns clones of the unconfirmed messages in a
// conversation, in slot order. Used by the reconciler's fallback match.
func (c *Cache) TemporaryMessages(conversationID string) []*model.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*model.Message
	for _, id := range c.slots[conversationID] {
		if m, ok := c.messages[id]; ok && m.Temporary {
			out = append(out, m.Clone())
		}
	}
	return out
}

// Messages returns clones of a conversation's messages in slot order.
func (c *Cache) Messages(conversationID string) []*model.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*model.Message, 0, len(c.slots[conversationID]))
	for _, id := range c.slots[conversationID] {
		if m, ok := c.messages[id]; ok {
			out = append(out, m.Clone())
		}
	}
	return out
}

// Snapshot returns clones of all conversations. Order is unspecified: the
// cache does not sort, callers sort at paint time, so repeated snapshots are
// stable under no-op updates.
func (c *Cache) Snapshot() []*model.Conversation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*model.Conversation, 0, len(c.conversations))
	for _, conv := range c.conversations {
		out = append(out, conv.Clone())
	}
	return out
}

// TotalUnread returns the sum of all conversations' unread counts.
func (c *Cache) TotalUnread() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total := 0
	for _, conv := range c.conversations {
		total += conv.UnreadCount
	}
	return total
}

// ConversationItem builds the list-row projection for a conversation.
func ConversationItem(conv *model.Conversation, localUserID string) render.ConversationItem {
	name := conv.Name
	if name == "" {
		name = conv.Counterpart(localUserID)
	}
	return render.ConversationItem{
		ID:            conv.ID,
		Name:          name,
		AvatarURL:     conv.AvatarURL,
		Preview:       conv.LastMessage.Preview,
		PreviewStatus: conv.LastMessage.Status,
		PreviewOwn:    conv.LastMessage.SenderID == localUserID,
		LastActivity:  conv.LastActivity,
		UnreadCount:   conv.UnreadCount,
		HasNewMessage: conv.HasNewMessage,
	}
}

// MessageItem builds the bubble projection for a message.
func MessageItem(m *model.Message) render.MessageItem {
	item := render.MessageItem{
		ID:             m.ID,
		Slot:           m.CorrelationID,
		ConversationID: m.ConversationID,
		SenderID:       m.Sender.ID,
		SenderName:     m.Sender.Name,
		Body:           m.Body,
		Status:         m.Status,
		StatusGlyph:    status.Glyph(m.Status),
		StatusTitle:    status.Title(m.Status),
		CreatedAt:      m.CreatedAt,
		Own:            m.Own,
		Deleted:        m.Deleted,
	}
	if item.Slot == "" {
		item.Slot = m.ID
	}
	for _, a := range m.Attachments {
		item.AttachmentURLs = append(item.AttachmentURLs, a.URL)
	}
	if m.Deleted {
		item.Body = "Message deleted"
	}
	return item
}
