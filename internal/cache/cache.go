// Package cache owns the in-memory view of conversations and messages. It is
// the single shared mutable resource of the sync core: the reconciler, send
// pipeline, and unread aggregator mutate it through the methods here, and
// everything else reads cloned snapshots.
package cache

import (
	"slices"
	"sync"

	"github.com/pigeon-im/pigeon/internal/model"
	"github.com/pigeon-im/pigeon/internal/status"
)

// Cache is the injectable conversation/message store. Constructed at session
// start, cleared at logout. Zero ambient globals.
type Cache struct {
	mu            sync.RWMutex
	localUserID   string
	conversations map[string]*model.Conversation
	messages      map[string]*model.Message
	byCorrelation map[string]string   // correlation id -> message id
	slots         map[string][]string // conversation id -> message ids in slot order
	active        string
}

// New creates an empty cache for the given local user.
func New(localUserID string) *Cache {
	c := &Cache{localUserID: localUserID}
	c.reset()
	return c
}

func (c *Cache) reset() {
	c.conversations = make(map[string]*model.Conversation)
	c.messages = make(map[string]*model.Message)
	c.byCorrelation = make(map[string]string)
	c.slots = make(map[string][]string)
	c.active = ""
}

// Clear drops all state. Used at logout.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

// LocalUserID returns the local user this cache was built for.
func (c *Cache) LocalUserID() string {
	return c.localUserID
}

// SetActiveConversation records which conversation is currently open.
// Empty id means none.
func (c *Cache) SetActiveConversation(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = id
}

// ActiveConversation returns the currently open conversation id.
func (c *Cache) ActiveConversation() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// UpsertConversation inserts or merges a conversation record. Counters are
// never overwritten downward by a merge: unread accounting has its own
// operations.
func (c *Cache) UpsertConversation(conv *model.Conversation) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.conversations[conv.ID]
	if !ok {
		c.conversations[conv.ID] = conv.Clone()
		return
	}
	if conv.Name != "" {
		existing.Name = conv.Name
	}
	if conv.AvatarURL != "" {
		existing.AvatarURL = conv.AvatarURL
	}
	if len(conv.Participants) > 0 {
		existing.Participants = slices.Clone(conv.Participants)
	}
	if conv.LastActivity > existing.LastActivity {
		existing.LastActivity = conv.LastActivity
		existing.LastMessage = conv.LastMessage
	}
}

// ReplaceConversationID swaps a placeholder conversation id for the
// authoritative one, in place. Messages already filed under the placeholder
// move with it so the list never shows two entries for one conversation.
func (c *Cache) ReplaceConversationID(oldID, newID string) bool {
	if oldID == newID {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	conv, ok := c.conversations[oldID]
	if !ok {
		return false
	}
	if target, exists := c.conversations[newID]; exists {
		// Authoritative record arrived first: keep it, fold counters forward.
		if conv.LastActivity > target.LastActivity {
			target.LastActivity = conv.LastActivity
			target.LastMessage = conv.LastMessage
		}
	} else {
		conv.ID = newID
		c.conversations[newID] = conv
	}
	delete(c.conversations, oldID)

	for _, id := range c.slots[oldID] {
		if m, ok := c.messages[id]; ok {
			m.ConversationID = newID
		}
	}
	c.slots[newID] = append(c.slots[newID], c.slots[oldID]...)
	delete(c.slots, oldID)
	if c.active == oldID {
		c.active = newID
	}
	return true
}

// RemoveConversation deletes a conversation and its messages. Used for
// explicit deletion or block.
func (c *Cache) RemoveConversation(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.conversations[id]; !ok {
		return false
	}
	for _, mid := range c.slots[id] {
		if m, ok := c.messages[mid]; ok {
			delete(c.byCorrelation, m.CorrelationID)
		}
		delete(c.messages, mid)
	}
	delete(c.slots, id)
	delete(c.conversations, id)
	if c.active == id {
		c.active = ""
	}
	return true
}

// UpsertMessage inserts a message or merges updates into the stored record.
// A determined ownership decision on the stored record is immutable and wins
// over whatever the caller passes. Status never moves backward here.
func (c *Cache) UpsertMessage(m *model.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.messages[m.ID]
	if !ok {
		stored := m.Clone()
		c.messages[m.ID] = stored
		if stored.CorrelationID != "" {
			c.byCorrelation[stored.CorrelationID] = stored.ID
		}
		c.slots[stored.ConversationID] = append(c.slots[stored.ConversationID], stored.ID)
		return
	}

	if m.Body != "" {
		existing.Body = m.Body
	}
	if len(m.Attachments) > 0 {
		existing.Attachments = slices.Clone(m.Attachments)
	}
	if m.Sender.ID != "" && existing.Sender.ID == "" {
		existing.Sender = m.Sender
	}
	if m.Sender.Name != "" && existing.Sender.Name == "" {
		existing.Sender.Name = m.Sender.Name
	}
	if status.CanUpgrade(existing.Status, m.Status) {
		existing.Status = m.Status
	}
	if !existing.OwnershipDetermined && m.OwnershipDetermined {
		existing.Own = m.Own
		existing.OwnershipDetermined = true
		existing.OwnerUserID = m.OwnerUserID
	}
}

// ConfirmMessage replaces a temporary message's identity fields with the
// confirmed ones, in place: the record keeps its slot so the UI never shows a
// duplicate bubble for one logical send. Returns false if localID is unknown.
func (c *Cache) ConfirmMessage(localID, serverID string, timestamp int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.messages[localID]
	if !ok {
		return false
	}
	if localID != serverID {
		delete(c.messages, localID)
		m.ID = serverID
		c.messages[serverID] = m

		ids := c.slots[m.ConversationID]
		if i := slices.Index(ids, localID); i >= 0 {
			ids[i] = serverID
		}
		if m.CorrelationID != "" {
			c.byCorrelation[m.CorrelationID] = serverID
		}
		if conv, ok := c.conversations[m.ConversationID]; ok && conv.LastMessage.MessageID == localID {
			conv.LastMessage.MessageID = serverID
		}
	}
	m.Temporary = false
	if timestamp > 0 {
		m.CreatedAt = timestamp
	}
	return true
}

// UpgradeMessageStatus applies an upgrade-guarded status transition. If the
// message is its conversation's last message, the list projection follows
// through the same guarded path, never a blind overwrite. Returns whether the
// transition was applied.
func (c *Cache) UpgradeMessageStatus(messageID string, st status.Status) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.messages[messageID]
	if !ok {
		return false
	}
	if !m.UpgradeStatus(st) {
		return false
	}
	if conv, ok := c.conversations[m.ConversationID]; ok {
		if conv.LastMessage.MessageID == messageID && status.CanUpgrade(conv.LastMessage.Status, st) {
			conv.LastMessage.Status = st
		}
	}
	return true
}

// MarkMessageQueued moves a message into the queued sub-state of sending.
// Only valid while the message is still in its optimistic window; confirmed
// or failed messages are left alone.
func (c *Cache) MarkMessageQueued(messageID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.messages[messageID]
	if !ok || m.Status != status.Sending {
		return false
	}
	m.Status = status.Queued
	return true
}

// MarkMessageDeleted replaces a message's content with the deletion
// placeholder (delete "for everyone").
func (c *Cache) MarkMessageDeleted(messageID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.messages[messageID]
	if !ok {
		return false
	}
	m.Deleted = true
	m.Body = ""
	m.Attachments = nil
	if conv, ok := c.conversations[m.ConversationID]; ok && conv.LastMessage.MessageID == messageID {
		conv.LastMessage.Preview = m.Preview()
	}
	return true
}

// RemoveMessage deletes a message locally.
func (c *Cache) RemoveMessage(messageID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.messages[messageID]
	if !ok {
		return false
	}
	delete(c.messages, messageID)
	delete(c.byCorrelation, m.CorrelationID)
	ids := c.slots[m.ConversationID]
	if i := slices.Index(ids, messageID); i >= 0 {
		c.slots[m.ConversationID] = slices.Delete(ids, i, i+1)
	}
	return true
}

// TouchLastMessage updates a conversation's last-message projection and bumps
// its activity timestamp. If the sender is not the local user, the unread
// count goes up by exactly one and the new-message flag is set. Call this once
// per logical message, not per event.
func (c *Cache) TouchLastMessage(conversationID string, m *model.Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	conv, ok := c.conversations[conversationID]
	if !ok {
		return false
	}
	conv.LastMessage = model.LastMessage{
		MessageID: m.ID,
		Preview:   m.Preview(),
		SenderID:  m.Sender.ID,
		Status:    m.Status,
		Timestamp: m.CreatedAt,
	}
	if m.CreatedAt > conv.LastActivity {
		conv.LastActivity = m.CreatedAt
	}
	if m.Sender.ID != c.localUserID && !m.Own {
		conv.UnreadCount++
		conv.HasNewMessage = true
	}
	return true
}

// MarkRead zeroes a conversation's unread count and clears its new-message
// flag. Returns the count that was cleared and whether the conversation
// exists. Idempotent.
func (c *Cache) MarkRead(conversationID string) (cleared int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conv, found := c.conversations[conversationID]
	if !found {
		return 0, false
	}
	cleared = conv.UnreadCount
	conv.UnreadCount = 0
	conv.HasNewMessage = false
	return cleared, true
}

// SetUnreadCount overwrites a conversation's unread count from the
// authoritative listing. Negative values clamp to zero.
func (c *Cache) SetUnreadCount(conversationID string, n int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	conv, ok := c.conversations[conversationID]
	if !ok {
		return false
	}
	if n < 0 {
		n = 0
	}
	conv.UnreadCount = n
	if n == 0 {
		conv.HasNewMessage = false
	}
	return true
}

// SetPresence records presence info for a participant on every conversation
// that includes them.
func (c *Cache) SetPresence(userID string, info model.PresenceInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, conv := range c.conversations {
		if !slices.Contains(conv.Participants, userID) {
			continue
		}
		if conv.Presence == nil {
			conv.Presence = make(map[string]model.PresenceInfo)
		}
		conv.Presence[userID] = info
	}
}
