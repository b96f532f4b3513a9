package model

import (
	"slices"

	"github.com/pigeon-im/pigeon/internal/status"
)

// LastMessage is the projection of a conversation's most recent message kept
// on the conversation record for list rendering.
type LastMessage struct {
	MessageID string
	Preview   string
	SenderID  string
	Status    status.Status
	Timestamp int64
}

// PresenceInfo is cached per-participant presence state.
type PresenceInfo struct {
	Status   string
	LastSeen int64
}

// Conversation is a single conversation record owned by the cache.
type Conversation struct {
	// ID is stable once created by the server. A locally-started chat uses a
	// placeholder id (see NewPlaceholderConversationID) until the first
	// confirmed message carries the authoritative id.
	ID           string
	Participants []string
	Name         string
	AvatarURL    string
	LastMessage  LastMessage
	LastActivity int64 // unix millis
	// UnreadCount is the number of messages from other participants not yet
	// acknowledged as read by the local user. Never negative, never guessed.
	UnreadCount   int
	HasNewMessage bool
	Presence      map[string]PresenceInfo
}

// HasParticipants reports whether the conversation's participant set equals
// the unordered pair {a, b}.
func (c *Conversation) HasParticipants(a, b string) bool {
	if len(c.Participants) != 2 {
		return false
	}
	return (c.Participants[0] == a && c.Participants[1] == b) ||
		(c.Participants[0] == b && c.Participants[1] == a)
}

// Counterpart returns the non-local participant of a private conversation.
// Display name and avatar derive from this participant.
func (c *Conversation) Counterpart(localUserID string) string {
	for _, p := range c.Participants {
		if p != localUserID {
			return p
		}
	}
	return ""
}

// Placeholder reports whether the conversation has not been persisted
// server-side yet.
func (c *Conversation) Placeholder() bool {
	return IsPlaceholderConversationID(c.ID)
}

// Clone returns a copy safe to hand outside the cache.
func (c *Conversation) Clone() *Conversation {
	cp := *c
	cp.Participants = slices.Clone(c.Participants)
	if c.Presence != nil {
		cp.Presence = make(map[string]PresenceInfo, len(c.Presence))
		for k, v := range c.Presence {
			cp.Presence[k] = v
		}
	}
	return &cp
}
