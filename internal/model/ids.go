package model

import (
	"strings"

	"github.com/google/uuid"
)

// tempIDPrefix marks client-generated message ids that exist only until the
// server confirms the send.
const tempIDPrefix = "tmp-"

// placeholderPrefix marks conversation ids synthesized locally before the
// server has persisted the conversation.
const placeholderPrefix = "local-"

// NewTempMessageID returns a fresh temporary message id.
func NewTempMessageID() string {
	return tempIDPrefix + uuid.NewString()
}

// NewCorrelationID returns a fresh client-chosen correlation id used to match
// an optimistic send to its eventual server confirmation.
func NewCorrelationID() string {
	return uuid.NewString()
}

// NewPlaceholderConversationID returns a locally-generated conversation id for
// a chat started before any message exists server-side.
func NewPlaceholderConversationID() string {
	return placeholderPrefix + uuid.NewString()
}

// IsTempMessageID reports whether id follows the temporary-id convention.
func IsTempMessageID(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}

// IsPlaceholderConversationID reports whether id is a local placeholder.
func IsPlaceholderConversationID(id string) bool {
	return strings.HasPrefix(id, placeholderPrefix)
}
