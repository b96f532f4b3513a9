// Package identity decides, once per message, whether the local user authored
// it. The decision is cached on the message and never recomputed: authorship
// must not flicker between sent and received styling.
package identity

import (
	"github.com/pigeon-im/pigeon/internal/model"
	"github.com/pigeon-im/pigeon/internal/status"
	"go.uber.org/zap"
)

// Resolver determines message ownership against a fixed local user id.
type Resolver struct {
	localUserID string
	logger      *zap.Logger
}

// NewResolver creates a resolver for the given local user.
func NewResolver(localUserID string, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{localUserID: localUserID, logger: logger}
}

// Resolve returns whether the message is the local user's own and stamps the
// decision on the record. A prior decision wins unconditionally; a later
// mismatch is logged, never corrected.
func (r *Resolver) Resolve(m *model.Message) bool {
	if m.OwnershipDetermined {
		if fresh := r.compute(m); fresh != m.Own {
			r.logger.Warn("ownership mismatch ignored, original decision is authoritative",
				zap.String("message_id", m.ID),
				zap.Bool("cached", m.Own),
				zap.Bool("recomputed", fresh))
		}
		return m.Own
	}

	m.Own = r.compute(m)
	m.OwnershipDetermined = true
	m.OwnerUserID = r.localUserID
	return m.Own
}

// compute applies the resolution order without touching the cached decision.
func (r *Resolver) compute(m *model.Message) bool {
	// A message still in its optimistic window is always our own, regardless
	// of what the sender field says: the server has not echoed the real
	// sender yet.
	if m.Status == status.Sending || m.Status == status.Queued || model.IsTempMessageID(m.ID) {
		return true
	}
	// No extractable sender id fails closed to "not own".
	if m.Sender.ID == "" {
		r.logger.Warn("message without sender id, treating as not own",
			zap.String("message_id", m.ID))
		return false
	}
	return m.Sender.ID == r.localUserID
}
