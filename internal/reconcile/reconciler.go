// Package reconcile maps inbound transport events onto local message records.
// Events arrive out of order and duplicated; reconciliation is idempotent and
// never lets a logical send show up as two bubbles.
package reconcile

import (
	"github.com/pigeon-im/pigeon/internal/bus"
	"github.com/pigeon-im/pigeon/internal/cache"
	"github.com/pigeon-im/pigeon/internal/identity"
	"github.com/pigeon-im/pigeon/internal/model"
	"github.com/pigeon-im/pigeon/internal/status"
	"github.com/pigeon-im/pigeon/internal/transport"
	"go.uber.org/zap"
)

// Outcome reports what reconciling an event did.
type Outcome int

const (
	Ignored Outcome = iota
	Created
	Updated
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case Created:
		return "created"
	case Updated:
		return "updated"
	default:
		return "ignored"
	}
}

// Reconciler applies transport events to the conversation cache.
type Reconciler struct {
	cache    *cache.Cache
	resolver *identity.Resolver
	bus      *bus.Bus
	logger   *zap.Logger
}

// New creates a reconciler.
func New(c *cache.Cache, r *identity.Resolver, b *bus.Bus, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{cache: c, resolver: r, bus: b, logger: logger}
}

// Reconcile routes an inbound event. Unknown or unmatchable events are
// logged and dropped; nothing here escalates into a failure.
func (r *Reconciler) Reconcile(evt transport.Event) Outcome {
	switch evt.Type {
	case transport.EventMessage:
		return r.reconcileMessage(evt)
	case transport.EventReceipt:
		return r.reconcileReceipt(evt)
	case transport.EventPresence:
		return r.reconcilePresence(evt)
	case transport.EventMessageDeleted:
		return r.reconcileDeleted(evt)
	default:
		r.logger.Warn("unknown transport event dropped", zap.String("type", string(evt.Type)))
		return Ignored
	}
}

// match finds the local message an event refers to. Strategies in order,
// first hit wins: exact server id, correlation id against a temporary, then
// the temp-id fallback for transports that lose the correlation id.
func (r *Reconciler) match(evt transport.Event) *model.Message {
	if evt.MessageID != "" {
		if m := r.cache.Message(evt.MessageID); m != nil {
			return m
		}
	}
	if evt.ClientID != "" {
		if m := r.cache.MessageByCorrelation(evt.ClientID); m != nil && m.Temporary {
			return m
		}
		return nil
	}
	// Fallback: without a correlation id, claim the oldest matching temporary
	// in the conversation rather than leave an orphaned bubble. Only events
	// that can plausibly echo an own send qualify; a peer-authored message is
	// new inbound traffic, never a confirmation.
	if evt.Sender.ID != "" && evt.Sender.ID != r.cache.LocalUserID() {
		return nil
	}
	for _, m := range r.cache.TemporaryMessages(evt.ConversationID) {
		if !model.IsTempMessageID(m.ID) {
			continue
		}
		if evt.Body == "" || evt.Body == m.Body {
			return m
		}
	}
	return nil
}

func (r *Reconciler) reconcileMessage(evt transport.Event) Outcome {
	if m := r.match(evt); m != nil {
		return r.confirm(m, evt)
	}
	if evt.MessageID == "" {
		r.logger.Warn("message event without id dropped",
			zap.String("conversation_id", evt.ConversationID))
		return Ignored
	}
	return r.insertInbound(evt)
}

func (r *Reconciler) reconcileReceipt(evt transport.Event) Outcome {
	m := r.match(evt)
	if m == nil {
		r.logger.Warn("receipt for unknown message dropped",
			zap.String("message_id", evt.MessageID),
			zap.String("client_id", evt.ClientID))
		return Ignored
	}
	return r.confirm(m, evt)
}

// confirm applies a matched event: identity swap in place when the local
// record is temporary, then an upgrade-guarded status transition. Replaying
// the same event is a no-op.
func (r *Reconciler) confirm(m *model.Message, evt transport.Event) Outcome {
	replaced := false
	if m.Temporary && evt.MessageID != "" {
		if m.ConversationID != evt.ConversationID && evt.ConversationID != "" &&
			model.IsPlaceholderConversationID(m.ConversationID) {
			old := m.ConversationID
			if r.cache.ReplaceConversationID(old, evt.ConversationID) {
				r.bus.Emit(bus.KindConversationRemoved, old)
			}
			m.ConversationID = evt.ConversationID
		}
		if r.cache.ConfirmMessage(m.ID, evt.MessageID, evt.Timestamp) {
			replaced = true
			r.bus.Emit(bus.KindMessageReplaced, bus.MessageRef{
				ConversationID: m.ConversationID,
				MessageID:      evt.MessageID,
				Slot:           m.CorrelationID,
				ForActiveView:  m.ConversationID == r.cache.ActiveConversation(),
			})
		}
		m.ID = evt.MessageID
	}

	next := evt.Status
	if next == "" {
		next = status.Sent
	}
	upgraded := r.cache.UpgradeMessageStatus(m.ID, next)
	if upgraded {
		r.bus.Emit(bus.KindMessageUpserted, bus.MessageRef{
			ConversationID: m.ConversationID,
			MessageID:      m.ID,
			Slot:           m.CorrelationID,
			ForActiveView:  m.ConversationID == r.cache.ActiveConversation(),
			StatusOnly:     !replaced,
		})
		r.bus.Emit(bus.KindConversationUpdated, m.ConversationID)
	}
	if !replaced && !upgraded {
		return Ignored
	}
	return Updated
}

// insertInbound handles a brand-new message from a peer (or another device).
func (r *Reconciler) insertInbound(evt transport.Event) Outcome {
	sender := r.normalizeSender(evt)

	m := &model.Message{
		ID:             evt.MessageID,
		CorrelationID:  evt.ClientID,
		ConversationID: evt.ConversationID,
		Sender:         sender,
		Body:           evt.Body,
		Attachments:    evt.Attachments,
		ReplyToID:      evt.ReplyToID,
		Status:         evt.Status,
		CreatedAt:      evt.Timestamp,
	}
	if m.Status == "" || !status.Known(m.Status) {
		m.Status = status.Delivered
	}
	r.resolver.Resolve(m)

	r.ensureConversation(evt, sender)
	r.cache.UpsertMessage(m)
	r.cache.TouchLastMessage(m.ConversationID, m)

	active := r.forActiveView(evt)
	if active && !m.Own {
		// The thread is on screen; the message is read the moment it lands.
		r.cache.MarkRead(m.ConversationID)
	}

	r.bus.Emit(bus.KindMessageUpserted, bus.MessageRef{
		ConversationID: m.ConversationID,
		MessageID:      m.ID,
		Slot:           m.CorrelationID,
		ForActiveView:  active,
	})
	r.bus.Emit(bus.KindConversationUpdated, m.ConversationID)
	return Created
}

func (r *Reconciler) reconcilePresence(evt transport.Event) Outcome {
	if evt.UserID == "" {
		return Ignored
	}
	r.cache.SetPresence(evt.UserID, model.PresenceInfo{
		Status:   evt.PresenceStatus,
		LastSeen: evt.LastSeen,
	})
	return Updated
}

func (r *Reconciler) reconcileDeleted(evt transport.Event) Outcome {
	if !r.cache.MarkMessageDeleted(evt.MessageID) {
		r.logger.Warn("delete for unknown message dropped", zap.String("message_id", evt.MessageID))
		return Ignored
	}
	r.bus.Emit(bus.KindMessageDeleted, bus.MessageRef{
		ConversationID: evt.ConversationID,
		MessageID:      evt.MessageID,
	})
	r.bus.Emit(bus.KindConversationUpdated, evt.ConversationID)
	return Updated
}

// normalizeSender fills missing display info from the conversation's cached
// participant data when the event only carries an id.
func (r *Reconciler) normalizeSender(evt transport.Event) model.Sender {
	sender := evt.Sender
	if sender.Name != "" || sender.ID == "" {
		return sender
	}
	if conv := r.cache.Conversation(evt.ConversationID); conv != nil {
		if conv.Counterpart(r.cache.LocalUserID()) == sender.ID && conv.Name != "" {
			sender.Name = conv.Name
			sender.AvatarURL = conv.AvatarURL
		}
	}
	return sender
}

// ensureConversation creates the conversation when the event references one
// the cache has never seen.
func (r *Reconciler) ensureConversation(evt transport.Event, sender model.Sender) {
	if r.cache.Conversation(evt.ConversationID) != nil {
		return
	}
	participants := []string{}
	if sender.ID != "" {
		participants = append(participants, sender.ID)
	}
	recipient := evt.RecipientID
	if recipient == "" {
		recipient = r.cache.LocalUserID()
	}
	if recipient != "" && recipient != sender.ID {
		participants = append(participants, recipient)
	}
	r.cache.UpsertConversation(&model.Conversation{
		ID:           evt.ConversationID,
		Participants: participants,
		Name:         sender.Name,
		AvatarURL:    sender.AvatarURL,
	})
}

// forActiveView reports whether an inbound message belongs to the open
// conversation: the unordered pair {sender, recipient} must equal
// {local user, open counterpart}. Anything else goes to unread accounting
// instead of immediate rendering.
func (r *Reconciler) forActiveView(evt transport.Event) bool {
	activeID := r.cache.ActiveConversation()
	if activeID == "" {
		return false
	}
	active := r.cache.Conversation(activeID)
	if active == nil {
		return false
	}
	counterpart := active.Counterpart(r.cache.LocalUserID())
	if counterpart == "" {
		return false
	}
	local := r.cache.LocalUserID()
	recipient := evt.RecipientID
	if recipient == "" {
		recipient = local
	}
	a, b := evt.Sender.ID, recipient
	return (a == local && b == counterpart) || (a == counterpart && b == local)
}
