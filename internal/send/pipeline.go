// Package send implements the optimistic send pipeline: a temporary message
// shows up immediately, uploads and dispatch happen asynchronously, and every
// failure path ends in a visible terminal state. A user-authored message is
// never silently dropped.
package send

import (
	"context"
	"time"

	"github.com/pigeon-im/pigeon/internal/bus"
	"github.com/pigeon-im/pigeon/internal/cache"
	"github.com/pigeon-im/pigeon/internal/identity"
	"github.com/pigeon-im/pigeon/internal/model"
	"github.com/pigeon-im/pigeon/internal/outbox"
	"github.com/pigeon-im/pigeon/internal/status"
	"github.com/pigeon-im/pigeon/internal/store"
	"github.com/pigeon-im/pigeon/internal/transport"
	"github.com/pigeon-im/pigeon/internal/uploader"
	"go.uber.org/zap"
)

// Pipeline drives outgoing messages from user action to dispatch. After a
// successful dispatch its job ends: the reconciler is the single writer of
// status from the confirmation event on.
type Pipeline struct {
	cache     *cache.Cache
	resolver  *identity.Resolver
	transport transport.Transport
	uploader  uploader.Uploader
	queue     *outbox.Queue
	bus       *bus.Bus
	logger    *zap.Logger
}

// NewPipeline creates a send pipeline.
func NewPipeline(c *cache.Cache, r *identity.Resolver, t transport.Transport, u uploader.Uploader, q *outbox.Queue, b *bus.Bus, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{cache: c, resolver: r, transport: t, uploader: u, queue: q, bus: b, logger: logger}
}

// Send builds and dispatches a message. Returns the temporary message id
// synchronously; upload and dispatch complete asynchronously. An empty send
// or a missing conversation is a no-op, not an error.
func (p *Pipeline) Send(ctx context.Context, conversationID, text string, files []uploader.File) string {
	return p.send(ctx, conversationID, text, nil, files)
}

// send is the shared entry for fresh sends and resends. Resends pass the
// previous attempt's already-uploaded attachments so they ride along on the
// new temporary message from the start.
func (p *Pipeline) send(ctx context.Context, conversationID, text string, attachments []model.Attachment, files []uploader.File) string {
	if conversationID == "" || (text == "" && len(attachments) == 0 && len(files) == 0) {
		return ""
	}
	if p.cache.Conversation(conversationID) == nil {
		p.logger.Warn("send for unknown conversation ignored", zap.String("conversation_id", conversationID))
		return ""
	}

	m := &model.Message{
		ID:             model.NewTempMessageID(),
		CorrelationID:  model.NewCorrelationID(),
		ConversationID: conversationID,
		Sender:         model.Sender{ID: p.cache.LocalUserID()},
		Body:           text,
		Attachments:    attachments,
		Status:         status.Sending,
		CreatedAt:      time.Now().UnixMilli(),
		Temporary:      true,
	}
	p.resolver.Resolve(m)

	p.cache.UpsertMessage(m)
	p.cache.TouchLastMessage(conversationID, m)
	p.announce(m, bus.KindMessageUpserted)
	p.bus.Emit(bus.KindConversationUpdated, conversationID)

	go p.complete(ctx, m, files)
	return m.ID
}

// complete runs the asynchronous half: uploads, then dispatch or queue.
func (p *Pipeline) complete(ctx context.Context, m *model.Message, files []uploader.File) {
	uploaded, err := p.uploadAll(ctx, files)
	if err != nil {
		p.logger.Error("attachment upload failed", zap.Error(err), zap.String("message_id", m.ID))
		p.fail(m)
		return
	}
	if len(uploaded) > 0 {
		m.Attachments = append(m.Attachments, uploaded...)
		p.cache.UpsertMessage(m)
	}

	req := transport.SendRequest{
		ConversationID: m.ConversationID,
		Body:           m.Body,
		Kind:           messageKind(m),
		ReplyToID:      m.ReplyToID,
		Attachments:    m.Attachments,
		ClientID:       m.CorrelationID,
	}

	if !p.transport.IsConnected() {
		if err := p.queue.Enqueue(&store.OutboxEntry{
			ClientMsgID:    m.CorrelationID,
			ConversationID: m.ConversationID,
			Body:           m.Body,
			Kind:           req.Kind,
			ReplyToID:      m.ReplyToID,
			Attachments:    m.Attachments,
		}); err != nil {
			p.logger.Error("failed to queue offline send", zap.Error(err), zap.String("message_id", m.ID))
			p.fail(m)
			return
		}
		p.cache.MarkMessageQueued(m.ID)
		m.Status = status.Queued
		p.announce(m, bus.KindMessageUpserted)
		return
	}

	if err := p.transport.Send(ctx, req); err != nil {
		p.logger.Error("dispatch failed", zap.Error(err), zap.String("message_id", m.ID))
		p.fail(m)
		return
	}
	// Dispatched. Status stays sending until the confirmation event lands in
	// the reconciler.
}

// Resend clears an error state by creating a fresh send from the failed
// message's content. The failed record is removed; the new temporary message
// takes its place.
func (p *Pipeline) Resend(ctx context.Context, messageID string) string {
	m := p.cache.Message(messageID)
	if m == nil || m.Status != status.Error {
		return ""
	}
	p.cache.RemoveMessage(messageID)
	p.bus.Emit(bus.KindMessageDeleted, bus.MessageRef{
		ConversationID: m.ConversationID,
		MessageID:      messageID,
		Slot:           m.CorrelationID,
	})
	// Attachments already uploaded before the failure are reused as-is; only
	// the dispatch is retried.
	return p.send(ctx, m.ConversationID, m.Body, m.Attachments, nil)
}

// StartChat returns the conversation for the given contact, synthesizing a
// placeholder one when no conversation exists yet. The placeholder id is
// swapped for the authoritative id by the reconciler once the first message
// is confirmed.
func (p *Pipeline) StartChat(contactID, contactName string) string {
	local := p.cache.LocalUserID()
	if conv := p.cache.FindConversationForParticipants(local, contactID); conv != nil {
		return conv.ID
	}
	conv := &model.Conversation{
		ID:           model.NewPlaceholderConversationID(),
		Participants: []string{local, contactID},
		Name:         contactName,
	}
	p.cache.UpsertConversation(conv)
	p.bus.Emit(bus.KindConversationUpdated, conv.ID)
	return conv.ID
}

func (p *Pipeline) uploadAll(ctx context.Context, files []uploader.File) ([]model.Attachment, error) {
	var out []model.Attachment
	for _, f := range files {
		desc, err := p.uploader.Upload(ctx, f)
		if err != nil {
			return nil, err
		}
		out = append(out, model.Attachment{
			URL:       desc.URL,
			Filename:  desc.Filename,
			Size:      desc.Size,
			Kind:      f.Kind,
			Thumbnail: desc.Thumbnail,
		})
	}
	return out, nil
}

// fail moves the message into the terminal error state. The bubble stays
// visible with a retry affordance.
func (p *Pipeline) fail(m *model.Message) {
	p.cache.UpgradeMessageStatus(m.ID, status.Error)
	m.Status = status.Error
	p.announce(m, bus.KindMessageSendFailed)
}

func (p *Pipeline) announce(m *model.Message, kind string) {
	p.bus.Emit(kind, bus.MessageRef{
		ConversationID: m.ConversationID,
		MessageID:      m.ID,
		Slot:           m.CorrelationID,
		ForActiveView:  m.ConversationID == p.cache.ActiveConversation(),
	})
}

func messageKind(m *model.Message) string {
	if len(m.Attachments) > 0 {
		return m.Attachments[0].Kind
	}
	return "text"
}
