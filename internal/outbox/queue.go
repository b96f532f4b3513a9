// Package outbox holds sends created while the transport is down and replays
// them on reconnect, in original submission order.
package outbox

import (
	"context"
	"sync"

	"github.com/pigeon-im/pigeon/internal/bus"
	"github.com/pigeon-im/pigeon/internal/cache"
	"github.com/pigeon-im/pigeon/internal/status"
	"github.com/pigeon-im/pigeon/internal/store"
	"github.com/pigeon-im/pigeon/internal/transport"
	"go.uber.org/zap"
)

// Queue is the persistent offline send queue.
type Queue struct {
	db        *store.DB
	transport transport.Transport
	cache     *cache.Cache
	bus       *bus.Bus
	logger    *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewQueue creates an offline queue. Entries stuck in 'sending' from a
// previous crash are requeued so no user-authored message is lost.
func NewQueue(db *store.DB, t transport.Transport, c *cache.Cache, b *bus.Bus, logger *zap.Logger) (*Queue, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.RequeueStuckSends(); err != nil {
		return nil, err
	}
	return &Queue{db: db, transport: t, cache: c, bus: b, logger: logger}, nil
}

// Enqueue persists a send for later replay.
func (q *Queue) Enqueue(e *store.OutboxEntry) error {
	if err := q.db.QueueOutbox(e); err != nil {
		return err
	}
	q.logger.Info("send queued offline",
		zap.String("client_msg_id", e.ClientMsgID),
		zap.String("conversation_id", e.ConversationID))
	return nil
}

// Pending returns the queued entries in submission order.
func (q *Queue) Pending() ([]*store.OutboxEntry, error) {
	return q.db.PendingOutbox()
}

// Start subscribes to connectivity events and replays the queue whenever the
// transport comes back.
func (q *Queue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)
	ch, unsub := q.bus.Subscribe(bus.KindTransportConnected, 16)

	go func() {
		defer unsub()
		for {
			select {
			case <-ch:
				q.Replay(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the replay loop.
func (q *Queue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
}

// Replay drains the queue in original submission order. Each entry gets one
// dispatch attempt; a failure marks the message error and moves on, the next
// reconnect does not retry it.
func (q *Queue) Replay(ctx context.Context) {
	pending, err := q.db.PendingOutbox()
	if err != nil {
		q.logger.Error("failed to read outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		if ctx.Err() != nil {
			return
		}
		if !q.transport.IsConnected() {
			return
		}
		if err := q.db.MarkOutboxSending(entry.ClientMsgID); err != nil {
			q.logger.Error("failed to mark sending", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
			continue
		}

		err := q.transport.Send(ctx, transport.SendRequest{
			ConversationID: entry.ConversationID,
			Body:           entry.Body,
			Kind:           entry.Kind,
			ReplyToID:      entry.ReplyToID,
			Attachments:    entry.Attachments,
			ClientID:       entry.ClientMsgID,
		})
		if err != nil {
			q.logger.Error("replay dispatch failed", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
			_ = q.db.MarkOutboxFailed(entry.ClientMsgID, err.Error())
			q.failMessage(entry)
			continue
		}

		// Dispatched. The delivery confirmation arrives through the
		// reconciler; the outbox's own bookkeeping ends here.
		if err := q.db.MarkOutboxSent(entry.ClientMsgID, ""); err != nil {
			q.logger.Error("failed to mark sent", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
		}
		q.logger.Info("queued send replayed", zap.String("client_msg_id", entry.ClientMsgID))
	}
}

func (q *Queue) failMessage(entry *store.OutboxEntry) {
	if m := q.cache.MessageByCorrelation(entry.ClientMsgID); m != nil {
		q.cache.UpgradeMessageStatus(m.ID, status.Error)
		q.bus.Emit(bus.KindMessageSendFailed, bus.MessageRef{
			ConversationID: m.ConversationID,
			MessageID:      m.ID,
			Slot:           m.CorrelationID,
		})
	}
}
