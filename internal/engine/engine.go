// Package engine runs the session event loop: it feeds transport events
// through the reconciler, mirrors cache mutations into the durable store,
// forwards projections to the renderer, and keeps the session connected.
package engine

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pigeon-im/pigeon/internal/bus"
	"github.com/pigeon-im/pigeon/internal/cache"
	"github.com/pigeon-im/pigeon/internal/model"
	"github.com/pigeon-im/pigeon/internal/reconcile"
	"github.com/pigeon-im/pigeon/internal/render"
	"github.com/pigeon-im/pigeon/internal/status"
	"github.com/pigeon-im/pigeon/internal/store"
	"github.com/pigeon-im/pigeon/internal/transport"
	"github.com/pigeon-im/pigeon/internal/unread"
	"go.uber.org/zap"
)

// Options configures engine timers.
type Options struct {
	// PollInterval is the cadence of authoritative drift reconciliation.
	// Zero disables the poll.
	PollInterval time.Duration
	// TypingQuiet is the silence after which a typing-stop is sent.
	TypingQuiet time.Duration
}

// Engine owns the event loop. All cache mutation funnels through a single
// consumer goroutine, so events race only on ordering, never on data.
type Engine struct {
	cache      *cache.Cache
	reconciler *reconcile.Reconciler
	aggregator *unread.Aggregator
	db         *store.DB
	transport  transport.Transport
	source     transport.Source
	machine    *status.SessionMachine
	renderer   render.Renderer
	bus        *bus.Bus
	logger     *zap.Logger
	opts       Options

	typing *typingNotifier
	cancel context.CancelFunc
}

// New creates the engine. renderer may be nil when no UI is attached.
func New(c *cache.Cache, r *reconcile.Reconciler, a *unread.Aggregator, db *store.DB, t transport.Transport, src transport.Source, m *status.SessionMachine, rd render.Renderer, b *bus.Bus, logger *zap.Logger, opts Options) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rd == nil {
		rd = render.Discard{}
	}
	if opts.TypingQuiet <= 0 {
		opts.TypingQuiet = 3 * time.Second
	}
	e := &Engine{
		cache:      c,
		reconciler: r,
		aggregator: a,
		db:         db,
		transport:  t,
		source:     src,
		machine:    m,
		renderer:   rd,
		bus:        b,
		logger:     logger,
		opts:       opts,
	}
	e.typing = newTypingNotifier(t, opts.TypingQuiet, logger)
	return e
}

// Start loads the cache from the store, begins the event loops, and connects.
func (e *Engine) Start(ctx context.Context) error {
	ctx, e.cancel = context.WithCancel(ctx)

	if err := e.loadFromStore(); err != nil {
		return err
	}
	e.aggregator.Recompute()

	// Subscribe before connecting so the connected event cannot be dropped.
	transportCh, unsubTransport := e.bus.Subscribe("transport.", 512)
	msgCh, unsubMsg := e.bus.Subscribe("message.", 512)
	convCh, unsubConv := e.bus.Subscribe("conversation.", 512)
	dropCh, unsubDrop := e.bus.Subscribe(bus.KindTransportDisconnected, 16)

	go e.reconcileLoop(ctx, transportCh, unsubTransport)
	go e.persistLoop(ctx, msgCh, convCh, unsubMsg, unsubConv)
	go e.connectivityLoop(ctx, dropCh, unsubDrop)
	if e.opts.PollInterval > 0 {
		go e.pollLoop(ctx)
	}

	_ = e.machine.Transition(status.Connecting)
	go func() {
		if err := e.transport.Connect(ctx); err != nil {
			e.logger.Error("initial connect failed", zap.Error(err))
			_ = e.machine.Transition(status.Offline)
		}
	}()
	return nil
}

// Stop terminates the loops and disconnects.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.typing.stop()
	e.transport.Disconnect()
}

// OpenConversation marks a conversation as the active view, paints its
// thread, and clears its unread count.
func (e *Engine) OpenConversation(ctx context.Context, conversationID string) {
	if e.cache.Conversation(conversationID) == nil {
		e.logger.Warn("open for unknown conversation ignored", zap.String("conversation_id", conversationID))
		return
	}
	e.cache.SetActiveConversation(conversationID)
	for _, m := range e.cache.Messages(conversationID) {
		e.renderer.Message(cache.MessageItem(m))
	}
	e.aggregator.MarkRead(ctx, conversationID)
}

// CloseConversation clears the active view. In-flight sends for the closed
// conversation still complete; their results apply when it is reopened.
func (e *Engine) CloseConversation() {
	e.cache.SetActiveConversation("")
}

// UserTyping forwards a local keystroke to the debounced typing notifier.
func (e *Engine) UserTyping(ctx context.Context, conversationID string) {
	e.typing.keystroke(ctx, conversationID)
}

// reconcileLoop is the single consumer of inbound transport events.
func (e *Engine) reconcileLoop(ctx context.Context, ch <-chan bus.Event, unsub func()) {
	defer unsub()
	for {
		select {
		case evt := <-ch:
			switch evt.Kind {
			case bus.KindTransportConnected:
				e.onConnected(ctx)
			case bus.KindTransportDisconnected:
				e.onDisconnected()
			default:
				tev, ok := evt.Payload.(transport.Event)
				if !ok {
					continue
				}
				outcome := e.reconciler.Reconcile(tev)
				e.logger.Debug("event reconciled",
					zap.String("type", string(tev.Type)),
					zap.String("outcome", outcome.String()))
			}
		case <-ctx.Done():
			return
		}
	}
}

// persistLoop mirrors cache mutations into sqlite and forwards message
// projections to the renderer.
func (e *Engine) persistLoop(ctx context.Context, msgCh, convCh <-chan bus.Event, unsubMsg, unsubConv func()) {
	defer unsubMsg()
	defer unsubConv()

	for {
		select {
		case evt := <-msgCh:
			ref, ok := evt.Payload.(bus.MessageRef)
			if !ok {
				continue
			}
			e.handleMessageEvent(evt.Kind, ref)
		case evt := <-convCh:
			id, ok := evt.Payload.(string)
			if !ok {
				continue
			}
			if evt.Kind == bus.KindConversationRemoved {
				if err := e.db.DeleteConversation(id); err != nil {
					e.logger.Error("failed to delete conversation", zap.Error(err), zap.String("conversation_id", id))
				}
				continue
			}
			if conv := e.cache.Conversation(id); conv != nil {
				if err := e.db.UpsertConversation(conv); err != nil {
					e.logger.Error("failed to persist conversation", zap.Error(err), zap.String("conversation_id", id))
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) handleMessageEvent(kind string, ref bus.MessageRef) {
	m := e.cache.Message(ref.MessageID)

	switch kind {
	case bus.KindMessageReplaced:
		if err := e.db.DeleteSupersededTemp(ref.Slot, ref.MessageID); err != nil {
			e.logger.Error("failed to prune temp row", zap.Error(err), zap.String("slot", ref.Slot))
		}
	case bus.KindMessageDeleted:
		if m == nil {
			if err := e.db.DeleteMessage(ref.MessageID); err != nil {
				e.logger.Error("failed to delete message", zap.Error(err), zap.String("message_id", ref.MessageID))
			}
			return
		}
	}

	if m == nil {
		return
	}
	if err := e.db.UpsertMessage(m); err != nil {
		e.logger.Error("failed to persist message", zap.Error(err), zap.String("message_id", m.ID))
	}

	if !ref.ForActiveView {
		return
	}
	if ref.StatusOnly {
		e.renderer.MessageStatus(m.ConversationID, m.ID, m.Status)
		return
	}
	e.renderer.Message(cache.MessageItem(m))
}

// connectivityLoop reconnects with exponential backoff whenever the
// transport drops.
func (e *Engine) connectivityLoop(ctx context.Context, ch <-chan bus.Event, unsub func()) {
	defer unsub()
	for {
		select {
		case <-ch:
			e.reconnect(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) reconnect(ctx context.Context) {
	policy := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	err := backoff.Retry(func() error {
		if e.transport.IsConnected() {
			return nil
		}
		return e.transport.Connect(ctx)
	}, policy)
	if err != nil {
		e.logger.Error("reconnect abandoned", zap.Error(err))
		_ = e.machine.Transition(status.Offline)
	}
}

func (e *Engine) onConnected(ctx context.Context) {
	cur := e.machine.Current()
	if cur == status.Reconnecting {
		_ = e.machine.Transition(status.Connecting)
	}
	_ = e.machine.Transition(status.Syncing)
	e.syncFromSource(ctx)
	_ = e.machine.Transition(status.Ready)
	e.logger.Info("session ready")
}

func (e *Engine) onDisconnected() {
	e.logger.Warn("transport disconnected")
	_ = e.machine.Transition(status.Reconnecting)
}

// pollLoop periodically reconciles drift against the authoritative listing.
func (e *Engine) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if e.transport.IsConnected() {
				e.syncFromSource(ctx)
			}
		case <-ctx.Done():
			return
		}
	}
}

// syncFromSource applies the authoritative bulk listing: participants, names,
// last message, and the server's unread counts, except for the open
// conversation whose optimistic zero is sticky.
func (e *Engine) syncFromSource(ctx context.Context) {
	if e.source == nil {
		return
	}
	remote, err := e.source.ListConversations(ctx)
	if err != nil {
		e.logger.Warn("authoritative listing failed", zap.Error(err))
		return
	}
	active := e.cache.ActiveConversation()
	for _, rc := range remote {
		conv := &model.Conversation{
			ID:           rc.ID,
			Participants: rc.Participants,
			Name:         rc.Name,
			AvatarURL:    rc.AvatarURL,
			LastMessage:  rc.LastMessage,
			LastActivity: rc.LastMessage.Timestamp,
		}
		e.cache.UpsertConversation(conv)
		if rc.ID != active {
			e.cache.SetUnreadCount(rc.ID, rc.UnreadCount)
		}
		e.bus.Emit(bus.KindConversationUpdated, rc.ID)
	}
	e.aggregator.Recompute()
}

func (e *Engine) loadFromStore() error {
	convs, err := e.db.ListConversations()
	if err != nil {
		return err
	}
	for _, conv := range convs {
		e.cache.UpsertConversation(conv)
		e.cache.SetUnreadCount(conv.ID, conv.UnreadCount)
		msgs, err := e.db.ListMessages(conv.ID, 0)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			e.cache.UpsertMessage(m)
		}
	}
	e.logger.Info("cache restored from store", zap.Int("conversations", len(convs)))
	return nil
}
