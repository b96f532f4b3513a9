// Package unread derives per-conversation and global unread counts from the
// cache and keeps the badge and conversation list repaints flicker-free:
// recomputation is idempotent and a structurally identical list is never
// repainted.
package unread

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pigeon-im/pigeon/internal/bus"
	"github.com/pigeon-im/pigeon/internal/cache"
	"github.com/pigeon-im/pigeon/internal/render"
	"github.com/pigeon-im/pigeon/internal/transport"
	"go.uber.org/zap"
)

// DefaultNotifyRetries bounds the mark-as-read notification attempts after
// the first failure. Exhausting them abandons the notification; the local
// read state is sticky either way.
const DefaultNotifyRetries = 4

// Aggregator owns unread accounting and the conversation-list projection.
type Aggregator struct {
	cache     *cache.Cache
	transport transport.Transport
	renderer  render.Renderer
	bus       *bus.Bus
	logger    *zap.Logger

	mu            sync.Mutex
	lastSignature string
	lastTotal     int
	cancel        context.CancelFunc

	notifyRetries uint64
	newBackOff    func() backoff.BackOff
}

// NewAggregator creates an aggregator painting through r.
func NewAggregator(c *cache.Cache, t transport.Transport, r render.Renderer, b *bus.Bus, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if r == nil {
		r = render.Discard{}
	}
	return &Aggregator{
		cache:         c,
		transport:     t,
		renderer:      r,
		bus:           b,
		logger:        logger,
		lastTotal:     -1,
		notifyRetries: DefaultNotifyRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			return b
		},
	}
}

// SetNotifyRetries overrides the mark-as-read retry cap. Values below one
// keep the default.
func (a *Aggregator) SetNotifyRetries(n int) {
	if n > 0 {
		a.notifyRetries = uint64(n)
	}
}

// Start subscribes to every mutation that can change an unread count and
// recomputes after each. Redundant recomputation is absorbed by the
// signature check.
func (a *Aggregator) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	msgCh, unsubMsg := a.bus.Subscribe("message.", 256)
	convCh, unsubConv := a.bus.Subscribe("conversation.", 256)

	go func() {
		defer unsubMsg()
		defer unsubConv()
		for {
			select {
			case <-msgCh:
				a.Recompute()
			case <-convCh:
				a.Recompute()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the subscription loop.
func (a *Aggregator) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
}

// Recompute derives the global total from the cache and repaints the badge
// and conversation list when, and only when, something structural changed.
// Idempotent: calling it twice with no intervening mutation is a no-op.
func (a *Aggregator) Recompute() int {
	snapshot := a.cache.Snapshot()
	sort.Slice(snapshot, func(i, j int) bool {
		if snapshot[i].LastActivity != snapshot[j].LastActivity {
			return snapshot[i].LastActivity > snapshot[j].LastActivity
		}
		return snapshot[i].ID < snapshot[j].ID
	})

	total := 0
	items := make([]render.ConversationItem, 0, len(snapshot))
	var sig strings.Builder
	for _, conv := range snapshot {
		total += conv.UnreadCount
		items = append(items, cache.ConversationItem(conv, a.cache.LocalUserID()))
		fmt.Fprintf(&sig, "%s|%d|%d|%s;", conv.ID, conv.UnreadCount, conv.LastActivity, conv.LastMessage.Preview)
	}
	signature := sig.String()

	a.mu.Lock()
	changedList := signature != a.lastSignature
	changedTotal := total != a.lastTotal
	a.lastSignature = signature
	a.lastTotal = total
	a.mu.Unlock()

	if changedList {
		a.renderer.ConversationList(items)
	}
	if changedTotal {
		a.renderer.Badge(total)
		a.bus.Emit(bus.KindUnreadChanged, total)
	}
	return total
}

// MarkRead zeroes a conversation's unread count locally and optimistically,
// then notifies the authoritative side in the background. Notification
// failures retry with bounded backoff and are then abandoned without ever
// reverting the local state.
func (a *Aggregator) MarkRead(ctx context.Context, conversationID string) {
	cleared, ok := a.cache.MarkRead(conversationID)
	if !ok {
		a.logger.Warn("mark-read for unknown conversation ignored",
			zap.String("conversation_id", conversationID))
		return
	}
	a.Recompute()
	if cleared == 0 {
		// Nothing was unread; skip the network round trip.
		return
	}
	// Announce the zeroed count so the persistence loop stores it; a restart
	// must not resurrect badges the user already cleared.
	a.bus.Emit(bus.KindConversationUpdated, conversationID)

	go a.notifyRead(ctx, conversationID)
}

func (a *Aggregator) notifyRead(ctx context.Context, conversationID string) {
	policy := backoff.WithContext(backoff.WithMaxRetries(a.newBackOff(), a.notifyRetries), ctx)
	err := backoff.Retry(func() error {
		return a.transport.MarkRead(ctx, conversationID)
	}, policy)
	if err != nil {
		// Local read state stays sticky; the periodic authoritative
		// reconciliation will converge eventually.
		a.logger.Warn("mark-read notification abandoned",
			zap.Error(err),
			zap.String("conversation_id", conversationID))
	}
}
