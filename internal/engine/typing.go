package engine

import (
	"context"
	"sync"
	"time"

	"github.com/pigeon-im/pigeon/internal/transport"
	"go.uber.org/zap"
)

// typingNotifier debounces local keystrokes into typing start/stop signals.
// The first keystroke in a burst sends "typing"; after quiet with no further
// keystrokes, or when the user switches conversations, it sends "stopped".
type typingNotifier struct {
	transport transport.Transport
	quiet     time.Duration
	logger    *zap.Logger

	mu     sync.Mutex
	active string // conversation currently flagged as typing, "" if none
	timer  *time.Timer
}

func newTypingNotifier(t transport.Transport, quiet time.Duration, logger *zap.Logger) *typingNotifier {
	return &typingNotifier{transport: t, quiet: quiet, logger: logger}
}

func (n *typingNotifier) keystroke(ctx context.Context, conversationID string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.active != "" && n.active != conversationID {
		n.signal(ctx, n.active, false)
	}
	if n.active != conversationID {
		n.active = conversationID
		n.signal(ctx, conversationID, true)
	}
	if n.timer != nil {
		n.timer.Stop()
	}
	n.timer = time.AfterFunc(n.quiet, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if n.active != conversationID {
			return
		}
		n.active = ""
		n.signal(context.Background(), conversationID, false)
	})
}

// stop cancels any pending timer and clears an active typing flag.
func (n *typingNotifier) stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	if n.active != "" {
		n.signal(context.Background(), n.active, false)
		n.active = ""
	}
}

func (n *typingNotifier) signal(ctx context.Context, conversationID string, typing bool) {
	if err := n.transport.Typing(ctx, conversationID, typing); err != nil {
		n.logger.Debug("typing signal failed",
			zap.String("conversation_id", conversationID),
			zap.Bool("typing", typing),
			zap.Error(err))
	}
}
