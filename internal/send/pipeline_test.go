package send

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
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

type stubUploader struct {
	err error
}

func (s *stubUploader) Upload(_ context.Context, f uploader.File) (uploader.Descriptor, error) {
	if s.err != nil {
		return uploader.Descriptor{}, s.err
	}
	return uploader.Descriptor{URL: "https://cdn.test/" + f.Name, Filename: f.Name, Size: int64(len(f.Data))}, nil
}

type fixture struct {
	pipeline  *Pipeline
	cache     *cache.Cache
	transport *transport.Loopback
	uploader  *stubUploader
	queue     *outbox.Queue
	bus       *bus.Bus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	b := bus.New()
	c := cache.New("u1")
	c.UpsertConversation(&model.Conversation{ID: "conv-1", Participants: []string{"u1", "u2"}})
	lb := transport.NewLoopback(b)
	up := &stubUploader{}
	q, err := outbox.NewQueue(db, lb, c, b, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	resolver := identity.NewResolver("u1", zap.NewNop())
	p := NewPipeline(c, resolver, lb, up, q, b, zap.NewNop())
	return &fixture{pipeline: p, cache: c, transport: lb, uploader: up, queue: q, bus: b}
}

func waitStatus(t *testing.T, c *cache.Cache, id string, want status.Status) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m := c.Message(id); m != nil && m.Status == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	m := c.Message(id)
	t.Fatalf("message %s never reached %s, last = %+v", id, want, m)
}

func TestSendOptimisticInsert(t *testing.T) {
	f := newFixture(t)
	_ = f.transport.Connect(context.Background())

	id := f.pipeline.Send(context.Background(), "conv-1", "hello", nil)
	if id == "" {
		t.Fatal("Send returned empty id")
	}

	m := f.cache.Message(id)
	if m == nil {
		t.Fatal("message not in cache immediately after Send")
	}
	if m.Status != status.Sending || !m.Temporary || !m.Own {
		t.Errorf("message = %+v, want temporary own sending", m)
	}
	if !model.IsTempMessageID(m.ID) {
		t.Errorf("id = %q, want temp prefix", m.ID)
	}
	conv := f.cache.Conversation("conv-1")
	if conv.LastMessage.Preview != "hello" {
		t.Errorf("list preview = %q, want %q", conv.LastMessage.Preview, "hello")
	}
	if conv.UnreadCount != 0 {
		t.Errorf("own send bumped unread to %d", conv.UnreadCount)
	}
}

func TestSendDispatchesWithCorrelationID(t *testing.T) {
	f := newFixture(t)
	_ = f.transport.Connect(context.Background())

	id := f.pipeline.Send(context.Background(), "conv-1", "hello", nil)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(f.transport.Sends()) == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	sends := f.transport.Sends()
	if len(sends) != 1 {
		t.Fatalf("got %d dispatches, want 1", len(sends))
	}
	if sends[0].ClientID != f.cache.Message(id).CorrelationID {
		t.Errorf("dispatch client id = %q, want message correlation id", sends[0].ClientID)
	}
}

func TestSendEmptyNoop(t *testing.T) {
	f := newFixture(t)
	if id := f.pipeline.Send(context.Background(), "conv-1", "", nil); id != "" {
		t.Errorf("empty send returned %q, want no-op", id)
	}
	if id := f.pipeline.Send(context.Background(), "", "hi", nil); id != "" {
		t.Errorf("send without conversation returned %q, want no-op", id)
	}
	if id := f.pipeline.Send(context.Background(), "conv-unknown", "hi", nil); id != "" {
		t.Errorf("send to unknown conversation returned %q, want no-op", id)
	}
}

func TestSendOfflineQueues(t *testing.T) {
	f := newFixture(t)

	id := f.pipeline.Send(context.Background(), "conv-1", "later", nil)
	waitStatus(t, f.cache, id, status.Queued)

	pending, err := f.queue.Pending()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("got %d pending, want 1", len(pending))
	}
	if pending[0].Body != "later" || pending[0].ClientMsgID != f.cache.Message(id).CorrelationID {
		t.Errorf("pending entry = %+v", pending[0])
	}
}

func TestSendUploadFailureIsTerminal(t *testing.T) {
	f := newFixture(t)
	_ = f.transport.Connect(context.Background())
	f.uploader.err = errors.New("storage rejected")

	failCh, unsub := f.bus.Subscribe(bus.KindMessageSendFailed, 4)
	defer unsub()

	id := f.pipeline.Send(context.Background(), "conv-1", "with file", []uploader.File{{Name: "a.png", Kind: "image", Data: []byte("x")}})
	waitStatus(t, f.cache, id, status.Error)

	select {
	case evt := <-failCh:
		if evt.Payload.(bus.MessageRef).MessageID != id {
			t.Errorf("failed ref = %+v", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Error("message.send_failed never emitted")
	}
	if got := len(f.transport.Sends()); got != 0 {
		t.Errorf("dispatched %d sends after upload failure, want 0", got)
	}
}

func TestResendOnlyFromError(t *testing.T) {
	f := newFixture(t)
	_ = f.transport.Connect(context.Background())

	id := f.pipeline.Send(context.Background(), "conv-1", "fine", nil)
	if got := f.pipeline.Resend(context.Background(), id); got != "" {
		t.Errorf("Resend of non-failed message returned %q, want no-op", got)
	}
}

func TestResendCreatesFreshAttempt(t *testing.T) {
	f := newFixture(t)
	f.uploader.err = errors.New("storage rejected")
	_ = f.transport.Connect(context.Background())

	id := f.pipeline.Send(context.Background(), "conv-1", "retry me", []uploader.File{{Name: "a.png", Kind: "image", Data: []byte("x")}})
	waitStatus(t, f.cache, id, status.Error)

	f.uploader.err = nil
	fresh := f.pipeline.Resend(context.Background(), id)
	if fresh == "" || fresh == id {
		t.Fatalf("Resend returned %q, want a fresh id", fresh)
	}
	if f.cache.Message(id) != nil {
		t.Error("failed message still in cache after resend")
	}
	m := f.cache.Message(fresh)
	if m == nil || m.Body != "retry me" {
		t.Fatalf("fresh message = %+v", m)
	}
}

func TestResendKeepsUploadedAttachments(t *testing.T) {
	f := newFixture(t)
	_ = f.transport.Connect(context.Background())
	f.transport.FailSends(errors.New("gateway 502"))

	id := f.pipeline.Send(context.Background(), "conv-1", "look", []uploader.File{{Name: "cat.png", Kind: "image", Data: []byte("x")}})
	waitStatus(t, f.cache, id, status.Error)
	failed := f.cache.Message(id)
	if len(failed.Attachments) != 1 {
		t.Fatalf("failed message carries %d attachments, want 1", len(failed.Attachments))
	}

	f.transport.FailSends(nil)
	fresh := f.pipeline.Resend(context.Background(), id)
	if fresh == "" {
		t.Fatal("Resend returned no id")
	}
	m := f.cache.Message(fresh)
	if len(m.Attachments) != 1 || m.Attachments[0].Kind != "image" {
		t.Fatalf("fresh message attachments = %+v, want the uploaded image", m.Attachments)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(f.transport.Sends()) == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	sends := f.transport.Sends()
	if len(sends) == 0 {
		t.Fatal("resend never dispatched")
	}
	req := sends[len(sends)-1]
	if len(req.Attachments) != 1 {
		t.Fatalf("dispatched with %d attachments, want 1", len(req.Attachments))
	}
	if req.Kind != "image" {
		t.Errorf("dispatched kind = %q, want %q", req.Kind, "image")
	}
}

func TestStartChatReusesExistingPair(t *testing.T) {
	f := newFixture(t)

	id := f.pipeline.StartChat("u2", "Bea")
	if id != "conv-1" {
		t.Errorf("StartChat(u2) = %q, want existing conv-1", id)
	}
}

func TestStartChatSynthesizesPlaceholder(t *testing.T) {
	f := newFixture(t)

	id := f.pipeline.StartChat("u9", "Nia")
	if !model.IsPlaceholderConversationID(id) {
		t.Fatalf("StartChat(u9) = %q, want placeholder id", id)
	}
	conv := f.cache.Conversation(id)
	if conv == nil || !conv.HasParticipants("u1", "u9") {
		t.Errorf("placeholder conversation = %+v", conv)
	}
	// Second call returns the same placeholder instead of stacking new ones.
	if again := f.pipeline.StartChat("u9", "Nia"); again != id {
		t.Errorf("second StartChat = %q, want %q", again, id)
	}
}
