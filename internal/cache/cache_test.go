package cache

import (
	"testing"

	"github.com/pigeon-im/pigeon/internal/model"
	"github.com/pigeon-im/pigeon/internal/status"
)

func conv(id string, participants ...string) *model.Conversation {
	return &model.Conversation{ID: id, Participants: participants}
}

func TestUpsertConversationMerge(t *testing.T) {
	c := New("u1")
	c.UpsertConversation(conv("conv-1", "u1", "u2"))
	c.UpsertConversation(&model.Conversation{ID: "conv-1", Name: "Bea"})

	got := c.Conversation("conv-1")
	if got == nil || got.Name != "Bea" {
		t.Fatalf("conversation = %+v, want merged name Bea", got)
	}
	if len(got.Participants) != 2 {
		t.Errorf("participants lost in merge: %v", got.Participants)
	}
}

func TestFindConversationForParticipants(t *testing.T) {
	c := New("u1")
	c.UpsertConversation(conv("conv-1", "u1", "u2"))
	c.UpsertConversation(conv("conv-2", "u1", "u3"))

	if got := c.FindConversationForParticipants("u2", "u1"); got == nil || got.ID != "conv-1" {
		t.Errorf("pair lookup should be unordered, got %+v", got)
	}
	if got := c.FindConversationForParticipants("u2", "u3"); got != nil {
		t.Errorf("no conversation for {u2,u3}, got %+v", got)
	}
}

func TestTouchLastMessageUnreadAccounting(t *testing.T) {
	c := New("u1")
	c.UpsertConversation(conv("conv-1", "u1", "u2"))

	theirs := &model.Message{ID: "m1", ConversationID: "conv-1", Sender: model.Sender{ID: "u2"}, Body: "hi", Status: status.Delivered, CreatedAt: 1000}
	c.UpsertMessage(theirs)
	c.TouchLastMessage("conv-1", theirs)

	got := c.Conversation("conv-1")
	if got.UnreadCount != 1 || !got.HasNewMessage {
		t.Errorf("unread = %d/%v, want 1/true", got.UnreadCount, got.HasNewMessage)
	}
	if got.LastActivity != 1000 || got.LastMessage.Preview != "hi" {
		t.Errorf("projection = %+v", got.LastMessage)
	}

	// Own message bumps activity but never the unread count.
	mine := &model.Message{ID: "m2", ConversationID: "conv-1", Sender: model.Sender{ID: "u1"}, Own: true, OwnershipDetermined: true, Body: "yo", Status: status.Sent, CreatedAt: 2000}
	c.UpsertMessage(mine)
	c.TouchLastMessage("conv-1", mine)

	got = c.Conversation("conv-1")
	if got.UnreadCount != 1 {
		t.Errorf("unread = %d after own message, want 1", got.UnreadCount)
	}
	if got.LastActivity != 2000 {
		t.Errorf("lastActivity = %d, want 2000", got.LastActivity)
	}
}

func TestMarkReadIdempotent(t *testing.T) {
	c := New("u1")
	c.UpsertConversation(conv("conv-1", "u1", "u2"))
	for i := 0; i < 3; i++ {
		m := &model.Message{ID: string(rune('a' + i)), ConversationID: "conv-1", Sender: model.Sender{ID: "u2"}, Status: status.Delivered, CreatedAt: int64(i)}
		c.UpsertMessage(m)
		c.TouchLastMessage("conv-1", m)
	}

	cleared, ok := c.MarkRead("conv-1")
	if !ok || cleared != 3 {
		t.Fatalf("MarkRead = %d/%v, want 3/true", cleared, ok)
	}
	cleared, ok = c.MarkRead("conv-1")
	if !ok || cleared != 0 {
		t.Errorf("second MarkRead = %d/%v, want 0/true", cleared, ok)
	}
	if c.TotalUnread() != 0 {
		t.Errorf("total unread = %d, want 0", c.TotalUnread())
	}
}

func TestMarkReadUnknownConversation(t *testing.T) {
	c := New("u1")
	if _, ok := c.MarkRead("nope"); ok {
		t.Error("MarkRead on unknown conversation should report !ok")
	}
}

func TestConfirmMessageKeepsSlot(t *testing.T) {
	c := New("u1")
	c.UpsertConversation(conv("conv-1", "u1", "u2"))

	tmp := &model.Message{
		ID: "tmp-abc", CorrelationID: "c1", ConversationID: "conv-1",
		Temporary: true, Own: true, OwnershipDetermined: true,
		Body: "first", Status: status.Sending, CreatedAt: 1,
	}
	other := &model.Message{ID: "m2", ConversationID: "conv-1", Sender: model.Sender{ID: "u2"}, Body: "second", Status: status.Delivered, CreatedAt: 2}
	c.UpsertMessage(tmp)
	c.UpsertMessage(other)

	if !c.ConfirmMessage("tmp-abc", "m100", 5) {
		t.Fatal("ConfirmMessage failed")
	}

	msgs := c.Messages("conv-1")
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2 (no duplicate bubble)", len(msgs))
	}
	if msgs[0].ID != "m100" {
		t.Errorf("slot 0 id = %q, want m100 (replaced in place)", msgs[0].ID)
	}
	if msgs[0].Temporary {
		t.Error("confirmed message still temporary")
	}
	if got := c.MessageByCorrelation("c1"); got == nil || got.ID != "m100" {
		t.Errorf("correlation index not updated: %+v", got)
	}
}

func TestUpgradeMessageStatusGuarded(t *testing.T) {
	c := New("u1")
	c.UpsertConversation(conv("conv-1", "u1", "u2"))
	m := &model.Message{ID: "m1", ConversationID: "conv-1", Sender: model.Sender{ID: "u1"}, Own: true, OwnershipDetermined: true, Status: status.Sent, CreatedAt: 1}
	c.UpsertMessage(m)
	c.TouchLastMessage("conv-1", m)

	if !c.UpgradeMessageStatus("m1", status.Read) {
		t.Fatal("sent -> read should apply")
	}
	// Stale delivered after read is a no-op, on the message and the list row.
	if c.UpgradeMessageStatus("m1", status.Delivered) {
		t.Error("read -> delivered should be dropped")
	}
	got := c.Conversation("conv-1")
	if got.LastMessage.Status != status.Read {
		t.Errorf("list status = %q, want read", got.LastMessage.Status)
	}
}

func TestUpsertMessagePreservesOwnership(t *testing.T) {
	c := New("u1")
	c.UpsertConversation(conv("conv-1", "u1", "u2"))
	c.UpsertMessage(&model.Message{ID: "m1", ConversationID: "conv-1", Own: true, OwnershipDetermined: true, OwnerUserID: "u1", Status: status.Sent})

	// A later merge claiming the message is not ours must not flip it.
	c.UpsertMessage(&model.Message{ID: "m1", ConversationID: "conv-1", Own: false, OwnershipDetermined: true, Status: status.Delivered})

	got := c.Message("m1")
	if !got.Own {
		t.Error("ownership flipped by merge")
	}
	if got.Status != status.Delivered {
		t.Errorf("status = %q, want delivered (forward merge allowed)", got.Status)
	}
}

func TestReplaceConversationID(t *testing.T) {
	c := New("u1")
	placeholder := model.NewPlaceholderConversationID()
	c.UpsertConversation(conv(placeholder, "u1", "u2"))
	c.UpsertMessage(&model.Message{ID: "tmp-1", ConversationID: placeholder, Status: status.Sending, Temporary: true})
	c.SetActiveConversation(placeholder)

	if !c.ReplaceConversationID(placeholder, "conv-9") {
		t.Fatal("ReplaceConversationID failed")
	}
	if c.Conversation(placeholder) != nil {
		t.Error("placeholder entry still present")
	}
	if got := c.Conversation("conv-9"); got == nil {
		t.Fatal("authoritative entry missing")
	}
	if len(c.Snapshot()) != 1 {
		t.Errorf("snapshot has %d entries, want 1 (no second list entry)", len(c.Snapshot()))
	}
	if msgs := c.Messages("conv-9"); len(msgs) != 1 || msgs[0].ConversationID != "conv-9" {
		t.Errorf("messages did not move: %+v", msgs)
	}
	if c.ActiveConversation() != "conv-9" {
		t.Error("active conversation should follow the id swap")
	}
}

func TestRemoveConversation(t *testing.T) {
	c := New("u1")
	c.UpsertConversation(conv("conv-1", "u1", "u2"))
	c.UpsertMessage(&model.Message{ID: "m1", CorrelationID: "c1", ConversationID: "conv-1", Status: status.Sent})

	if !c.RemoveConversation("conv-1") {
		t.Fatal("RemoveConversation failed")
	}
	if c.Message("m1") != nil || c.MessageByCorrelation("c1") != nil {
		t.Error("messages should be gone with the conversation")
	}
}

func TestMarkMessageDeleted(t *testing.T) {
	c := New("u1")
	c.UpsertConversation(conv("conv-1", "u1", "u2"))
	m := &model.Message{ID: "m1", ConversationID: "conv-1", Sender: model.Sender{ID: "u2"}, Body: "secret", Status: status.Read, CreatedAt: 1}
	c.UpsertMessage(m)
	c.TouchLastMessage("conv-1", m)

	if !c.MarkMessageDeleted("m1") {
		t.Fatal("MarkMessageDeleted failed")
	}
	got := c.Message("m1")
	if !got.Deleted || got.Body != "" {
		t.Errorf("message = %+v, want deletion placeholder", got)
	}
	if c.Conversation("conv-1").LastMessage.Preview != "Message deleted" {
		t.Error("list preview should show the deletion placeholder")
	}
}

func TestSnapshotReturnsClones(t *testing.T) {
	c := New("u1")
	c.UpsertConversation(conv("conv-1", "u1", "u2"))

	snap := c.Snapshot()
	snap[0].UnreadCount = 99

	if c.Conversation("conv-1").UnreadCount != 0 {
		t.Error("mutating a snapshot must not touch the cache")
	}
}
