package views

import (
	"fmt"
	"time"

	"github.com/pigeon-im/pigeon/internal/render"
	"github.com/pigeon-im/pigeon/internal/status"
	"github.com/pigeon-im/pigeon/internal/tui/ui"
	"github.com/rivo/tview"
)

// Thread displays the message history of the open conversation. Bubbles are
// keyed by slot: a confirmed message replaces the optimistic one in place
// instead of appearing twice.
type Thread struct {
	*tview.TextView
	theme *ui.Theme

	conversationID string
	order          []string // slot order, oldest first
	bySlot         map[string]render.MessageItem
}

// NewThread creates the message thread view.
func NewThread(theme *ui.Theme) *Thread {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Messages ")
	tv.SetTitleColor(theme.TitleColor)

	return &Thread{
		TextView: tv,
		theme:    theme,
		bySlot:   make(map[string]render.MessageItem),
	}
}

// Open resets the thread for a conversation.
func (t *Thread) Open(conversationID, title string) {
	t.conversationID = conversationID
	t.order = t.order[:0]
	t.bySlot = make(map[string]render.MessageItem)
	t.SetTitle(fmt.Sprintf(" %s ", title))
	t.render()
}

// ConversationID returns the open conversation, or "".
func (t *Thread) ConversationID() string {
	return t.conversationID
}

// Upsert inserts a bubble or replaces the one sharing its slot.
func (t *Thread) Upsert(item render.MessageItem) {
	if item.ConversationID != t.conversationID {
		return
	}
	if _, ok := t.bySlot[item.Slot]; !ok {
		t.order = append(t.order, item.Slot)
	}
	t.bySlot[item.Slot] = item
	t.render()
}

// UpdateStatus repaints only the status glyph of a message.
func (t *Thread) UpdateStatus(messageID string, st status.Status) {
	for slot, item := range t.bySlot {
		if item.ID != messageID {
			continue
		}
		item.Status = st
		item.StatusGlyph = status.Glyph(st)
		item.StatusTitle = status.Title(st)
		t.bySlot[slot] = item
		t.render()
		return
	}
}

func (t *Thread) render() {
	t.Clear()
	for _, slot := range t.order {
		item := t.bySlot[slot]
		t.writeBubble(item)
	}
	t.ScrollToEnd()
}

func (t *Thread) writeBubble(item render.MessageItem) {
	ts := time.UnixMilli(item.CreatedAt).Format("15:04")

	if item.Own {
		glyph := item.StatusGlyph
		if glyph == "" {
			glyph = status.Glyph(item.Status)
		}
		color := "palegreen"
		if item.Status == status.Error {
			color = "orangered"
		}
		fmt.Fprintf(t, "[gray]%s[-] [%s]me:[-] %s [gray]%s[-]\n", ts, color, tview.Escape(item.Body), glyph)
		if item.Status == status.Error {
			fmt.Fprintf(t, "        [orangered]%s — press r to retry[-]\n", status.Title(status.Error))
		}
	} else {
		name := item.SenderName
		if name == "" {
			name = item.SenderID
		}
		fmt.Fprintf(t, "[gray]%s[-] [white]%s:[-] %s\n", ts, tview.Escape(name), tview.Escape(item.Body))
	}

	for _, u := range item.AttachmentURLs {
		fmt.Fprintf(t, "        [dodgerblue]%s[-]\n", tview.Escape(u))
	}
}

// LastFailedID returns the most recent own message in Error state, for the
// retry binding. Empty when none.
func (t *Thread) LastFailedID() string {
	for i := len(t.order) - 1; i >= 0; i-- {
		item := t.bySlot[t.order[i]]
		if item.Own && item.Status == status.Error {
			return item.ID
		}
	}
	return ""
}
