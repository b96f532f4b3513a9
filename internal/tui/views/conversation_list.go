package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/pigeon-im/pigeon/internal/render"
	"github.com/pigeon-im/pigeon/internal/status"
	"github.com/pigeon-im/pigeon/internal/tui/ui"
	"github.com/rivo/tview"
)

// ConversationList is the left-hand conversation table.
type ConversationList struct {
	*tview.Table
	theme *ui.Theme
	items []render.ConversationItem
}

// NewConversationList creates the conversation list table.
func NewConversationList(theme *ui.Theme) *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitle(" Conversations ")
	table.SetTitleColor(theme.TitleColor)

	return &ConversationList{Table: table, theme: theme}
}

// Update replaces the list contents. Items arrive presorted by last activity.
func (cl *ConversationList) Update(items []render.ConversationItem) {
	cl.items = items
	cl.render()
}

// SelectedID returns the conversation id under the cursor, or "".
func (cl *ConversationList) SelectedID() string {
	row, _ := cl.GetSelection()
	idx := row - 1
	if idx < 0 || idx >= len(cl.items) {
		return ""
	}
	return cl.items[idx].ID
}

func (cl *ConversationList) render() {
	cl.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" NAME", 1},
		{" LAST MESSAGE", 2},
		{" TIME", 0},
		{" UNREAD", 0},
	}
	for col, h := range headers {
		cell := tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(cl.theme.TableHeaderFg).
			SetBackgroundColor(cl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp)
		cl.SetCell(0, col, cell)
	}

	for i, item := range cl.items {
		row := i + 1

		nameColor := cl.theme.FgColor
		if item.HasNewMessage {
			nameColor = cl.theme.UnreadColor
		}
		cl.SetCell(row, 0, tview.NewTableCell(" "+item.Name).
			SetTextColor(nameColor).
			SetExpansion(1))

		preview := item.Preview
		if item.PreviewOwn {
			glyph := status.Glyph(item.PreviewStatus)
			if glyph != "" {
				preview = glyph + " " + preview
			}
		}
		previewColor := cl.theme.MutedColor
		if item.PreviewOwn && item.PreviewStatus == status.Error {
			previewColor = cl.theme.ErrorColor
		}
		cl.SetCell(row, 1, tview.NewTableCell(" "+preview).
			SetTextColor(previewColor).
			SetExpansion(2).
			SetMaxWidth(48))

		cl.SetCell(row, 2, tview.NewTableCell(" "+formatTime(item.LastActivity)).
			SetTextColor(cl.theme.MutedColor))

		badge := ""
		if item.UnreadCount > 0 {
			badge = fmt.Sprintf(" (%d)", item.UnreadCount)
		}
		cl.SetCell(row, 3, tview.NewTableCell(badge).
			SetTextColor(cl.theme.UnreadColor).
			SetAttributes(tcell.AttrBold))
	}
}

func formatTime(unixMillis int64) string {
	if unixMillis <= 0 {
		return ""
	}
	t := time.UnixMilli(unixMillis)
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("Jan 02")
}
