package views

import (
	"fmt"

	"github.com/pigeon-im/pigeon/internal/status"
	"github.com/pigeon-im/pigeon/internal/tui/ui"
	"github.com/rivo/tview"
)

// StatusBar shows profile, session state, and the global unread badge.
type StatusBar struct {
	*tview.TextView
	profile string
	state   status.SessionState
	unread  int
}

// NewStatusBar creates the bottom status bar.
func NewStatusBar(theme *ui.Theme) *StatusBar {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)

	sb := &StatusBar{TextView: tv, state: status.Booting}
	sb.render()
	return sb
}

// SetProfile sets the profile name shown in the bar.
func (sb *StatusBar) SetProfile(name string) {
	sb.profile = name
	sb.render()
}

// SetState updates the session connectivity indicator.
func (sb *StatusBar) SetState(s status.SessionState) {
	sb.state = s
	sb.render()
}

// SetUnread updates the global unread badge.
func (sb *StatusBar) SetUnread(total int) {
	sb.unread = total
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()

	stateColor := "gray"
	switch sb.state {
	case status.Ready:
		stateColor = "palegreen"
	case status.Reconnecting, status.Connecting, status.Syncing:
		stateColor = "orange"
	case status.Offline, status.Failed:
		stateColor = "orangered"
	}

	badge := ""
	if sb.unread > 0 {
		badge = fmt.Sprintf("  [orange](%d unread)[-]", sb.unread)
	}
	fmt.Fprintf(sb, " [dodgerblue]%s[-]  [%s]%s[-]%s", sb.profile, stateColor, sb.state, badge)
}
