package ui

import "github.com/gdamore/tcell/v2"

// Theme holds color constants for the TUI.
type Theme struct {
	BgColor          tcell.Color
	FgColor          tcell.Color
	BorderColor      tcell.Color
	BorderFocusColor tcell.Color
	TableHeaderFg    tcell.Color
	TableHeaderBg    tcell.Color
	TableCursorFg    tcell.Color
	TableCursorBg    tcell.Color
	TitleColor       tcell.Color
	OwnMsgColor      tcell.Color
	PeerMsgColor     tcell.Color
	UnreadColor      tcell.Color
	ErrorColor       tcell.Color
	MutedColor       tcell.Color
}

// DefaultTheme returns the dark default theme.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:          tcell.ColorBlack,
		FgColor:          tcell.ColorCadetBlue,
		BorderColor:      tcell.ColorDodgerBlue,
		BorderFocusColor: tcell.ColorLightSkyBlue,
		TableHeaderFg:    tcell.ColorWhite,
		TableHeaderBg:    tcell.ColorBlack,
		TableCursorFg:    tcell.ColorBlack,
		TableCursorBg:    tcell.ColorAqua,
		TitleColor:       tcell.ColorFuchsia,
		OwnMsgColor:      tcell.ColorPaleGreen,
		PeerMsgColor:     tcell.ColorWhite,
		UnreadColor:      tcell.ColorOrange,
		ErrorColor:       tcell.ColorOrangeRed,
		MutedColor:       tcell.ColorGray,
	}
}
