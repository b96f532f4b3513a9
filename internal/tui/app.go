// Package tui is the tview shell. It implements render.Renderer, so the sync
// core paints through it without knowing about terminals.
package tui

import (
	"context"

	"github.com/gdamore/tcell/v2"
	"github.com/pigeon-im/pigeon/internal/bus"
	"github.com/pigeon-im/pigeon/internal/cache"
	"github.com/pigeon-im/pigeon/internal/render"
	"github.com/pigeon-im/pigeon/internal/status"
	"github.com/pigeon-im/pigeon/internal/tui/ui"
	"github.com/pigeon-im/pigeon/internal/tui/views"
	"github.com/pigeon-im/pigeon/internal/uploader"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

// Controller is the slice of the engine the shell drives.
type Controller interface {
	OpenConversation(ctx context.Context, conversationID string)
	CloseConversation()
	UserTyping(ctx context.Context, conversationID string)
}

// Sender is the slice of the send pipeline the shell drives.
type Sender interface {
	Send(ctx context.Context, conversationID, text string, files []uploader.File) string
	Resend(ctx context.Context, messageID string) string
}

// App is the TUI application shell.
type App struct {
	app       *tview.Application
	theme     *ui.Theme
	convList  *views.ConversationList
	thread    *views.Thread
	composer  *views.Composer
	statusBar *views.StatusBar

	cache      *cache.Cache
	bus        *bus.Bus
	logger     *zap.Logger
	controller Controller
	sender     Sender

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the shell. Bind must be called before Run.
func NewApp(c *cache.Cache, b *bus.Bus, profile string, logger *zap.Logger) *App {
	theme := ui.DefaultTheme()
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:       tview.NewApplication(),
		theme:     theme,
		convList:  views.NewConversationList(theme),
		thread:    views.NewThread(theme),
		composer:  views.NewComposer(theme),
		statusBar: views.NewStatusBar(theme),
		cache:     c,
		bus:       b,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
	a.statusBar.SetProfile(profile)
	a.setupCallbacks()
	a.setupLayout()
	return a
}

// Bind attaches the controllers the shell drives. Separate from NewApp because
// the engine is constructed after the renderer.
func (a *App) Bind(controller Controller, sender Sender) {
	a.controller = controller
	a.sender = sender
}

func (a *App) setupCallbacks() {
	a.convList.SetSelectedFunc(func(row, col int) {
		id := a.convList.SelectedID()
		if id == "" {
			return
		}
		a.open(id)
	})

	a.composer.SetOnSend(func(text string) {
		id := a.thread.ConversationID()
		if id == "" || a.sender == nil {
			return
		}
		a.sender.Send(a.ctx, id, text, nil)
	})
	a.composer.SetOnTyping(func() {
		id := a.thread.ConversationID()
		if id == "" || a.controller == nil {
			return
		}
		a.controller.UserTyping(a.ctx, id)
	})

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEsc:
			a.closeThread()
			return nil
		case tcell.KeyCtrlC:
			a.app.Stop()
			return nil
		case tcell.KeyRune:
			if a.app.GetFocus() == a.composer {
				return event
			}
			switch event.Rune() {
			case 'q':
				a.app.Stop()
				return nil
			case 'i':
				if a.thread.ConversationID() != "" {
					a.app.SetFocus(a.composer)
					return nil
				}
			case 'r':
				a.retryLastFailed()
				return nil
			}
		}
		return event
	})
}

func (a *App) setupLayout() {
	right := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.thread, 0, 1, false).
		AddItem(a.composer, 3, 0, false)

	main := tview.NewFlex().
		AddItem(a.convList, 0, 1, true).
		AddItem(right, 0, 2, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(main, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)
}

func (a *App) open(conversationID string) {
	conv := a.cache.Conversation(conversationID)
	if conv == nil {
		return
	}
	title := conv.Name
	if title == "" {
		title = conv.Counterpart(a.cache.LocalUserID())
	}
	a.thread.Open(conversationID, title)
	a.app.SetFocus(a.composer)
	go a.controller.OpenConversation(a.ctx, conversationID)
}

func (a *App) closeThread() {
	if a.thread.ConversationID() == "" {
		return
	}
	a.thread.Open("", "Messages")
	a.app.SetFocus(a.convList)
	if a.controller != nil {
		a.controller.CloseConversation()
	}
}

func (a *App) retryLastFailed() {
	id := a.thread.LastFailedID()
	if id == "" || a.sender == nil {
		return
	}
	a.sender.Resend(a.ctx, id)
}

// Run starts the session-state watcher and blocks in the tview event loop.
func (a *App) Run() error {
	go a.watchSessionState()
	return a.app.Run()
}

// Stop terminates the event loop.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

func (a *App) watchSessionState() {
	ch, unsub := a.bus.Subscribe(bus.KindSessionStateChanged, 16)
	defer unsub()
	for {
		select {
		case evt := <-ch:
			change, ok := evt.Payload.(status.SessionChange)
			if !ok {
				continue
			}
			a.app.QueueUpdateDraw(func() {
				a.statusBar.SetState(change.To)
			})
		case <-a.ctx.Done():
			return
		}
	}
}

// ConversationList implements render.Renderer.
func (a *App) ConversationList(items []render.ConversationItem) {
	a.app.QueueUpdateDraw(func() {
		a.convList.Update(items)
	})
}

// Message implements render.Renderer.
func (a *App) Message(item render.MessageItem) {
	a.app.QueueUpdateDraw(func() {
		a.thread.Upsert(item)
	})
}

// MessageStatus implements render.Renderer.
func (a *App) MessageStatus(conversationID, messageID string, st status.Status) {
	a.app.QueueUpdateDraw(func() {
		if a.thread.ConversationID() != conversationID {
			return
		}
		a.thread.UpdateStatus(messageID, st)
	})
}

// Badge implements render.Renderer.
func (a *App) Badge(total int) {
	a.app.QueueUpdateDraw(func() {
		a.statusBar.SetUnread(total)
	})
}

var _ render.Renderer = (*App)(nil)
