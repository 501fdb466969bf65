package bot

import (
	"context"
	"sync"

	"shiftwatch/internal/portal"
	"shiftwatch/internal/storage"
	"shiftwatch/internal/transport"
	"shiftwatch/internal/watcher"
	"shiftwatch/pkg/logx"
)

type Config struct {
	// PortalURL backs the "Take Shifts" button under every digest.
	PortalURL string
	// Holidays are DD.MM.YYYY dates marked in digests.
	Holidays []string
}

// Pusher is the outbound side the bot talks to (the notify queue).
type Pusher interface {
	Push(n transport.Notification) error
}

// Bot routes incoming chat updates to command handlers and owns the
// ephemeral registration sessions. It also implements watcher.Notifier
// so new-shift results reach the chat as formatted digests.
type Bot struct {
	cfg     Config
	log     logx.Logger
	store   storage.Store
	source  portal.Source
	watch   *watcher.Watcher
	push    Pusher
	adapter transport.Adapter

	// sessions is keyed by chat id. In-memory only: an in-progress
	// registration does not survive a restart.
	mu       sync.Mutex
	sessions map[int64]*session
}

func New(cfg Config, store storage.Store, source portal.Source, watch *watcher.Watcher, push Pusher, adapter transport.Adapter, log logx.Logger) *Bot {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Bot{
		cfg:      cfg,
		log:      log,
		store:    store,
		source:   source,
		watch:    watch,
		push:     push,
		adapter:  adapter,
		sessions: map[int64]*session{},
	}
}

// Commands is the bot command menu (setMyCommands).
func Commands() []transport.BotCommand {
	return []transport.BotCommand{
		{Command: "start", Description: "Start the bot"},
		{Command: "stop", Description: "Stop receiving updates"},
		{Command: "help", Description: "Show existing commands"},
		{Command: "new", Description: "Show new shifts"},
		{Command: "old", Description: "Show old shifts"},
		{Command: "scheduled", Description: "Show scheduled shifts"},
	}
}

// Run consumes updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context, updates <-chan transport.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case up := <-updates:
			b.dispatch(ctx, up)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, up transport.Update) {
	switch up.Kind {
	case transport.UpdateMessage:
		if up.Message != nil {
			b.handleMessage(ctx, up.Message)
		}
	case transport.UpdateCallback:
		if up.Callback != nil {
			b.handleCallback(ctx, up.Callback)
		}
	}
}

func (b *Bot) reply(chatID int64, text string, buttons ...[]transport.Button) {
	n := transport.Notification{
		Target: transport.ChatTarget{ChatID: chatID},
		Text:   text,
	}
	if len(buttons) > 0 {
		n.Options = &transport.SendOptions{Buttons: buttons}
	}
	if err := b.push.Push(n); err != nil {
		b.log.Warn("reply dropped", logx.Int64("chat_id", chatID), logx.Err(err))
	}
}

func (b *Bot) takeShiftsRow() []transport.Button {
	return []transport.Button{{Text: "Take Shifts", URL: b.cfg.PortalURL}}
}
