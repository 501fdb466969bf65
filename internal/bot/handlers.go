package bot

import (
	"context"
	"errors"
	"strings"

	"shiftwatch/internal/shifts"
	"shiftwatch/internal/storage"
	"shiftwatch/internal/transport"
	"shiftwatch/pkg/logx"
)

const (
	cbOldShifts       = "send_old_shifts"
	cbScheduledShifts = "send_scheduled_shifts"
)

func (b *Bot) handleMessage(ctx context.Context, m *transport.Message) {
	text := strings.TrimSpace(m.Text)
	if strings.HasPrefix(text, "/") {
		b.handleCommand(ctx, m.ChatID, commandName(text))
		return
	}
	b.handleSessionInput(ctx, m.ChatID, text)
}

// commandName extracts the bare command: "/new@shiftwatch_bot extra" -> "new".
func commandName(text string) string {
	cmd := strings.Fields(text)[0]
	cmd = strings.TrimPrefix(cmd, "/")
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd)
}

func (b *Bot) handleCommand(ctx context.Context, chatID int64, cmd string) {
	// /stop always works, even mid-registration. Every other command is
	// rejected while a session is open and never advances it.
	if cmd == "stop" {
		b.handleStop(ctx, chatID)
		return
	}
	if b.registering(chatID) {
		b.reply(chatID, textFinishRegistration)
		return
	}

	switch cmd {
	case "start":
		b.handleStart(ctx, chatID)
	case "help":
		b.reply(chatID, textHelp)
	case "new":
		b.sendDigest(ctx, chatID, bucketNew)
	case "old":
		b.sendDigest(ctx, chatID, bucketOld)
	case "scheduled":
		b.sendDigest(ctx, chatID, bucketScheduled)
	default:
		// Unknown commands are ignored.
	}
}

func (b *Bot) handleStart(ctx context.Context, chatID int64) {
	_, err := b.store.GetUser(ctx, chatID)
	switch {
	case err == nil:
		// Idempotent re-activation, not a new registration. The state
		// must be persisted too: a leftover stopped row (failed delete,
		// crash mid-/stop) would otherwise be torn down by the next
		// sweep right after this confirmation.
		if err := b.store.SetState(ctx, chatID, storage.StateActive); err != nil && !errors.Is(err, storage.ErrNotFound) {
			b.log.Error("start: persist state failed", logx.Int64("chat_id", chatID), logx.Err(err))
			b.reply(chatID, textTryLater)
			return
		}
		b.watch.MarkActive(chatID)
		b.watch.StartUser(chatID)
		b.reply(chatID, textAlreadyRegistered)
		return
	case errors.Is(err, storage.ErrNotFound):
		// fall through to registration
	default:
		b.log.Error("start: load user failed", logx.Int64("chat_id", chatID), logx.Err(err))
		b.reply(chatID, textTryLater)
		return
	}

	b.openSession(chatID)
	b.reply(chatID, textWelcome)
}

func (b *Bot) handleStop(ctx context.Context, chatID int64) {
	b.closeSession(chatID)
	b.watch.MarkStopped(chatID)
	b.watch.StopUser(chatID)
	// Persist the stop first: if the delete below fails, the sweep still
	// sees a stopped row after restart and finishes the teardown.
	if err := b.store.SetState(ctx, chatID, storage.StateStopped); err != nil && !errors.Is(err, storage.ErrNotFound) {
		b.log.Error("stop: persist state failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
	if err := b.store.DeleteUser(ctx, chatID); err != nil {
		b.log.Error("stop: delete user failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
	b.watch.Forget(chatID)
	b.reply(chatID, textStopped)
}

func (b *Bot) handleSessionInput(ctx context.Context, chatID int64, text string) {
	s := b.session(chatID)
	if s == nil || text == "" {
		return
	}

	switch s.step {
	case stepAwaitingIdentifier:
		s.identifier = text
		s.step = stepAwaitingSecret
		b.reply(chatID, textAskSecret)

	case stepAwaitingSecret:
		s.secret = text
		b.reply(chatID, textValidating)

		ok, err := b.source.ValidateCredentials(ctx, s.identifier, s.secret)
		if err != nil {
			// Could not verify at all. Treated like a rejection (the safe
			// default): discard what was captured and start over.
			b.log.Warn("credential validation errored", logx.Int64("chat_id", chatID), logx.Err(err))
			b.resetSession(chatID)
			b.reply(chatID, textCouldNotVerify)
			return
		}
		if !ok {
			b.resetSession(chatID)
			b.reply(chatID, textLoginFailed)
			return
		}
		b.commitRegistration(ctx, chatID, s)
	}
}

func (b *Bot) commitRegistration(ctx context.Context, chatID int64, s *session) {
	u := &storage.User{
		ID:         chatID,
		Identifier: s.identifier,
		Secret:     s.secret,
		State:      storage.StateActive,
	}
	if err := b.store.UpsertUser(ctx, u); err != nil {
		b.log.Error("registration: upsert failed", logx.Int64("chat_id", chatID), logx.Err(err))
		b.closeSession(chatID)
		b.reply(chatID, textSaveFailed)
		return
	}
	if err := b.store.SaveReconciliation(ctx, chatID, shifts.Empty()); err != nil {
		b.log.Error("registration: init reconciliation failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}

	b.watch.MarkActive(chatID)
	b.watch.StartUser(chatID)
	b.closeSession(chatID)
	b.reply(chatID, textRegistered)
}

func (b *Bot) handleCallback(ctx context.Context, cb *transport.Callback) {
	defer func() {
		if err := b.adapter.AnswerCallback(ctx, cb.ID, ""); err != nil {
			b.log.Debug("answer callback failed", logx.Err(err))
		}
	}()

	switch cb.Data {
	case cbOldShifts:
		b.sendDigest(ctx, cb.ChatID, bucketOld)
	case cbScheduledShifts:
		b.sendDigest(ctx, cb.ChatID, bucketScheduled)
	}
}

func (b *Bot) sendDigest(ctx context.Context, chatID int64, bucket digestBucket) {
	u, err := b.store.GetUser(ctx, chatID)
	if errors.Is(err, storage.ErrNotFound) {
		b.reply(chatID, textNotRegistered)
		return
	}
	if err != nil {
		b.log.Error("digest: load user failed", logx.Int64("chat_id", chatID), logx.Err(err))
		b.reply(chatID, textTryLater)
		return
	}
	b.reply(chatID, b.formatDigest(bucket, u.Reconciliation), b.takeShiftsRow())
}

// NotifyNewShifts implements watcher.Notifier: push the new-shifts
// digest with quick access to the other buckets and the portal.
func (b *Bot) NotifyNewShifts(ctx context.Context, userID int64, r shifts.Result) {
	b.reply(userID, b.formatDigest(bucketNew, r),
		[]transport.Button{
			{Text: "📅 Old", Data: cbOldShifts},
			{Text: "📌 Scheduled", Data: cbScheduledShifts},
		},
		b.takeShiftsRow(),
	)
}
