package watcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"shiftwatch/internal/portal"
	"shiftwatch/internal/shifts"
	"shiftwatch/internal/storage"
	"shiftwatch/pkg/logx"
)

// Notifier receives the result of a check that found new shifts.
// The bot implements it (formats a digest and queues the push).
type Notifier interface {
	NotifyNewShifts(ctx context.Context, userID int64, r shifts.Result)
}

type Config struct {
	// CheckInterval is the per-user polling period.
	CheckInterval time.Duration
	// SweepInterval is the global reconciliation period.
	SweepInterval time.Duration
}

// Watcher owns the per-user polling loops and the state that drives
// them: one cancellable timer per active user, the in-flight guard, and
// the in-memory lifecycle mirror the sweep reconciles against the store.
//
// All maps are mutex-guarded; timers fire on their own goroutines.
type Watcher struct {
	cfg    Config
	log    logx.Logger
	store  storage.Store
	source portal.Source
	notif  Notifier

	mu     sync.Mutex
	timers map[int64]context.CancelFunc
	states map[int64]storage.UserState
	sweep  *cron.Cron

	ifmu     sync.Mutex
	inFlight map[int64]struct{}

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config, store storage.Store, source portal.Source, notif Notifier, log logx.Logger) *Watcher {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 5 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 30 * time.Minute
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Watcher{
		cfg:      cfg,
		log:      log,
		store:    store,
		source:   source,
		notif:    notif,
		timers:   map[int64]context.CancelFunc{},
		states:   map[int64]storage.UserState{},
		inFlight: map[int64]struct{}{},
	}
}

// Start arms the sweep and returns. Per-user timers are armed by the
// first sweep and by StartUser calls from the bot.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.runCtx != nil {
		w.mu.Unlock()
		return
	}
	w.runCtx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.startSweep()
	w.log.Info("watcher started",
		logx.Duration("check_interval", w.cfg.CheckInterval),
		logx.Duration("sweep_interval", w.cfg.SweepInterval))
}

// Stop cancels the sweep and every per-user timer and waits for
// outstanding checks to finish. An in-flight check past its guard is
// allowed to complete; its result is persisted even for a stopped user.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.runCtx = nil
	for id, stop := range w.timers {
		stop()
		delete(w.timers, id)
	}
	w.mu.Unlock()

	w.stopSweep()
	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
	w.log.Info("watcher stopped")
}

// SetNotifier wires the new-shift sink. The bot both drives the watcher
// and receives its results, so it is attached after construction and
// before Start.
func (w *Watcher) SetNotifier(n Notifier) {
	w.mu.Lock()
	w.notif = n
	w.mu.Unlock()
}

// MarkActive records the in-memory lifecycle state for a user.
func (w *Watcher) MarkActive(id int64) {
	w.mu.Lock()
	w.states[id] = storage.StateActive
	w.mu.Unlock()
}

// MarkStopped flags a user so timer ticks skip the check. The timer
// itself keeps ticking until StopUser runs; the sweep owns teardown.
func (w *Watcher) MarkStopped(id int64) {
	w.mu.Lock()
	w.states[id] = storage.StateStopped
	w.mu.Unlock()
}

// Forget drops the in-memory lifecycle entry for a deleted user.
func (w *Watcher) Forget(id int64) {
	w.mu.Lock()
	delete(w.states, id)
	w.mu.Unlock()
}

func (w *Watcher) state(id int64) (storage.UserState, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.states[id]
	return s, ok
}

// StartUser arms (or re-arms) the polling timer for one user and fires
// an immediate check outside the cadence. Idempotent: an existing timer
// is cancelled before the new one is armed, so a user never has two.
func (w *Watcher) StartUser(id int64) {
	w.mu.Lock()
	runCtx := w.runCtx
	if runCtx == nil {
		w.mu.Unlock()
		return
	}
	if stop, ok := w.timers[id]; ok {
		stop()
	}
	tctx, stop := context.WithCancel(runCtx)
	w.timers[id] = stop
	w.mu.Unlock()

	w.runCheckAsync(id)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(w.cfg.CheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-tctx.Done():
				return
			case <-ticker.C:
				// A stopped user's timer keeps ticking but does no work;
				// the sweep decides when to tear it down.
				if s, ok := w.state(id); ok && s == storage.StateStopped {
					continue
				}
				w.CheckUser(tctx, id)
			}
		}
	}()
}

// StopUser cancels and removes the user's timer. No timer is a no-op.
func (w *Watcher) StopUser(id int64) {
	w.mu.Lock()
	stop, ok := w.timers[id]
	if ok {
		delete(w.timers, id)
	}
	w.mu.Unlock()
	if ok {
		stop()
	}
}

// tracksActive reports whether the scheduler already considers this
// user active with a live timer.
func (w *Watcher) tracksActive(id int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, hasTimer := w.timers[id]
	return hasTimer && w.states[id] == storage.StateActive
}

func (w *Watcher) runCheckAsync(id int64) {
	w.mu.Lock()
	runCtx := w.runCtx
	w.mu.Unlock()
	if runCtx == nil {
		return
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.CheckUser(runCtx, id)
	}()
}

// CheckUser is the unit of work: fetch, reconcile, persist, notify.
//
// Two concurrent calls for the same user collapse into one: the loser
// of the guard returns immediately with no side effects (skipped, not
// queued). Every failure is trapped here; nothing escapes to timers or
// the sweep.
func (w *Watcher) CheckUser(ctx context.Context, id int64) {
	w.ifmu.Lock()
	if _, busy := w.inFlight[id]; busy {
		w.ifmu.Unlock()
		return
	}
	w.inFlight[id] = struct{}{}
	w.ifmu.Unlock()

	defer func() {
		w.ifmu.Lock()
		delete(w.inFlight, id)
		w.ifmu.Unlock()
	}()

	log := w.log.With(logx.Int64("user_id", id))

	u, err := w.store.GetUser(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		// Deleted concurrently; retire the timer.
		w.StopUser(id)
		return
	}
	if err != nil {
		log.Error("load user failed", logx.Err(err))
		return
	}

	batch, err := w.source.FetchShifts(ctx, u.Identifier, u.Secret)
	if err != nil {
		// Transient: leave persisted state untouched, next tick retries.
		log.Warn("shift fetch failed", logx.Err(err))
		return
	}

	result := shifts.Reconcile(batch.Invited, batch.Scheduled, u.Reconciliation)
	if log.Enabled(logx.LevelDebug) {
		keys := make([]string, 0, len(result.New))
		for _, s := range result.New {
			keys = append(keys, s.Key())
		}
		log.Debug("reconciled",
			logx.Int("old", result.OldCount),
			logx.Int("scheduled", result.ScheduledCount),
			logx.Any("new_keys", keys))
	}
	if err := w.store.SaveReconciliation(ctx, id, result); err != nil {
		log.Error("persist reconciliation failed", logx.Err(err))
		return
	}

	if result.NewCount > 0 && w.notif != nil {
		log.Info("new shifts found", logx.Int("count", result.NewCount))
		w.notif.NotifyNewShifts(ctx, id, result)
	}
}
