package watcher

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"shiftwatch/internal/storage"
	"shiftwatch/pkg/logx"
)

// The sweep reconciles volatile scheduler state against the persisted
// user set: in-memory timers are lost on restart, user rows are not.

func (w *Watcher) startSweep() {
	c := cron.New()
	spec := fmt.Sprintf("@every %s", w.cfg.SweepInterval)
	if _, err := c.AddFunc(spec, func() {
		w.mu.Lock()
		ctx := w.runCtx
		w.mu.Unlock()
		if ctx == nil {
			return
		}
		w.SweepOnce(ctx)
	}); err != nil {
		w.log.Error("sweep schedule failed", logx.Err(err))
		return
	}

	w.mu.Lock()
	w.sweep = c
	ctx := w.runCtx
	w.mu.Unlock()
	c.Start()

	// One sweep right away so persisted users resume without waiting a
	// full period after process start.
	if ctx != nil {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.SweepOnce(ctx)
		}()
	}
}

func (w *Watcher) stopSweep() {
	w.mu.Lock()
	c := w.sweep
	w.sweep = nil
	w.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// SweepOnce loads every persisted user and brings the scheduler in line:
//
//   - stopped users lose their timer and their row (no check runs)
//   - users the scheduler doesn't track yet (fresh process, or a
//     restart that lost timer state) get an immediate check and a timer
//   - users already active with a live timer are left alone
//
// Errors are logged and never fatal; the next sweep retries.
func (w *Watcher) SweepOnce(ctx context.Context) {
	users, err := w.store.ListUsers(ctx)
	if err != nil {
		w.log.Error("sweep: list users failed", logx.Err(err))
		return
	}

	for _, u := range users {
		state, tracked := w.state(u.ID)
		stopped := u.State == storage.StateStopped || (tracked && state == storage.StateStopped)

		switch {
		case stopped:
			w.StopUser(u.ID)
			if err := w.store.DeleteUser(ctx, u.ID); err != nil {
				w.log.Error("sweep: delete stopped user failed",
					logx.Int64("user_id", u.ID), logx.Err(err))
				continue
			}
			w.Forget(u.ID)
			w.log.Info("stopped user removed", logx.Int64("user_id", u.ID))

		case !w.tracksActive(u.ID):
			w.runCheckAsync(u.ID)
			w.StartUser(u.ID)
			w.MarkActive(u.ID)
			w.log.Info("user schedule resumed", logx.Int64("user_id", u.ID))

		default:
			// Live timer already covers this user.
		}
	}
}
