package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"shiftwatch/internal/shifts"
	"shiftwatch/internal/storage"
	"shiftwatch/pkg/logx"
)

// ---- fakes ----

type fakeStore struct {
	mu    sync.Mutex
	users map[int64]*storage.User
	saved map[int64]shifts.Result

	failList bool
	failSave bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: map[int64]*storage.User{}, saved: map[int64]shifts.Result{}}
}

func (f *fakeStore) put(u storage.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := u
	f.users[u.ID] = &cp
}

func (f *fakeStore) UpsertUser(ctx context.Context, u *storage.User) error {
	f.put(*u)
	return nil
}

func (f *fakeStore) DeleteUser(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, id)
	return nil
}

func (f *fakeStore) GetUser(ctx context.Context, id int64) (*storage.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeStore) ListUsers(ctx context.Context) ([]storage.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failList {
		return nil, errors.New("list failed")
	}
	var out []storage.User
	for _, u := range f.users {
		out = append(out, *u)
	}
	return out, nil
}

func (f *fakeStore) SaveReconciliation(ctx context.Context, id int64, r shifts.Result) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSave {
		return errors.New("save failed")
	}
	if u, ok := f.users[id]; ok {
		u.Reconciliation = r
	}
	f.saved[id] = r
	return nil
}

func (f *fakeStore) SetState(ctx context.Context, id int64, s storage.UserState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		u.State = s
	}
	return nil
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) savedResult(id int64) (shifts.Result, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.saved[id]
	return r, ok
}

type fakeSource struct {
	mu      sync.Mutex
	fetches int
	batch   shifts.Batch
	err     error
	block   chan struct{} // when set, FetchShifts waits here
}

func (f *fakeSource) ValidateCredentials(ctx context.Context, identifier, secret string) (bool, error) {
	return true, nil
}

func (f *fakeSource) FetchShifts(ctx context.Context, identifier, secret string) (shifts.Batch, error) {
	f.mu.Lock()
	f.fetches++
	block := f.block
	batch, err := f.batch, f.err
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return batch, err
}

func (f *fakeSource) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []int64
}

func (f *fakeNotifier) NotifyNewShifts(ctx context.Context, userID int64, r shifts.Result) {
	f.mu.Lock()
	f.calls = append(f.calls, userID)
	f.mu.Unlock()
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestWatcher(st *fakeStore, src *fakeSource, n *fakeNotifier) *Watcher {
	return New(Config{CheckInterval: time.Hour, SweepInterval: time.Hour}, st, src, n, logx.Nop())
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// ---- CheckUser ----

func TestCheckUserPersistsAndNotifies(t *testing.T) {
	st := newFakeStore()
	st.put(storage.User{ID: 1, Identifier: "a", Secret: "b", State: storage.StateActive})
	src := &fakeSource{batch: shifts.Batch{Invited: []shifts.Shift{
		{Date: "01.02.2026", TimeFrom: "08:00", TimeTo: "16:00", Responsible: "Novak", Allowed: true},
	}}}
	n := &fakeNotifier{}
	w := newTestWatcher(st, src, n)

	w.CheckUser(context.Background(), 1)

	r, ok := st.savedResult(1)
	if !ok || r.NewCount != 1 {
		t.Fatalf("expected persisted result with one new shift, got %+v", r)
	}
	if n.count() != 1 {
		t.Fatalf("expected one notification, got %d", n.count())
	}

	// Second identical check: shift is now old, no notification.
	w.CheckUser(context.Background(), 1)
	r, _ = st.savedResult(1)
	if r.NewCount != 0 || r.OldCount != 1 {
		t.Fatalf("expected shift to age into old, got %+v", r)
	}
	if n.count() != 1 {
		t.Fatalf("no-new-shifts check must not notify, got %d", n.count())
	}
}

func TestCheckUserInFlightGuard(t *testing.T) {
	st := newFakeStore()
	st.put(storage.User{ID: 1, Identifier: "a", Secret: "b", State: storage.StateActive})
	block := make(chan struct{})
	src := &fakeSource{block: block}
	n := &fakeNotifier{}
	w := newTestWatcher(st, src, n)

	done := make(chan struct{})
	go func() {
		w.CheckUser(context.Background(), 1)
		close(done)
	}()
	waitFor(t, func() bool { return src.fetchCount() == 1 }, "first fetch to start")

	// Second call must return immediately without a second fetch.
	w.CheckUser(context.Background(), 1)
	if got := src.fetchCount(); got != 1 {
		t.Fatalf("expected exactly one fetch, got %d", got)
	}

	close(block)
	<-done

	// Guard released: the next call fetches again.
	w.CheckUser(context.Background(), 1)
	if got := src.fetchCount(); got != 2 {
		t.Fatalf("guard not released, fetches=%d", got)
	}
}

func TestCheckUserFetchFailureLeavesStateUntouched(t *testing.T) {
	st := newFakeStore()
	prev := shifts.Reconcile([]shifts.Shift{
		{Date: "01.02.2026", TimeFrom: "08:00", TimeTo: "16:00", Responsible: "Novak"},
	}, nil, shifts.Empty())
	st.put(storage.User{ID: 1, Identifier: "a", Secret: "b", State: storage.StateActive, Reconciliation: prev})
	src := &fakeSource{err: errors.New("portal down")}
	n := &fakeNotifier{}
	w := newTestWatcher(st, src, n)

	w.CheckUser(context.Background(), 1)

	if _, ok := st.savedResult(1); ok {
		t.Fatalf("failed fetch must not persist anything")
	}
	if n.count() != 0 {
		t.Fatalf("failed fetch must not notify")
	}
	u, _ := st.GetUser(context.Background(), 1)
	if u.Reconciliation.NewCount != prev.NewCount {
		t.Fatalf("previous reconciliation lost: %+v", u.Reconciliation)
	}
}

func TestCheckUserPersistFailureReleasesGuard(t *testing.T) {
	st := newFakeStore()
	st.failSave = true
	st.put(storage.User{ID: 1, Identifier: "a", Secret: "b", State: storage.StateActive})
	src := &fakeSource{}
	w := newTestWatcher(st, src, &fakeNotifier{})

	w.CheckUser(context.Background(), 1)
	w.CheckUser(context.Background(), 1)

	if got := src.fetchCount(); got != 2 {
		t.Fatalf("guard must release after persist failure, fetches=%d", got)
	}
}

func TestCheckUserMissingUserStopsTimer(t *testing.T) {
	st := newFakeStore()
	src := &fakeSource{}
	w := newTestWatcher(st, src, &fakeNotifier{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	st.put(storage.User{ID: 1, Identifier: "a", Secret: "b", State: storage.StateActive})
	w.StartUser(1)
	waitFor(t, func() bool { return src.fetchCount() >= 1 }, "initial check")

	_ = st.DeleteUser(context.Background(), 1)
	w.CheckUser(context.Background(), 1)

	w.mu.Lock()
	_, hasTimer := w.timers[1]
	w.mu.Unlock()
	if hasTimer {
		t.Fatalf("timer must be retired when the user row is gone")
	}
}

// ---- scheduler ----

func TestStartUserIsIdempotent(t *testing.T) {
	st := newFakeStore()
	st.put(storage.User{ID: 1, Identifier: "a", Secret: "b", State: storage.StateActive})
	src := &fakeSource{}
	w := newTestWatcher(st, src, &fakeNotifier{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	w.StartUser(1)
	w.StartUser(1)

	w.mu.Lock()
	timers := len(w.timers)
	w.mu.Unlock()
	if timers != 1 {
		t.Fatalf("expected a single timer entry, got %d", timers)
	}
}

func TestStopUserWithoutTimerIsNoop(t *testing.T) {
	w := newTestWatcher(newFakeStore(), &fakeSource{}, &fakeNotifier{})
	w.StopUser(404) // must not panic or block
}

// ---- sweep ----

func TestSweepRemovesStoppedUser(t *testing.T) {
	st := newFakeStore()
	st.put(storage.User{ID: 1, Identifier: "a", Secret: "b", State: storage.StateStopped})
	src := &fakeSource{}
	w := newTestWatcher(st, src, &fakeNotifier{})

	w.SweepOnce(context.Background())

	if _, err := st.GetUser(context.Background(), 1); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("stopped user must be deleted, got %v", err)
	}
	if got := src.fetchCount(); got != 0 {
		t.Fatalf("stopped user must not be checked, fetches=%d", got)
	}
}

func TestSweepResumesUntrackedUser(t *testing.T) {
	st := newFakeStore()
	st.put(storage.User{ID: 1, Identifier: "a", Secret: "b", State: storage.StateActive})
	src := &fakeSource{}
	w := newTestWatcher(st, src, &fakeNotifier{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	waitFor(t, func() bool { return w.tracksActive(1) }, "startup sweep to resume user")
	waitFor(t, func() bool { return src.fetchCount() >= 1 }, "immediate check")
}

func TestSweepLeavesActiveUserAlone(t *testing.T) {
	st := newFakeStore()
	st.put(storage.User{ID: 1, Identifier: "a", Secret: "b", State: storage.StateActive})
	src := &fakeSource{}
	w := newTestWatcher(st, src, &fakeNotifier{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	w.StartUser(1)
	w.MarkActive(1)
	waitFor(t, func() bool { return src.fetchCount() >= 1 }, "initial check")
	before := src.fetchCount()

	w.SweepOnce(ctx)

	w.mu.Lock()
	timers := len(w.timers)
	w.mu.Unlock()
	if timers != 1 {
		t.Fatalf("sweep must not duplicate timers, got %d", timers)
	}
	// Give any erroneous async check a moment to surface.
	time.Sleep(50 * time.Millisecond)
	if got := src.fetchCount(); got != before {
		t.Fatalf("sweep must not re-check an active user: %d -> %d", before, got)
	}
}

func TestSweepMarkStoppedInMemoryWins(t *testing.T) {
	// A user persisted as active but flagged stopped in memory (e.g.
	// /stop raced a store write) is still torn down by the sweep.
	st := newFakeStore()
	st.put(storage.User{ID: 1, Identifier: "a", Secret: "b", State: storage.StateActive})
	src := &fakeSource{}
	w := newTestWatcher(st, src, &fakeNotifier{})
	w.MarkStopped(1)

	w.SweepOnce(context.Background())

	if _, err := st.GetUser(context.Background(), 1); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("stopped-in-memory user must be deleted, got %v", err)
	}
}
