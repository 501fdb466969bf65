package shifts

import (
	"reflect"
	"testing"
)

func shift(date, from, to, resp string) Shift {
	return Shift{Date: date, TimeFrom: from, TimeTo: to, Responsible: resp, Allowed: true}
}

func TestReconcileFirstRunAllNew(t *testing.T) {
	s1 := shift("01.02.2026", "08:00", "16:00", "Novak")

	got := Reconcile([]Shift{s1}, nil, Empty())

	if got.NewCount != 1 || len(got.New) != 1 || got.New[0] != s1 {
		t.Fatalf("expected [s1] as new, got %+v", got)
	}
	if got.OldCount != 0 || len(got.Old) != 0 {
		t.Fatalf("expected no old shifts, got %+v", got.Old)
	}
}

func TestReconcileKnownShiftStaysOld(t *testing.T) {
	s1 := shift("01.02.2026", "08:00", "16:00", "Novak")
	prev := Result{Old: []Shift{s1}, OldCount: 1}

	got := Reconcile([]Shift{s1}, nil, prev)

	if got.OldCount != 1 || got.Old[0] != s1 {
		t.Fatalf("expected s1 to survive as old, got %+v", got)
	}
	if got.NewCount != 0 {
		t.Fatalf("expected no new shifts, got %+v", got.New)
	}
}

func TestReconcileExpiredShiftForgotten(t *testing.T) {
	s1 := shift("01.02.2026", "08:00", "16:00", "Novak")
	prev := Result{New: []Shift{s1}, NewCount: 1}

	got := Reconcile(nil, nil, prev)

	if got.OldCount != 0 || got.NewCount != 0 {
		t.Fatalf("expected expired shift dropped, got %+v", got)
	}

	// Monotonic forgetting: it must not resurface on the next cycle either.
	next := Reconcile(nil, nil, got)
	if next.OldCount != 0 || next.NewCount != 0 {
		t.Fatalf("forgotten shift resurfaced: %+v", next)
	}
}

func TestReconcileMixedOldAndNew(t *testing.T) {
	s1 := shift("01.02.2026", "08:00", "16:00", "Novak")
	s2 := shift("02.02.2026", "10:00", "18:00", "Kovac")
	prev := Result{Old: []Shift{s1}, OldCount: 1}

	got := Reconcile([]Shift{s1, s2}, nil, prev)

	if got.OldCount != 1 || got.Old[0] != s1 {
		t.Fatalf("expected old=[s1], got %+v", got.Old)
	}
	if got.NewCount != 1 || got.New[0] != s2 {
		t.Fatalf("expected new=[s2], got %+v", got.New)
	}
}

func TestReconcilePartitionByKey(t *testing.T) {
	s1 := shift("01.02.2026", "08:00", "16:00", "Novak")
	s2 := shift("02.02.2026", "10:00", "18:00", "Kovac")
	s3 := shift("03.02.2026", "12:00", "20:00", "Horvat")
	prev := Result{Old: []Shift{s1}, New: []Shift{s2}, OldCount: 1, NewCount: 1}

	got := Reconcile([]Shift{s2, s3}, nil, prev)

	seen := map[string]string{}
	for _, s := range got.Old {
		seen[s.Key()] = "old"
	}
	for _, s := range got.New {
		if seen[s.Key()] == "old" {
			t.Fatalf("key %q in both buckets", s.Key())
		}
	}

	// Everything classified must be present in the latest invited batch.
	invited := map[string]bool{s2.Key(): true, s3.Key(): true}
	for _, s := range append(append([]Shift{}, got.Old...), got.New...) {
		if !invited[s.Key()] {
			t.Fatalf("stale shift retained: %+v", s)
		}
	}
}

func TestReconcileAllowedFlipKeepsIdentity(t *testing.T) {
	s1 := shift("01.02.2026", "08:00", "16:00", "Novak")
	flipped := s1
	flipped.Allowed = false
	prev := Result{New: []Shift{s1}, NewCount: 1}

	got := Reconcile([]Shift{flipped}, nil, prev)

	if got.NewCount != 0 {
		t.Fatalf("allowed flip must not create a new shift: %+v", got.New)
	}
	if got.OldCount != 1 {
		t.Fatalf("expected shift to stay known, got %+v", got)
	}
}

func TestReconcileScheduledReplacedWholesale(t *testing.T) {
	oldSched := shift("01.02.2026", "08:00", "16:00", "Novak")
	newSched := shift("05.02.2026", "08:00", "16:00", "Kovac")
	prev := Result{Scheduled: []Shift{oldSched}, ScheduledCount: 1}

	got := Reconcile(nil, []Shift{newSched}, prev)

	if got.ScheduledCount != 1 || got.Scheduled[0] != newSched {
		t.Fatalf("scheduled must mirror the latest fetch, got %+v", got.Scheduled)
	}
}

func TestReconcileDuplicateKeysPreserveMultiplicity(t *testing.T) {
	s1 := shift("01.02.2026", "08:00", "16:00", "Novak")

	got := Reconcile([]Shift{s1, s1}, nil, Empty())

	if got.NewCount != 2 {
		t.Fatalf("expected duplicates preserved, got %+v", got.New)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	s1 := shift("01.02.2026", "08:00", "16:00", "Novak")
	s2 := shift("02.02.2026", "10:00", "18:00", "Kovac")
	prev := Result{Old: []Shift{s1}, OldCount: 1}

	a := Reconcile([]Shift{s1, s2}, []Shift{s1}, prev)
	b := Reconcile([]Shift{s1, s2}, []Shift{s1}, prev)

	if !reflect.DeepEqual(a, b) {
		t.Fatalf("reconcile not idempotent:\n%+v\n%+v", a, b)
	}
}
