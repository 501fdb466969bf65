package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"shiftwatch/internal/shifts"
	"shiftwatch/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Path: filepath.Join(t.TempDir(), "users.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestUpsertGetRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	u := &User{ID: 42, Identifier: "me@example.com", Secret: "hunter2", Reconciliation: shifts.Empty()}
	if err := st.UpsertUser(ctx, u); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := st.GetUser(ctx, 42)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Identifier != "me@example.com" || got.Secret != "hunter2" {
		t.Fatalf("unexpected user: %+v", got)
	}
	if got.State != StateActive {
		t.Fatalf("expected default active state, got %q", got.State)
	}

	// Upsert with new credentials replaces the old ones.
	u.Secret = "changed"
	if err := st.UpsertUser(ctx, u); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	got, err = st.GetUser(ctx, 42)
	if err != nil {
		t.Fatalf("get after upsert: %v", err)
	}
	if got.Secret != "changed" {
		t.Fatalf("secret not replaced: %+v", got)
	}
}

func TestGetUnknownUser(t *testing.T) {
	st := openTestStore(t)

	_, err := st.GetUser(context.Background(), 7)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteAbsentUserIsNoError(t *testing.T) {
	st := openTestStore(t)

	if err := st.DeleteUser(context.Background(), 999); err != nil {
		t.Fatalf("delete of absent user must not fail: %v", err)
	}
}

func TestSaveReconciliationPersists(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.UpsertUser(ctx, &User{ID: 1, Identifier: "a", Secret: "b"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	r := shifts.Reconcile([]shifts.Shift{
		{Date: "01.02.2026", TimeFrom: "08:00", TimeTo: "16:00", Responsible: "Novak", Allowed: true},
	}, nil, shifts.Empty())
	if err := st.SaveReconciliation(ctx, 1, r); err != nil {
		t.Fatalf("save reconciliation: %v", err)
	}

	got, err := st.GetUser(ctx, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Reconciliation.NewCount != 1 || len(got.Reconciliation.New) != 1 {
		t.Fatalf("reconciliation not persisted: %+v", got.Reconciliation)
	}
	if got.Reconciliation.New[0].Responsible != "Novak" {
		t.Fatalf("unexpected shift: %+v", got.Reconciliation.New[0])
	}
}

func TestSaveReconciliationUnknownUser(t *testing.T) {
	st := openTestStore(t)

	err := st.SaveReconciliation(context.Background(), 5, shifts.Empty())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListUsersAndState(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3} {
		if err := st.UpsertUser(ctx, &User{ID: id, Identifier: "u", Secret: "p"}); err != nil {
			t.Fatalf("upsert %d: %v", id, err)
		}
	}
	if err := st.SetState(ctx, 2, StateStopped); err != nil {
		t.Fatalf("set state: %v", err)
	}

	users, err := st.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("expected 3 users, got %d", len(users))
	}
	if users[1].ID != 2 || users[1].State != StateStopped {
		t.Fatalf("expected user 2 stopped, got %+v", users[1])
	}
}
