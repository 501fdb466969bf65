package storage

import (
	"context"
	"errors"
	"time"

	"shiftwatch/internal/shifts"
)

var ErrNotFound = errors.New("user not found")

// UserState is the persisted lifecycle state of a watched user.
type UserState string

const (
	StateActive  UserState = "active"
	StateStopped UserState = "stopped"
)

// User is the persisted record for one watched chat.
//
// The watcher never keeps a copy of this; it is re-read on every check
// so credentials and reconciliation state have a single owner.
type User struct {
	ID             int64
	Identifier     string
	Secret         string
	State          UserState
	Reconciliation shifts.Result
	LastSeen       time.Time
}

// Config configures storage.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Store is the persistence API used by the watcher and the bot.
type Store interface {
	UpsertUser(ctx context.Context, u *User) error
	// DeleteUser removes the user row. Deleting an absent user is not an error.
	DeleteUser(ctx context.Context, id int64) error
	// GetUser returns ErrNotFound when the id is unknown.
	GetUser(ctx context.Context, id int64) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	SaveReconciliation(ctx context.Context, id int64, r shifts.Result) error
	SetState(ctx context.Context, id int64, state UserState) error
	Close() error
}
