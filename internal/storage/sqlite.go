package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"shiftwatch/internal/shifts"
	"shiftwatch/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

// Open initializes the SQLite-backed user store at cfg.Path.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) UpsertUser(ctx context.Context, u *User) error {
	if u == nil {
		return errors.New("nil user")
	}
	state := u.State
	if state == "" {
		state = StateActive
	}
	rec, err := json.Marshal(u.Reconciliation)
	if err != nil {
		return fmt.Errorf("marshal reconciliation: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, identifier, secret, state, reconciliation, last_seen)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			identifier = excluded.identifier,
			secret     = excluded.secret,
			state      = excluded.state,
			last_seen  = excluded.last_seen`,
		u.ID, u.Identifier, u.Secret, string(state), string(rec), time.Now().UnixMilli(),
	)
	return err
}

func (s *sqliteStore) DeleteUser(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE user_id = ?`, id)
	return err
}

func (s *sqliteStore) GetUser(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, identifier, secret, state, reconciliation, last_seen
		FROM users WHERE user_id = ?`, id)
	u, err := scanUser(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *sqliteStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, identifier, secret, state, reconciliation, last_seen
		FROM users ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *sqliteStore) SaveReconciliation(ctx context.Context, id int64, r shifts.Result) error {
	rec, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal reconciliation: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET reconciliation = ?, last_seen = ? WHERE user_id = ?`,
		string(rec), time.Now().UnixMilli(), id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) SetState(ctx context.Context, id int64, state UserState) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET state = ? WHERE user_id = ?`, string(state), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(scan func(dest ...any) error) (*User, error) {
	var (
		id       int64
		ident    string
		secret   string
		state    string
		rec      string
		lastSeen int64
	)
	if err := scan(&id, &ident, &secret, &state, &rec, &lastSeen); err != nil {
		return nil, err
	}

	u := &User{
		ID:         id,
		Identifier: ident,
		Secret:     secret,
		State:      UserState(state),
		LastSeen:   time.UnixMilli(lastSeen),
	}
	if strings.TrimSpace(rec) != "" && rec != "{}" {
		if err := json.Unmarshal([]byte(rec), &u.Reconciliation); err != nil {
			return nil, fmt.Errorf("decode reconciliation for user %d: %w", id, err)
		}
	}
	return u, nil
}
