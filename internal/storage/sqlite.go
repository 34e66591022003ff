//go:build sqlite
// +build sqlite

package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "ruletimer/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
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

func (s *sqliteStore) PutState(ctx context.Context, item, value string, at time.Time) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	item = strings.TrimSpace(item)
	if item == "" {
		return nil
	}
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO item_states(item, value, updated_at) VALUES(?,?,?)
		 ON CONFLICT(item) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		item, value, at.Format(time.RFC3339Nano),
	)
	return err
}

func (s *sqliteStore) GetState(ctx context.Context, item string) (StateRecord, bool, error) {
	if s == nil || s.db == nil {
		return StateRecord{}, false, ErrDisabled
	}
	if strings.TrimSpace(item) == "" {
		return StateRecord{}, false, nil
	}
	var value, at string
	err := s.db.QueryRowContext(ctx,
		`SELECT value, updated_at FROM item_states WHERE item = ?`, item,
	).Scan(&value, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return StateRecord{}, false, nil
	}
	if err != nil {
		return StateRecord{}, false, err
	}
	return StateRecord{Item: item, Value: value, UpdatedAt: parseStoredTime(at)}, true, nil
}

func (s *sqliteStore) ListStates(ctx context.Context) ([]StateRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT item, value, updated_at FROM item_states ORDER BY item`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StateRecord
	for rows.Next() {
		var item, value, at string
		if err := rows.Scan(&item, &value, &at); err != nil {
			return nil, err
		}
		out = append(out, StateRecord{Item: item, Value: value, UpdatedAt: parseStoredTime(at)})
	}
	return out, rows.Err()
}

func parseStoredTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
