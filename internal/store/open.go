package store

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

	_ "modernc.org/sqlite"

	logx "predictbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Config configures the SQLite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration  // 0 means driver default
	Location    *time.Location // calendar period / timestamp zone; nil = UTC
}

// Store is the single persistence layer: recipient directory, prediction
// lifecycle and choice ledger all live here so that their invariants
// (one scheduled, one active, one choice per month) are enforced by the
// database, not just the application.
type Store struct {
	db  *sql.DB
	log logx.Logger
	loc *time.Location

	now func() time.Time // overridable in tests
}

func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer; every mutation here is one transaction.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	st := &Store{db: db, log: log, loc: loc, now: time.Now}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- shared helpers ----

func (s *Store) timeNow() time.Time { return s.now().In(s.loc) }

func fmtTime(t time.Time) string { return t.Format(time.RFC3339Nano) }

func parseTime(raw string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.In(loc), nil
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

// isUniqueViolation reports whether err is a SQLite unique-constraint
// failure. The modernc driver surfaces these as textual errors, so the check
// is by message; constraint names are stable in migrations.sql.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
