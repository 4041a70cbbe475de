// Package store archives finished fact-check sessions in SQLite or PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	_ "modernc.org/sqlite"

	"github.com/ppiankov/factloop/internal/model"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// ErrNotFound is returned when no archived session has the requested id
var ErrNotFound = errors.New("session not found in archive")

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id            TEXT PRIMARY KEY,
	claim         TEXT NOT NULL,
	verdict       TEXT NOT NULL DEFAULT '',
	terminated_by TEXT NOT NULL DEFAULT '',
	rounds        INTEGER NOT NULL DEFAULT 0,
	failed        INTEGER NOT NULL DEFAULT 0,
	result        TEXT NOT NULL,
	started_at    TEXT NOT NULL,
	finished_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_finished ON sessions(finished_at);
`

// Entry is the summary row listed by History
type Entry struct {
	ID           string    `json:"id"`
	Claim        string    `json:"claim"`
	Verdict      string    `json:"verdict"`
	TerminatedBy string    `json:"terminated_by"`
	Rounds       int       `json:"rounds"`
	Failed       bool      `json:"failed"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Store is a session archive backed by database/sql
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the archive described by cfg and creates the schema
func Open(ctx context.Context, cfg model.ArchiveConfig) (*Store, error) {
	dsn := cfg.DSN
	switch cfg.Driver {
	case DriverSQLite:
		if dsn == "" {
			return nil, fmt.Errorf("archive dsn is required for %s", cfg.Driver)
		}
		dsn = sqliteDSN(dsn)
		if !isMemory(cfg.DSN) {
			if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0755); err != nil {
				return nil, fmt.Errorf("failed to create archive directory: %w", err)
			}
		}
	case DriverPostgres:
		if dsn == "" {
			return nil, fmt.Errorf("archive dsn is required for %s", cfg.Driver)
		}
	case "":
		return nil, errors.New("archive driver not configured")
	default:
		return nil, fmt.Errorf("unknown archive driver %q (use %s or %s)", cfg.Driver, DriverSQLite, DriverPostgres)
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	// Every connection to :memory: is a separate database
	if cfg.Driver == DriverSQLite && isMemory(cfg.DSN) {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping archive: %w", err)
	}

	s := &Store{db: db, driver: cfg.Driver}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize archive schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save inserts or replaces the archived copy of a session
func (s *Store) Save(ctx context.Context, result *model.Result) error {
	if result == nil || result.SessionID == "" {
		return errors.New("archive: result has no session id")
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("archive: encode result: %w", err)
	}

	var verdict string
	if result.Report != nil {
		verdict = string(result.Report.Tag)
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO sessions (id, claim, verdict, terminated_by, rounds, failed, result, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			claim = excluded.claim,
			verdict = excluded.verdict,
			terminated_by = excluded.terminated_by,
			rounds = excluded.rounds,
			failed = excluded.failed,
			result = excluded.result,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at`),
		result.SessionID,
		result.Claim.Text,
		verdict,
		result.TerminatedBy,
		len(result.Rounds),
		boolToInt(result.Error != ""),
		string(data),
		formatTime(result.StartedAt),
		formatTime(result.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("archive: save session %s: %w", result.SessionID, err)
	}
	return nil
}

// Get loads an archived session
func (s *Store) Get(ctx context.Context, id string) (*model.Result, error) {
	var data string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT result FROM sessions WHERE id = ?`), id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("archive: get session %s: %w", id, err)
	}

	var result model.Result
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil, fmt.Errorf("archive: decode session %s: %w", id, err)
	}
	return &result, nil
}

// List returns the most recently finished sessions, newest first
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, claim, verdict, terminated_by, rounds, failed, finished_at
		FROM sessions
		ORDER BY finished_at DESC, id
		LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("archive: list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			failed   int
			finished string
		)
		if err := rows.Scan(&e.ID, &e.Claim, &e.Verdict, &e.TerminatedBy, &e.Rounds, &failed, &finished); err != nil {
			return nil, fmt.Errorf("archive: scan session: %w", err)
		}
		e.Failed = failed != 0
		e.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: list sessions: %w", err)
	}
	return entries, nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "?") {
		return dsn
	}
	if isMemory(dsn) {
		return dsn + "?_pragma=busy_timeout(5000)"
	}
	return dsn + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
}

func isMemory(dsn string) bool {
	return strings.HasPrefix(dsn, ":memory:")
}

// Times are stored as fixed-width UTC text so ordering works on both drivers
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
