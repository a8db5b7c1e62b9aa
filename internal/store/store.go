// Package store persists watermarks and cycle history in SQLite. Posts
// themselves are never stored.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Cycle is one recorded ingestion run.
type Cycle struct {
	ID         string    `json:"id"`
	Trigger    string    `json:"trigger"` // fetch, serve, schedule
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Since      time.Time `json:"since"`
	Sources    int       `json:"sources"`
	Failed     int       `json:"failed"`
	Posts      int       `json:"posts"`
	Delivery   string    `json:"delivery"`
	Error      string    `json:"error,omitempty"`
}

// CycleSource is the outcome of one source within a recorded cycle.
type CycleSource struct {
	Source   string        `json:"source"`
	Fetched  int           `json:"fetched"`
	New      int           `json:"new"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// CycleInput is what callers record after a run.
type CycleInput struct {
	Trigger    string
	StartedAt  time.Time
	FinishedAt time.Time
	Since      time.Time
	Posts      int
	Delivery   string
	Error      string
	Sources    []CycleSource
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path is required")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; the scheduler and the HTTP server may share a store.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	return s.db.PingContext(ctx)
}

// Watermark returns the stored watermark for key. ok is false when none
// has been saved yet.
func (s *Store) Watermark(ctx context.Context, key string) (since time.Time, ok bool, err error) {
	if s == nil || s.db == nil {
		return time.Time{}, false, errors.New("store is not initialized")
	}
	var value string
	err = s.db.QueryRowContext(ctx, "SELECT since FROM watermarks WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read watermark %q: %w", key, err)
	}
	since, err = parseTime(value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse watermark %q: %w", key, err)
	}
	return since, true, nil
}

// SetWatermark stores since under key, replacing any previous value.
func (s *Store) SetWatermark(ctx context.Context, key string, since time.Time) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	if strings.TrimSpace(key) == "" {
		return errors.New("watermark key is required")
	}
	if since.IsZero() {
		return errors.New("watermark time is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watermarks(key, since, updated_at) VALUES(?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET since = excluded.since, updated_at = excluded.updated_at
	`, key, formatTime(since), formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("save watermark %q: %w", key, err)
	}
	return nil
}

// RecordCycle stores a finished cycle and its per-source outcomes.
func (s *Store) RecordCycle(ctx context.Context, in CycleInput) (Cycle, error) {
	if s == nil || s.db == nil {
		return Cycle{}, errors.New("store is not initialized")
	}
	if strings.TrimSpace(in.Trigger) == "" {
		return Cycle{}, errors.New("trigger is required")
	}
	if in.StartedAt.IsZero() {
		return Cycle{}, errors.New("started_at is required")
	}
	if in.FinishedAt.IsZero() {
		in.FinishedAt = s.now()
	}

	c := Cycle{
		ID:         uuid.NewString(),
		Trigger:    in.Trigger,
		StartedAt:  in.StartedAt.UTC(),
		FinishedAt: in.FinishedAt.UTC(),
		Since:      in.Since.UTC(),
		Sources:    len(in.Sources),
		Posts:      in.Posts,
		Delivery:   in.Delivery,
		Error:      in.Error,
	}
	for _, src := range in.Sources {
		if src.Error != "" {
			c.Failed++
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Cycle{}, fmt.Errorf("begin record transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO cycles(id, trigger, started_at, finished_at, since, sources, failed, posts, delivery, error)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.Trigger, formatTime(c.StartedAt), formatTime(c.FinishedAt), formatTime(c.Since),
		c.Sources, c.Failed, c.Posts, c.Delivery, nullString(c.Error)); err != nil {
		_ = tx.Rollback()
		return Cycle{}, fmt.Errorf("insert cycle: %w", err)
	}
	for i, src := range in.Sources {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO cycle_sources(cycle_id, position, source, fetched, new_posts, error, duration_ms)
			VALUES(?, ?, ?, ?, ?, ?, ?)
		`, c.ID, i, src.Source, src.Fetched, src.New, nullString(src.Error), src.Duration.Milliseconds()); err != nil {
			_ = tx.Rollback()
			return Cycle{}, fmt.Errorf("insert cycle source: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return Cycle{}, fmt.Errorf("commit cycle: %w", err)
	}
	return c, nil
}

// RecentCycles returns up to limit cycles, newest first.
func (s *Store) RecentCycles(ctx context.Context, limit int) ([]Cycle, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trigger, started_at, finished_at, since, sources, failed, posts, delivery, error
		FROM cycles
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query cycles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var cycles []Cycle
	for rows.Next() {
		var (
			c                          Cycle
			startedAt, finished, since string
			errVal                     sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Trigger, &startedAt, &finished, &since,
			&c.Sources, &c.Failed, &c.Posts, &c.Delivery, &errVal); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		if c.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if c.FinishedAt, err = parseTime(finished); err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		if c.Since, err = parseTime(since); err != nil {
			return nil, fmt.Errorf("parse since: %w", err)
		}
		c.Error = errVal.String
		cycles = append(cycles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cycles: %w", err)
	}
	return cycles, nil
}

// CycleSources returns the per-source outcomes of a cycle in registration order.
func (s *Store) CycleSources(ctx context.Context, cycleID string) ([]CycleSource, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, fetched, new_posts, error, duration_ms
		FROM cycle_sources
		WHERE cycle_id = ?
		ORDER BY position
	`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("query cycle sources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []CycleSource
	for rows.Next() {
		var (
			cs     CycleSource
			errVal sql.NullString
			ms     int64
		)
		if err := rows.Scan(&cs.Source, &cs.Fetched, &cs.New, &errVal, &ms); err != nil {
			return nil, fmt.Errorf("scan cycle source: %w", err)
		}
		cs.Error = errVal.String
		cs.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cycle sources: %w", err)
	}
	return out, nil
}

// PruneCycles deletes cycles older than retainDays. cycle_sources rows are
// cascade-deleted. Returns the number of cycles removed.
func (s *Store) PruneCycles(ctx context.Context, retainDays int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("store is not initialized")
	}
	if retainDays <= 0 {
		return 0, nil
	}

	cutoff := formatTime(s.now().AddDate(0, 0, -retainDays))
	res, err := s.db.ExecContext(ctx, "DELETE FROM cycles WHERE started_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune cycles: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// timeLayout is fixed width so stored timestamps compare correctly as text
// in ORDER BY and range queries.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, value)
}
