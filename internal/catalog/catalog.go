package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Run is one recorded refresh attempt.
type Run struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Trigger    string    `json:"trigger"`
	Status     string    `json:"status"`
	Total      int       `json:"total"`
	Added      int       `json:"added"`
	Changed    int       `json:"changed"`
	Removed    int       `json:"removed"`
	Error      string    `json:"error,omitempty"`
}

// Run statuses.
const (
	StatusChanged   = "changed"
	StatusUnchanged = "unchanged"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// Version is one indexed build as last observed.
type Version struct {
	Version   string    `json:"version"`
	URL       string    `json:"url"`
	SHA256    string    `json:"sha256,omitempty"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Catalog persists refresh history and the observed version set in a
// local sqlite database.
type Catalog struct {
	mu sync.Mutex
	db *sql.DB
}

func Open(path string) (*Catalog, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return &Catalog{db: db}, nil
}

func (c *Catalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Close()
}

// NewRunID mints an identifier for a refresh run.
func NewRunID() string {
	return uuid.NewString()
}

// RecordRun stores a finished run.
func (c *Catalog) RecordRun(ctx context.Context, run Run) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if run.ID == "" {
		run.ID = NewRunID()
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (id, started_at, finished_at, trigger, status, total, added, changed, removed, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.StartedAt.UTC().Format(time.RFC3339),
		run.FinishedAt.UTC().Format(time.RFC3339),
		run.Trigger,
		run.Status,
		run.Total,
		run.Added,
		run.Changed,
		run.Removed,
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// RecordVersions upserts the observed version set in a single
// transaction, preserving first_seen for versions already known.
func (c *Catalog) RecordVersions(ctx context.Context, versions []Version, seenAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO versions (version, url, sha256, first_seen, last_seen)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(version) DO UPDATE SET
		   url = excluded.url,
		   sha256 = excluded.sha256,
		   last_seen = excluded.last_seen`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	stamp := seenAt.UTC().Format(time.RFC3339)
	for _, v := range versions {
		if _, err := stmt.ExecContext(ctx, v.Version, v.URL, v.SHA256, stamp, stamp); err != nil {
			return fmt.Errorf("upsert version %s: %w", v.Version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit versions: %w", err)
	}
	return nil
}

// RecentRuns returns the newest runs, most recent first.
func (c *Catalog) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, trigger, status, total, added, changed, removed, error
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &started, &finished, &r.Trigger, &r.Status, &r.Total, &r.Added, &r.Changed, &r.Removed, &r.Error); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Versions lists every version the catalog has ever observed, newest
// last_seen first, version descending within a stamp.
func (c *Catalog) Versions(ctx context.Context) ([]Version, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.QueryContext(ctx,
		`SELECT version, url, sha256, first_seen, last_seen
		 FROM versions ORDER BY last_seen DESC, version DESC`)
	if err != nil {
		return nil, fmt.Errorf("query versions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var versions []Version
	for rows.Next() {
		var v Version
		var first, last string
		if err := rows.Scan(&v.Version, &v.URL, &v.SHA256, &first, &last); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		v.FirstSeen, _ = time.Parse(time.RFC3339, first)
		v.LastSeen, _ = time.Parse(time.RFC3339, last)
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return versions, nil
}
