package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Archiver moves terminal tasks older than a retention window out of the
// primary document, per the Queue Manager's compression/archival policy.
// With a Postgres DSN configured it streams rows into a cold-storage
// table; otherwise it falls back to a bounded set of rotating JSON files
// on disk, keeping at most maxFiles of them.
type Archiver struct {
	pool     *pgxpool.Pool
	dir      string
	maxFiles int
}

// NewArchiver connects to dsn if non-empty; an empty dsn produces a
// file-backed archiver with no database dependency.
func NewArchiver(ctx context.Context, dsn, dir string, maxFiles int) (*Archiver, error) {
	a := &Archiver{dir: dir, maxFiles: maxFiles}
	if dsn == "" {
		return a, nil
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing archive dsn: %w", err)
	}
	cfg.MaxConns = 5
	cfg.MinConns = 1
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to archive store: %w", err)
	}
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS task_archive (
			task_id TEXT PRIMARY KEY,
			task_type TEXT NOT NULL,
			status TEXT NOT NULL,
			payload JSONB NOT NULL,
			archived_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating task_archive table: %w", err)
	}
	a.pool = pool
	return a, nil
}

// Archive moves each task into cold storage and returns the number
// successfully archived. A failure on one task is logged and skipped; it
// does not abort the remaining batch.
func (a *Archiver) Archive(ctx context.Context, tasks []*Task) int {
	if a.pool != nil {
		return a.archiveToPostgres(ctx, tasks)
	}
	return a.archiveToFiles(tasks)
}

func (a *Archiver) archiveToPostgres(ctx context.Context, tasks []*Task) int {
	n := 0
	for _, t := range tasks {
		payload, err := json.Marshal(t)
		if err != nil {
			log.Printf("[archive] skipping task %s: marshal error: %v", t.ID, err)
			continue
		}
		_, err = a.pool.Exec(ctx, `
			INSERT INTO task_archive (task_id, task_type, status, payload)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (task_id) DO NOTHING`, t.ID, t.Type, t.Status, payload)
		if err != nil {
			log.Printf("[archive] failed to archive task %s: %v", t.ID, err)
			continue
		}
		n++
	}
	return n
}

// archiveToFiles appends tasks to a new rotating JSON file and prunes
// anything beyond maxFiles, oldest first.
func (a *Archiver) archiveToFiles(tasks []*Task) int {
	if len(tasks) == 0 {
		return 0
	}
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		log.Printf("[archive] cannot create archive directory: %v", err)
		return 0
	}

	name := filepath.Join(a.dir, fmt.Sprintf("archive-%d.json", time.Now().UnixNano()))
	if err := writeAtomic(name, tasks); err != nil {
		log.Printf("[archive] failed to write archive file: %v", err)
		return 0
	}

	a.pruneFiles()
	return len(tasks)
}

func (a *Archiver) pruneFiles() {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for len(names) > a.maxFiles {
		os.Remove(filepath.Join(a.dir, names[0]))
		names = names[1:]
	}
}

// Close releases the Postgres pool, if any.
func (a *Archiver) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}
