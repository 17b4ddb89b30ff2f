// Package pgjobs implements the job store against Postgres, following
// the same EnsureSchema and pool idiom as internal/infra/pgcache.
package pgjobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hnzh/internal/domain/jobs"
)

const jobsTable = "hnzh_jobs"

// Store implements jobs.Store backed by a pgxpool.Pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ jobs.Store = (*Store)(nil)

// New creates a Store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the jobs table if absent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("pgjobs store not initialized")
	}
	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+jobsTable+` (
		job_id     TEXT PRIMARY KEY,
		item_id    INTEGER NOT NULL,
		kind       TEXT NOT NULL,
		status     TEXT NOT NULL DEFAULT 'queued',
		progress   INTEGER NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("ensure jobs schema: %w", err)
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_hnzh_jobs_item_kind ON `+jobsTable+` (item_id, kind)`)
	if err != nil {
		return fmt.Errorf("ensure jobs index: %w", err)
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_hnzh_jobs_status ON `+jobsTable+` (status)`)
	if err != nil {
		return fmt.Errorf("ensure jobs status index: %w", err)
	}
	return nil
}

// Create inserts a new job row in "queued" and returns its generated ID.
func (s *Store) Create(ctx context.Context, itemID int, kind jobs.Kind) (string, error) {
	jobID := uuid.NewString()
	now := time.Now().Unix()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+jobsTable+` (job_id, item_id, kind, status, progress, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		jobID, itemID, string(kind), string(jobs.StatusQueued), 0, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("create job for item %d: %w", itemID, err)
	}
	return jobID, nil
}

// UpdateStatus transitions a job's status, optionally updating progress.
func (s *Store) UpdateStatus(ctx context.Context, jobID string, status jobs.Status, progress *int) error {
	now := time.Now().Unix()
	if progress != nil {
		_, err := s.pool.Exec(ctx,
			`UPDATE `+jobsTable+` SET status = $1, progress = $2, updated_at = $3 WHERE job_id = $4`,
			string(status), *progress, now, jobID,
		)
		if err != nil {
			return fmt.Errorf("update job %s status: %w", jobID, err)
		}
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE `+jobsTable+` SET status = $1, updated_at = $2 WHERE job_id = $3`,
		string(status), now, jobID,
	)
	if err != nil {
		return fmt.Errorf("update job %s status: %w", jobID, err)
	}
	return nil
}

// FindByItemAndKind returns the most recently created job for itemID/kind,
// or nil if none exists.
func (s *Store) FindByItemAndKind(ctx context.Context, itemID int, kind jobs.Kind) (*jobs.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT job_id, item_id, kind, status, progress, created_at, updated_at
		 FROM `+jobsTable+` WHERE item_id = $1 AND kind = $2 ORDER BY created_at DESC LIMIT 1`,
		itemID, string(kind),
	)
	j, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find job for item %d kind %s: %w", itemID, kind, err)
	}
	return j, nil
}

// FindByStatus returns every job in the given status.
func (s *Store) FindByStatus(ctx context.Context, status jobs.Status) ([]jobs.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT job_id, item_id, kind, status, progress, created_at, updated_at
		 FROM `+jobsTable+` WHERE status = $1 ORDER BY created_at ASC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("find jobs by status %s: %w", status, err)
	}
	defer rows.Close()

	var out []jobs.Job
	for rows.Next() {
		j, err := scanJobRows(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

// DeleteCompleted removes every job in a terminal state.
func (s *Store) DeleteCompleted(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM `+jobsTable+` WHERE status IN ($1, $2)`,
		string(jobs.StatusDone), string(jobs.StatusError))
	if err != nil {
		return fmt.Errorf("delete completed jobs: %w", err)
	}
	return nil
}

// Delete removes a single job row.
func (s *Store) Delete(ctx context.Context, jobID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM `+jobsTable+` WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("delete job %s: %w", jobID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*jobs.Job, error) {
	var j jobs.Job
	var kind, status string
	if err := row.Scan(&j.JobID, &j.ItemID, &kind, &status, &j.Progress, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.Kind = jobs.Kind(kind)
	j.Status = jobs.Status(status)
	return &j, nil
}

func scanJobRows(rows pgx.Rows) (*jobs.Job, error) {
	return scanJob(rows)
}
