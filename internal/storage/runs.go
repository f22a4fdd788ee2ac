package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// CrawlRun is one crawl of one source, with its final counters.
type CrawlRun struct {
	ID           uuid.UUID  `json:"id"`
	Source       string     `json:"source"`
	Status       string     `json:"status"`
	StopReason   string     `json:"stop_reason,omitempty"`
	PagesFetched int        `json:"pages_fetched"`
	PagesFailed  int        `json:"pages_failed"`
	RecordsKept  int        `json:"records_kept"`
	Duplicates   int        `json:"duplicates"`
	Incomplete   int        `json:"incomplete"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// RunUpdate carries the final state written when a run ends.
type RunUpdate struct {
	Status       string
	StopReason   string
	PagesFetched int
	PagesFailed  int
	RecordsKept  int
	Duplicates   int
	Incomplete   int
	ErrorMessage string
}

// RunRepository persists crawl runs
type RunRepository struct {
	db *DB
}

func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a new run in the running state.
func (r *RunRepository) Create(ctx context.Context, source string) (*CrawlRun, error) {
	run := &CrawlRun{
		ID:        uuid.New(),
		Source:    source,
		Status:    RunStatusRunning,
		StartedAt: time.Now(),
	}

	query := `
		INSERT INTO crawl_run (id, source, status, started_at)
		VALUES ($1, $2, $3, $4)`

	if _, err := r.db.pool.Exec(ctx, query, run.ID, run.Source, run.Status, run.StartedAt); err != nil {
		return nil, fmt.Errorf("failed to insert crawl run: %w", err)
	}

	return run, nil
}

// Finish records the final counters and stop reason of a run.
func (r *RunRepository) Finish(ctx context.Context, id uuid.UUID, upd RunUpdate) error {
	query := `
		UPDATE crawl_run SET
			status = $2,
			stop_reason = $3,
			pages_fetched = $4,
			pages_failed = $5,
			records_kept = $6,
			duplicates = $7,
			incomplete = $8,
			error_message = NULLIF($9, ''),
			finished_at = CURRENT_TIMESTAMP
		WHERE id = $1`

	result, err := r.db.pool.Exec(ctx, query,
		id, upd.Status, upd.StopReason, upd.PagesFetched, upd.PagesFailed,
		upd.RecordsKept, upd.Duplicates, upd.Incomplete, upd.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to finish crawl run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("run not found: %s", id)
	}

	return nil
}

// ListRuns returns the most recent runs, newest first.
func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]CrawlRun, error) {
	query := `
		SELECT id, source, status, COALESCE(stop_reason, ''),
			pages_fetched, pages_failed, records_kept, duplicates, incomplete,
			error_message, started_at, finished_at
		FROM crawl_run
		ORDER BY started_at DESC
		LIMIT $1`

	rows, err := r.db.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query crawl runs: %w", err)
	}
	defer rows.Close()

	var runs []CrawlRun
	for rows.Next() {
		var run CrawlRun
		err := rows.Scan(
			&run.ID, &run.Source, &run.Status, &run.StopReason,
			&run.PagesFetched, &run.PagesFailed, &run.RecordsKept, &run.Duplicates, &run.Incomplete,
			&run.ErrorMessage, &run.StartedAt, &run.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan crawl run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return runs, nil
}
