package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/heimdall-intel/asis-cli/internal/model"
)

// RunCounters aggregates per-catalog outcomes of one ingestion batch.
type RunCounters struct {
	Total     int
	Succeeded int
	Skipped   int
	Failed    int
}

// IngestionRun is one row of ingestion_runs.
type IngestionRun struct {
	ID         string
	Frequency  model.Frequency
	Status     string
	StartedAt  time.Time
	FinishedAt *time.Time
	RunCounters
}

// StartRun records the beginning of an ingestion batch and returns its ID.
func (s *Store) StartRun(ctx context.Context, freq model.Frequency) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ingestion_runs (id, frequency, status, started_at)
		 VALUES (?, ?, 'running', ?)`,
		id, string(freq), time.Now().UTC())
	if err != nil {
		return "", eris.Wrap(err, "store: start run")
	}
	return id, nil
}

// CompleteRun marks a batch finished with its aggregate counters.
func (s *Store) CompleteRun(ctx context.Context, id string, c RunCounters) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE ingestion_runs
		 SET status = 'complete', finished_at = ?, total = ?, succeeded = ?, skipped = ?, failed = ?
		 WHERE id = ?`,
		time.Now().UTC(), c.Total, c.Succeeded, c.Skipped, c.Failed, id)
	return eris.Wrapf(err, "store: complete run %s", id)
}

// RecentRuns returns the most recent ingestion batches, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]IngestionRun, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, frequency, status, started_at, finished_at, total, succeeded, skipped, failed
		 FROM ingestion_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "store: recent runs")
	}
	defer rows.Close()

	var runs []IngestionRun
	for rows.Next() {
		var r IngestionRun
		if err := rows.Scan(&r.ID, &r.Frequency, &r.Status, &r.StartedAt, &r.FinishedAt,
			&r.Total, &r.Succeeded, &r.Skipped, &r.Failed); err != nil {
			return nil, eris.Wrap(err, "store: scan run")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "store: iterate runs")
}
