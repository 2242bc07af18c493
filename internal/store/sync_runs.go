package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// RecordSyncRun persists the outcome of a synchronization run.
func (s *Store) RecordSyncRun(ctx context.Context, run *SyncRun) error {
	if run == nil {
		return errors.New("sync run is nil")
	}
	if strings.TrimSpace(run.RunID) == "" {
		return errors.New("record sync run: run id required")
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO sync_runs (
            run_id, full_sync, status, message, started_at, finished_at,
            initial_db_count, final_db_count, added, updated, skipped, failed, checked_api
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID,
		boolToInt(run.FullSync),
		run.Status,
		nullableString(run.Message),
		formatTime(run.StartedAt),
		formatTime(run.FinishedAt),
		run.InitialDBCount,
		run.FinalDBCount,
		run.Added,
		run.Updated,
		run.Skipped,
		run.Failed,
		run.CheckedAPI,
	)
	if err != nil {
		return fmt.Errorf("record sync run: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		run.ID = id
	}
	return nil
}

// ListSyncRuns returns the most recent sync runs, newest first.
func (s *Store) ListSyncRuns(ctx context.Context, limit int) ([]SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT id, run_id, full_sync, status, COALESCE(message, ''), started_at, finished_at,
                initial_db_count, final_db_count, added, updated, skipped, failed, checked_api
         FROM sync_runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sync runs: %w", err)
	}
	defer rows.Close()

	var runs []SyncRun
	for rows.Next() {
		var (
			run         SyncRun
			fullSync    int
			startedRaw  string
			finishedRaw string
		)
		if err := rows.Scan(
			&run.ID, &run.RunID, &fullSync, &run.Status, &run.Message, &startedRaw, &finishedRaw,
			&run.InitialDBCount, &run.FinalDBCount, &run.Added, &run.Updated, &run.Skipped, &run.Failed, &run.CheckedAPI,
		); err != nil {
			return nil, fmt.Errorf("scan sync run: %w", err)
		}
		run.FullSync = fullSync != 0
		if t, err := parseTimeString(startedRaw); err == nil {
			run.StartedAt = t
		}
		if t, err := parseTimeString(finishedRaw); err == nil {
			run.FinishedAt = t
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
