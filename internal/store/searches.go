// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/racecarr/racecarr/internal/model"
)

const searchColumns = `id, round_id, event_type, status, downloader_id, added_at, last_searched_at,
	next_run_at, last_error, attempts, chosen_nzb, chosen_title, tag, dispatch_token, completed_reason, force_paused`

// CreateScheduledSearch inserts a watch entry. A second entry for the same
// (round, event type) pair returns ErrConflict.
func (s *Store) CreateScheduledSearch(ctx context.Context, e model.ScheduledSearch) (model.ScheduledSearch, error) {
	var id int64
	err := s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO scheduled_searches (round_id, event_type, status, downloader_id, added_at, next_run_at, tag)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.RoundID, e.EventType, e.Status, e.DownloaderID,
			timeDB(e.AddedAt), timePtrDB(e.NextRunAt), e.Tag)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return model.ScheduledSearch{}, err
	}
	e.ID = id
	return e, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// ScheduledSearchByID returns one watch entry.
func (s *Store) ScheduledSearchByID(ctx context.Context, id int64) (model.ScheduledSearch, error) {
	return scanSearch(s.db.QueryRowContext(ctx,
		`SELECT `+searchColumns+` FROM scheduled_searches WHERE id = ?`, id))
}

// ScheduledSearchByKey returns the entry for a (round, event type) pair.
func (s *Store) ScheduledSearchByKey(ctx context.Context, roundID int64, t model.SessionType) (model.ScheduledSearch, error) {
	return scanSearch(s.db.QueryRowContext(ctx,
		`SELECT `+searchColumns+` FROM scheduled_searches WHERE round_id = ? AND event_type = ?`, roundID, t))
}

// ListScheduledSearches returns all entries, soonest next run first.
func (s *Store) ListScheduledSearches(ctx context.Context) ([]model.ScheduledSearch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+searchColumns+` FROM scheduled_searches
		ORDER BY next_run_at IS NULL, next_run_at ASC, added_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSearches(rows)
}

// DueSearches returns entries eligible for a scheduler run at now.
func (s *Store) DueSearches(ctx context.Context, now time.Time) ([]model.ScheduledSearch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+searchColumns+` FROM scheduled_searches
		WHERE status = ? AND next_run_at IS NOT NULL AND next_run_at <= ?
		ORDER BY next_run_at ASC`,
		model.StatusScheduled, timeDB(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSearches(rows)
}

// SearchesByStatus returns all entries in the given state.
func (s *Store) SearchesByStatus(ctx context.Context, status model.SearchStatus) ([]model.ScheduledSearch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+searchColumns+` FROM scheduled_searches WHERE status = ? ORDER BY id ASC`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSearches(rows)
}

// ClaimSearch transitions a Scheduled entry to Running and stamps the
// dispatch token. It reports false when the entry was not claimable,
// which makes duplicate dispatch within one tick harmless.
func (s *Store) ClaimSearch(ctx context.Context, id int64, token string) (bool, error) {
	claimed := false
	now := timeDB(s.now())
	err := s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE scheduled_searches
			SET status = ?, last_searched_at = ?, attempts = attempts + 1, dispatch_token = ?
			WHERE id = ? AND status = ?`,
			model.StatusRunning, now, token, id, model.StatusScheduled)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		claimed = n > 0
		return err
	})
	return claimed, err
}

// SearchOutcome captures the state an entry settles into after a run.
type SearchOutcome struct {
	Status          model.SearchStatus
	NextRunAt       *time.Time
	LastError       string
	ChosenNZB       string
	ChosenTitle     string
	DownloaderID    *int64
	CompletedReason string
	DecrementRetry  bool // undo the attempts bump for no-op runs (allowlist gate etc.)
}

// ResolveRun applies a run outcome, but only while the dispatch token still
// matches: a late duplicate result cannot overwrite newer state.
func (s *Store) ResolveRun(ctx context.Context, id int64, token string, out SearchOutcome) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		q := `UPDATE scheduled_searches
			SET status = ?, next_run_at = ?, last_error = ?, completed_reason = ?`
		args := []any{out.Status, timePtrDB(out.NextRunAt), out.LastError, out.CompletedReason}
		if out.ChosenNZB != "" {
			q += `, chosen_nzb = ?, chosen_title = ?`
			args = append(args, out.ChosenNZB, out.ChosenTitle)
		}
		if out.DownloaderID != nil {
			q += `, downloader_id = ?`
			args = append(args, *out.DownloaderID)
		}
		if out.DecrementRetry {
			q += `, attempts = attempts - 1`
		}
		q += ` WHERE id = ? AND dispatch_token = ?`
		args = append(args, id, token)
		_, err := tx.ExecContext(ctx, q, args...)
		return err
	})
}

// UpdateSearchStatus is the operator-facing transition (pause, resume,
// reschedule). It does not touch the dispatch token.
func (s *Store) UpdateSearchStatus(ctx context.Context, id int64, status model.SearchStatus, nextRunAt *time.Time, lastError string) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE scheduled_searches
			SET status = ?, next_run_at = ?, last_error = ?, force_paused = 0
			WHERE id = ?`,
			status, timePtrDB(nextRunAt), lastError, id)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

// RescheduleFailedDownload returns a WaitingDownload entry to the schedule
// after its downloader reported failure. The failed cycle counts as an
// attempt.
func (s *Store) RescheduleFailedDownload(ctx context.Context, id int64, nextRunAt time.Time, lastError string) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE scheduled_searches
			SET status = ?, next_run_at = ?, last_error = ?, attempts = attempts + 1
			WHERE id = ? AND status = ?`,
			model.StatusScheduled, timeDB(nextRunAt), lastError, id, model.StatusWaitingDownload)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

// SetSearchDownloader sets or clears the per-entry downloader override.
func (s *Store) SetSearchDownloader(ctx context.Context, id int64, downloaderID *int64) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE scheduled_searches SET downloader_id = ? WHERE id = ?`, downloaderID, id)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

// SetSearchTag persists the downloader-side marker for an entry.
func (s *Store) SetSearchTag(ctx context.Context, id int64, tag string) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE scheduled_searches SET tag = ? WHERE id = ?`, tag, id)
		return err
	})
}

// DeleteScheduledSearch removes a watch entry.
func (s *Store) DeleteScheduledSearch(ctx context.Context, id int64) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM scheduled_searches WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

func collectSearches(rows *sql.Rows) ([]model.ScheduledSearch, error) {
	var out []model.ScheduledSearch
	for rows.Next() {
		e, err := scanSearch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanSearch(scanner interface{ Scan(...any) error }) (model.ScheduledSearch, error) {
	var e model.ScheduledSearch
	var downloaderID sql.NullInt64
	var added string
	var lastSearched, nextRun sql.NullString
	var forcePaused int
	err := scanner.Scan(&e.ID, &e.RoundID, &e.EventType, &e.Status, &downloaderID,
		&added, &lastSearched, &nextRun, &e.LastError, &e.Attempts,
		&e.ChosenNZB, &e.ChosenTitle, &e.Tag, &e.DispatchToken, &e.CompletedWhy, &forcePaused)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ScheduledSearch{}, ErrNotFound
	}
	if err != nil {
		return model.ScheduledSearch{}, err
	}
	if downloaderID.Valid {
		e.DownloaderID = &downloaderID.Int64
	}
	if t, perr := time.Parse(time.RFC3339, added); perr == nil {
		e.AddedAt = t.UTC()
	}
	e.LastSearched = timeFromDB(lastSearched)
	e.NextRunAt = timeFromDB(nextRun)
	e.ForcePaused = forcePaused != 0
	return e, nil
}
