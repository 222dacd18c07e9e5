// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/racecarr/racecarr/internal/model"
)

const historyColumns = `id, event_id, indexer_id, downloader_id, acquisition_id, title, nzb_url, score, status, last_polled_at, created_at, updated_at`

// AppendHistory records one acquisition attempt. History rows are
// append-only; only status and poll timestamps mutate afterwards.
func (s *Store) AppendHistory(ctx context.Context, h model.DownloadHistory) (model.DownloadHistory, error) {
	now := s.now()
	var id int64
	err := s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO download_history (event_id, indexer_id, downloader_id, acquisition_id, title, nzb_url, score, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			h.EventID, h.IndexerID, h.DownloaderID, h.AcquisitionID, h.Title, h.NZBURL, h.Score, h.Status,
			timeDB(now), timeDB(now))
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return model.DownloadHistory{}, err
	}
	h.ID = id
	h.CreatedAt = now
	h.UpdatedAt = now
	return h, nil
}

// UpdateHistoryStatus moves one history row to a new downloader-side state
// and stamps the poll time.
func (s *Store) UpdateHistoryStatus(ctx context.Context, id int64, status model.HistoryStatus) error {
	now := timeDB(s.now())
	return s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE download_history SET status = ?, last_polled_at = ?, updated_at = ? WHERE id = ?`,
			status, now, now, id)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

// HistoryByID returns one acquisition record.
func (s *Store) HistoryByID(ctx context.Context, id int64) (model.DownloadHistory, error) {
	return scanHistory(s.db.QueryRowContext(ctx,
		`SELECT `+historyColumns+` FROM download_history WHERE id = ?`, id))
}

// LatestHistoryForEvent returns the most recent acquisition for an event.
func (s *Store) LatestHistoryForEvent(ctx context.Context, eventID int64) (model.DownloadHistory, error) {
	return scanHistory(s.db.QueryRowContext(ctx,
		`SELECT `+historyColumns+` FROM download_history WHERE event_id = ? ORDER BY id DESC LIMIT 1`, eventID))
}

// ListHistory returns acquisition attempts newest-first.
func (s *Store) ListHistory(ctx context.Context, limit int) ([]model.DownloadHistory, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+historyColumns+` FROM download_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DownloadHistory
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func scanHistory(scanner interface{ Scan(...any) error }) (model.DownloadHistory, error) {
	var h model.DownloadHistory
	var polled sql.NullString
	var created, updated string
	err := scanner.Scan(&h.ID, &h.EventID, &h.IndexerID, &h.DownloaderID, &h.AcquisitionID,
		&h.Title, &h.NZBURL, &h.Score, &h.Status, &polled, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DownloadHistory{}, ErrNotFound
	}
	if err != nil {
		return model.DownloadHistory{}, err
	}
	h.LastPolledAt = timeFromDB(polled)
	if t := timeFromDB(sql.NullString{String: created, Valid: true}); t != nil {
		h.CreatedAt = *t
	}
	if t := timeFromDB(sql.NullString{String: updated, Valid: true}); t != nil {
		h.UpdatedAt = *t
	}
	return h, nil
}
