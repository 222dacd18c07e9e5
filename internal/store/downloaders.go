// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/racecarr/racecarr/internal/model"
)

const downloaderColumns = `id, name, kind, base_url, api_key, category, priority, enabled, last_error`

// CreateDownloader inserts a new downloader and returns it with its id set.
func (s *Store) CreateDownloader(ctx context.Context, d model.Downloader) (model.Downloader, error) {
	var id int64
	err := s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO downloaders (name, kind, base_url, api_key, category, priority, enabled, last_error)
			VALUES (?, ?, ?, ?, ?, ?, ?, '')`,
			d.Name, d.Kind, d.BaseURL, d.APIKey, d.Category, d.Priority, boolDB(d.Enabled))
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return model.Downloader{}, err
	}
	d.ID = id
	return d, nil
}

// UpdateDownloader replaces all mutable fields of a downloader.
func (s *Store) UpdateDownloader(ctx context.Context, d model.Downloader) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE downloaders SET name = ?, kind = ?, base_url = ?, api_key = ?, category = ?, priority = ?, enabled = ?, last_error = ?
			WHERE id = ?`,
			d.Name, d.Kind, d.BaseURL, d.APIKey, d.Category, d.Priority, boolDB(d.Enabled), d.LastError, d.ID)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

// SetDownloaderError records the last error string for a downloader.
func (s *Store) SetDownloaderError(ctx context.Context, id int64, msg string) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE downloaders SET last_error = ? WHERE id = ?`, msg, id)
		return err
	})
}

// DeleteDownloader removes a downloader.
func (s *Store) DeleteDownloader(ctx context.Context, id int64) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM downloaders WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

// DownloaderByID returns one downloader.
func (s *Store) DownloaderByID(ctx context.Context, id int64) (model.Downloader, error) {
	return scanDownloader(s.db.QueryRowContext(ctx,
		`SELECT `+downloaderColumns+` FROM downloaders WHERE id = ?`, id))
}

// ListDownloaders returns all downloaders, highest priority first.
func (s *Store) ListDownloaders(ctx context.Context, enabledOnly bool) ([]model.Downloader, error) {
	q := `SELECT ` + downloaderColumns + ` FROM downloaders`
	if enabledOnly {
		q += ` WHERE enabled = 1`
	}
	q += ` ORDER BY priority DESC, id ASC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Downloader
	for rows.Next() {
		d, err := scanDownloader(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDownloader(scanner interface{ Scan(...any) error }) (model.Downloader, error) {
	var d model.Downloader
	var enabled int
	err := scanner.Scan(&d.ID, &d.Name, &d.Kind, &d.BaseURL, &d.APIKey, &d.Category,
		&d.Priority, &enabled, &d.LastError)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Downloader{}, ErrNotFound
	}
	if err != nil {
		return model.Downloader{}, err
	}
	d.Enabled = enabled != 0
	return d, nil
}
