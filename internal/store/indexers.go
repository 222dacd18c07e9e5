// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/racecarr/racecarr/internal/model"
)

const indexerColumns = `id, name, kind, base_url, api_key, categories, priority, enabled, last_error`

// CreateIndexer inserts a new indexer and returns it with its id set.
func (s *Store) CreateIndexer(ctx context.Context, ix model.Indexer) (model.Indexer, error) {
	cats, _ := json.Marshal(ix.Categories)
	var id int64
	err := s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO indexers (name, kind, base_url, api_key, categories, priority, enabled, last_error)
			VALUES (?, ?, ?, ?, ?, ?, ?, '')`,
			ix.Name, ix.Kind, ix.BaseURL, ix.APIKey, string(cats), ix.Priority, boolDB(ix.Enabled))
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return model.Indexer{}, err
	}
	ix.ID = id
	return ix, nil
}

// UpdateIndexer replaces all mutable fields of an indexer.
func (s *Store) UpdateIndexer(ctx context.Context, ix model.Indexer) error {
	cats, _ := json.Marshal(ix.Categories)
	return s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE indexers SET name = ?, kind = ?, base_url = ?, api_key = ?, categories = ?, priority = ?, enabled = ?, last_error = ?
			WHERE id = ?`,
			ix.Name, ix.Kind, ix.BaseURL, ix.APIKey, string(cats), ix.Priority, boolDB(ix.Enabled), ix.LastError, ix.ID)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

// SetIndexerError records the last error string for an indexer.
func (s *Store) SetIndexerError(ctx context.Context, id int64, msg string) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE indexers SET last_error = ? WHERE id = ?`, msg, id)
		return err
	})
}

// DeleteIndexer removes an indexer.
func (s *Store) DeleteIndexer(ctx context.Context, id int64) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM indexers WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

// IndexerByID returns one indexer.
func (s *Store) IndexerByID(ctx context.Context, id int64) (model.Indexer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+indexerColumns+` FROM indexers WHERE id = ?`, id)
	return scanIndexer(row)
}

// ListIndexers returns all indexers, highest priority first. When
// enabledOnly is set, disabled rows are skipped.
func (s *Store) ListIndexers(ctx context.Context, enabledOnly bool) ([]model.Indexer, error) {
	q := `SELECT ` + indexerColumns + ` FROM indexers`
	if enabledOnly {
		q += ` WHERE enabled = 1`
	}
	q += ` ORDER BY priority DESC, name ASC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Indexer
	for rows.Next() {
		ix, err := scanIndexer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ix)
	}
	return out, rows.Err()
}

func scanIndexer(scanner interface{ Scan(...any) error }) (model.Indexer, error) {
	var ix model.Indexer
	var cats string
	var enabled int
	err := scanner.Scan(&ix.ID, &ix.Name, &ix.Kind, &ix.BaseURL, &ix.APIKey, &cats,
		&ix.Priority, &enabled, &ix.LastError)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Indexer{}, ErrNotFound
	}
	if err != nil {
		return model.Indexer{}, err
	}
	_ = json.Unmarshal([]byte(cats), &ix.Categories)
	ix.Enabled = enabled != 0
	return ix, nil
}

func boolDB(b bool) int {
	if b {
		return 1
	}
	return 0
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
