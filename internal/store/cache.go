// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// CachedResults is a stored round search payload.
type CachedResults struct {
	RoundID     int64
	Fingerprint string
	CreatedAt   time.Time
	TTLHours    int
	ResultsJSON string
}

// Fresh reports whether the payload is still within its TTL at now.
func (c CachedResults) Fresh(now time.Time) bool {
	return now.Sub(c.CreatedAt) < time.Duration(c.TTLHours)*time.Hour
}

// GetCachedSearch returns the cached payload for (round, fingerprint).
// A stale row is reported as ErrNotFound and deleted opportunistically.
func (s *Store) GetCachedSearch(ctx context.Context, roundID int64, fingerprint string) (CachedResults, error) {
	var c CachedResults
	var created string
	err := s.db.QueryRowContext(ctx, `
		SELECT round_id, fingerprint, created_at, ttl_hours, results_json
		FROM cached_round_search WHERE round_id = ? AND fingerprint = ?`,
		roundID, fingerprint).
		Scan(&c.RoundID, &c.Fingerprint, &created, &c.TTLHours, &c.ResultsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return CachedResults{}, ErrNotFound
	}
	if err != nil {
		return CachedResults{}, err
	}
	t, err := time.Parse(time.RFC3339, created)
	if err != nil {
		return CachedResults{}, ErrNotFound
	}
	c.CreatedAt = t.UTC()

	if !c.Fresh(s.now()) {
		_ = s.DeleteCachedSearch(ctx, roundID, fingerprint)
		return CachedResults{}, ErrNotFound
	}
	return c, nil
}

// PutCachedSearch atomically replaces the cached payload for the key.
func (s *Store) PutCachedSearch(ctx context.Context, roundID int64, fingerprint string, ttlHours int, resultsJSON string) error {
	now := timeDB(s.now())
	return s.write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO cached_round_search (round_id, fingerprint, created_at, ttl_hours, results_json)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(round_id, fingerprint) DO UPDATE SET
				created_at = excluded.created_at,
				ttl_hours = excluded.ttl_hours,
				results_json = excluded.results_json`,
			roundID, fingerprint, now, ttlHours, resultsJSON)
		return err
	})
}

// DeleteCachedSearch evicts one cache row. Missing rows are not an error.
func (s *Store) DeleteCachedSearch(ctx context.Context, roundID int64, fingerprint string) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM cached_round_search WHERE round_id = ? AND fingerprint = ?`,
			roundID, fingerprint)
		return err
	})
}
