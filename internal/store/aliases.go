// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
)

// Venue aliases feed the query fan-out: each circuit key maps to extra
// tokens (city variants, historical names). The table ships empty and is
// operator-editable.

// VenueAliases returns the alias list for a circuit key.
func (s *Store) VenueAliases(ctx context.Context, circuitKey string) ([]string, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT aliases FROM venue_aliases WHERE circuit_key = ?`,
		normalizeCircuitKey(circuitKey)).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var aliases []string
	_ = json.Unmarshal([]byte(raw), &aliases)
	return aliases, nil
}

// SetVenueAliases replaces the alias list for a circuit key. An empty list
// removes the row.
func (s *Store) SetVenueAliases(ctx context.Context, circuitKey string, aliases []string) error {
	key := normalizeCircuitKey(circuitKey)
	return s.write(ctx, func(tx *sql.Tx) error {
		if len(aliases) == 0 {
			_, err := tx.ExecContext(ctx, `DELETE FROM venue_aliases WHERE circuit_key = ?`, key)
			return err
		}
		raw, err := json.Marshal(aliases)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO venue_aliases (circuit_key, aliases) VALUES (?, ?)
			ON CONFLICT(circuit_key) DO UPDATE SET aliases = excluded.aliases`,
			key, string(raw))
		return err
	})
}

// ListVenueAliases returns the whole resolver table.
func (s *Store) ListVenueAliases(ctx context.Context) (map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT circuit_key, aliases FROM venue_aliases`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		var aliases []string
		_ = json.Unmarshal([]byte(raw), &aliases)
		out[key] = aliases
	}
	return out, rows.Err()
}

func normalizeCircuitKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
