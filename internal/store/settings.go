// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/racecarr/racecarr/internal/model"
)

// Settings returns the singleton settings row, writing the defaults on
// first access.
func (s *Store) Settings(ctx context.Context) (model.Settings, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM settings WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		defaults := model.DefaultSettings()
		if err := s.SaveSettings(ctx, defaults); err != nil {
			return model.Settings{}, err
		}
		return defaults, nil
	}
	if err != nil {
		return model.Settings{}, err
	}

	settings := model.DefaultSettings()
	if err := json.Unmarshal([]byte(data), &settings); err != nil {
		return model.Settings{}, err
	}
	return settings, nil
}

// SaveSettings persists the singleton settings row.
func (s *Store) SaveSettings(ctx context.Context, settings model.Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	return s.write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO settings (id, data) VALUES (1, ?)
			ON CONFLICT(id) DO UPDATE SET data = excluded.data`,
			string(data))
		return err
	})
}
