// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/racecarr/racecarr/internal/model"
)

// UpsertSeason creates the season row for year if it does not exist and
// returns it either way.
func (s *Store) UpsertSeason(ctx context.Context, year int) (model.Season, error) {
	err := s.write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO seasons (year) VALUES (?) ON CONFLICT(year) DO NOTHING`, year)
		return err
	})
	if err != nil {
		return model.Season{}, err
	}
	return s.SeasonByYear(ctx, year)
}

// SeasonByYear returns the season for the given year.
func (s *Store) SeasonByYear(ctx context.Context, year int) (model.Season, error) {
	return s.scanSeason(s.db.QueryRowContext(ctx,
		`SELECT id, year, last_refreshed, hidden FROM seasons WHERE year = ?`, year))
}

// SeasonByID returns the season with the given id.
func (s *Store) SeasonByID(ctx context.Context, id int64) (model.Season, error) {
	return s.scanSeason(s.db.QueryRowContext(ctx,
		`SELECT id, year, last_refreshed, hidden FROM seasons WHERE id = ?`, id))
}

func (s *Store) scanSeason(row *sql.Row) (model.Season, error) {
	var season model.Season
	var refreshed sql.NullString
	var hidden int
	err := row.Scan(&season.ID, &season.Year, &refreshed, &hidden)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Season{}, ErrNotFound
	}
	if err != nil {
		return model.Season{}, err
	}
	season.LastRefreshed = timeFromDB(refreshed)
	season.Hidden = hidden != 0
	return season, nil
}

// ListSeasons returns seasons newest-first. Hidden seasons are excluded
// unless includeHidden is set.
func (s *Store) ListSeasons(ctx context.Context, includeHidden bool) ([]model.Season, error) {
	q := `SELECT id, year, last_refreshed, hidden FROM seasons`
	if !includeHidden {
		q += ` WHERE hidden = 0`
	}
	q += ` ORDER BY year DESC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Season
	for rows.Next() {
		var season model.Season
		var refreshed sql.NullString
		var hidden int
		if err := rows.Scan(&season.ID, &season.Year, &refreshed, &hidden); err != nil {
			return nil, err
		}
		season.LastRefreshed = timeFromDB(refreshed)
		season.Hidden = hidden != 0
		out = append(out, season)
	}
	return out, rows.Err()
}

// TouchSeasonRefreshed updates last_refreshed to now.
func (s *Store) TouchSeasonRefreshed(ctx context.Context, id int64) error {
	now := timeDB(s.now())
	return s.write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE seasons SET last_refreshed = ? WHERE id = ?`, now, id)
		return err
	})
}

// HideSeason marks the season hidden and force-pauses every non-terminal
// scheduled search belonging to its rounds.
func (s *Store) HideSeason(ctx context.Context, id int64) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE seasons SET hidden = 1 WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE scheduled_searches
			SET status = ?, next_run_at = NULL, force_paused = 1
			WHERE round_id IN (SELECT id FROM rounds WHERE season_id = ?)
			  AND status NOT IN (?, ?)`,
			model.StatusPaused, id, model.StatusCompleted, model.StatusFailed)
		return err
	})
}

// RestoreSeason unhides the season and resumes entries it force-paused.
func (s *Store) RestoreSeason(ctx context.Context, id int64) error {
	now := timeDB(s.now())
	return s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE seasons SET hidden = 0 WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE scheduled_searches
			SET status = ?, next_run_at = ?, force_paused = 0
			WHERE round_id IN (SELECT id FROM rounds WHERE season_id = ?)
			  AND force_paused = 1`,
			model.StatusScheduled, now, id)
		return err
	})
}

// DeleteSeason hard-deletes the season. Rounds, events, scheduled searches
// and cached searches go with it via foreign key cascade.
func (s *Store) DeleteSeason(ctx context.Context, id int64) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM seasons WHERE id = ?`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// SeasonHiddenForRound reports whether the season owning roundID is hidden.
func (s *Store) SeasonHiddenForRound(ctx context.Context, roundID int64) (bool, error) {
	var hidden int
	err := s.db.QueryRowContext(ctx, `
		SELECT s.hidden FROM seasons s
		JOIN rounds r ON r.season_id = s.id
		WHERE r.id = ?`, roundID).Scan(&hidden)
	if errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("round %d: %w", roundID, ErrNotFound)
	}
	if err != nil {
		return false, err
	}
	return hidden != 0, nil
}
