// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/racecarr/racecarr/internal/model"
)

// UpsertRound inserts or updates a round by its (season_id, round_number)
// natural key and returns the stored row.
func (s *Store) UpsertRound(ctx context.Context, r model.Round) (model.Round, error) {
	err := s.write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO rounds (season_id, round_number, name, raw_name, circuit, city, country, circuit_tz, winner, team_winner, fast_lap)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(season_id, round_number) DO UPDATE SET
				name = excluded.name,
				raw_name = excluded.raw_name,
				circuit = excluded.circuit,
				city = excluded.city,
				country = excluded.country,
				circuit_tz = COALESCE(excluded.circuit_tz, rounds.circuit_tz),
				winner = CASE WHEN excluded.winner != '' THEN excluded.winner ELSE rounds.winner END,
				team_winner = CASE WHEN excluded.team_winner != '' THEN excluded.team_winner ELSE rounds.team_winner END,
				fast_lap = CASE WHEN excluded.fast_lap != '' THEN excluded.fast_lap ELSE rounds.fast_lap END`,
			r.SeasonID, r.RoundNumber, r.Name, r.RawName, r.Circuit, r.City, r.Country,
			nullString(r.CircuitTZ), r.Winner, r.TeamWinner, r.FastLap)
		return err
	})
	if err != nil {
		return model.Round{}, err
	}
	return s.RoundByNumber(ctx, r.SeasonID, r.RoundNumber)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

const roundColumns = `id, season_id, round_number, name, raw_name, circuit, city, country, circuit_tz, winner, team_winner, fast_lap`

func scanRound(scanner interface{ Scan(...any) error }) (model.Round, error) {
	var r model.Round
	var tz sql.NullString
	err := scanner.Scan(&r.ID, &r.SeasonID, &r.RoundNumber, &r.Name, &r.RawName,
		&r.Circuit, &r.City, &r.Country, &tz, &r.Winner, &r.TeamWinner, &r.FastLap)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Round{}, ErrNotFound
	}
	if err != nil {
		return model.Round{}, err
	}
	r.CircuitTZ = tz.String
	return r, nil
}

// RoundByID returns one round.
func (s *Store) RoundByID(ctx context.Context, id int64) (model.Round, error) {
	return scanRound(s.db.QueryRowContext(ctx,
		`SELECT `+roundColumns+` FROM rounds WHERE id = ?`, id))
}

// RoundByNumber returns the round with the given number within a season.
func (s *Store) RoundByNumber(ctx context.Context, seasonID int64, number int) (model.Round, error) {
	return scanRound(s.db.QueryRowContext(ctx,
		`SELECT `+roundColumns+` FROM rounds WHERE season_id = ? AND round_number = ?`, seasonID, number))
}

// ListRounds returns the rounds of a season in calendar order.
func (s *Store) ListRounds(ctx context.Context, seasonID int64) ([]model.Round, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+roundColumns+` FROM rounds WHERE season_id = ? ORDER BY round_number ASC`, seasonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertEvent inserts or updates an event by its (round_id, type) key.
func (s *Store) UpsertEvent(ctx context.Context, e model.Event) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO events (round_id, type, start_utc, end_utc)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(round_id, type) DO UPDATE SET
				start_utc = excluded.start_utc,
				end_utc = excluded.end_utc`,
			e.RoundID, e.Type, timePtrDB(e.StartUTC), timePtrDB(e.EndUTC))
		return err
	})
}

// DeleteEvent removes the event of the given type from a round, if present.
func (s *Store) DeleteEvent(ctx context.Context, roundID int64, t model.SessionType) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM events WHERE round_id = ? AND type = ?`, roundID, t)
		return err
	})
}

// EventByType returns the event of the given session type within a round.
func (s *Store) EventByType(ctx context.Context, roundID int64, t model.SessionType) (model.Event, error) {
	var e model.Event
	var start, end sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, round_id, type, start_utc, end_utc FROM events WHERE round_id = ? AND type = ?`,
		roundID, t).Scan(&e.ID, &e.RoundID, &e.Type, &start, &end)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, ErrNotFound
	}
	if err != nil {
		return model.Event{}, err
	}
	e.StartUTC = timeFromDB(start)
	e.EndUTC = timeFromDB(end)
	return e, nil
}

// ListEvents returns all events of a round.
func (s *Store) ListEvents(ctx context.Context, roundID int64) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, round_id, type, start_utc, end_utc FROM events WHERE round_id = ? ORDER BY start_utc ASC`, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		var e model.Event
		var start, end sql.NullString
		if err := rows.Scan(&e.ID, &e.RoundID, &e.Type, &start, &end); err != nil {
			return nil, err
		}
		e.StartUTC = timeFromDB(start)
		e.EndUTC = timeFromDB(end)
		out = append(out, e)
	}
	return out, rows.Err()
}
