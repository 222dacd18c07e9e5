// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/racecarr/racecarr/internal/model"
)

const targetColumns = `id, kind, name, url, events, webhook_secret`

// CreateNotificationTarget inserts a target and returns it with its id set.
func (s *Store) CreateNotificationTarget(ctx context.Context, t model.NotificationTarget) (model.NotificationTarget, error) {
	events, _ := json.Marshal(t.Events)
	var id int64
	err := s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO notification_targets (kind, name, url, events, webhook_secret)
			VALUES (?, ?, ?, ?, ?)`,
			t.Kind, t.Name, t.URL, string(events), t.WebhookSecret)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return model.NotificationTarget{}, err
	}
	t.ID = id
	return t, nil
}

// UpdateNotificationTarget replaces all mutable fields of a target.
func (s *Store) UpdateNotificationTarget(ctx context.Context, t model.NotificationTarget) error {
	events, _ := json.Marshal(t.Events)
	return s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE notification_targets SET kind = ?, name = ?, url = ?, events = ?, webhook_secret = ?
			WHERE id = ?`,
			t.Kind, t.Name, t.URL, string(events), t.WebhookSecret, t.ID)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

// DeleteNotificationTarget removes a target.
func (s *Store) DeleteNotificationTarget(ctx context.Context, id int64) error {
	return s.write(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM notification_targets WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

// NotificationTargetByID returns one target.
func (s *Store) NotificationTargetByID(ctx context.Context, id int64) (model.NotificationTarget, error) {
	return scanTarget(s.db.QueryRowContext(ctx,
		`SELECT `+targetColumns+` FROM notification_targets WHERE id = ?`, id))
}

// ListNotificationTargets returns every configured target.
func (s *Store) ListNotificationTargets(ctx context.Context) ([]model.NotificationTarget, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+targetColumns+` FROM notification_targets ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.NotificationTarget
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTarget(scanner interface{ Scan(...any) error }) (model.NotificationTarget, error) {
	var t model.NotificationTarget
	var events string
	err := scanner.Scan(&t.ID, &t.Kind, &t.Name, &t.URL, &events, &t.WebhookSecret)
	if errors.Is(err, sql.ErrNoRows) {
		return model.NotificationTarget{}, ErrNotFound
	}
	if err != nil {
		return model.NotificationTarget{}, err
	}
	_ = json.Unmarshal([]byte(events), &t.Events)
	return t, nil
}
