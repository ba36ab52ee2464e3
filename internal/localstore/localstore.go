// Package localstore persists session state and price alerts in a local
// SQLite file, so logins and alerts survive process restarts.
package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/udoglabs/wager-engine/internal/model"
)

// ErrNoValue is returned when a session key has never been set or was deleted.
var ErrNoValue = errors.New("localstore: no value")

const schema = `
CREATE TABLE IF NOT EXISTS session_state (
    key        TEXT PRIMARY KEY,
    value      TEXT     NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS alerts (
    id           TEXT PRIMARY KEY,
    coin_id      TEXT    NOT NULL,
    coin_name    TEXT    NOT NULL,
    coin_symbol  TEXT    NOT NULL,
    target_price TEXT    NOT NULL,
    condition    TEXT    NOT NULL,
    triggered    INTEGER NOT NULL DEFAULT 0,
    created_at   DATETIME NOT NULL,
    triggered_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_alerts_coin      ON alerts(coin_id);
CREATE INDEX IF NOT EXISTS idx_alerts_triggered ON alerts(triggered);
`

// Store wraps a single-writer SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("localstore.Open: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("localstore.Open: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- Session state ---

// GetValue returns the stored value for key, or ErrNoValue.
func (s *Store) GetValue(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM session_state WHERE key = ?`, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("key %q: %w", key, ErrNoValue)
	}
	if err != nil {
		return "", fmt.Errorf("localstore.GetValue: %w", err)
	}
	return value, nil
}

// SetValue upserts key to value.
func (s *Store) SetValue(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value      = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("localstore.SetValue: %w", err)
	}
	return nil
}

// DeleteValues removes the given keys in one statement. Missing keys are
// not an error.
func (s *Store) DeleteValues(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(keys)), ", ")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM session_state WHERE key IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("localstore.DeleteValues: %w", err)
	}
	return nil
}

// --- Alerts ---

// SaveAlert inserts a new alert.
func (s *Store) SaveAlert(ctx context.Context, a *model.Alert) error {
	triggered := 0
	if a.Triggered {
		triggered = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts
			(id, coin_id, coin_name, coin_symbol, target_price, condition,
			 triggered, created_at, triggered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.CoinID, a.CoinName, a.CoinSymbol, a.TargetPrice.String(),
		a.Condition, triggered, a.CreatedAt.UTC(), a.TriggeredAt)
	if err != nil {
		return fmt.Errorf("localstore.SaveAlert: %w", err)
	}
	return nil
}

// ListAlerts returns all alerts, newest first.
func (s *Store) ListAlerts(ctx context.Context) ([]model.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, coin_id, coin_name, coin_symbol, target_price, condition,
		       triggered, created_at, triggered_at
		FROM alerts
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("localstore.ListAlerts: %w", err)
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// PendingAlerts returns alerts that have not fired yet.
func (s *Store) PendingAlerts(ctx context.Context) ([]model.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, coin_id, coin_name, coin_symbol, target_price, condition,
		       triggered, created_at, triggered_at
		FROM alerts
		WHERE triggered = 0
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("localstore.PendingAlerts: %w", err)
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// DeleteAlert removes one alert by id.
func (s *Store) DeleteAlert(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("localstore.DeleteAlert: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("alert %q: %w", id, ErrNoValue)
	}
	return nil
}

// MarkTriggered flips an alert to triggered with the given timestamp.
// Already-triggered alerts are left alone.
func (s *Store) MarkTriggered(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET triggered = 1, triggered_at = ?
		WHERE id = ? AND triggered = 0
	`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("localstore.MarkTriggered: %w", err)
	}
	return nil
}

func scanAlert(rows *sql.Rows) (model.Alert, error) {
	var (
		a         model.Alert
		price     string
		triggered int
		firedAt   sql.NullTime
	)
	if err := rows.Scan(&a.ID, &a.CoinID, &a.CoinName, &a.CoinSymbol,
		&price, &a.Condition, &triggered, &a.CreatedAt, &firedAt); err != nil {
		return model.Alert{}, fmt.Errorf("localstore: scan alert: %w", err)
	}
	dec, err := decimal.NewFromString(price)
	if err != nil {
		return model.Alert{}, fmt.Errorf("localstore: parse target_price %q: %w", price, err)
	}
	a.TargetPrice = dec
	a.Triggered = triggered == 1
	if firedAt.Valid {
		t := firedAt.Time
		a.TriggeredAt = &t
	}
	return a, nil
}
