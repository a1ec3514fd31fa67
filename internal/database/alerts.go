package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/stock-alert-system/internal/models"
)

const alertColumns = `id, user_id, email, symbol, direction, threshold_percent,
		       active, created_at, last_notified_at, claimed_until`

type rowScanner interface {
	Scan(dest ...any) error
}

// ListActiveAlerts retrieves every alert that is still waiting to fire
func (db *DB) ListActiveAlerts(ctx context.Context) ([]*models.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM stock_alerts
		WHERE active = true
		ORDER BY symbol, created_at
	`
	return db.scanAlerts(db.conn.QueryContext(ctx, query))
}

// ListAlertsByUser retrieves all alerts owned by a user
func (db *DB) ListAlertsByUser(ctx context.Context, userID string) ([]*models.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM stock_alerts
		WHERE user_id = $1
		ORDER BY symbol, created_at DESC
	`
	return db.scanAlerts(db.conn.QueryContext(ctx, query, userID))
}

// GetAlertByID retrieves an alert by ID
func (db *DB) GetAlertByID(ctx context.Context, id string) (*models.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM stock_alerts
		WHERE id = $1
	`
	a, err := scanAlert(db.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrAlertNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return a, nil
}

// GetActiveAlertForSymbol retrieves the user's active alert for a symbol
func (db *DB) GetActiveAlertForSymbol(ctx context.Context, userID, symbol string) (*models.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM stock_alerts
		WHERE user_id = $1 AND symbol = $2 AND active = true
		ORDER BY created_at DESC
		LIMIT 1
	`
	symbol = models.NormalizeSymbol(symbol)
	a, err := scanAlert(db.conn.QueryRowContext(ctx, query, userID, symbol))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrAlertNotFound, symbol)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert for %s: %w", symbol, err)
	}
	return a, nil
}

// ReplaceAlertForSymbol removes every alert the user holds for the symbol and
// inserts a as the single active replacement, in one transaction.
func (db *DB) ReplaceAlertForSymbol(ctx context.Context, a *models.Alert) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	a.Symbol = models.NormalizeSymbol(a.Symbol)
	a.Email = models.NormalizeEmail(a.Email)

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM stock_alerts WHERE user_id = $1 AND symbol = $2`,
		a.UserID, a.Symbol,
	); err != nil {
		return fmt.Errorf("failed to delete existing alerts for %s: %w", a.Symbol, err)
	}

	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO stock_alerts (
			id, user_id, email, symbol, direction, threshold_percent,
			active, created_at, last_notified_at, claimed_until
		) VALUES ($1, $2, $3, $4, $5, $6, true, $7, NULL, NULL)
	`
	if _, err := tx.ExecContext(ctx, query,
		a.ID, a.UserID, a.Email, a.Symbol, a.Direction,
		decimal.NewFromFloat(a.ThresholdPercent), now,
	); err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit alert replacement: %w", err)
	}

	a.Active = true
	a.CreatedAt = now
	a.LastNotifiedAt = nil
	a.ClaimedUntil = nil
	return nil
}

// ClaimAlert takes a short lease on an active alert so that only one pass
// sends its notification. It reports false when the alert is inactive or
// another lease is still live.
func (db *DB) ClaimAlert(ctx context.Context, id string, now, until time.Time) (bool, error) {
	query := `
		UPDATE stock_alerts SET claimed_until = $3
		WHERE id = $1 AND active = true
		  AND (claimed_until IS NULL OR claimed_until < $2)
	`
	result, err := db.conn.ExecContext(ctx, query, id, now, until)
	if err != nil {
		return false, fmt.Errorf("failed to claim alert %s: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim alert %s: %w", id, err)
	}
	return rowsAffected == 1, nil
}

// ReleaseAlertClaim drops the lease so the next pass can retry the alert
func (db *DB) ReleaseAlertClaim(ctx context.Context, id string) error {
	query := `UPDATE stock_alerts SET claimed_until = NULL WHERE id = $1 AND active = true`
	if _, err := db.conn.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to release alert claim %s: %w", id, err)
	}
	return nil
}

// DeactivateAlert flips an alert inactive and stamps last_notified_at. The
// update only applies while the alert is still active; false means another
// pass got there first.
func (db *DB) DeactivateAlert(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `
		UPDATE stock_alerts SET
			active = false,
			last_notified_at = $2,
			claimed_until = NULL
		WHERE id = $1 AND active = true
	`
	result, err := db.conn.ExecContext(ctx, query, id, at)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate alert %s: %w", id, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to deactivate alert %s: %w", id, err)
	}
	return rowsAffected == 1, nil
}

// DeleteAlertsForSymbol removes all of a user's alerts for a symbol
func (db *DB) DeleteAlertsForSymbol(ctx context.Context, userID, symbol string) (int64, error) {
	symbol = models.NormalizeSymbol(symbol)
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM stock_alerts WHERE user_id = $1 AND symbol = $2`,
		userID, symbol,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete alerts for %s: %w", symbol, err)
	}
	return result.RowsAffected()
}

// DeleteAlertsByUser removes every alert owned by a user
func (db *DB) DeleteAlertsByUser(ctx context.Context, userID string) (int64, error) {
	result, err := db.conn.ExecContext(ctx, `DELETE FROM stock_alerts WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete alerts for user %s: %w", userID, err)
	}
	return result.RowsAffected()
}

func (db *DB) scanAlerts(rows *sql.Rows, err error) ([]*models.Alert, error) {
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alerts: %w", err)
	}

	return alerts, nil
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	var a models.Alert
	var threshold string
	var lastNotifiedAt, claimedUntil sql.NullTime

	err := row.Scan(
		&a.ID, &a.UserID, &a.Email, &a.Symbol, &a.Direction, &threshold,
		&a.Active, &a.CreatedAt, &lastNotifiedAt, &claimedUntil,
	)
	if err != nil {
		return nil, err
	}

	pct, err := decimal.NewFromString(threshold)
	if err != nil {
		return nil, fmt.Errorf("invalid threshold %q for alert %s: %w", threshold, a.ID, err)
	}
	a.ThresholdPercent = pct.InexactFloat64()
	a.Symbol = models.NormalizeSymbol(a.Symbol)

	if lastNotifiedAt.Valid {
		a.LastNotifiedAt = &lastNotifiedAt.Time
	}
	if claimedUntil.Valid {
		a.ClaimedUntil = &claimedUntil.Time
	}

	return &a, nil
}
