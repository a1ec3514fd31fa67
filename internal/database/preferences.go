package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/trogers1052/stock-alert-system/internal/models"
)

// GetPreferences retrieves the email settings for an address. An address
// with no record gets the defaults.
func (db *DB) GetPreferences(ctx context.Context, email string) (*models.Preferences, error) {
	query := `
		SELECT email, email_unsubscribed, daily_news_enabled, updated_at
		FROM users
		WHERE email = $1
	`
	email = models.NormalizeEmail(email)

	var p models.Preferences
	err := db.conn.QueryRowContext(ctx, query, email).Scan(
		&p.Email, &p.Unsubscribed, &p.DailyNewsEnabled, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return models.DefaultPreferences(email), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preferences: %w", err)
	}
	return &p, nil
}

// UpsertPreferences applies the non-nil fields of u to the address's record,
// creating it with defaults when missing
func (db *DB) UpsertPreferences(ctx context.Context, email string, u models.PreferenceUpdate) error {
	query := `
		INSERT INTO users (email, email_unsubscribed, daily_news_enabled, updated_at)
		VALUES ($1, COALESCE($2, false), COALESCE($3, true), $4)
		ON CONFLICT (email) DO UPDATE SET
			email_unsubscribed = COALESCE($2, users.email_unsubscribed),
			daily_news_enabled = COALESCE($3, users.daily_news_enabled),
			updated_at = EXCLUDED.updated_at
	`
	email = models.NormalizeEmail(email)
	if email == "" {
		return fmt.Errorf("failed to update preferences: email is required")
	}

	var unsubscribed, dailyNews sql.NullBool
	if u.Unsubscribed != nil {
		unsubscribed = sql.NullBool{Bool: *u.Unsubscribed, Valid: true}
	}
	if u.DailyNewsEnabled != nil {
		dailyNews = sql.NullBool{Bool: *u.DailyNewsEnabled, Valid: true}
	}

	if _, err := db.conn.ExecContext(ctx, query, email, unsubscribed, dailyNews, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to update preferences: %w", err)
	}
	return nil
}

// DeletePreferences removes the settings record for an address
func (db *DB) DeletePreferences(ctx context.Context, email string) error {
	email = models.NormalizeEmail(email)
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM users WHERE email = $1`, email); err != nil {
		return fmt.Errorf("failed to delete preferences: %w", err)
	}
	return nil
}

// DeleteAccount removes everything stored for a user. Each store is cleaned
// independently; the returned errors list the steps that failed.
func (db *DB) DeleteAccount(ctx context.Context, userID, email string) []error {
	var errs []error

	if _, err := db.DeleteAlertsByUser(ctx, userID); err != nil {
		errs = append(errs, err)
	}
	if email != "" {
		if err := db.DeletePreferences(ctx, email); err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}
