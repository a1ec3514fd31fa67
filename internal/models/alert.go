package models

import (
	"errors"
	"math"
	"strings"
	"time"
)

// Direction constants
const (
	DirectionUp   = "UP"
	DirectionDown = "DOWN"
)

// Threshold bounds enforced on every stored alert
const (
	MinThresholdPercent = 0.1
	MaxThresholdPercent = 100.0
)

// Validation errors returned by NormalizeAlertInput
var (
	ErrInvalidSymbol    = errors.New("symbol is required")
	ErrInvalidDirection = errors.New("invalid direction")
	ErrInvalidThreshold = errors.New("threshold must be between 0.1 and 100")
)

// Alert is a user's standing instruction to be notified once a symbol's
// percent change crosses a threshold in the given direction.
type Alert struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	Email            string     `json:"email"`
	Symbol           string     `json:"symbol"`
	Direction        string     `json:"direction"`
	ThresholdPercent float64    `json:"threshold_percent"`
	Active           bool       `json:"active"`
	CreatedAt        time.Time  `json:"created_at"`
	LastNotifiedAt   *time.Time `json:"last_notified_at,omitempty"`
	ClaimedUntil     *time.Time `json:"-"`
}

// AlertInput is the user-supplied part of an alert
type AlertInput struct {
	Symbol           string  `json:"symbol"`
	Direction        string  `json:"direction"`
	ThresholdPercent float64 `json:"threshold_percent"`
}

// NormalizeSymbol trims and uppercases a ticker
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// NormalizeEmail trims and lowercases an address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeAlertInput validates the input and returns it in canonical form.
func NormalizeAlertInput(in AlertInput) (AlertInput, error) {
	symbol := NormalizeSymbol(in.Symbol)
	if symbol == "" {
		return AlertInput{}, ErrInvalidSymbol
	}

	direction := strings.ToUpper(strings.TrimSpace(in.Direction))
	if direction != DirectionUp && direction != DirectionDown {
		return AlertInput{}, ErrInvalidDirection
	}

	pct := in.ThresholdPercent
	if math.IsNaN(pct) || math.IsInf(pct, 0) || pct < MinThresholdPercent || pct > MaxThresholdPercent {
		return AlertInput{}, ErrInvalidThreshold
	}

	return AlertInput{Symbol: symbol, Direction: direction, ThresholdPercent: pct}, nil
}

// ShouldTrigger reports whether the alert fires for the given percent change.
// UP fires at or above the threshold, DOWN at or below its negation.
func ShouldTrigger(a *Alert, changePercent float64) bool {
	switch a.Direction {
	case DirectionUp:
		return changePercent >= a.ThresholdPercent
	case DirectionDown:
		return changePercent <= -a.ThresholdPercent
	default:
		return false
	}
}
