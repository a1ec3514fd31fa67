package alerts

import (
	"math"

	"github.com/trogers1052/stock-alert-system/internal/models"
)

// ReferencePrice estimates the price the percent change was measured from.
// It returns nil when the current price is missing or the result would not
// be a finite number.
func ReferencePrice(current *float64, changePercent float64) *float64 {
	if current == nil || !isFinite(*current) || !isFinite(changePercent) {
		return nil
	}
	denom := 1 + changePercent/100
	if denom == 0 {
		return nil
	}
	ref := *current / denom
	if !isFinite(ref) {
		return nil
	}
	return &ref
}

// TargetPrice is the price at which an alert's threshold is crossed,
// measured from reference
func TargetPrice(reference *float64, direction string, thresholdPercent float64) *float64 {
	if reference == nil {
		return nil
	}
	factor := 1 + thresholdPercent/100
	if direction == models.DirectionDown {
		factor = 1 - thresholdPercent/100
	}
	target := *reference * factor
	if !isFinite(target) {
		return nil
	}
	return &target
}

// changePercent reads the quote's percent change, treating a missing or
// non-finite value as no movement
func changePercent(q *models.Quote) float64 {
	if q == nil || q.ChangePercent == nil || !isFinite(*q.ChangePercent) {
		return 0
	}
	return *q.ChangePercent
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
