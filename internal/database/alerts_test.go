package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/stock-alert-system/internal/models"
)

func TestAlertsRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := SetupTestDB(t)
	defer testDB.Cleanup(t)

	ctx := context.Background()

	newAlert := func(userID, symbol, direction string, pct float64) *models.Alert {
		return &models.Alert{
			UserID:           userID,
			Email:            userID + "@example.com",
			Symbol:           symbol,
			Direction:        direction,
			ThresholdPercent: pct,
		}
	}

	t.Run("ReplaceAlertForSymbol creates active alert", func(t *testing.T) {
		testDB.TruncateAll(t)

		alert := newAlert("user-1", "aapl", models.DirectionUp, 5)
		require.NoError(t, testDB.ReplaceAlertForSymbol(ctx, alert))

		retrieved, err := testDB.GetAlertByID(ctx, alert.ID)
		require.NoError(t, err)
		assert.Equal(t, "AAPL", retrieved.Symbol)
		assert.Equal(t, models.DirectionUp, retrieved.Direction)
		assert.Equal(t, 5.0, retrieved.ThresholdPercent)
		assert.True(t, retrieved.Active)
		assert.Nil(t, retrieved.LastNotifiedAt)
	})

	t.Run("threshold keeps every decimal", func(t *testing.T) {
		testDB.TruncateAll(t)

		alert := newAlert("user-1", "NVDA", models.DirectionUp, 4.996)
		require.NoError(t, testDB.ReplaceAlertForSymbol(ctx, alert))

		retrieved, err := testDB.GetAlertByID(ctx, alert.ID)
		require.NoError(t, err)
		assert.Equal(t, 4.996, retrieved.ThresholdPercent)
		assert.True(t, models.ShouldTrigger(retrieved, 4.998))

		active, err := testDB.ListActiveAlerts(ctx)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, 4.996, active[0].ThresholdPercent)
	})

	t.Run("ReplaceAlertForSymbol keeps one alert per symbol", func(t *testing.T) {
		testDB.TruncateAll(t)

		first := newAlert("user-1", "MSFT", models.DirectionUp, 5)
		require.NoError(t, testDB.ReplaceAlertForSymbol(ctx, first))
		second := newAlert("user-1", "MSFT", models.DirectionDown, 2.5)
		require.NoError(t, testDB.ReplaceAlertForSymbol(ctx, second))
		other := newAlert("user-2", "MSFT", models.DirectionUp, 5)
		require.NoError(t, testDB.ReplaceAlertForSymbol(ctx, other))

		alerts, err := testDB.ListAlertsByUser(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, alerts, 1)
		assert.Equal(t, second.ID, alerts[0].ID)
		assert.Equal(t, 2.5, alerts[0].ThresholdPercent)

		active, err := testDB.GetActiveAlertForSymbol(ctx, "user-1", "msft")
		require.NoError(t, err)
		assert.Equal(t, models.DirectionDown, active.Direction)
	})

	t.Run("ListActiveAlerts skips deactivated alerts", func(t *testing.T) {
		testDB.TruncateAll(t)

		a := newAlert("user-1", "NVDA", models.DirectionUp, 5)
		b := newAlert("user-2", "NVDA", models.DirectionDown, 3)
		require.NoError(t, testDB.ReplaceAlertForSymbol(ctx, a))
		require.NoError(t, testDB.ReplaceAlertForSymbol(ctx, b))

		ok, err := testDB.DeactivateAlert(ctx, a.ID, time.Now())
		require.NoError(t, err)
		assert.True(t, ok)

		active, err := testDB.ListActiveAlerts(ctx)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, b.ID, active[0].ID)

		deactivated, err := testDB.GetAlertByID(ctx, a.ID)
		require.NoError(t, err)
		assert.False(t, deactivated.Active)
		assert.NotNil(t, deactivated.LastNotifiedAt)
	})

	t.Run("DeactivateAlert only succeeds once", func(t *testing.T) {
		testDB.TruncateAll(t)

		a := newAlert("user-1", "TSLA", models.DirectionUp, 10)
		require.NoError(t, testDB.ReplaceAlertForSymbol(ctx, a))

		ok, err := testDB.DeactivateAlert(ctx, a.ID, time.Now())
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = testDB.DeactivateAlert(ctx, a.ID, time.Now())
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("ClaimAlert grants one lease at a time", func(t *testing.T) {
		testDB.TruncateAll(t)

		a := newAlert("user-1", "AMD", models.DirectionUp, 5)
		require.NoError(t, testDB.ReplaceAlertForSymbol(ctx, a))

		now := time.Now().UTC()
		ok, err := testDB.ClaimAlert(ctx, a.ID, now, now.Add(time.Minute))
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = testDB.ClaimAlert(ctx, a.ID, now, now.Add(time.Minute))
		require.NoError(t, err)
		assert.False(t, ok, "live lease blocks a second claim")

		later := now.Add(2 * time.Minute)
		ok, err = testDB.ClaimAlert(ctx, a.ID, later, later.Add(time.Minute))
		require.NoError(t, err)
		assert.True(t, ok, "expired lease can be reclaimed")

		require.NoError(t, testDB.ReleaseAlertClaim(ctx, a.ID))
		ok, err = testDB.ClaimAlert(ctx, a.ID, now, now.Add(time.Minute))
		require.NoError(t, err)
		assert.True(t, ok, "released lease can be reclaimed")
	})

	t.Run("DeleteAlertsForSymbol removes user's alerts", func(t *testing.T) {
		testDB.TruncateAll(t)

		a := newAlert("user-1", "INTC", models.DirectionUp, 5)
		require.NoError(t, testDB.ReplaceAlertForSymbol(ctx, a))

		deleted, err := testDB.DeleteAlertsForSymbol(ctx, "user-1", "intc")
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		_, err = testDB.GetAlertByID(ctx, a.ID)
		assert.ErrorIs(t, err, ErrAlertNotFound)
	})

	t.Run("preferences round trip", func(t *testing.T) {
		testDB.TruncateAll(t)

		off := false
		require.NoError(t, testDB.UpsertPreferences(ctx, "News@Example.com", models.PreferenceUpdate{DailyNewsEnabled: &off}))

		prefs, err := testDB.GetPreferences(ctx, "news@example.com")
		require.NoError(t, err)
		assert.False(t, prefs.DailyNewsEnabled)
		assert.False(t, prefs.Unsubscribed)

		on := true
		require.NoError(t, testDB.UpsertPreferences(ctx, "news@example.com", models.PreferenceUpdate{Unsubscribed: &on}))

		prefs, err = testDB.GetPreferences(ctx, "news@example.com")
		require.NoError(t, err)
		assert.True(t, prefs.Unsubscribed)
		assert.False(t, prefs.DailyNewsEnabled, "unchanged field keeps its value")
	})

	t.Run("DeleteAccount removes alerts and preferences", func(t *testing.T) {
		testDB.TruncateAll(t)

		a := newAlert("user-9", "QCOM", models.DirectionUp, 5)
		require.NoError(t, testDB.ReplaceAlertForSymbol(ctx, a))
		on := true
		require.NoError(t, testDB.UpsertPreferences(ctx, a.Email, models.PreferenceUpdate{Unsubscribed: &on}))

		errs := testDB.DeleteAccount(ctx, "user-9", a.Email)
		assert.Empty(t, errs)

		alerts, err := testDB.ListAlertsByUser(ctx, "user-9")
		require.NoError(t, err)
		assert.Empty(t, alerts)

		prefs, err := testDB.GetPreferences(ctx, a.Email)
		require.NoError(t, err)
		assert.False(t, prefs.Unsubscribed)
	})
}
