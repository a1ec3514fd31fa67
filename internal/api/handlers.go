package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/trogers1052/stock-alert-system/internal/database"
	"github.com/trogers1052/stock-alert-system/internal/models"
	"github.com/trogers1052/stock-alert-system/internal/scheduler"
	"go.uber.org/zap"
)

// Redirect targets of the preference link landing
const (
	ProfilePath        = "/settings/profile"
	ProfileInvalidPath = "/settings/profile?from=unsubscribe"
)

// Store is the persistence used by the handlers
type Store interface {
	Ping(ctx context.Context) error
	ListAlertsByUser(ctx context.Context, userID string) ([]*models.Alert, error)
	GetActiveAlertForSymbol(ctx context.Context, userID, symbol string) (*models.Alert, error)
	ReplaceAlertForSymbol(ctx context.Context, a *models.Alert) error
	DeleteAlertsForSymbol(ctx context.Context, userID, symbol string) (int64, error)
	GetPreferences(ctx context.Context, email string) (*models.Preferences, error)
	UpsertPreferences(ctx context.Context, email string, u models.PreferenceUpdate) error
	DeleteAccount(ctx context.Context, userID, email string) []error
}

// Triggerer queues an evaluation pass
type Triggerer interface {
	Trigger(source string) bool
}

// TokenVerifier checks preference link tokens
type TokenVerifier interface {
	Verify(token string) (email, scope string, err error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	store   Store
	trigger Triggerer
	links   TokenVerifier
	log     *zap.Logger
}

// NewHandler creates a new Handler
func NewHandler(store Store, trigger Triggerer, links TokenVerifier, log *zap.Logger) *Handler {
	return &Handler{
		store:   store,
		trigger: trigger,
		links:   links,
		log:     log,
	}
}

// ListAlerts handles GET /alerts
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())

	alerts, err := h.store.ListAlertsByUser(r.Context(), id.UserID)
	if err != nil {
		h.serverError(w, "failed to list alerts", err)
		return
	}
	if alerts == nil {
		alerts = []*models.Alert{}
	}

	respondJSON(w, http.StatusOK, alerts)
}

// GetAlert handles GET /alerts/{symbol}
func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	symbol := mux.Vars(r)["symbol"]

	alert, err := h.store.GetActiveAlertForSymbol(r.Context(), id.UserID, symbol)
	if errors.Is(err, database.ErrAlertNotFound) {
		respondError(w, http.StatusNotFound, "alert not found")
		return
	}
	if err != nil {
		h.serverError(w, "failed to get alert", err)
		return
	}

	respondJSON(w, http.StatusOK, alert)
}

// PutAlert handles PUT /alerts/{symbol}. Any existing alert for the symbol
// is replaced.
func (h *Handler) PutAlert(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	if id.Email == "" {
		respondError(w, http.StatusBadRequest, "email is required")
		return
	}

	var req struct {
		Direction        string  `json:"direction"`
		ThresholdPercent float64 `json:"threshold_percent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	in, err := models.NormalizeAlertInput(models.AlertInput{
		Symbol:           mux.Vars(r)["symbol"],
		Direction:        req.Direction,
		ThresholdPercent: req.ThresholdPercent,
	})
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	alert := &models.Alert{
		UserID:           id.UserID,
		Email:            id.Email,
		Symbol:           in.Symbol,
		Direction:        in.Direction,
		ThresholdPercent: in.ThresholdPercent,
	}
	if err := h.store.ReplaceAlertForSymbol(r.Context(), alert); err != nil {
		h.serverError(w, "failed to save alert", err)
		return
	}

	h.log.Info("alert saved",
		zap.String("alert_id", alert.ID),
		zap.String("user_id", alert.UserID),
		zap.String("symbol", alert.Symbol),
		zap.String("direction", alert.Direction),
		zap.Float64("threshold_percent", alert.ThresholdPercent),
	)
	respondJSON(w, http.StatusOK, alert)
}

// DeleteAlert handles DELETE /alerts/{symbol}
func (h *Handler) DeleteAlert(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	symbol := mux.Vars(r)["symbol"]

	if _, err := h.store.DeleteAlertsForSymbol(r.Context(), id.UserID, symbol); err != nil {
		h.serverError(w, "failed to delete alert", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CheckAlerts handles POST /alerts/check
func (h *Handler) CheckAlerts(w http.ResponseWriter, r *http.Request) {
	queued := h.trigger.Trigger(scheduler.SourceAPI)
	respondJSON(w, http.StatusAccepted, map[string]bool{"queued": queued})
}

// GetPreferences handles GET /preferences
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	if id.Email == "" {
		respondError(w, http.StatusBadRequest, "email is required")
		return
	}

	prefs, err := h.store.GetPreferences(r.Context(), id.Email)
	if err != nil {
		h.serverError(w, "failed to get preferences", err)
		return
	}

	respondJSON(w, http.StatusOK, prefs)
}

// UpdatePreferences handles PATCH /preferences
func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())
	if id.Email == "" {
		respondError(w, http.StatusBadRequest, "email is required")
		return
	}

	var req struct {
		Unsubscribed     *bool `json:"email_unsubscribed"`
		DailyNewsEnabled *bool `json:"daily_news_enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	update := models.PreferenceUpdate{Unsubscribed: req.Unsubscribed, DailyNewsEnabled: req.DailyNewsEnabled}
	if err := h.store.UpsertPreferences(r.Context(), id.Email, update); err != nil {
		h.serverError(w, "failed to update preferences", err)
		return
	}

	h.GetPreferences(w, r)
}

// Unsubscribe handles GET /api/unsubscribe?t=. It is reached from email
// links, so it always answers with a redirect.
func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	email, scope, err := h.links.Verify(r.URL.Query().Get("t"))
	if err != nil {
		h.log.Info("rejected preference link", zap.Error(err))
		http.Redirect(w, r, ProfileInvalidPath, http.StatusFound)
		return
	}

	off := false
	on := true
	update := models.PreferenceUpdate{Unsubscribed: &on}
	if scope == models.ScopeNews {
		update = models.PreferenceUpdate{DailyNewsEnabled: &off}
	}

	if err := h.store.UpsertPreferences(r.Context(), email, update); err != nil {
		h.log.Error("failed to apply preference link", zap.String("scope", scope), zap.Error(err))
		http.Redirect(w, r, ProfileInvalidPath, http.StatusFound)
		return
	}

	h.log.Info("preference link applied", zap.String("scope", scope))
	http.Redirect(w, r, ProfilePath, http.StatusFound)
}

// DeleteAccount handles DELETE /account
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id := identityFrom(r.Context())

	errs := h.store.DeleteAccount(r.Context(), id.UserID, id.Email)
	if len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, err := range errs {
			h.log.Error("account cleanup step failed", zap.String("user_id", id.UserID), zap.Error(err))
			msgs = append(msgs, err.Error())
		}
		respondJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  "account deletion incomplete",
			"failed": msgs,
		})
		return
	}

	h.log.Info("account deleted", zap.String("user_id", id.UserID))
	w.WriteHeader(http.StatusNoContent)
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.log.Warn("health check failed", zap.Error(err))
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) serverError(w http.ResponseWriter, msg string, err error) {
	h.log.Error(msg, zap.Error(err))
	respondError(w, http.StatusInternalServerError, msg)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
