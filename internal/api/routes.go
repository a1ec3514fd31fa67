package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes. metrics may be nil.
func SetupRoutes(handler *Handler, metrics http.Handler) *mux.Router {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods("GET")
	}

	// Email preference links carry their own token
	r.HandleFunc("/api/unsubscribe", handler.Unsubscribe).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(RequireIdentity)

	// Alert routes; /alerts/check is registered before /alerts/{symbol}
	api.HandleFunc("/alerts", handler.ListAlerts).Methods("GET")
	api.HandleFunc("/alerts/check", handler.CheckAlerts).Methods("POST")
	api.HandleFunc("/alerts/{symbol}", handler.GetAlert).Methods("GET")
	api.HandleFunc("/alerts/{symbol}", handler.PutAlert).Methods("PUT")
	api.HandleFunc("/alerts/{symbol}", handler.DeleteAlert).Methods("DELETE")

	// Preference and account routes
	api.HandleFunc("/preferences", handler.GetPreferences).Methods("GET")
	api.HandleFunc("/preferences", handler.UpdatePreferences).Methods("PATCH")
	api.HandleFunc("/account", handler.DeleteAccount).Methods("DELETE")

	return r
}
