package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/trogers1052/stock-alert-system/internal/models"
)

// Headers set by the authenticating proxy
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
)

// Identity is the authenticated caller
type Identity struct {
	UserID string
	Email  string
}

type identityKey struct{}

// RequireIdentity rejects requests without a user id header
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if userID == "" {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		id := Identity{
			UserID: userID,
			Email:  models.NormalizeEmail(r.Header.Get(HeaderUserEmail)),
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
	})
}

func identityFrom(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey{}).(Identity)
	return id
}
