package notify

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/trogers1052/stock-alert-system/internal/models"
)

// ErrInvalidToken is returned for preference tokens that fail verification
var ErrInvalidToken = errors.New("invalid preference token")

const tokenIssuer = "stock-alert-system"

type linkClaims struct {
	Email string `json:"email"`
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// LinkSigner builds and verifies the per-recipient preference links carried
// by every outgoing email
type LinkSigner struct {
	baseURL string
	secret  []byte
	ttl     time.Duration
	now     func() time.Time
}

// NewLinkSigner creates a signer. A baseURL without scheme is taken as https.
func NewLinkSigner(baseURL, secret string, ttl time.Duration) *LinkSigner {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &LinkSigner{
		baseURL: normalizeBaseURL(baseURL),
		secret:  []byte(secret),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Token signs email and scope into a compact token
func (s *LinkSigner) Token(email, scope string) (string, error) {
	if scope != models.ScopeNews {
		scope = models.ScopeAll
	}
	now := s.now()
	claims := linkClaims{
		Email: models.NormalizeEmail(email),
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign preference token: %w", err)
	}
	return signed, nil
}

// Verify checks the token and returns the address and scope it carries
func (s *LinkSigner) Verify(token string) (string, string, error) {
	var claims linkClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Email == "" || (claims.Scope != models.ScopeAll && claims.Scope != models.ScopeNews) {
		return "", "", ErrInvalidToken
	}
	return claims.Email, claims.Scope, nil
}

// UnsubscribeURL returns the signed one-click link for email
func (s *LinkSigner) UnsubscribeURL(email, scope string) (string, error) {
	token, err := s.Token(email, scope)
	if err != nil {
		return "", err
	}
	return s.baseURL + "/api/unsubscribe?t=" + url.QueryEscape(token), nil
}

// ManagePreferencesURL returns the settings page link
func (s *LinkSigner) ManagePreferencesURL() string {
	return s.baseURL + "/settings/profile"
}

func normalizeBaseURL(raw string) string {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	if raw == "" {
		return "http://localhost:8080"
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return "https://" + raw
	}
	return raw
}
