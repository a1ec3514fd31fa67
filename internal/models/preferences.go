package models

import "time"

// Email categories understood by the eligibility gate
const (
	CategoryNews   = "news"
	CategoryAlerts = "alerts"
	CategoryOther  = "other"
)

// Unsubscribe scopes carried by preference links
const (
	ScopeAll  = "all"
	ScopeNews = "news"
)

// Preferences holds per-address email settings. A missing record reads as
// DefaultPreferences.
type Preferences struct {
	Email            string    `json:"email"`
	Unsubscribed     bool      `json:"email_unsubscribed"`
	DailyNewsEnabled bool      `json:"daily_news_enabled"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// PreferenceUpdate lists the settings to change; nil fields are left alone
type PreferenceUpdate struct {
	Unsubscribed     *bool
	DailyNewsEnabled *bool
}

// DefaultPreferences returns the settings of an address with no stored record
func DefaultPreferences(email string) *Preferences {
	return &Preferences{Email: email, DailyNewsEnabled: true}
}
