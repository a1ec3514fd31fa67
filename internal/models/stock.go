package models

import "time"

// Event type constants
const (
	EventTypeAlertTriggered = "ALERT_TRIGGERED"
	EventTypeCheckAlerts    = "app/check.stock.alerts"
)

// Quote is a market data snapshot for one symbol. Fields the provider
// could not supply are nil.
type Quote struct {
	Symbol        string   `json:"symbol"`
	CompanyName   string   `json:"company_name,omitempty"`
	CurrentPrice  *float64 `json:"current_price,omitempty"`
	PreviousClose *float64 `json:"previous_close,omitempty"`
	ChangePercent *float64 `json:"change_percent,omitempty"`
}

// AlertEvent represents a Kafka event published after an alert fires
type AlertEvent struct {
	EventType        string    `json:"event_type"`
	AlertID          string    `json:"alert_id"`
	UserID           string    `json:"user_id"`
	Symbol           string    `json:"symbol"`
	Direction        string    `json:"direction"`
	ThresholdPercent float64   `json:"threshold_percent"`
	ChangePercent    float64   `json:"change_percent"`
	CurrentPrice     *float64  `json:"current_price,omitempty"`
	TargetPrice      *float64  `json:"target_price,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// TriggerEvent asks the pipeline to run a pass now
type TriggerEvent struct {
	EventType string    `json:"event_type"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
