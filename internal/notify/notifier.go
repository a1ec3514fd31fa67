// Package notify renders price alert emails and hands them to a transport,
// after checking the recipient may receive them.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/stock-alert-system/internal/models"
	"go.uber.org/zap"
)

// NotAvailable marks a value the pipeline could not determine
const NotAvailable = "N/A"

// Outcome reports what SendAlertEmail did
type Outcome int

const (
	// OutcomeSent means the transport accepted the message
	OutcomeSent Outcome = iota + 1
	// OutcomeSuppressed means the gate denied the recipient; nothing was sent
	OutcomeSuppressed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomeSuppressed:
		return "suppressed"
	default:
		return "unknown"
	}
}

// Gate decides whether a category of mail may go to an address
type Gate interface {
	CanSend(ctx context.Context, address, category string) bool
}

// Transport delivers a fully rendered message
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

// Message is a rendered email
type Message struct {
	From    string
	To      string
	Subject string
	Text    string
	HTML    string
	Headers map[string]string
}

// AlertEmail carries the values substituted into an alert email. Nil or
// non-finite prices render as N/A.
type AlertEmail struct {
	Email        string
	Symbol       string
	Direction    string
	Company      string
	Timestamp    time.Time
	CurrentPrice *float64
	TargetPrice  *float64
}

// Notifier renders and sends alert emails
type Notifier struct {
	gate      Gate
	transport Transport
	links     *LinkSigner
	from      string
	log       *zap.Logger
	now       func() time.Time
}

// ErrNoLinkSigner is returned by NewNotifier without a LinkSigner. Every
// alert email carries a manage preferences link.
var ErrNoLinkSigner = errors.New("notifier requires a link signer")

// NewNotifier creates a Notifier. links must not be nil.
func NewNotifier(gate Gate, transport Transport, links *LinkSigner, from string, log *zap.Logger) (*Notifier, error) {
	if links == nil {
		return nil, ErrNoLinkSigner
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{
		gate:      gate,
		transport: transport,
		links:     links,
		from:      from,
		log:       log,
		now:       time.Now,
	}, nil
}

// SendAlertEmail sends one alert email. A recipient the gate denies is not
// an error: the call returns OutcomeSuppressed. Transport errors propagate.
func (n *Notifier) SendAlertEmail(ctx context.Context, p AlertEmail) (Outcome, error) {
	if !n.gate.CanSend(ctx, p.Email, models.CategoryAlerts) {
		n.log.Info("alert email suppressed by eligibility gate",
			zap.String("symbol", p.Symbol),
			zap.String("category", models.CategoryAlerts),
		)
		return OutcomeSuppressed, nil
	}

	msg, err := n.render(p)
	if err != nil {
		return 0, err
	}
	if err := n.transport.Send(ctx, msg); err != nil {
		return 0, fmt.Errorf("failed to send alert email for %s: %w", p.Symbol, err)
	}
	return OutcomeSent, nil
}

func (n *Notifier) render(p AlertEmail) (Message, error) {
	variant := lowerVariant
	if p.Direction == models.DirectionUp {
		variant = upperVariant
	}

	symbol := models.NormalizeSymbol(p.Symbol)
	if symbol == "" {
		symbol = NotAvailable
	}
	company := strings.TrimSpace(p.Company)
	if company == "" {
		company = NotAvailable
	}
	ts := p.Timestamp
	if ts.IsZero() {
		ts = n.now()
	}
	timestamp := ts.UTC().Format(time.RFC3339)
	current := FormatPrice(p.CurrentPrice)
	target := FormatPrice(p.TargetPrice)

	manageURL := n.links.ManagePreferencesURL()
	unsubscribeURL, err := n.links.UnsubscribeURL(p.Email, models.ScopeAll)
	if err != nil {
		n.log.Warn("failed to sign unsubscribe link, using settings page", zap.Error(err))
		unsubscribeURL = ""
	}

	view := alertEmailView{
		Headline:       variant.headline,
		Lead:           variant.lead,
		Accent:         variant.accent,
		Symbol:         symbol,
		Company:        company,
		CurrentPrice:   current,
		TargetPrice:    target,
		Timestamp:      timestamp,
		ManageURL:      manageURL,
		UnsubscribeURL: unsubscribeURL,
	}
	var html bytes.Buffer
	if err := alertEmailTemplate.Execute(&html, view); err != nil {
		return Message{}, fmt.Errorf("failed to render alert email: %w", err)
	}

	lines := []string{
		fmt.Sprintf("Price alert for %s: %s", symbol, p.Direction),
		"Company: " + company,
		"Time: " + timestamp,
		"Current Price: " + current,
		"Target Price: " + target,
		"",
		"Manage email preferences: " + manageURL,
	}
	if unsubscribeURL != "" {
		lines = append(lines, "Unsubscribe: "+unsubscribeURL)
	}
	text := strings.Join(lines, "\n")

	listUnsubscribe := manageURL
	if unsubscribeURL != "" {
		listUnsubscribe = unsubscribeURL
	}

	return Message{
		From:    n.from,
		To:      models.NormalizeEmail(p.Email),
		Subject: fmt.Sprintf(variant.subject, symbol),
		Text:    text,
		HTML:    html.String(),
		Headers: map[string]string{"List-Unsubscribe": "<" + listUnsubscribe + ">"},
	}, nil
}

// FormatPrice renders a price with two decimals, or N/A when missing
func FormatPrice(v *float64) string {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return NotAvailable
	}
	return decimal.NewFromFloat(*v).StringFixed(2)
}
