// Package alerts runs evaluation passes over the active price alerts.
package alerts

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/trogers1052/stock-alert-system/internal/metrics"
	"github.com/trogers1052/stock-alert-system/internal/models"
	"github.com/trogers1052/stock-alert-system/internal/notify"
	"github.com/trogers1052/stock-alert-system/internal/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Pass messages
const (
	MessageNoActiveAlerts = "no active alerts"
	MessagePassCompleted  = "pass completed"
)

// Defaults used when Options leaves a field zero
const (
	DefaultConcurrency = 4
	DefaultCallTimeout = 10 * time.Second
	DefaultClaimTTL    = 2 * time.Minute
)

// AlertStore is the persistence the engine needs
type AlertStore interface {
	ListActiveAlerts(ctx context.Context) ([]*models.Alert, error)
	ClaimAlert(ctx context.Context, id string, now, until time.Time) (bool, error)
	ReleaseAlertClaim(ctx context.Context, id string) error
	DeactivateAlert(ctx context.Context, id string, at time.Time) (bool, error)
}

// QuoteGateway supplies market data
type QuoteGateway interface {
	GetQuote(ctx context.Context, symbol string) (*models.Quote, error)
}

// AlertNotifier delivers alert emails
type AlertNotifier interface {
	SendAlertEmail(ctx context.Context, email notify.AlertEmail) (notify.Outcome, error)
}

// EventPublisher announces fired alerts
type EventPublisher interface {
	PublishAlertTriggered(ctx context.Context, event *models.AlertEvent) error
}

// Options tunes a pass
type Options struct {
	Concurrency int
	CallTimeout time.Duration
	ClaimTTL    time.Duration
}

// PassResult summarises one pass
type PassResult struct {
	Message       string `json:"message"`
	Alerts        int    `json:"alerts"`
	Symbols       int    `json:"symbols"`
	QuoteFailures int    `json:"quote_failures"`
	Triggered     int    `json:"triggered"`
	Notified      int    `json:"notified"`
	Suppressed    int    `json:"suppressed"`
	Failed        int    `json:"failed"`
	Skipped       int    `json:"skipped"`
}

func (r *PassResult) add(o PassResult) {
	r.QuoteFailures += o.QuoteFailures
	r.Triggered += o.Triggered
	r.Notified += o.Notified
	r.Suppressed += o.Suppressed
	r.Failed += o.Failed
	r.Skipped += o.Skipped
}

type outcome string

const (
	outcomeNotified   outcome = "notified"
	outcomeSuppressed outcome = "suppressed"
	outcomeFailed     outcome = "failed"
	outcomeSkipped    outcome = "skipped"
)

// SymbolGroup is the set of alerts sharing one market data fetch
type SymbolGroup struct {
	Symbol string
	Alerts []*models.Alert
}

// Engine evaluates active alerts against live quotes
type Engine struct {
	store     AlertStore
	gateway   QuoteGateway
	notifier  AlertNotifier
	publisher EventPublisher
	log       *zap.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	opts      Options

	now func() time.Time
}

// NewEngine creates an engine. publisher may be nil.
func NewEngine(store AlertStore, gateway QuoteGateway, notifier AlertNotifier, publisher EventPublisher,
	log *zap.Logger, m *metrics.Metrics, opts Options) *Engine {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.ClaimTTL <= 0 {
		opts.ClaimTTL = DefaultClaimTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Engine{
		store:     store,
		gateway:   gateway,
		notifier:  notifier,
		publisher: publisher,
		log:       log,
		metrics:   m,
		tracer:    otel.Tracer(tracing.TracerName),
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// GroupBySymbol partitions alerts by normalized symbol, sorted by symbol
func GroupBySymbol(alerts []*models.Alert) []SymbolGroup {
	index := make(map[string]int)
	var groups []SymbolGroup
	for _, a := range alerts {
		symbol := models.NormalizeSymbol(a.Symbol)
		i, ok := index[symbol]
		if !ok {
			i = len(groups)
			index[symbol] = i
			groups = append(groups, SymbolGroup{Symbol: symbol})
		}
		groups[i].Alerts = append(groups[i].Alerts, a)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Symbol < groups[j].Symbol })
	return groups
}

// RunPass evaluates every active alert once. The only error it returns is a
// failure to load the alert list; everything past that is logged and counted.
func (e *Engine) RunPass(ctx context.Context) (PassResult, error) {
	ctx, span := e.tracer.Start(ctx, "alerts.RunPass")
	defer span.End()
	start := time.Now()

	listCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	active, err := e.store.ListActiveAlerts(listCtx)
	cancel()
	if err != nil {
		e.metrics.PassesTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "load active alerts")
		return PassResult{}, fmt.Errorf("failed to load active alerts: %w", err)
	}

	if len(active) == 0 {
		e.metrics.PassesTotal.WithLabelValues("empty").Inc()
		e.log.Debug("no active alerts")
		return PassResult{Message: MessageNoActiveAlerts}, nil
	}

	groups := GroupBySymbol(active)
	result := PassResult{Alerts: len(active), Symbols: len(groups)}
	span.SetAttributes(attribute.Int("alerts", result.Alerts), attribute.Int("symbols", result.Symbols))

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(e.opts.Concurrency)
	for _, group := range groups {
		g.Go(func() error {
			r := e.evaluateGroup(ctx, group)
			mu.Lock()
			result.add(r)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	result.Message = MessagePassCompleted
	e.metrics.PassesTotal.WithLabelValues("ok").Inc()
	e.metrics.PassDuration.Observe(time.Since(start).Seconds())

	e.log.Info("alert pass completed",
		zap.Int("alerts", result.Alerts),
		zap.Int("symbols", result.Symbols),
		zap.Int("quote_failures", result.QuoteFailures),
		zap.Int("triggered", result.Triggered),
		zap.Int("notified", result.Notified),
		zap.Int("suppressed", result.Suppressed),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

// evaluateGroup fetches one quote and handles every alert that fires on it
func (e *Engine) evaluateGroup(ctx context.Context, group SymbolGroup) PassResult {
	ctx, span := e.tracer.Start(ctx, "alerts.evaluateSymbol", trace.WithAttributes(
		attribute.String("symbol", group.Symbol),
		attribute.Int("alerts", len(group.Alerts)),
	))
	defer span.End()

	var r PassResult

	quoteCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	quote, err := e.gateway.GetQuote(quoteCtx, group.Symbol)
	cancel()
	if err == nil && quote == nil {
		err = fmt.Errorf("empty quote for %s", group.Symbol)
	}
	if err != nil {
		r.QuoteFailures++
		e.metrics.QuoteFailures.WithLabelValues(group.Symbol).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "quote fetch")
		e.log.Warn("failed to fetch quote",
			zap.String("symbol", group.Symbol),
			zap.Int("alerts", len(group.Alerts)),
			zap.Error(err),
		)
		return r
	}

	change := changePercent(quote)
	reference := ReferencePrice(quote.CurrentPrice, change)
	fetchedAt := e.now()
	span.SetAttributes(attribute.Float64("change_percent", change))

	for _, a := range group.Alerts {
		if !models.ShouldTrigger(a, change) {
			continue
		}
		r.Triggered++

		o := e.handleTrigger(ctx, a, quote, change, reference, fetchedAt)
		e.metrics.AlertOutcomes.WithLabelValues(string(o)).Inc()
		switch o {
		case outcomeNotified:
			r.Notified++
		case outcomeSuppressed:
			r.Suppressed++
		case outcomeSkipped:
			r.Skipped++
		default:
			r.Failed++
		}
	}
	return r
}

// handleTrigger claims the alert, sends its email and deactivates it. Any
// failure leaves the alert active for the next pass.
func (e *Engine) handleTrigger(ctx context.Context, a *models.Alert, quote *models.Quote,
	change float64, reference *float64, fetchedAt time.Time) outcome {
	log := e.log.With(
		zap.String("alert_id", a.ID),
		zap.String("symbol", a.Symbol),
		zap.String("direction", a.Direction),
	)

	now := e.now()
	claimCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	claimed, err := e.store.ClaimAlert(claimCtx, a.ID, now, now.Add(e.opts.ClaimTTL))
	cancel()
	if err != nil {
		log.Error("failed to claim alert", zap.Error(err))
		return outcomeFailed
	}
	if !claimed {
		log.Info("alert is being handled by another pass")
		return outcomeSkipped
	}

	target := TargetPrice(reference, a.Direction, a.ThresholdPercent)
	email := notify.AlertEmail{
		Email:        a.Email,
		Symbol:       a.Symbol,
		Direction:    a.Direction,
		Company:      quote.CompanyName,
		Timestamp:    fetchedAt,
		CurrentPrice: quote.CurrentPrice,
		TargetPrice:  target,
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	sent, err := e.notifier.SendAlertEmail(sendCtx, email)
	cancel()
	if err != nil {
		log.Error("failed to send alert email", zap.Error(err))
		e.releaseClaim(ctx, a.ID, log)
		return outcomeFailed
	}
	if sent == notify.OutcomeSuppressed {
		log.Info("alert email suppressed")
		e.releaseClaim(ctx, a.ID, log)
		return outcomeSuppressed
	}

	notifiedAt := e.now()
	deactivateCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.CallTimeout)
	matched, err := e.store.DeactivateAlert(deactivateCtx, a.ID, notifiedAt)
	cancel()
	if err != nil {
		log.Error("alert email sent but deactivation failed", zap.Error(err))
		return outcomeFailed
	}
	if !matched {
		log.Warn("alert was already deactivated")
	}
	log.Info("alert triggered",
		zap.Float64("change_percent", change),
		zap.Float64("threshold_percent", a.ThresholdPercent),
	)

	e.publish(ctx, &models.AlertEvent{
		EventType:        models.EventTypeAlertTriggered,
		AlertID:          a.ID,
		UserID:           a.UserID,
		Symbol:           a.Symbol,
		Direction:        a.Direction,
		ThresholdPercent: a.ThresholdPercent,
		ChangePercent:    change,
		CurrentPrice:     quote.CurrentPrice,
		TargetPrice:      target,
		Timestamp:        notifiedAt,
	}, log)
	return outcomeNotified
}

// releaseClaim drops the lease. It runs even when the pass context is done
// so a shutdown does not strand the alert until the lease expires.
func (e *Engine) releaseClaim(ctx context.Context, id string, log *zap.Logger) {
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.CallTimeout)
	defer cancel()
	if err := e.store.ReleaseAlertClaim(releaseCtx, id); err != nil {
		log.Warn("failed to release alert claim", zap.Error(err))
	}
}

func (e *Engine) publish(ctx context.Context, event *models.AlertEvent, log *zap.Logger) {
	if e.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, e.opts.CallTimeout)
	defer cancel()
	if err := e.publisher.PublishAlertTriggered(pubCtx, event); err != nil {
		log.Warn("failed to publish alert event", zap.Error(err))
	}
}
