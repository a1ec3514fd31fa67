// Package scheduler decides when evaluation passes run.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/trogers1052/stock-alert-system/internal/alerts"
	"github.com/trogers1052/stock-alert-system/internal/cache"
	"github.com/trogers1052/stock-alert-system/internal/metrics"
	"go.uber.org/zap"
)

// Trigger sources
const (
	SourceSchedule = "schedule"
	SourceStartup  = "startup"
	SourceAPI      = "api"
	SourceKafka    = "kafka"
)

// MessageLockHeld is reported when another instance is running a pass
const MessageLockHeld = "pass already running on another instance"

// Passer runs one evaluation pass
type Passer interface {
	RunPass(ctx context.Context) (alerts.PassResult, error)
}

// Locker serializes passes across instances
type Locker interface {
	Acquire(ctx context.Context) (func(context.Context) error, error)
}

// Runner drives passes from a ticker and on-demand triggers. Passes never
// overlap within a process; pending triggers are coalesced into one.
type Runner struct {
	engine   Passer
	lock     Locker
	interval time.Duration
	log      *zap.Logger
	metrics  *metrics.Metrics

	pending chan string
	mu      sync.Mutex
}

// NewRunner creates a runner. lock may be nil.
func NewRunner(engine Passer, lock Locker, interval time.Duration, log *zap.Logger, m *metrics.Metrics) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Runner{
		engine:   engine,
		lock:     lock,
		interval: interval,
		log:      log,
		metrics:  m,
		pending:  make(chan string, 1),
	}
}

// Trigger asks for a pass as soon as possible. It returns false when a
// request is already queued, in which case this one is folded into it.
func (r *Runner) Trigger(source string) bool {
	r.metrics.TriggerEvents.WithLabelValues(source).Inc()
	select {
	case r.pending <- source:
		return true
	default:
		r.log.Debug("pass already queued", zap.String("source", source))
		return false
	}
}

// Run blocks until ctx is done, running a pass on every tick and trigger
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("alert scheduler started", zap.Duration("interval", r.interval))
	for {
		select {
		case <-ctx.Done():
			r.log.Info("alert scheduler stopped")
			return nil
		case <-ticker.C:
			r.runLogged(ctx, SourceSchedule)
		case source := <-r.pending:
			r.runLogged(ctx, source)
		}
	}
}

// RunOnce runs a single pass now, waiting for any pass in progress in this
// process to finish first
func (r *Runner) RunOnce(ctx context.Context, source string) (alerts.PassResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lock != nil {
		release, err := r.lock.Acquire(ctx)
		switch {
		case errors.Is(err, cache.ErrLockHeld):
			r.log.Info("skipping pass", zap.String("source", source), zap.String("reason", MessageLockHeld))
			return alerts.PassResult{Message: MessageLockHeld}, nil
		case err != nil:
			r.log.Warn("pass lock unavailable, running without it", zap.String("source", source), zap.Error(err))
		default:
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					r.log.Warn("failed to release pass lock", zap.Error(err))
				}
			}()
		}
	}

	return r.engine.RunPass(ctx)
}

func (r *Runner) runLogged(ctx context.Context, source string) {
	r.log.Debug("starting alert pass", zap.String("source", source))
	if _, err := r.RunOnce(ctx, source); err != nil {
		r.log.Error("alert pass failed", zap.String("source", source), zap.Error(err))
	}
}
