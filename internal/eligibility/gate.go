// Package eligibility decides whether an address may receive a category of
// email right now. Answers are cached per address and the preference store
// is guarded by a circuit breaker; when the truth is unknown the gate says no.
package eligibility

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/patrickmn/go-cache"
	"github.com/trogers1052/stock-alert-system/internal/metrics"
	"github.com/trogers1052/stock-alert-system/internal/models"
	"go.uber.org/zap"
)

// Defaults used when Options leaves a field zero
const (
	DefaultCacheTTL         = 5 * time.Minute
	DefaultFailureThreshold = 5
	DefaultCooldown         = 60 * time.Second
	DefaultLookupTimeout    = 5 * time.Second
)

// cleanupFactor sets the eviction sweep interval as a multiple of CacheTTL
const cleanupFactor = 2

// PreferenceStore looks up the email settings of a normalized address
type PreferenceStore interface {
	GetPreferences(ctx context.Context, email string) (*models.Preferences, error)
}

// Options tunes the cache and the breaker. CleanupInterval defaults to
// twice CacheTTL.
type Options struct {
	CacheTTL         time.Duration
	CleanupInterval  time.Duration
	FailureThreshold int
	Cooldown         time.Duration
	LookupTimeout    time.Duration
}

type entry struct {
	unsubscribed     bool
	dailyNewsEnabled bool
	fetchedAt        time.Time
}

// Gate answers CanSend. Its cache and breaker state belong to the instance.
type Gate struct {
	store   PreferenceStore
	log     *zap.Logger
	metrics *metrics.Metrics
	opts    Options
	now     func() time.Time

	cache *cache.Cache

	mu       sync.Mutex
	failures int
	openedAt time.Time
	open     bool
}

// NewGate creates a gate over store. m may be nil.
func NewGate(store PreferenceStore, log *zap.Logger, m *metrics.Metrics, opts Options) *Gate {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = cleanupFactor * opts.CacheTTL
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = DefaultFailureThreshold
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = DefaultLookupTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{
		store:   store,
		log:     log,
		metrics: m,
		opts:    opts,
		now:     time.Now,
		cache:   cache.New(opts.CacheTTL, opts.CleanupInterval),
	}
}

// CanSend reports whether category mail may go to address. It never fails:
// an unreachable store with no fresh cache entry answers false.
func (g *Gate) CanSend(ctx context.Context, address, category string) bool {
	email := models.NormalizeEmail(address)
	category = normalizeCategory(category)
	if !validAddress(email) {
		g.record(category, "invalid", false)
		return false
	}

	if g.breakerOpen() {
		return g.fromCache(email, category, "breaker_open")
	}

	lookupCtx, cancel := context.WithTimeout(ctx, g.opts.LookupTimeout)
	prefs, err := g.store.GetPreferences(lookupCtx, email)
	cancel()

	if err != nil {
		g.recordFailure(err)
		return g.fromCache(email, category, "fallback")
	}

	g.cache.Set(email, entry{
		unsubscribed:     prefs.Unsubscribed,
		dailyNewsEnabled: prefs.DailyNewsEnabled,
		fetchedAt:        g.now(),
	}, cache.DefaultExpiration)

	g.mu.Lock()
	g.failures = 0
	g.mu.Unlock()

	allowed := decide(prefs.Unsubscribed, prefs.DailyNewsEnabled, category)
	g.record(category, "store", allowed)
	return allowed
}

// CachedEntries returns the number of addresses held in the cache,
// including expired ones not yet swept
func (g *Gate) CachedEntries() int {
	return g.cache.ItemCount()
}

// BreakerOpen reports whether store lookups are currently suspended
func (g *Gate) BreakerOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open && g.now().Sub(g.openedAt) < g.opts.Cooldown
}

// breakerOpen reports the breaker state, closing it once the cooldown ran out
func (g *Gate) breakerOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.open {
		return false
	}
	if g.now().Sub(g.openedAt) < g.opts.Cooldown {
		return true
	}

	g.open = false
	g.failures = 0
	g.openedAt = time.Time{}
	if g.metrics != nil {
		g.metrics.BreakerOpen.Set(0)
	}
	g.log.Info("eligibility breaker closed after cooldown")
	return false
}

func (g *Gate) recordFailure(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.failures++
	g.log.Warn("preference lookup failed",
		zap.Int("consecutive_failures", g.failures),
		zap.Error(err),
	)
	if g.failures >= g.opts.FailureThreshold && !g.open {
		g.open = true
		g.openedAt = g.now()
		if g.metrics != nil {
			g.metrics.BreakerOpen.Set(1)
		}
		g.log.Error("eligibility breaker opened",
			zap.Int("consecutive_failures", g.failures),
			zap.Duration("cooldown", g.opts.Cooldown),
		)
	}
}

func (g *Gate) fromCache(email, category, source string) bool {
	var e entry
	fresh := false
	if v, found := g.cache.Get(email); found {
		e = v.(entry)
		fresh = g.now().Sub(e.fetchedAt) < g.opts.CacheTTL
	}

	if !fresh {
		g.record(category, source+"_miss", false)
		return false
	}
	allowed := decide(e.unsubscribed, e.dailyNewsEnabled, category)
	g.record(category, source+"_cache", allowed)
	return allowed
}

func (g *Gate) record(category, source string, allowed bool) {
	if g.metrics == nil {
		return
	}
	result := "false"
	if allowed {
		result = "true"
	}
	g.metrics.GateDecisions.WithLabelValues(category, source, result).Inc()
}

func decide(unsubscribed, dailyNewsEnabled bool, category string) bool {
	if unsubscribed {
		return false
	}
	if category == models.CategoryNews && !dailyNewsEnabled {
		return false
	}
	return true
}

func normalizeCategory(category string) string {
	switch c := strings.ToLower(strings.TrimSpace(category)); c {
	case models.CategoryNews, models.CategoryAlerts:
		return c
	default:
		return models.CategoryOther
	}
}

func validAddress(email string) bool {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	return !strings.ContainsFunc(email, unicode.IsSpace)
}
