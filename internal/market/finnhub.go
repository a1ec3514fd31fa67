// Package market fetches quotes from Finnhub.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/trogers1052/stock-alert-system/internal/models"
	"go.uber.org/zap"
)

// ErrUnknownSymbol is returned when the provider has no data for a symbol
var ErrUnknownSymbol = errors.New("unknown symbol")

// Limiter blocks until another provider request is allowed
type Limiter interface {
	Wait(ctx context.Context) error
}

// NameCache stores company names between passes. A miss returns "".
type NameCache interface {
	GetName(ctx context.Context, symbol string) (string, error)
	SetName(ctx context.Context, symbol, name string) error
}

// FinnhubClient implements the quote lookup against the Finnhub REST API
type FinnhubClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    Limiter
	names      NameCache
	log        *zap.Logger
}

// Option configures a FinnhubClient
type Option func(*FinnhubClient)

// WithLimiter throttles provider requests
func WithLimiter(l Limiter) Option {
	return func(c *FinnhubClient) { c.limiter = l }
}

// WithNameCache caches company profile names
func WithNameCache(nc NameCache) Option {
	return func(c *FinnhubClient) { c.names = nc }
}

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *FinnhubClient) { c.httpClient = hc }
}

// NewFinnhubClient creates a client
func NewFinnhubClient(baseURL, apiKey string, log *zap.Logger, opts ...Option) *FinnhubClient {
	if log == nil {
		log = zap.NewNop()
	}
	c := &FinnhubClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type quoteResponse struct {
	Current       *float64 `json:"c"`
	Change        *float64 `json:"d"`
	ChangePercent *float64 `json:"dp"`
	High          *float64 `json:"h"`
	Low           *float64 `json:"l"`
	Open          *float64 `json:"o"`
	PreviousClose *float64 `json:"pc"`
}

type profileResponse struct {
	Name   string `json:"name"`
	Ticker string `json:"ticker"`
}

// GetQuote returns the current price, percent change and, when available,
// the company name for symbol
func (c *FinnhubClient) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	symbol = models.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, ErrUnknownSymbol
	}

	var q quoteResponse
	if err := c.get(ctx, "/quote", symbol, &q); err != nil {
		return nil, fmt.Errorf("failed to fetch quote for %s: %w", symbol, err)
	}
	if isZero(q.Current) && isZero(q.PreviousClose) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}

	quote := &models.Quote{
		Symbol:        symbol,
		CurrentPrice:  finite(q.Current),
		PreviousClose: finite(q.PreviousClose),
		ChangePercent: finite(q.ChangePercent),
	}
	quote.CompanyName = c.companyName(ctx, symbol)
	return quote, nil
}

// companyName resolves the profile name. Failures only cost the name.
func (c *FinnhubClient) companyName(ctx context.Context, symbol string) string {
	if c.names != nil {
		name, err := c.names.GetName(ctx, symbol)
		if err != nil {
			c.log.Debug("company name cache read failed", zap.String("symbol", symbol), zap.Error(err))
		} else if name != "" {
			return name
		}
	}

	var p profileResponse
	if err := c.get(ctx, "/stock/profile2", symbol, &p); err != nil {
		c.log.Debug("company profile lookup failed", zap.String("symbol", symbol), zap.Error(err))
		return ""
	}
	name := strings.TrimSpace(p.Name)
	if name != "" && c.names != nil {
		if err := c.names.SetName(ctx, symbol, name); err != nil {
			c.log.Debug("company name cache write failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}
	return name
}

func (c *FinnhubClient) get(ctx context.Context, path, symbol string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("token", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("finnhub status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func isZero(v *float64) bool {
	return v == nil || *v == 0
}

func finite(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	return v
}
