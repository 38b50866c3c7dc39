// Package fetch executes an endpoint plan against the market-data API:
// concurrent fan-out with per-endpoint failure isolation, response
// caching, rate limiting, and a synthetic fallback result when every
// endpoint comes back empty.
package fetch

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/marketquery/marketquery/internal/infra"
	"github.com/marketquery/marketquery/internal/plan"
	"github.com/marketquery/marketquery/pkg/models"
)

const defaultBaseURL = "https://financialmodelingprep.com/api/v3"

// Client fetches raw endpoint payloads.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	cache   *ttlcache.Cache[string, []models.Record]
	limiter *infra.RateLimiter
	timeout time.Duration
	maxConc int
	log     zerolog.Logger
}

// Option configures the fetch client.
type Option func(*Client)

// WithBaseURL overrides the upstream base URL.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithCacheTTL sets the response cache validity window.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = ttlcache.New(
			ttlcache.WithTTL[string, []models.Record](ttl),
			ttlcache.WithDisableTouchOnHit[string, []models.Record](),
		)
	}
}

// WithRateLimiter sets the upstream rate limiter.
func WithRateLimiter(rl *infra.RateLimiter) Option {
	return func(c *Client) { c.limiter = rl }
}

// WithTimeout sets the per-endpoint call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithConcurrency caps the number of endpoints fetched in parallel.
func WithConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxConc = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New creates a fetch client for the given market-data API key.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
		timeout: 30 * time.Second,
		maxConc: 5,
		log:     zerolog.Nop(),
	}
	c.cache = ttlcache.New(
		ttlcache.WithTTL[string, []models.Record](5*time.Minute),
		ttlcache.WithDisableTouchOnHit[string, []models.Record](),
	)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute fetches every descriptor concurrently and returns one result
// per descriptor in plan order. A failing endpoint yields an empty Data
// slice instead of failing the batch. When every endpoint comes back
// empty, a synthetic fallback result keyed to the prompt is appended so
// downstream stages never see a fully empty corpus.
func (c *Client) Execute(ctx context.Context, prompt string, descriptors []plan.Descriptor) []models.RawEndpointResult {
	results := make([]models.RawEndpointResult, len(descriptors))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxConc)
	for i, d := range descriptors {
		i, d := i, d
		g.Go(func() error {
			data, err := c.GetJSON(gctx, d.Path)
			if err != nil {
				c.log.Warn().Str("endpoint", d.Name).Err(err).Msg("endpoint fetch failed")
				data = []models.Record{}
			}
			results[i] = models.RawEndpointResult{Endpoint: d.Name, Data: data}
			return nil
		})
	}
	g.Wait()

	// Slots can stay zero-valued if the group context was cancelled
	// before a goroutine ran.
	for i, d := range descriptors {
		if results[i].Endpoint == "" {
			results[i] = models.RawEndpointResult{Endpoint: d.Name, Data: []models.Record{}}
		}
	}

	if !models.HasData(results) {
		fb := Fallback(prompt)
		c.log.Warn().Str("endpoint", fb.Endpoint).Msg("all endpoints empty, injecting fallback dataset")
		results = append(results, fb)
	}

	return results
}

// GetJSON fetches one v3 path and normalizes the body to a record
// slice: arrays pass through, a single object becomes a one-element
// slice, anything else is empty. The API key is appended here so plans
// stay credential free.
func (c *Client) GetJSON(ctx context.Context, path string) ([]models.Record, error) {
	if item := c.cache.Get(path); item != nil {
		return item.Value(), nil
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	url := c.baseURL + "/" + path + sep + "apikey=" + c.apiKey

	var raw json.RawMessage
	if err := infra.DoGetJSON(ctx, c.http, url, &raw); err != nil {
		return nil, err
	}

	data := normalize(raw)
	c.cache.Set(path, data, ttlcache.DefaultTTL)
	return data, nil
}

// normalize coerces a JSON body into a record slice.
func normalize(raw json.RawMessage) []models.Record {
	var arr []models.Record
	if err := json.Unmarshal(raw, &arr); err == nil {
		return arr
	}
	var obj models.Record
	if err := json.Unmarshal(raw, &obj); err == nil && len(obj) > 0 {
		return []models.Record{obj}
	}
	return []models.Record{}
}
