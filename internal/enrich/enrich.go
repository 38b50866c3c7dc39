// Package enrich fills gaps in a structured table. Rows missing any of
// the important financial ratios are completed from a per-symbol cache
// first, then by batched model lookups whose answers are written back
// to the cache. Enrichment is strictly best effort: every failure
// leaves the table as it was.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/marketquery/marketquery/internal/llm"
	"github.com/marketquery/marketquery/pkg/models"
)

// ImportantFields are the ratios a complete company row should carry.
var ImportantFields = []string{
	"profitMargin",
	"grossMargin",
	"operatingMargin",
	"netIncomeMargin",
	"revenueGrowth",
	"earningsGrowth",
	"dividendYield",
	"peRatio",
	"pbRatio",
	"debtToEquity",
	"returnOnEquity",
	"returnOnAssets",
}

var objectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// CacheStore persists enriched company data across queries. Entries
// older than the staleness window read as absent.
type CacheStore interface {
	GetCompanyData(ctx context.Context, symbol string) (models.Record, bool, error)
	SaveCompanyData(ctx context.Context, symbol string, data models.Record) error
}

// Enricher completes structured tables.
type Enricher struct {
	provider   llm.Provider
	cache      CacheStore
	model      string
	batchSize  int
	batchDelay time.Duration
	log        zerolog.Logger
}

// Option configures the enricher.
type Option func(*Enricher)

// WithCache sets the persistent company-data cache.
func WithCache(cache CacheStore) Option {
	return func(e *Enricher) { e.cache = cache }
}

// WithModel overrides the lookup model.
func WithModel(model string) Option {
	return func(e *Enricher) {
		if model != "" {
			e.model = model
		}
	}
}

// WithBatchDelay overrides the pause between lookup batches.
func WithBatchDelay(d time.Duration) Option {
	return func(e *Enricher) { e.batchDelay = d }
}

// WithLogger sets the structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Enricher) { e.log = log }
}

// New creates an enricher backed by the given provider.
func New(provider llm.Provider, opts ...Option) *Enricher {
	e := &Enricher{
		provider:   provider,
		model:      "gpt-4o",
		batchSize:  5,
		batchDelay: time.Second,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MissingFields reports which important fields are absent, nil, or
// "N/A" in at least one row.
func MissingFields(table []models.Record) []string {
	if len(table) == 0 {
		return nil
	}
	var missing []string
	seen := make(map[string]bool)
	for _, row := range table {
		for _, field := range ImportantFields {
			if !row.Has(field) && !seen[field] {
				seen[field] = true
				missing = append(missing, field)
			}
		}
	}
	return missing
}

// Enrich completes the table in place and returns it. Rows that need
// nothing are untouched; cache hits fill rows without a model call;
// the rest are looked up in batches. A failed batch is skipped and the
// remaining batches still run.
func (e *Enricher) Enrich(ctx context.Context, table []models.Record) []models.Record {
	missing := MissingFields(table)
	if len(missing) == 0 {
		return table
	}

	// First row wins when a symbol appears more than once.
	index := make(map[string]int, len(table))
	for i, row := range table {
		if s := row.Symbol(); s != "" {
			if _, ok := index[s]; !ok {
				index[s] = i
			}
		}
	}

	var toLookup []string
	queued := make(map[string]bool)
	for i, row := range table {
		if !rowNeedsFields(row, missing) {
			continue
		}
		symbol := row.Symbol()
		if symbol == "" || queued[symbol] {
			continue
		}
		if cached, ok := e.cachedData(ctx, symbol); ok {
			table[i] = row.Merge(cached)
			continue
		}
		queued[symbol] = true
		toLookup = append(toLookup, symbol)
	}
	if len(toLookup) == 0 {
		return table
	}

	for start := 0; start < len(toLookup); start += e.batchSize {
		end := start + e.batchSize
		if end > len(toLookup) {
			end = len(toLookup)
		}
		batch := toLookup[start:end]

		looked, err := e.lookupBatch(ctx, batch, missing)
		if err != nil {
			// Batches are independent: a bad batch is skipped, not fatal
			// to the rest of the pass.
			e.log.Warn().Err(err).Strs("symbols", batch).Msg("enrichment batch failed")
		}
		for symbol, fields := range looked {
			i, ok := index[symbol]
			if !ok {
				continue
			}
			table[i] = table[i].Merge(fields)
			if e.cache != nil {
				if err := e.cache.SaveCompanyData(ctx, symbol, table[i]); err != nil {
					e.log.Warn().Str("symbol", symbol).Err(err).Msg("company cache write failed")
				}
			}
		}

		if end < len(toLookup) && e.batchDelay > 0 {
			select {
			case <-ctx.Done():
				return table
			case <-time.After(e.batchDelay):
			}
		}
	}

	return table
}

func (e *Enricher) cachedData(ctx context.Context, symbol string) (models.Record, bool) {
	if e.cache == nil {
		return nil, false
	}
	data, ok, err := e.cache.GetCompanyData(ctx, symbol)
	if err != nil {
		e.log.Warn().Str("symbol", symbol).Err(err).Msg("company cache read failed")
		return nil, false
	}
	return data, ok
}

func (e *Enricher) lookupBatch(ctx context.Context, symbols, fields []string) (map[string]models.Record, error) {
	prompt := fmt.Sprintf(`I need the following financial data for these companies: %s.
Specifically, I need their %s.
Please provide the data in a JSON format with the company symbol as the key and an object of the requested fields as the value.
Only include factual, up-to-date information. If you don't know a value, use null.
Format example: { "AAPL": { "profitMargin": 0.25, "otherField": 100 } }`,
		strings.Join(symbols, ", "), strings.Join(fields, ", "))

	resp, err := e.provider.Chat(ctx, []llm.Message{
		llm.SystemMessage("You are a financial data assistant that provides accurate, up-to-date financial metrics for companies. Respond only with the requested JSON data."),
		llm.UserMessage(prompt),
	}, &llm.ChatOptions{
		Model:       e.model,
		Temperature: 0.1,
	})
	if err != nil {
		return nil, err
	}

	var out map[string]models.Record
	if err := json.Unmarshal([]byte(resp.Content), &out); err == nil {
		return out, nil
	}
	if match := objectPattern.FindString(resp.Content); match != "" {
		if err := json.Unmarshal([]byte(match), &out); err == nil {
			return out, nil
		}
	}
	return nil, fmt.Errorf("no symbol map in model output")
}

func rowNeedsFields(row models.Record, fields []string) bool {
	for _, field := range fields {
		if !row.Has(field) {
			return true
		}
	}
	return false
}
