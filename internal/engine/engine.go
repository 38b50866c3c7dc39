// Package engine drives a prompt through the full resolution pipeline:
// intent analysis, fetch planning, concurrent SQL generation and data
// fetching, structuring, and enrichment. The engine is the only layer
// that assembles a QueryResult; everything below it degrades instead
// of failing.
package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/marketquery/marketquery/internal/intent"
	"github.com/marketquery/marketquery/internal/plan"
	"github.com/marketquery/marketquery/pkg/models"
)

// highDividendLimit caps how many index constituents join the corpus
// for dividend-ranking queries.
const highDividendLimit = 20

// SQLGenerator produces the SQL rendition of a prompt.
type SQLGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// DataFetcher executes a fetch plan against the market data API.
type DataFetcher interface {
	Execute(ctx context.Context, prompt string, descriptors []plan.Descriptor) []models.RawEndpointResult
}

// TableStructurer collapses the raw corpus into one table.
type TableStructurer interface {
	Structure(ctx context.Context, it intent.Intent, raw []models.RawEndpointResult) []models.Record
}

// TableEnricher fills missing fields in a structured table.
type TableEnricher interface {
	Enrich(ctx context.Context, table []models.Record) []models.Record
}

// IndexService resolves market index constituents.
type IndexService interface {
	Companies(ctx context.Context, indexName string) []models.IndexCompany
	HighDividend(ctx context.Context, indexName string, limit int) []models.IndexCompany
}

// Auditor records resolved queries.
type Auditor interface {
	RecordQuery(ctx context.Context, userID, prompt string, result models.QueryResult) (string, error)
}

// Engine resolves free-text financial questions into query results.
type Engine struct {
	keys       models.APIKeys
	sql        SQLGenerator
	fetcher    DataFetcher
	structurer TableStructurer
	enricher   TableEnricher
	indexes    IndexService
	auditor    Auditor
	userID     string
	log        zerolog.Logger
}

// Option configures the engine.
type Option func(*Engine)

// WithEnricher enables the enrichment stage.
func WithEnricher(enricher TableEnricher) Option {
	return func(e *Engine) { e.enricher = enricher }
}

// WithIndexService enables market index resolution.
func WithIndexService(indexes IndexService) Option {
	return func(e *Engine) { e.indexes = indexes }
}

// WithAuditor enables the query audit trail for the given user.
func WithAuditor(auditor Auditor, userID string) Option {
	return func(e *Engine) {
		e.auditor = auditor
		e.userID = userID
	}
}

// WithLogger sets the structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// New creates an engine from its pipeline stages. Enrichment, index
// resolution, and auditing are optional.
func New(keys models.APIKeys, sql SQLGenerator, fetcher DataFetcher, structurer TableStructurer, opts ...Option) *Engine {
	e := &Engine{
		keys:       keys,
		sql:        sql,
		fetcher:    fetcher,
		structurer: structurer,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Resolve answers a prompt. SQL generation runs concurrently with the
// data path; a failure of either is the only way Resolve reports an
// error, and then Data is empty and SQLQuery is blank.
func (e *Engine) Resolve(ctx context.Context, prompt string) models.QueryResult {
	started := time.Now()

	if err := e.keys.Validate(); err != nil {
		return e.finish(ctx, prompt, models.Failed(err))
	}

	it := intent.Analyze(prompt)
	e.log.Debug().
		Strs("symbols", it.Symbols).
		Strs("sectors", it.Sectors).
		Str("index", it.Index).
		Msg("prompt analyzed")

	var (
		sqlQuery string
		raw      []models.RawEndpointResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		query, err := e.sql.Generate(gctx, prompt)
		if err != nil {
			return err
		}
		sqlQuery = query
		return nil
	})
	g.Go(func() error {
		raw = e.fetcher.Execute(gctx, prompt, plan.Build(it))
		if rows := e.indexData(gctx, it); len(rows) > 0 {
			raw = append(raw, models.RawEndpointResult{
				Endpoint: it.Index + "_index_data",
				Data:     rows,
			})
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return e.finish(ctx, prompt, models.Failed(err))
	}

	table := e.structurer.Structure(ctx, it, raw)
	if e.enricher != nil {
		table = e.enricher.Enrich(ctx, table)
	}
	if len(table) == 0 {
		return e.finish(ctx, prompt, models.Failed(models.ErrEmptyResult))
	}

	e.log.Info().
		Int("rows", len(table)).
		Dur("elapsed", time.Since(started)).
		Msg("query resolved")
	return e.finish(ctx, prompt, models.QueryResult{Data: table, SQLQuery: sqlQuery})
}

// indexData resolves index constituents when the prompt names an
// index. Dividend and ranking prompts get the top payers; anything
// else gets the full constituent list.
func (e *Engine) indexData(ctx context.Context, it intent.Intent) []models.Record {
	if e.indexes == nil || it.Index == "" {
		return nil
	}

	var companies []models.IndexCompany
	if it.WantsDividends || it.WantsTop {
		companies = e.indexes.HighDividend(ctx, it.Index, highDividendLimit)
	} else {
		companies = e.indexes.Companies(ctx, it.Index)
	}

	rows := make([]models.Record, 0, len(companies))
	for _, c := range companies {
		rows = append(rows, c.Record())
	}
	return rows
}

// finish records the result in the audit trail, best effort.
func (e *Engine) finish(ctx context.Context, prompt string, result models.QueryResult) models.QueryResult {
	if e.auditor != nil {
		if _, err := e.auditor.RecordQuery(ctx, e.userID, prompt, result); err != nil {
			e.log.Warn().Err(err).Msg("query audit write failed")
		}
	}
	return result
}
