// Package sqlgen converts a natural-language financial question into a
// SQL statement. Generation runs on the primary model with one retry on
// a cheaper fallback model; both failing is the only fatal error in the
// whole pipeline.
package sqlgen

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/marketquery/marketquery/internal/llm"
	"github.com/marketquery/marketquery/pkg/models"
)

const primarySystemPrompt = `You are a SQL expert specializing in financial database queries. Convert the following natural language query into a precise SQL query.

The database contains financial information about companies, including metrics like:
- Basic company information (symbol, name, sector, industry)
- Market metrics (market cap, price, PE ratio)
- Financial performance (revenue, profit margins, growth rates)
- Dividend information (yield, payout ratio)
- Sector-specific metrics for retail, healthcare, technology and other industries

Only return the SQL query without any explanation or markdown formatting. Make sure the query is accurate, efficient, and follows best practices.`

const fallbackSystemPrompt = `You are a SQL expert. Convert the following natural language query into a SQL query.
Only return the SQL query without any explanation or markdown formatting.`

// Generator synthesizes SQL from prompts.
type Generator struct {
	provider      llm.Provider
	model         string
	fallbackModel string
	log           zerolog.Logger
}

// Option configures the generator.
type Option func(*Generator)

// WithModels overrides the primary and fallback model names.
func WithModels(primary, fallback string) Option {
	return func(g *Generator) {
		if primary != "" {
			g.model = primary
		}
		if fallback != "" {
			g.fallbackModel = fallback
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(g *Generator) { g.log = log }
}

// New creates a SQL generator backed by the given provider.
func New(provider llm.Provider, opts ...Option) *Generator {
	g := &Generator{
		provider:      provider,
		model:         "gpt-4o",
		fallbackModel: "gpt-3.5-turbo",
		log:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate produces a SQL statement for the prompt. The primary model
// gets the full domain context; on any failure the fallback model is
// tried once with a simplified instruction. When both fail the original
// error is wrapped in a GenerationError.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.provider.Chat(ctx, []llm.Message{
		llm.SystemMessage(primarySystemPrompt),
		llm.UserMessage(prompt),
	}, &llm.ChatOptions{
		Model:       g.model,
		Temperature: 0.2,
		MaxTokens:   800,
	})
	if err == nil && resp.Content != "" {
		return resp.Content, nil
	}
	if err == nil {
		err = llm.ErrEmptyResponse
	}
	g.log.Warn().Str("model", g.model).Err(err).Msg("sql generation failed, retrying on fallback model")

	fbResp, fbErr := g.provider.Chat(ctx, []llm.Message{
		llm.SystemMessage(fallbackSystemPrompt),
		llm.UserMessage(prompt),
	}, &llm.ChatOptions{
		Model:       g.fallbackModel,
		Temperature: 0.3,
		MaxTokens:   500,
	})
	if fbErr == nil && fbResp.Content != "" {
		return fbResp.Content, nil
	}

	// Surface the primary model's error, not the fallback's.
	return "", &models.GenerationError{Model: g.model, Fallback: g.fallbackModel, Err: err}
}
