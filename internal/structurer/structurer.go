// Package structurer turns the raw multi-endpoint corpus into one
// normalized table answering the prompt. The primary path asks the
// language model to merge and filter the data; every failure mode drops
// into a deterministic merge pipeline so the stage itself never fails.
package structurer

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/marketquery/marketquery/internal/intent"
	"github.com/marketquery/marketquery/internal/llm"
	"github.com/marketquery/marketquery/pkg/models"
)

const (
	// maxRecordsPerEndpoint caps how many rows of each endpoint are
	// serialized into the model prompt.
	maxRecordsPerEndpoint = 20

	// maxDataChars caps the serialized corpus size sent to the model.
	maxDataChars = 100000

	// maxResultItems is the row limit requested from the model.
	maxResultItems = 20
)

const baseSystemPrompt = `You are a financial data analyst. Your task is to process raw financial data and structure it according to the user's query.
The data comes from multiple financial API endpoints and needs to be merged, filtered, and structured to best answer the query.

Return ONLY a JSON array of objects with the processed data. Each object should have consistent keys that match the query's intent.
Do not include any explanations, markdown, or text outside of the JSON array.

Focus on extracting the most relevant information from the provided data sources to answer the query accurately.
Ensure numeric values are properly formatted and consistent across all objects.
Limit the response to at most 20 items that best match the query.

If the query is about dividends or yields, make sure to include the following fields if available:
- symbol
- name or companyName
- dividendYield (as a percentage)
- sector
- industry
- lastDividendValue
- dividendDate

If the query is about S&P 500 companies, prioritize data from the sp500_companies endpoint.
If the query is about highest dividend yields, sort the results by dividendYield in descending order.`

var (
	arrayPattern  = regexp.MustCompile(`(?s)\[\s*\{.*\}\s*\]`)
	objectPattern = regexp.MustCompile(`(?s)\{.*\}`)
)

// Structurer builds the final data table from raw endpoint results.
type Structurer struct {
	provider llm.Provider
	model    string
	log      zerolog.Logger
}

// Option configures the structurer.
type Option func(*Structurer)

// WithModel overrides the structuring model.
func WithModel(model string) Option {
	return func(s *Structurer) {
		if model != "" {
			s.model = model
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Structurer) { s.log = log }
}

// New creates a structurer backed by the given provider.
func New(provider llm.Provider, opts ...Option) *Structurer {
	s := &Structurer{
		provider: provider,
		model:    "gpt-4o",
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Structure produces the normalized table for the prompt. It never
// fails: any model error, parse error, or empty result falls back to
// the deterministic merge over the same raw corpus.
func (s *Structurer) Structure(ctx context.Context, it intent.Intent, raw []models.RawEndpointResult) []models.Record {
	if !models.HasData(raw) {
		s.log.Warn().Msg("no raw data to structure, using deterministic merge")
		return Merge(it, raw)
	}

	table, err := s.structureWithModel(ctx, it, raw)
	if err != nil {
		s.log.Warn().Err(err).Msg("model structuring failed, using deterministic merge")
		return Merge(it, raw)
	}
	if len(table) == 0 {
		s.log.Warn().Msg("model returned no rows, using deterministic merge")
		return Merge(it, raw)
	}

	// Post-condition for company queries: only the requested companies
	// may appear. A non-empty table with zero matches means the model
	// answered about the wrong companies; escalate to a targeted lookup.
	if it.CompanySpecific {
		filtered := filterBySymbols(table, it.Symbols)
		if len(filtered) == 0 {
			s.log.Warn().Strs("symbols", it.Symbols).Msg("structured data missed requested companies, fetching targeted data")
			return s.fetchCompany(ctx, it.Symbols[0], it.Prompt)
		}
		table = filtered
	}

	return table
}

func (s *Structurer) structureWithModel(ctx context.Context, it intent.Intent, raw []models.RawEndpointResult) ([]models.Record, error) {
	prepared := make([]models.RawEndpointResult, len(raw))
	for i, res := range raw {
		data := res.Data
		if len(data) > maxRecordsPerEndpoint {
			data = data[:maxRecordsPerEndpoint]
		}
		prepared[i] = models.RawEndpointResult{Endpoint: res.Endpoint, Data: data}
	}

	serialized, err := json.Marshal(prepared)
	if err != nil {
		return nil, fmt.Errorf("serialize corpus: %w", err)
	}
	dataString := string(serialized)
	if len(dataString) > maxDataChars {
		dataString = dataString[:maxDataChars] + "...[truncated]"
	}

	systemPrompt := baseSystemPrompt
	if it.CompanySpecific {
		systemPrompt += fmt.Sprintf(`

IMPORTANT: This query is specifically about the company/companies with symbol(s): %s.
You MUST ONLY return data for these specific companies and filter out any irrelevant companies.
If you don't have sufficient data for these companies, return an empty array rather than providing data for unrelated companies.
For financial statements, ensure you're returning the most recent and accurate data available in the provided datasets.`,
			strings.Join(it.Symbols, ", "))
	}

	resp, err := s.provider.Chat(ctx, []llm.Message{
		llm.SystemMessage(systemPrompt),
		llm.UserMessage(fmt.Sprintf("Query: %s\n\nRaw Data: %s", it.Prompt, dataString)),
	}, &llm.ChatOptions{
		Model:       s.model,
		Temperature: 0.2,
		MaxTokens:   4000,
	})
	if err != nil {
		return nil, err
	}

	return parseTable(resp.Content)
}

// parseTable extracts a record slice from model output: direct JSON
// first, then the first embedded JSON array, with an object's "data"
// field unwrapped and a bare object wrapped into a one-row table.
func parseTable(content string) ([]models.Record, error) {
	var table []models.Record
	if err := json.Unmarshal([]byte(content), &table); err == nil {
		return table, nil
	}

	var wrapper struct {
		Data []models.Record `json:"data"`
	}
	if err := json.Unmarshal([]byte(content), &wrapper); err == nil && wrapper.Data != nil {
		return wrapper.Data, nil
	}

	var single models.Record
	if err := json.Unmarshal([]byte(content), &single); err == nil && len(single) > 0 {
		return []models.Record{single}, nil
	}

	if match := arrayPattern.FindString(content); match != "" {
		if err := json.Unmarshal([]byte(match), &table); err == nil {
			return table, nil
		}
	}

	return nil, fmt.Errorf("no JSON table in model output")
}

// fetchCompany asks the model directly for one company's data. Used
// when the structured output failed the company post-condition.
func (s *Structurer) fetchCompany(ctx context.Context, symbol, prompt string) []models.Record {
	lower := strings.ToLower(prompt)
	wantsStatement := strings.Contains(lower, "financial") ||
		strings.Contains(lower, "statement") ||
		strings.Contains(lower, "report")

	detail := "Please provide key financial metrics and company information."
	if wantsStatement {
		switch {
		case strings.Contains(lower, "balance"):
			detail = "Please provide the most recent balance sheet."
		case strings.Contains(lower, "income"), strings.Contains(lower, "profit"):
			detail = "Please provide the most recent income statement."
		case strings.Contains(lower, "cash flow"):
			detail = "Please provide the most recent cash flow statement."
		default:
			detail = "Please provide the most recent financial statements."
		}
	}

	userPrompt := fmt.Sprintf(`I need accurate financial data for the company with ticker symbol %s. %s

Return the data in a JSON array format with a single object containing all the relevant information.
Include fields like symbol, name, sector, industry, and any relevant financial metrics.
Only include factual, up-to-date information. If you don't know a value, use null.`, symbol, detail)

	resp, err := s.provider.Chat(ctx, []llm.Message{
		llm.SystemMessage("You are a financial data assistant that provides accurate, up-to-date financial metrics for companies. Respond only with the requested JSON data."),
		llm.UserMessage(userPrompt),
	}, &llm.ChatOptions{
		Model:       s.model,
		Temperature: 0.1,
	})
	if err != nil {
		s.log.Warn().Str("symbol", symbol).Err(err).Msg("targeted company lookup failed")
		return placeholderCompany(symbol)
	}

	table, err := parseTable(resp.Content)
	if err != nil || len(table) == 0 {
		if match := objectPattern.FindString(resp.Content); match != "" {
			var single models.Record
			if json.Unmarshal([]byte(match), &single) == nil && len(single) > 0 {
				table = []models.Record{single}
			}
		}
	}
	if len(table) == 0 {
		return placeholderCompany(symbol)
	}

	// The requested symbol always wins over whatever the model wrote.
	table[0]["symbol"] = symbol
	return table
}

func placeholderCompany(symbol string) []models.Record {
	return []models.Record{{
		"symbol": symbol,
		"name":   fmt.Sprintf("Company with symbol %s", symbol),
		"error":  "Could not fetch detailed data",
	}}
}

// filterBySymbols keeps rows whose symbol or ticker is in the set.
func filterBySymbols(table []models.Record, symbols []string) []models.Record {
	want := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		want[s] = true
	}
	var out []models.Record
	for _, rec := range table {
		if want[rec.Symbol()] {
			out = append(out, rec)
		}
	}
	return out
}
