package structurer

import (
	"context"
	"strings"
	"testing"

	"github.com/marketquery/marketquery/internal/intent"
	"github.com/marketquery/marketquery/internal/llm"
	"github.com/marketquery/marketquery/pkg/models"
)

// scriptedProvider returns queued responses in order, then errors.
type scriptedProvider struct {
	responses []string
	err       error
	prompts   []string
}

func (p *scriptedProvider) Chat(ctx context.Context, messages []llm.Message, opts *llm.ChatOptions) (*llm.Response, error) {
	for _, m := range messages {
		p.prompts = append(p.prompts, m.Content)
	}
	if p.err != nil {
		return nil, p.err
	}
	if len(p.responses) == 0 {
		return nil, llm.ErrEmptyResponse
	}
	content := p.responses[0]
	p.responses = p.responses[1:]
	return &llm.Response{Content: content, Model: opts.Model}, nil
}

func (p *scriptedProvider) Ping(ctx context.Context) error { return nil }

func corpus() []models.RawEndpointResult {
	return []models.RawEndpointResult{
		{Endpoint: "company_profiles", Data: []models.Record{
			{"symbol": "AAPL", "companyName": "Apple Inc.", "sector": "Technology", "price": 175.0, "mktCap": 2.8e12},
		}},
	}
}

func TestStructureParsesModelArray(t *testing.T) {
	p := &scriptedProvider{responses: []string{`[{"symbol":"AAPL","name":"Apple Inc."}]`}}
	s := New(p)

	table := s.Structure(context.Background(), intent.Analyze("apple overview AAPL"), corpus())
	if len(table) != 1 || table[0].Symbol() != "AAPL" {
		t.Errorf("table: got %v", table)
	}
}

func TestStructureExtractsEmbeddedArray(t *testing.T) {
	p := &scriptedProvider{responses: []string{
		"Here are the results:\n```json\n[{\"symbol\":\"MSFT\"}]\n```",
	}}
	s := New(p)

	table := s.Structure(context.Background(), intent.Analyze("msft MSFT"), corpus())
	if len(table) != 1 || table[0].Symbol() != "MSFT" {
		t.Errorf("embedded array should be extracted, got %v", table)
	}
}

func TestStructureUnwrapsDataField(t *testing.T) {
	table, err := parseTable(`{"data":[{"symbol":"NVDA"}]}`)
	if err != nil {
		t.Fatalf("parseTable: %v", err)
	}
	if len(table) != 1 || table[0].Symbol() != "NVDA" {
		t.Errorf("data field should be unwrapped, got %v", table)
	}
}

func TestParseTableWrapsBareObject(t *testing.T) {
	table, err := parseTable(`{"symbol":"TSLA","price":237.49}`)
	if err != nil {
		t.Fatalf("parseTable: %v", err)
	}
	if len(table) != 1 || table[0].Symbol() != "TSLA" {
		t.Errorf("bare object should become one row, got %v", table)
	}
}

func TestParseTableRejectsProse(t *testing.T) {
	if _, err := parseTable("I could not find any relevant data."); err == nil {
		t.Error("prose output should fail to parse")
	}
}

func TestStructureFallsBackOnModelError(t *testing.T) {
	p := &scriptedProvider{err: llm.ErrRateLimit}
	s := New(p)

	raw := []models.RawEndpointResult{
		{Endpoint: "fallback_data", Data: []models.Record{{"symbol": "AAPL"}}},
	}
	table := s.Structure(context.Background(), intent.Analyze("anything"), raw)
	if len(table) != 1 || table[0].Symbol() != "AAPL" {
		t.Errorf("model failure should fall back to merge, got %v", table)
	}
}

func TestStructureFallsBackOnEmptyModelOutput(t *testing.T) {
	p := &scriptedProvider{responses: []string{`[]`}}
	s := New(p)

	raw := []models.RawEndpointResult{
		{Endpoint: "fallback_data", Data: []models.Record{{"symbol": "MSFT"}}},
	}
	table := s.Structure(context.Background(), intent.Analyze("anything"), raw)
	if len(table) != 1 || table[0].Symbol() != "MSFT" {
		t.Errorf("empty model table should fall back to merge, got %v", table)
	}
}

func TestStructureSkipsModelWhenCorpusEmpty(t *testing.T) {
	p := &scriptedProvider{responses: []string{`[{"symbol":"SHOULD_NOT_APPEAR"}]`}}
	s := New(p)

	raw := []models.RawEndpointResult{{Endpoint: "company_profiles", Data: nil}}
	table := s.Structure(context.Background(), intent.Analyze("healthcare leaders"), raw)

	if len(p.prompts) != 0 {
		t.Error("the model should not be consulted for an empty corpus")
	}
	if len(table) == 0 {
		t.Fatal("merge should backstop an empty corpus")
	}
	if table[0]["sector"] != "Healthcare" {
		t.Errorf("healthcare prompt should yield healthcare rows, got %v", table[0])
	}
}

func TestStructureFiltersCompanySpecificRows(t *testing.T) {
	p := &scriptedProvider{responses: []string{
		`[{"symbol":"AAPL","revenue":1},{"symbol":"MSFT","revenue":2}]`,
	}}
	s := New(p)

	it := intent.Analyze("AAPL income statement")
	table := s.Structure(context.Background(), it, corpus())
	if len(table) != 1 || table[0].Symbol() != "AAPL" {
		t.Errorf("unrelated companies should be filtered out, got %v", table)
	}
}

func TestStructureEscalatesToTargetedLookup(t *testing.T) {
	p := &scriptedProvider{responses: []string{
		`[{"symbol":"XYZ"},{"symbol":"ABC"}]`,                // wrong companies
		`[{"symbol":"WRONG","name":"Apple Inc.","pe":28.5}]`, // targeted answer
	}}
	s := New(p)

	it := intent.Analyze("AAPL balance sheet")
	table := s.Structure(context.Background(), it, corpus())
	if len(table) != 1 {
		t.Fatalf("targeted lookup should yield one row, got %v", table)
	}
	if table[0].Symbol() != "AAPL" {
		t.Errorf("requested symbol must override model output, got %q", table[0].Symbol())
	}
}

func TestStructureTargetedLookupPlaceholder(t *testing.T) {
	p := &scriptedProvider{responses: []string{
		`[{"symbol":"XYZ"}]`, // wrong companies, then provider runs dry
	}}
	s := New(p)

	it := intent.Analyze("GOOG cash flow statement")
	table := s.Structure(context.Background(), it, corpus())
	if len(table) != 1 || table[0].Symbol() != "GOOG" {
		t.Fatalf("placeholder row expected, got %v", table)
	}
	if _, ok := table[0]["error"]; !ok {
		t.Error("placeholder should carry an error field")
	}
}

func TestStructureTruncatesLargeCorpus(t *testing.T) {
	big := strings.Repeat("x", 9000)
	raw := make([]models.RawEndpointResult, 0, 15)
	for i := 0; i < 15; i++ {
		raw = append(raw, models.RawEndpointResult{
			Endpoint: "company_profiles",
			Data:     []models.Record{{"symbol": "AAPL", "blob": big}},
		})
	}

	p := &scriptedProvider{responses: []string{`[{"symbol":"AAPL"}]`}}
	s := New(p)
	s.Structure(context.Background(), intent.Analyze("apple"), raw)

	for _, prompt := range p.prompts {
		if len(prompt) > maxDataChars+1000 {
			t.Errorf("prompt exceeds the serialization cap: %d chars", len(prompt))
		}
	}
}

func TestStructureLimitsRecordsPerEndpoint(t *testing.T) {
	data := make([]models.Record, 50)
	for i := range data {
		data[i] = models.Record{"symbol": "AAPL"}
	}
	raw := []models.RawEndpointResult{{Endpoint: "company_profiles", Data: data}}

	p := &scriptedProvider{responses: []string{`[{"symbol":"AAPL"}]`}}
	s := New(p)
	s.Structure(context.Background(), intent.Analyze("apple"), raw)

	// 50 records serialize to well over 20 occurrences of the symbol;
	// the capped prompt must carry at most 20 rows plus the query echo.
	for _, prompt := range p.prompts {
		if n := strings.Count(prompt, `"symbol":"AAPL"`); n > maxRecordsPerEndpoint {
			t.Errorf("endpoint rows not capped: %d occurrences", n)
		}
	}
}
