package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/marketquery/marketquery/internal/intent"
	"github.com/marketquery/marketquery/internal/plan"
	"github.com/marketquery/marketquery/pkg/models"
)

type fakeSQL struct {
	query string
	err   error
	calls int
}

func (f *fakeSQL) Generate(ctx context.Context, prompt string) (string, error) {
	f.calls++
	return f.query, f.err
}

type fakeFetcher struct {
	results     []models.RawEndpointResult
	descriptors []plan.Descriptor
}

func (f *fakeFetcher) Execute(ctx context.Context, prompt string, descriptors []plan.Descriptor) []models.RawEndpointResult {
	f.descriptors = descriptors
	return f.results
}

type fakeStructurer struct {
	table []models.Record
	raw   []models.RawEndpointResult
}

func (f *fakeStructurer) Structure(ctx context.Context, it intent.Intent, raw []models.RawEndpointResult) []models.Record {
	f.raw = raw
	return f.table
}

type fakeEnricher struct {
	calls int
}

func (f *fakeEnricher) Enrich(ctx context.Context, table []models.Record) []models.Record {
	f.calls++
	for i := range table {
		table[i] = table[i].Merge(models.Record{"peRatio": 28.5})
	}
	return table
}

type fakeIndexes struct {
	companies    []models.IndexCompany
	highDividend []models.IndexCompany
	topCalls     int
	allCalls     int
}

func (f *fakeIndexes) Companies(ctx context.Context, indexName string) []models.IndexCompany {
	f.allCalls++
	return f.companies
}

func (f *fakeIndexes) HighDividend(ctx context.Context, indexName string, limit int) []models.IndexCompany {
	f.topCalls++
	return f.highDividend
}

type fakeAuditor struct {
	prompts []string
	results []models.QueryResult
	err     error
}

func (f *fakeAuditor) RecordQuery(ctx context.Context, userID, prompt string, result models.QueryResult) (string, error) {
	f.prompts = append(f.prompts, prompt)
	f.results = append(f.results, result)
	return "id-1", f.err
}

func validKeys() models.APIKeys {
	return models.APIKeys{OpenAI: "sk-test", FinancialModelingPrep: "fmp-test"}
}

func TestResolveHappyPath(t *testing.T) {
	sql := &fakeSQL{query: "SELECT * FROM companies"}
	fetcher := &fakeFetcher{results: []models.RawEndpointResult{
		{Endpoint: "company_profiles", Data: []models.Record{{"symbol": "AAPL"}}},
	}}
	structurer := &fakeStructurer{table: []models.Record{{"symbol": "AAPL"}}}
	e := New(validKeys(), sql, fetcher, structurer)

	result := e.Resolve(context.Background(), "show apple")
	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if result.SQLQuery != "SELECT * FROM companies" {
		t.Errorf("sql: got %q", result.SQLQuery)
	}
	if len(result.Data) != 1 || result.Data[0].Symbol() != "AAPL" {
		t.Errorf("data: got %v", result.Data)
	}
	if len(fetcher.descriptors) == 0 {
		t.Error("a fetch plan should always be executed")
	}
}

func TestResolveMissingOpenAIKey(t *testing.T) {
	sql := &fakeSQL{query: "SELECT 1"}
	e := New(models.APIKeys{FinancialModelingPrep: "fmp"}, sql, &fakeFetcher{}, &fakeStructurer{})

	result := e.Resolve(context.Background(), "anything")
	if result.Error != models.ErrMissingOpenAIKey.Error() {
		t.Errorf("error: got %q", result.Error)
	}
	if len(result.Data) != 0 || result.SQLQuery != "" {
		t.Errorf("failed result must carry no data or SQL: %+v", result)
	}
	if sql.calls != 0 {
		t.Error("pipeline must not start without credentials")
	}
}

func TestResolveMissingFMPKey(t *testing.T) {
	e := New(models.APIKeys{OpenAI: "sk"}, &fakeSQL{}, &fakeFetcher{}, &fakeStructurer{})

	result := e.Resolve(context.Background(), "anything")
	if result.Error != models.ErrMissingFMPKey.Error() {
		t.Errorf("error: got %q", result.Error)
	}
}

func TestResolveSQLFailureIsFatal(t *testing.T) {
	genErr := &models.GenerationError{Model: "gpt-4o", Fallback: "gpt-3.5-turbo", Err: errors.New("down")}
	sql := &fakeSQL{err: genErr}
	structurer := &fakeStructurer{table: []models.Record{{"symbol": "AAPL"}}}
	e := New(validKeys(), sql, &fakeFetcher{}, structurer)

	result := e.Resolve(context.Background(), "show apple")
	if result.Error == "" {
		t.Fatal("sql generation failure must fail the query")
	}
	if len(result.Data) != 0 || result.SQLQuery != "" {
		t.Errorf("failed result must carry no data or SQL: %+v", result)
	}
}

func TestResolveEmptyTable(t *testing.T) {
	e := New(validKeys(), &fakeSQL{query: "SELECT 1"}, &fakeFetcher{}, &fakeStructurer{})

	result := e.Resolve(context.Background(), "nonsense prompt")
	if result.Error != models.ErrEmptyResult.Error() {
		t.Errorf("error: got %q", result.Error)
	}
}

func TestResolveRunsEnrichment(t *testing.T) {
	structurer := &fakeStructurer{table: []models.Record{{"symbol": "AAPL"}}}
	enricher := &fakeEnricher{}
	e := New(validKeys(), &fakeSQL{query: "SELECT 1"}, &fakeFetcher{}, structurer, WithEnricher(enricher))

	result := e.Resolve(context.Background(), "show apple")
	if enricher.calls != 1 {
		t.Fatalf("enricher calls: got %d, want 1", enricher.calls)
	}
	if result.Data[0]["peRatio"] != 28.5 {
		t.Errorf("enriched field missing: %v", result.Data[0])
	}
}

func TestResolveAppendsIndexData(t *testing.T) {
	indexes := &fakeIndexes{companies: []models.IndexCompany{
		{Symbol: "AAPL", Name: "Apple Inc.", IndexName: "s&p 500"},
	}}
	structurer := &fakeStructurer{table: []models.Record{{"symbol": "AAPL"}}}
	e := New(validKeys(), &fakeSQL{query: "SELECT 1"}, &fakeFetcher{}, structurer, WithIndexService(indexes))

	e.Resolve(context.Background(), "companies in the s&p 500")
	if indexes.allCalls != 1 || indexes.topCalls != 0 {
		t.Fatalf("calls: all=%d top=%d", indexes.allCalls, indexes.topCalls)
	}

	found := false
	for _, res := range structurer.raw {
		if res.Endpoint == "s&p 500_index_data" && len(res.Data) == 1 {
			found = true
		}
	}
	if !found {
		t.Errorf("index corpus entry missing: %+v", structurer.raw)
	}
}

func TestResolveIndexDividendRanking(t *testing.T) {
	indexes := &fakeIndexes{highDividend: []models.IndexCompany{
		{Symbol: "T", DividendYield: 6.2, IndexName: "s&p 500"},
	}}
	structurer := &fakeStructurer{table: []models.Record{{"symbol": "T"}}}
	e := New(validKeys(), &fakeSQL{query: "SELECT 1"}, &fakeFetcher{}, structurer, WithIndexService(indexes))

	e.Resolve(context.Background(), "highest dividend yields in the s&p 500")
	if indexes.topCalls != 1 {
		t.Errorf("dividend prompt should rank payers, calls: top=%d all=%d", indexes.topCalls, indexes.allCalls)
	}
}

func TestResolveAuditsResult(t *testing.T) {
	auditor := &fakeAuditor{}
	structurer := &fakeStructurer{table: []models.Record{{"symbol": "AAPL"}}}
	e := New(validKeys(), &fakeSQL{query: "SELECT 1"}, &fakeFetcher{}, structurer, WithAuditor(auditor, "u1"))

	e.Resolve(context.Background(), "show apple")
	if len(auditor.prompts) != 1 || auditor.prompts[0] != "show apple" {
		t.Fatalf("audit prompts: %v", auditor.prompts)
	}
	if auditor.results[0].SQLQuery != "SELECT 1" {
		t.Errorf("audited result: %+v", auditor.results[0])
	}
}

func TestResolveAuditFailureIsNotFatal(t *testing.T) {
	auditor := &fakeAuditor{err: errors.New("disk full")}
	structurer := &fakeStructurer{table: []models.Record{{"symbol": "AAPL"}}}
	e := New(validKeys(), &fakeSQL{query: "SELECT 1"}, &fakeFetcher{}, structurer, WithAuditor(auditor, "u1"))

	result := e.Resolve(context.Background(), "show apple")
	if result.Error != "" {
		t.Errorf("audit failure must not surface: %q", result.Error)
	}
}
