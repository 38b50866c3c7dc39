package sqlgen

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/marketquery/marketquery/internal/llm"
	"github.com/marketquery/marketquery/pkg/models"
)

// fakeProvider maps model name to a canned response or error.
type fakeProvider struct {
	responses map[string]string
	errs      map[string]error
	calls     []llm.ChatOptions
}

func (f *fakeProvider) Chat(ctx context.Context, messages []llm.Message, opts *llm.ChatOptions) (*llm.Response, error) {
	f.calls = append(f.calls, *opts)
	if err, ok := f.errs[opts.Model]; ok {
		return nil, err
	}
	return &llm.Response{Content: f.responses[opts.Model], Model: opts.Model}, nil
}

func (f *fakeProvider) Ping(ctx context.Context) error { return nil }

func TestGeneratePrimarySucceeds(t *testing.T) {
	p := &fakeProvider{responses: map[string]string{
		"gpt-4o": "SELECT symbol FROM companies WHERE sector = 'Healthcare'",
	}}
	g := New(p)

	sql, err := g.Generate(context.Background(), "healthcare companies")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.HasPrefix(sql, "SELECT") {
		t.Errorf("sql: got %q", sql)
	}
	if len(p.calls) != 1 {
		t.Errorf("fallback should not be consulted, got %d calls", len(p.calls))
	}
	if p.calls[0].Temperature != 0.2 || p.calls[0].MaxTokens != 800 {
		t.Errorf("primary options: %+v", p.calls[0])
	}
}

func TestGenerateFallsBackOnError(t *testing.T) {
	p := &fakeProvider{
		errs:      map[string]error{"gpt-4o": llm.ErrRateLimit},
		responses: map[string]string{"gpt-3.5-turbo": "SELECT 1"},
	}
	g := New(p)

	sql, err := g.Generate(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if sql != "SELECT 1" {
		t.Errorf("sql: got %q", sql)
	}
	if len(p.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(p.calls))
	}
	if p.calls[1].Model != "gpt-3.5-turbo" || p.calls[1].Temperature != 0.3 || p.calls[1].MaxTokens != 500 {
		t.Errorf("fallback options: %+v", p.calls[1])
	}
}

func TestGenerateFallsBackOnEmptyContent(t *testing.T) {
	p := &fakeProvider{responses: map[string]string{
		"gpt-4o":        "",
		"gpt-3.5-turbo": "SELECT 2",
	}}
	g := New(p)

	sql, err := g.Generate(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if sql != "SELECT 2" {
		t.Errorf("sql: got %q", sql)
	}
}

func TestGenerateBothFail(t *testing.T) {
	p := &fakeProvider{errs: map[string]error{
		"gpt-4o":        llm.ErrRateLimit,
		"gpt-3.5-turbo": llm.ErrProviderDown,
	}}
	g := New(p)

	_, err := g.Generate(context.Background(), "anything")
	if err == nil {
		t.Fatal("expected error when both models fail")
	}
	var genErr *models.GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("want GenerationError, got %T", err)
	}
	// The primary model's error is the one surfaced.
	if !errors.Is(err, llm.ErrRateLimit) {
		t.Errorf("should wrap the primary error, got %v", err)
	}
}

func TestGenerateCustomModels(t *testing.T) {
	p := &fakeProvider{responses: map[string]string{"custom-a": "SELECT 3"}}
	g := New(p, WithModels("custom-a", "custom-b"))

	sql, err := g.Generate(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if sql != "SELECT 3" {
		t.Errorf("sql: got %q", sql)
	}
}
