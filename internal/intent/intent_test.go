package intent

import (
	"reflect"
	"testing"
)

// ── Symbol extraction ──

func TestAnalyzeExtractsSymbols(t *testing.T) {
	it := Analyze("Compare AAPL and MSFT revenue")
	want := []string{"AAPL", "MSFT"}
	if !reflect.DeepEqual(it.Symbols, want) {
		t.Errorf("Symbols: got %v, want %v", it.Symbols, want)
	}
}

func TestAnalyzeFiltersStopwords(t *testing.T) {
	it := Analyze("Write SQL for the API listing USA ETF companies by GDP")
	if len(it.Symbols) != 0 {
		t.Errorf("stopwords should be filtered, got %v", it.Symbols)
	}
}

func TestAnalyzeDeduplicatesSymbols(t *testing.T) {
	it := Analyze("TSLA price versus TSLA earnings")
	if !reflect.DeepEqual(it.Symbols, []string{"TSLA"}) {
		t.Errorf("Symbols: got %v, want [TSLA]", it.Symbols)
	}
}

func TestAnalyzeIgnoresLowercaseWords(t *testing.T) {
	it := Analyze("show me healthcare companies")
	if len(it.Symbols) != 0 {
		t.Errorf("lowercase words should not be symbols, got %v", it.Symbols)
	}
}

func TestAnalyzeSymbolLengthBounds(t *testing.T) {
	it := Analyze("GOOGL vs TOOLONGNAME")
	for _, s := range it.Symbols {
		if len(s) < 1 || len(s) > 5 {
			t.Errorf("symbol %q out of length bounds", s)
		}
	}
}

// ── Sector detection ──

func TestAnalyzeDetectsSingleSector(t *testing.T) {
	it := Analyze("List pharma companies with strong pipelines")
	if !reflect.DeepEqual(it.Sectors, []string{"healthcare"}) {
		t.Errorf("Sectors: got %v, want [healthcare]", it.Sectors)
	}
}

func TestAnalyzeDetectsMultipleSectors(t *testing.T) {
	it := Analyze("Compare tech and energy stocks")
	want := []string{"technology", "energy"}
	if !reflect.DeepEqual(it.Sectors, want) {
		t.Errorf("Sectors: got %v, want %v", it.Sectors, want)
	}
}

func TestAnalyzeSectorMatchIsCaseInsensitive(t *testing.T) {
	// "biotech" also contains "tech", so technology tags along.
	it := Analyze("BIOTECH leaders this year")
	want := []string{"healthcare", "technology"}
	if !reflect.DeepEqual(it.Sectors, want) {
		t.Errorf("Sectors: got %v, want %v", it.Sectors, want)
	}
}

func TestAnalyzeNoSector(t *testing.T) {
	it := Analyze("What moved today?")
	if len(it.Sectors) != 0 {
		t.Errorf("Sectors: got %v, want none", it.Sectors)
	}
}

// ── Index detection ──

func TestAnalyzeDetectsIndex(t *testing.T) {
	tests := []struct {
		prompt string
		want   string
	}{
		{"highest dividend stocks in the S&P 500", "s&p 500"},
		{"sp500 constituents", "s&p 500"},
		{"top nifty companies", "nifty"},
		{"sensex movers", "sensex"},
		{"nse index gainers", "nifty"},
		{"bse listed banks", "sensex"},
		{"nasdaq listed tech", "nasdaq"},
		{"dow jones industrials", "dow jones"},
		{"DJIA components", "dow jones"},
		{"ftse 100 banks", "ftse"},
		{"dax constituents", "dax"},
		{"nikkei exporters", "nikkei"},
		{"hang seng stocks", "hang seng"},
		{"just some companies", ""},
	}
	for _, tc := range tests {
		it := Analyze(tc.prompt)
		if it.Index != tc.want {
			t.Errorf("Analyze(%q).Index: got %q, want %q", tc.prompt, it.Index, tc.want)
		}
	}
}

func TestAnalyzeFirstIndexWins(t *testing.T) {
	// Declaration order decides when multiple indices are mentioned.
	it := Analyze("compare nifty and nasdaq returns")
	if it.Index != "nifty" {
		t.Errorf("Index: got %q, want %q", it.Index, "nifty")
	}
}

// ── Metric category flags ──

func TestAnalyzeMetricFlags(t *testing.T) {
	tests := []struct {
		prompt string
		check  func(Intent) bool
		name   string
	}{
		{"companies with strong revenue growth", func(i Intent) bool { return i.WantsGrowth }, "WantsGrowth"},
		{"highest dividend yield stocks", func(i Intent) bool { return i.WantsDividends }, "WantsDividends"},
		{"show the balance sheet", func(i Intent) bool { return i.WantsStatements }, "WantsStatements"},
		{"sector performance this quarter", func(i Intent) bool { return i.WantsSectorPerf }, "WantsSectorPerf"},
		{"list all companies", func(i Intent) bool { return i.WantsAllList }, "WantsAllList"},
		{"all stocks under 10 dollars", func(i Intent) bool { return i.WantsAllList }, "WantsAllList"},
		{"sp500 overview", func(i Intent) bool { return i.MentionsSP500 }, "MentionsSP500"},
		{"dividend etf comparison", func(i Intent) bool { return i.MentionsETF }, "MentionsETF"},
		{"top performers", func(i Intent) bool { return i.WantsTop }, "WantsTop"},
	}
	for _, tc := range tests {
		it := Analyze(tc.prompt)
		if !tc.check(it) {
			t.Errorf("Analyze(%q): %s should be true", tc.prompt, tc.name)
		}
	}
}

func TestAnalyzeCompanySpecific(t *testing.T) {
	for _, prompt := range []string{
		"AAPL income statement for last quarter",
		"TSLA financial report",
		"show me the TSLA report",
		"TSLA income last quarter",
		"TSLA balance details",
	} {
		if !Analyze(prompt).CompanySpecific {
			t.Errorf("Analyze(%q): symbol + statement terms should be company specific", prompt)
		}
	}

	it := Analyze("AAPL stock price")
	if it.CompanySpecific {
		t.Error("symbol without statement terms should not be company specific")
	}

	it = Analyze("show me an income statement")
	if it.CompanySpecific {
		t.Error("statement terms without a symbol should not be company specific")
	}
}

func TestAnalyzeCompanySpecificWiderThanStatements(t *testing.T) {
	// A single statement-flavored word is enough to isolate a company,
	// but the statement endpoints still need one of the full phrases.
	it := Analyze("TSLA financial report")
	if !it.CompanySpecific {
		t.Error("CompanySpecific should be true")
	}
	if it.WantsStatements {
		t.Error("WantsStatements should need a full statement phrase")
	}
}

func TestAnalyzeNeverFails(t *testing.T) {
	for _, prompt := range []string{"", "   ", "!!!", "日本語のプロンプト"} {
		it := Analyze(prompt)
		if it.Prompt != prompt {
			t.Errorf("Prompt should round-trip, got %q", it.Prompt)
		}
	}
}
