// Package intent classifies a free-text financial prompt into the
// structured signals the endpoint planner consumes: candidate ticker
// symbols, detected sectors, a detected market index, and metric
// category flags. Classification is pure string matching with no I/O.
package intent

import (
	"regexp"
	"strings"
)

// Intent is the classification result for one prompt.
type Intent struct {
	Prompt string

	// Symbols are candidate ticker symbols in order of appearance,
	// de-duplicated, with common all-caps words filtered out.
	Symbols []string

	// Sectors are the sector tags whose keywords appear in the prompt.
	Sectors []string

	// Index is the canonical name of the first market index mentioned,
	// or "" when none matched.
	Index string

	// CompanySpecific is true when symbols are present and the prompt
	// asks about statements or reports for them.
	CompanySpecific bool

	WantsGrowth     bool
	WantsDividends  bool
	WantsStatements bool
	WantsSectorPerf bool
	WantsAllList    bool
	MentionsSP500   bool
	MentionsETF     bool
	WantsTop        bool
}

var symbolPattern = regexp.MustCompile(`\b[A-Z]{1,5}\b`)

// stopwords are all-caps tokens that match the ticker shape but never
// name a company.
var stopwords = map[string]bool{
	"SQL": true,
	"API": true,
	"ETF": true,
	"USA": true,
	"GDP": true,
}

// sectorKeywords maps sector tags to the prompt substrings that imply
// them. A sector is detected when any keyword appears, so multiple
// sectors can be detected at once.
var sectorKeywords = []struct {
	Tag      string
	Keywords []string
}{
	{"healthcare", []string{"healthcare", "health care", "medical", "pharma", "biotech", "health"}},
	{"technology", []string{"tech", "technology", "software", "hardware", "semiconductor"}},
	{"financial", []string{"financial", "finance", "bank", "insurance", "investment"}},
	{"energy", []string{"energy", "oil", "gas", "renewable", "solar", "wind"}},
	{"consumer", []string{"consumer", "retail", "food", "beverage", "apparel"}},
	{"industrial", []string{"industrial", "manufacturing", "aerospace", "defense"}},
	{"utilities", []string{"utilities", "utility", "electric", "water", "gas utility"}},
	{"realestate", []string{"real estate", "reit", "property"}},
	{"materials", []string{"materials", "chemical", "mining", "metal"}},
	{"communication", []string{"communication", "telecom", "media", "entertainment"}},
}

// indexAliases maps canonical index names to their aliases. Canonical
// names are matched before any alias so that a short alias of one index
// cannot hijack a prompt naming another index outright; within a pass
// the first matching entry wins.
var indexAliases = []struct {
	Canonical string
	Aliases   []string
}{
	{"s&p 500", []string{"s&p 500", "s&p500", "sp500", "sp 500", "standard & poor's 500"}},
	{"nifty", []string{"nifty", "nifty 50", "nse", "national stock exchange"}},
	{"sensex", []string{"sensex", "bse", "bombay stock exchange"}},
	{"nasdaq", []string{"nasdaq", "nasdaq composite", "nasdaq index"}},
	{"dow jones", []string{"dow jones", "djia", "dow", "dow jones industrial average"}},
	{"ftse", []string{"ftse", "ftse 100", "financial times stock exchange"}},
	{"dax", []string{"dax", "deutscher aktienindex", "german stock index"}},
	{"nikkei", []string{"nikkei", "nikkei 225", "nikkei index"}},
	{"hang seng", []string{"hang seng", "hangseng", "hsi"}},
}

// Analyze classifies a prompt. It never fails; an unintelligible prompt
// simply yields an Intent with no signals set.
func Analyze(prompt string) Intent {
	lower := strings.ToLower(prompt)

	it := Intent{
		Prompt:  prompt,
		Symbols: extractSymbols(prompt),
		Sectors: detectSectors(lower),
		Index:   detectIndex(lower),
	}

	it.WantsGrowth = containsAny(lower, "revenue", "growth", "income", "profit", "earnings")
	it.WantsDividends = containsAny(lower, "dividend", "yield", "payout")
	it.WantsStatements = containsAny(lower, "financial statement", "balance sheet", "income statement", "cash flow")
	it.WantsSectorPerf = containsAny(lower, "sector", "industry", "market performance")
	it.WantsAllList = strings.Contains(lower, "list all") ||
		(strings.Contains(lower, "all") && (strings.Contains(lower, "companies") || strings.Contains(lower, "stocks")))
	it.MentionsSP500 = containsAny(lower, "s&p 500", "s&p500", "sp500", "sp 500")
	it.MentionsETF = strings.Contains(lower, "etf")
	it.WantsTop = containsAny(lower, "top", "highest", "best", "largest")

	// Company-specific detection is deliberately broader than the
	// WantsStatements planner trigger: any statement-flavored word next
	// to a symbol restricts the result to that company.
	it.CompanySpecific = len(it.Symbols) > 0 &&
		containsAny(lower, "financial", "statement", "report", "balance", "income", "cash flow")

	return it
}

// extractSymbols pulls candidate ticker symbols from the prompt:
// 1-5 uppercase-letter words, minus the stopword set, first occurrence
// order preserved.
func extractSymbols(prompt string) []string {
	matches := symbolPattern.FindAllString(prompt, -1)
	var symbols []string
	seen := make(map[string]bool)
	for _, m := range matches {
		if stopwords[m] || seen[m] {
			continue
		}
		seen[m] = true
		symbols = append(symbols, m)
	}
	return symbols
}

func detectSectors(lower string) []string {
	var sectors []string
	for _, entry := range sectorKeywords {
		for _, kw := range entry.Keywords {
			if strings.Contains(lower, kw) {
				sectors = append(sectors, entry.Tag)
				break
			}
		}
	}
	return sectors
}

func detectIndex(lower string) string {
	for _, entry := range indexAliases {
		if strings.Contains(lower, entry.Canonical) {
			return entry.Canonical
		}
	}
	for _, entry := range indexAliases {
		for _, alias := range entry.Aliases {
			if strings.Contains(lower, alias) {
				return entry.Canonical
			}
		}
	}
	return ""
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
