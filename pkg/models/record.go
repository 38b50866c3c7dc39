// Package models defines the shared data types exchanged between the
// query-resolution pipeline stages: open records, endpoint payloads,
// and the QueryResult contract consumed by callers.
package models

import (
	"math"
	"strings"
)

// Record is an open mapping of field names to scalar values, as returned
// by the upstream financial APIs and the structuring stage. Keys vary per
// source; "symbol" is the join key whenever it is present.
type Record map[string]any

// Symbol returns the record's ticker symbol, checking both the "symbol"
// and "ticker" keys. Returns "" when neither is set.
func (r Record) Symbol() string {
	if s, ok := r["symbol"].(string); ok && s != "" {
		return s
	}
	if s, ok := r["ticker"].(string); ok && s != "" {
		return s
	}
	return ""
}

// Has reports whether the field is present and usable: not absent, not
// nil, and not the literal placeholder "N/A".
func (r Record) Has(field string) bool {
	v, ok := r[field]
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok && strings.EqualFold(s, "N/A") {
		return false
	}
	return true
}

// Float returns the field as a float64 when it carries a numeric value.
func (r Record) Float(field string) (float64, bool) {
	switch v := r[field].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge copies every field of other into a copy of r, with other's
// values winning on key collision.
func (r Record) Merge(other Record) Record {
	out := r.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Round2 rounds a float to two decimal places, matching the precision
// used for percentage fields throughout the pipeline.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// RawEndpointResult pairs an endpoint tag with the rows it returned.
// The fetch executor emits one of these per planned descriptor, in plan
// order, with Data left empty on any per-endpoint failure.
type RawEndpointResult struct {
	Endpoint string   `json:"endpoint"`
	Data     []Record `json:"data"`
}

// HasData reports whether any endpoint in the corpus produced rows.
func HasData(results []RawEndpointResult) bool {
	for _, res := range results {
		if len(res.Data) > 0 {
			return true
		}
	}
	return false
}

// FindEndpoint returns the first result with the given endpoint tag.
func FindEndpoint(results []RawEndpointResult, name string) (RawEndpointResult, bool) {
	for _, res := range results {
		if res.Endpoint == name {
			return res, true
		}
	}
	return RawEndpointResult{}, false
}

// QueryResult is the sole artifact the engine exposes to consumers.
// When Error is set, Data is empty and SQLQuery is "".
type QueryResult struct {
	Data     []Record `json:"data"`
	SQLQuery string   `json:"sqlQuery"`
	Error    string   `json:"error,omitempty"`
}

// Failed builds a QueryResult carrying only an error message.
func Failed(err error) QueryResult {
	return QueryResult{Data: []Record{}, SQLQuery: "", Error: err.Error()}
}

// APIKeys holds the upstream credentials supplied by the caller.
// OpenAI and FinancialModelingPrep are mandatory for the engine;
// MarketData is carried for callers that persist it but is unused here.
type APIKeys struct {
	OpenAI                string `json:"openai"`
	MarketData            string `json:"marketData"`
	FinancialModelingPrep string `json:"financialModelingPrep"`
}

// IndexCompany is a constituent of a market index with the profile
// fields used for dividend ranking. Persisted per (symbol, index).
type IndexCompany struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Sector        string  `json:"sector,omitempty"`
	Industry      string  `json:"industry,omitempty"`
	MarketCap     float64 `json:"market_cap,omitempty"`
	DividendYield float64 `json:"dividend_yield,omitempty"`
	Price         float64 `json:"price,omitempty"`
	IndexName     string  `json:"index_name"`
}

// Record converts an IndexCompany to an open record so index data can
// join the raw corpus fed to the structuring stage.
func (c IndexCompany) Record() Record {
	rec := Record{
		"symbol":     c.Symbol,
		"name":       c.Name,
		"index_name": c.IndexName,
	}
	if c.Sector != "" {
		rec["sector"] = c.Sector
	}
	if c.Industry != "" {
		rec["industry"] = c.Industry
	}
	if c.MarketCap != 0 {
		rec["marketCap"] = c.MarketCap
	}
	if c.DividendYield != 0 {
		rec["dividendYield"] = c.DividendYield
	}
	if c.Price != 0 {
		rec["price"] = c.Price
	}
	return rec
}
