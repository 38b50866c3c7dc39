package marketindex

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/marketquery/marketquery/pkg/models"
)

// fakeFetcher serves canned rows per path prefix and records calls.
type fakeFetcher struct {
	routes map[string][]models.Record
	errs   map[string]error
	calls  []string
}

func (f *fakeFetcher) GetJSON(ctx context.Context, path string) ([]models.Record, error) {
	f.calls = append(f.calls, path)
	for prefix, err := range f.errs {
		if strings.HasPrefix(path, prefix) {
			return nil, err
		}
	}
	for prefix, rows := range f.routes {
		if strings.HasPrefix(path, prefix) {
			return rows, nil
		}
	}
	return nil, nil
}

type fakeSnapshots struct {
	data  map[string][]models.IndexCompany
	saves int
}

func newFakeSnapshots() *fakeSnapshots {
	return &fakeSnapshots{data: make(map[string][]models.IndexCompany)}
}

func (f *fakeSnapshots) LoadIndexCompanies(ctx context.Context, indexName string) ([]models.IndexCompany, bool, error) {
	companies, ok := f.data[indexName]
	return companies, ok, nil
}

func (f *fakeSnapshots) SaveIndexCompanies(ctx context.Context, indexName string, companies []models.IndexCompany) error {
	f.saves++
	f.data[indexName] = companies
	return nil
}

func TestCompaniesSP500UsesConstituentEndpoint(t *testing.T) {
	fetcher := &fakeFetcher{routes: map[string][]models.Record{
		"sp500_constituent": {
			{"symbol": "AAPL", "name": "Apple Inc.", "sector": "Technology", "subSector": "Consumer Electronics"},
		},
		"profile/AAPL": {
			{"symbol": "AAPL", "price": 200.0, "lastDiv": 1.0, "mktCap": 2.8e12},
		},
	}}
	s := New(fetcher, WithBatchDelay(0))

	companies := s.Companies(context.Background(), "S&P 500")
	if len(companies) != 1 {
		t.Fatalf("companies: got %d, want 1", len(companies))
	}
	c := companies[0]
	if c.Symbol != "AAPL" || c.IndexName != "s&p 500" {
		t.Errorf("company: %+v", c)
	}
	if c.Industry != "Consumer Electronics" {
		t.Errorf("subSector should map to industry, got %q", c.Industry)
	}
	if c.DividendYield != 0.5 {
		t.Errorf("yield should be lastDiv/price*100, got %v", c.DividendYield)
	}
	if c.MarketCap != 2.8e12 || c.Price != 200.0 {
		t.Errorf("profile fields not applied: %+v", c)
	}
}

func TestCompaniesProfileFailureKeepsBareConstituent(t *testing.T) {
	fetcher := &fakeFetcher{
		routes: map[string][]models.Record{
			"dowjones_constituent": {{"symbol": "MMM", "name": "3M", "sector": "Industrials"}},
		},
		errs: map[string]error{"profile/": errors.New("rate limited")},
	}
	s := New(fetcher, WithBatchDelay(0))

	companies := s.Companies(context.Background(), "dow jones")
	if len(companies) != 1 {
		t.Fatalf("companies: got %d, want 1", len(companies))
	}
	if companies[0].Symbol != "MMM" || companies[0].DividendYield != 0 {
		t.Errorf("bare constituent expected, got %+v", companies[0])
	}
}

func TestCompaniesServedFromSnapshot(t *testing.T) {
	snapshots := newFakeSnapshots()
	snapshots.data["nasdaq"] = []models.IndexCompany{{Symbol: "NVDA", IndexName: "nasdaq"}}

	fetcher := &fakeFetcher{}
	s := New(fetcher, WithSnapshots(snapshots), WithBatchDelay(0))

	companies := s.Companies(context.Background(), "NASDAQ")
	if len(companies) != 1 || companies[0].Symbol != "NVDA" {
		t.Fatalf("snapshot not served: %+v", companies)
	}
	if len(fetcher.calls) != 0 {
		t.Errorf("a fresh snapshot must not hit the API, calls: %v", fetcher.calls)
	}
}

func TestCompaniesWritesSnapshot(t *testing.T) {
	snapshots := newFakeSnapshots()
	fetcher := &fakeFetcher{routes: map[string][]models.Record{
		"nasdaq_constituent": {{"symbol": "NVDA", "name": "NVIDIA"}},
	}}
	s := New(fetcher, WithSnapshots(snapshots), WithBatchDelay(0))

	s.Companies(context.Background(), "nasdaq")
	if snapshots.saves != 1 {
		t.Errorf("saves: got %d, want 1", snapshots.saves)
	}
}

func TestCompaniesGenericUsesETFHoldings(t *testing.T) {
	fetcher := &fakeFetcher{routes: map[string][]models.Record{
		"search?query=NIFTY": {{"symbol": "NIFTYBEES.NS", "name": "Nifty BeES"}},
		"etf-holder/NIFTYBEES.NS": {
			{"asset": "RELIANCE.NS", "name": "Reliance Industries", "sector": "Energy"},
			{"asset": "TCS.NS"},
		},
	}}
	s := New(fetcher, WithBatchDelay(0))

	companies := s.Companies(context.Background(), "nifty")
	if len(companies) != 2 {
		t.Fatalf("companies: got %d, want 2", len(companies))
	}
	if companies[0].Symbol != "RELIANCE.NS" || companies[0].Sector != "Energy" {
		t.Errorf("first holding: %+v", companies[0])
	}
	if companies[1].Name != "TCS.NS" {
		t.Errorf("holding without a name should use its symbol, got %q", companies[1].Name)
	}
}

func TestCompaniesGenericFallsBackToCountryScreener(t *testing.T) {
	fetcher := &fakeFetcher{routes: map[string][]models.Record{
		"search?query=DAX": {{"symbol": "DAX", "name": "DAX Performance Index"}},
		"stock-screener?country=germany": {
			{"symbol": "SAP", "companyName": "SAP SE", "sector": "Technology", "dividendYield": 0.015, "price": 180.0},
		},
	}}
	s := New(fetcher, WithBatchDelay(0))

	companies := s.Companies(context.Background(), "dax")
	if len(companies) != 1 {
		t.Fatalf("companies: got %d, want 1", len(companies))
	}
	if companies[0].Symbol != "SAP" || companies[0].DividendYield != 1.5 {
		t.Errorf("screener yield should be scaled to percent, got %+v", companies[0])
	}
}

func TestCompaniesUnknownIndexEmpty(t *testing.T) {
	fetcher := &fakeFetcher{}
	s := New(fetcher, WithBatchDelay(0))

	if companies := s.Companies(context.Background(), "ftse"); len(companies) != 0 {
		t.Errorf("unresolvable index should yield nothing, got %+v", companies)
	}
}

func TestHighDividendSortsAndLimits(t *testing.T) {
	snapshots := newFakeSnapshots()
	snapshots.data["s&p 500"] = []models.IndexCompany{
		{Symbol: "AAPL", DividendYield: 0.5},
		{Symbol: "T", DividendYield: 6.2},
		{Symbol: "GOOG", DividendYield: 0},
		{Symbol: "VZ", DividendYield: 6.0},
	}
	s := New(&fakeFetcher{}, WithSnapshots(snapshots), WithBatchDelay(0))

	top := s.HighDividend(context.Background(), "s&p 500", 2)
	if len(top) != 2 {
		t.Fatalf("top: got %d, want 2", len(top))
	}
	if top[0].Symbol != "T" || top[1].Symbol != "VZ" {
		t.Errorf("order: got %s, %s", top[0].Symbol, top[1].Symbol)
	}
}

func TestHighDividendDropsNonPayers(t *testing.T) {
	snapshots := newFakeSnapshots()
	snapshots.data["nasdaq"] = []models.IndexCompany{
		{Symbol: "GOOG", DividendYield: 0},
	}
	s := New(&fakeFetcher{}, WithSnapshots(snapshots), WithBatchDelay(0))

	if top := s.HighDividend(context.Background(), "nasdaq", 20); len(top) != 0 {
		t.Errorf("non-payers should be excluded, got %+v", top)
	}
}
