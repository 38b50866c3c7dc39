// Package marketindex resolves market index names to their constituent
// companies. Known US indices come from dedicated constituent
// endpoints; everything else goes through a symbol search and an
// ETF-holder or country-screener approximation. Constituents are
// persisted with a staleness window so repeated index queries do not
// refetch and re-enrich the whole basket.
package marketindex

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/marketquery/marketquery/pkg/models"
)

// Fetcher is the slice of the market data client this package needs.
type Fetcher interface {
	GetJSON(ctx context.Context, path string) ([]models.Record, error)
}

// Snapshots persists index constituents between queries.
type Snapshots interface {
	LoadIndexCompanies(ctx context.Context, indexName string) ([]models.IndexCompany, bool, error)
	SaveIndexCompanies(ctx context.Context, indexName string, companies []models.IndexCompany) error
}

// countryByIndex approximates non-US indices by their home market when
// no tracking ETF can be resolved.
var countryByIndex = map[string]string{
	"nifty":     "india",
	"sensex":    "india",
	"ftse":      "united kingdom",
	"dax":       "germany",
	"nikkei":    "japan",
	"hang seng": "hong kong",
}

const (
	maxConstituents = 50
	profileBatch    = 5
)

// Service fetches and caches index constituent data.
type Service struct {
	fetcher    Fetcher
	snapshots  Snapshots
	batchDelay time.Duration
	log        zerolog.Logger
}

// Option configures the service.
type Option func(*Service)

// WithSnapshots sets the persistent constituent store.
func WithSnapshots(snapshots Snapshots) Option {
	return func(s *Service) { s.snapshots = snapshots }
}

// WithBatchDelay overrides the pause between profile batches.
func WithBatchDelay(d time.Duration) Option {
	return func(s *Service) { s.batchDelay = d }
}

// WithLogger sets the structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// New creates an index service backed by the given market data client.
func New(fetcher Fetcher, opts ...Option) *Service {
	s := &Service{
		fetcher:    fetcher,
		batchDelay: time.Second,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Companies returns the constituents of the named index, serving a
// fresh snapshot when one exists. Failures degrade to an empty slice.
func (s *Service) Companies(ctx context.Context, indexName string) []models.IndexCompany {
	name := strings.ToLower(indexName)

	if s.snapshots != nil {
		cached, ok, err := s.snapshots.LoadIndexCompanies(ctx, name)
		if err != nil {
			s.log.Warn().Str("index", name).Err(err).Msg("index snapshot read failed")
		} else if ok {
			return cached
		}
	}

	companies := s.fetchIndex(ctx, name)
	if len(companies) > 0 && s.snapshots != nil {
		if err := s.snapshots.SaveIndexCompanies(ctx, name, companies); err != nil {
			s.log.Warn().Str("index", name).Err(err).Msg("index snapshot write failed")
		}
	}
	return companies
}

// HighDividend returns the index constituents with the highest dividend
// yield, descending, capped at limit.
func (s *Service) HighDividend(ctx context.Context, indexName string, limit int) []models.IndexCompany {
	if limit <= 0 {
		limit = 20
	}
	companies := s.Companies(ctx, indexName)

	var paying []models.IndexCompany
	for _, c := range companies {
		if c.DividendYield > 0 {
			paying = append(paying, c)
		}
	}
	sort.SliceStable(paying, func(i, j int) bool {
		return paying[i].DividendYield > paying[j].DividendYield
	})
	if len(paying) > limit {
		paying = paying[:limit]
	}
	return paying
}

func (s *Service) fetchIndex(ctx context.Context, name string) []models.IndexCompany {
	compact := strings.ReplaceAll(name, " ", "")
	switch {
	case strings.Contains(compact, "s&p"), strings.Contains(compact, "sp500"):
		return s.fetchConstituents(ctx, "sp500_constituent", name)
	case strings.Contains(compact, "nasdaq"):
		return s.fetchConstituents(ctx, "nasdaq_constituent", name)
	case strings.Contains(compact, "dow"), strings.Contains(compact, "djia"):
		return s.fetchConstituents(ctx, "dowjones_constituent", name)
	default:
		return s.fetchGeneric(ctx, name)
	}
}

// fetchConstituents pulls a dedicated constituent list and enriches
// each company with profile data for price and dividend yield.
func (s *Service) fetchConstituents(ctx context.Context, endpoint, name string) []models.IndexCompany {
	rows, err := s.fetcher.GetJSON(ctx, endpoint)
	if err != nil {
		s.log.Warn().Str("index", name).Str("endpoint", endpoint).Err(err).Msg("constituent fetch failed")
		return nil
	}
	if len(rows) > maxConstituents {
		rows = rows[:maxConstituents]
	}

	companies := make([]models.IndexCompany, 0, len(rows))
	for i, row := range rows {
		companies = append(companies, s.profileCompany(ctx, row, name))

		if (i+1)%profileBatch == 0 && i+1 < len(rows) && s.batchDelay > 0 {
			select {
			case <-ctx.Done():
				return companies
			case <-time.After(s.batchDelay):
			}
		}
	}
	return companies
}

// profileCompany builds an IndexCompany from a constituent row plus its
// profile. Profile failures keep the bare constituent fields.
func (s *Service) profileCompany(ctx context.Context, row models.Record, name string) models.IndexCompany {
	company := models.IndexCompany{
		Symbol:    row.Symbol(),
		IndexName: name,
	}
	if n, ok := row["name"].(string); ok {
		company.Name = n
	}
	if sec, ok := row["sector"].(string); ok {
		company.Sector = sec
	}
	if ind, ok := row["subSector"].(string); ok && ind != "" {
		company.Industry = ind
	} else if ind, ok := row["industry"].(string); ok {
		company.Industry = ind
	}

	profiles, err := s.fetcher.GetJSON(ctx, "profile/"+company.Symbol)
	if err != nil || len(profiles) == 0 {
		if err != nil {
			s.log.Debug().Str("symbol", company.Symbol).Err(err).Msg("profile fetch failed")
		}
		return company
	}
	profile := profiles[0]

	if company.Sector == "" {
		if sec, ok := profile["sector"].(string); ok {
			company.Sector = sec
		}
	}
	if company.Industry == "" {
		if ind, ok := profile["industry"].(string); ok {
			company.Industry = ind
		}
	}
	if mc, ok := profile.Float("mktCap"); ok {
		company.MarketCap = mc
	}
	price, hasPrice := profile.Float("price")
	if hasPrice {
		company.Price = price
	}
	if lastDiv, ok := profile.Float("lastDiv"); ok && hasPrice && price > 0 {
		company.DividendYield = lastDiv / price * 100
	}
	return company
}

// fetchGeneric resolves an index with no dedicated endpoint: search for
// the index symbol, then the holdings of a tracking ETF, then a country
// screener for the index's home market.
func (s *Service) fetchGeneric(ctx context.Context, name string) []models.IndexCompany {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return nil
	}
	query := strings.ToUpper(fields[0])
	results, err := s.fetcher.GetJSON(ctx, fmt.Sprintf("search?query=%s&limit=10", query))
	if err != nil {
		s.log.Warn().Str("index", name).Err(err).Msg("index search failed")
		return nil
	}

	var indexSymbol string
	for _, res := range results {
		sym := res.Symbol()
		n, _ := res["name"].(string)
		if strings.Contains(strings.ToLower(n), name) || strings.Contains(strings.ToLower(sym), name) ||
			strings.Contains(strings.ToLower(n), query) || strings.Contains(strings.ToLower(sym), strings.ToLower(query)) {
			indexSymbol = sym
			break
		}
	}
	if indexSymbol == "" {
		return nil
	}

	holdings, err := s.fetcher.GetJSON(ctx, "etf-holder/"+indexSymbol)
	if err == nil && len(holdings) > 0 {
		companies := make([]models.IndexCompany, 0, len(holdings))
		for _, h := range holdings {
			asset, _ := h["asset"].(string)
			if asset == "" {
				continue
			}
			c := models.IndexCompany{Symbol: asset, Name: asset, IndexName: name}
			if n, ok := h["name"].(string); ok && n != "" {
				c.Name = n
			}
			if sec, ok := h["sector"].(string); ok {
				c.Sector = sec
			}
			companies = append(companies, c)
		}
		if len(companies) > 0 {
			return companies
		}
	}

	country := ""
	for idx, countryName := range countryByIndex {
		if strings.Contains(name, idx) {
			country = countryName
			break
		}
	}
	if country == "" {
		return nil
	}

	stocks, err := s.fetcher.GetJSON(ctx, fmt.Sprintf("stock-screener?country=%s&limit=50", country))
	if err != nil {
		s.log.Warn().Str("index", name).Str("country", country).Err(err).Msg("country screener failed")
		return nil
	}
	companies := make([]models.IndexCompany, 0, len(stocks))
	for _, stock := range stocks {
		c := models.IndexCompany{Symbol: stock.Symbol(), IndexName: name}
		if n, ok := stock["companyName"].(string); ok {
			c.Name = n
		}
		if sec, ok := stock["sector"].(string); ok {
			c.Sector = sec
		}
		if ind, ok := stock["industry"].(string); ok {
			c.Industry = ind
		}
		if mc, ok := stock.Float("marketCap"); ok {
			c.MarketCap = mc
		}
		if y, ok := stock.Float("dividendYield"); ok {
			c.DividendYield = y * 100
		}
		if p, ok := stock.Float("price"); ok {
			c.Price = p
		}
		companies = append(companies, c)
	}
	return companies
}
