// Package plan turns a classified intent into the list of upstream
// endpoints to query. Planning is deterministic and does no I/O; paths
// are relative to the market-data API's v3 base and carry no credential.
package plan

import (
	"fmt"
	"strings"

	"github.com/marketquery/marketquery/internal/intent"
)

// Descriptor names one upstream endpoint to fetch. Name is a stable tag
// used downstream to locate this source's payload in the raw corpus.
type Descriptor struct {
	Name string
	Path string
}

// defaultBasket is the large-cap symbol list used when the prompt names
// no specific companies.
const defaultBasket = "AAPL,MSFT,GOOGL,AMZN,META,TSLA,NVDA,AMD,INTC,ORCL,IBM,CRM,ADBE,CSCO,PYPL,NFLX,WMT,TGT,COST,HD,LOW,JNJ,PFE,MRK,ABBV,BMY"

// dividendETFs are the dividend-focused ETFs consulted whenever the
// prompt asks about dividends.
const dividendETFs = "SPY,VYM,HDV,SPYD,DVY,SCHD,VYMI,IDV,DEM,DGS"

// Build produces the fetch plan for an intent. The plan always contains
// at least two descriptors: company profiles are fetched as base data
// for every query, and a generic stock list is appended when nothing
// else applies.
func Build(it intent.Intent) []Descriptor {
	symbols := strings.Join(it.Symbols, ",")

	var plan []Descriptor

	// Company profiles, always fetched as base data.
	if symbols != "" {
		plan = append(plan, Descriptor{"company_profiles", "profile/" + symbols})
	} else {
		plan = append(plan, Descriptor{"company_profiles", "profile/" + defaultBasket})
	}

	// One screener per detected sector.
	for _, sector := range it.Sectors {
		plan = append(plan, Descriptor{
			Name: sector + "_sector_screener",
			Path: fmt.Sprintf("stock-screener?sector=%s&isActivelyTrading=true&limit=100", sector),
		})
	}

	if it.WantsGrowth {
		if symbols != "" {
			plan = append(plan, Descriptor{"financial_growth", "financial-growth/" + symbols})
		} else {
			plan = append(plan, Descriptor{"financial_growth", "financial-growth/" + defaultBasket})
		}
	}

	if it.WantsDividends {
		if symbols != "" {
			plan = append(plan, Descriptor{"dividends", "stock_dividend/" + symbols})
		} else {
			plan = append(plan, Descriptor{"dividends", "stock_dividend/" + defaultBasket})
		}
		plan = append(plan, Descriptor{"etf_dividends", "etf-dividend/" + dividendETFs})
		plan = append(plan, Descriptor{"dividend_screener", "stock-screener?dividendMoreThan=0&isEtf=false&isActivelyTrading=true&limit=100"})
	}

	if it.MentionsSP500 {
		plan = append(plan, Descriptor{"sp500_companies", "sp500_constituent"})
		plan = append(plan, Descriptor{"sp500_etf_dividend", "historical-price-full/stock_dividend/SPY?limit=100"})
	}

	if it.WantsSectorPerf {
		plan = append(plan, Descriptor{"sector_performance", "sector-performance"})
	}

	if it.WantsStatements {
		symbol := "AAPL"
		if len(it.Symbols) > 0 {
			symbol = it.Symbols[0]
		}
		plan = append(plan, Descriptor{"income_statement", fmt.Sprintf("income-statement/%s?period=quarter&limit=4", symbol)})
		plan = append(plan, Descriptor{"balance_sheet", fmt.Sprintf("balance-sheet-statement/%s?period=quarter&limit=4", symbol)})
	}

	// Exhaustive listing, unless a sector screener already covers it.
	if it.WantsAllList && len(it.Sectors) == 0 {
		plan = append(plan, Descriptor{"all_stocks_list", "stock/list?limit=200"})
	}

	// Never plan the profile endpoint alone.
	if len(plan) == 1 {
		plan = append(plan, Descriptor{"stock_list", "stock/list?limit=100"})
	}

	return plan
}
