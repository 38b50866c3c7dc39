package fetch

import (
	"strings"

	"github.com/marketquery/marketquery/pkg/models"
)

// Fallback picks the built-in reference dataset that best matches the
// prompt. Used when every planned endpoint returned nothing.
func Fallback(prompt string) models.RawEndpointResult {
	lower := strings.ToLower(prompt)
	switch {
	case strings.Contains(lower, "healthcare"),
		strings.Contains(lower, "health care"),
		strings.Contains(lower, "medical"):
		return models.RawEndpointResult{Endpoint: "fallback_healthcare_companies", Data: HealthcareFallback()}
	case strings.Contains(lower, "dividend"),
		strings.Contains(lower, "yield"):
		return models.RawEndpointResult{Endpoint: "fallback_dividend_stocks", Data: DividendFallback()}
	default:
		return models.RawEndpointResult{Endpoint: "fallback_data", Data: GenericFallback()}
	}
}

func HealthcareFallback() []models.Record {
	return []models.Record{
		{"symbol": "JNJ", "name": "Johnson & Johnson", "sector": "Healthcare", "industry": "Pharmaceuticals", "marketCap": 450000000000.0},
		{"symbol": "PFE", "name": "Pfizer Inc.", "sector": "Healthcare", "industry": "Pharmaceuticals", "marketCap": 220000000000.0},
		{"symbol": "MRK", "name": "Merck & Co., Inc.", "sector": "Healthcare", "industry": "Pharmaceuticals", "marketCap": 240000000000.0},
		{"symbol": "ABBV", "name": "AbbVie Inc.", "sector": "Healthcare", "industry": "Pharmaceuticals", "marketCap": 260000000000.0},
		{"symbol": "BMY", "name": "Bristol-Myers Squibb Company", "sector": "Healthcare", "industry": "Pharmaceuticals", "marketCap": 140000000000.0},
		{"symbol": "LLY", "name": "Eli Lilly and Company", "sector": "Healthcare", "industry": "Pharmaceuticals", "marketCap": 350000000000.0},
		{"symbol": "AMGN", "name": "Amgen Inc.", "sector": "Healthcare", "industry": "Biotechnology", "marketCap": 150000000000.0},
		{"symbol": "GILD", "name": "Gilead Sciences, Inc.", "sector": "Healthcare", "industry": "Biotechnology", "marketCap": 95000000000.0},
		{"symbol": "BIIB", "name": "Biogen Inc.", "sector": "Healthcare", "industry": "Biotechnology", "marketCap": 40000000000.0},
		{"symbol": "VRTX", "name": "Vertex Pharmaceuticals Incorporated", "sector": "Healthcare", "industry": "Biotechnology", "marketCap": 85000000000.0},
		{"symbol": "REGN", "name": "Regeneron Pharmaceuticals, Inc.", "sector": "Healthcare", "industry": "Biotechnology", "marketCap": 80000000000.0},
		{"symbol": "UNH", "name": "UnitedHealth Group Incorporated", "sector": "Healthcare", "industry": "Healthcare Plans", "marketCap": 450000000000.0},
		{"symbol": "CVS", "name": "CVS Health Corporation", "sector": "Healthcare", "industry": "Healthcare Plans", "marketCap": 100000000000.0},
		{"symbol": "CI", "name": "Cigna Group", "sector": "Healthcare", "industry": "Healthcare Plans", "marketCap": 90000000000.0},
		{"symbol": "HUM", "name": "Humana Inc.", "sector": "Healthcare", "industry": "Healthcare Plans", "marketCap": 45000000000.0},
		{"symbol": "ANTM", "name": "Anthem, Inc.", "sector": "Healthcare", "industry": "Healthcare Plans", "marketCap": 110000000000.0},
		{"symbol": "MDT", "name": "Medtronic plc", "sector": "Healthcare", "industry": "Medical Devices", "marketCap": 110000000000.0},
		{"symbol": "ABT", "name": "Abbott Laboratories", "sector": "Healthcare", "industry": "Medical Devices", "marketCap": 190000000000.0},
		{"symbol": "SYK", "name": "Stryker Corporation", "sector": "Healthcare", "industry": "Medical Devices", "marketCap": 100000000000.0},
		{"symbol": "BSX", "name": "Boston Scientific Corporation", "sector": "Healthcare", "industry": "Medical Devices", "marketCap": 65000000000.0},
	}
}

func DividendFallback() []models.Record {
	return []models.Record{
		{"symbol": "VYM", "name": "Vanguard High Dividend Yield ETF", "dividendYield": 3.1, "sector": "ETF", "industry": "Dividend"},
		{"symbol": "SCHD", "name": "Schwab US Dividend Equity ETF", "dividendYield": 3.5, "sector": "ETF", "industry": "Dividend"},
		{"symbol": "HDV", "name": "iShares Core High Dividend ETF", "dividendYield": 3.8, "sector": "ETF", "industry": "Dividend"},
		{"symbol": "JNJ", "name": "Johnson & Johnson", "dividendYield": 3.0, "sector": "Healthcare", "industry": "Pharmaceuticals"},
		{"symbol": "PG", "name": "Procter & Gamble", "dividendYield": 2.4, "sector": "Consumer Defensive", "industry": "Household Products"},
		{"symbol": "KO", "name": "Coca-Cola Company", "dividendYield": 2.9, "sector": "Consumer Defensive", "industry": "Beverages"},
		{"symbol": "PEP", "name": "PepsiCo Inc.", "dividendYield": 2.8, "sector": "Consumer Defensive", "industry": "Beverages"},
		{"symbol": "VZ", "name": "Verizon Communications", "dividendYield": 6.7, "sector": "Communication Services", "industry": "Telecom"},
		{"symbol": "T", "name": "AT&T Inc.", "dividendYield": 5.9, "sector": "Communication Services", "industry": "Telecom"},
		{"symbol": "IBM", "name": "International Business Machines", "dividendYield": 4.2, "sector": "Technology", "industry": "Information Technology"},
		{"symbol": "XOM", "name": "Exxon Mobil Corporation", "dividendYield": 3.3, "sector": "Energy", "industry": "Oil & Gas"},
		{"symbol": "CVX", "name": "Chevron Corporation", "dividendYield": 4.0, "sector": "Energy", "industry": "Oil & Gas"},
		{"symbol": "MO", "name": "Altria Group Inc.", "dividendYield": 8.1, "sector": "Consumer Defensive", "industry": "Tobacco"},
		{"symbol": "PM", "name": "Philip Morris International", "dividendYield": 5.2, "sector": "Consumer Defensive", "industry": "Tobacco"},
		{"symbol": "MMM", "name": "3M Company", "dividendYield": 5.8, "sector": "Industrials", "industry": "Conglomerates"},
	}
}

// SP500Fallback is the reference constituent table used by the
// deterministic merge path for index-flavored prompts.
func SP500Fallback() []models.Record {
	return []models.Record{
		{"symbol": "AAPL", "name": "Apple Inc.", "sector": "Technology", "industry": "Consumer Electronics", "marketCap": 2800000000000.0},
		{"symbol": "MSFT", "name": "Microsoft Corporation", "sector": "Technology", "industry": "Software", "marketCap": 2700000000000.0},
		{"symbol": "GOOGL", "name": "Alphabet Inc.", "sector": "Communication Services", "industry": "Internet Content & Information", "marketCap": 1700000000000.0},
		{"symbol": "AMZN", "name": "Amazon.com Inc.", "sector": "Consumer Cyclical", "industry": "Internet Retail", "marketCap": 1500000000000.0},
		{"symbol": "NVDA", "name": "NVIDIA Corporation", "sector": "Technology", "industry": "Semiconductors", "marketCap": 1100000000000.0},
		{"symbol": "META", "name": "Meta Platforms Inc.", "sector": "Communication Services", "industry": "Internet Content & Information", "marketCap": 1000000000000.0},
		{"symbol": "BRK.B", "name": "Berkshire Hathaway Inc.", "sector": "Financial Services", "industry": "Insurance", "marketCap": 780000000000.0},
		{"symbol": "TSLA", "name": "Tesla Inc.", "sector": "Consumer Cyclical", "industry": "Auto Manufacturers", "marketCap": 750000000000.0},
		{"symbol": "UNH", "name": "UnitedHealth Group Inc.", "sector": "Healthcare", "industry": "Healthcare Plans", "marketCap": 500000000000.0},
		{"symbol": "JNJ", "name": "Johnson & Johnson", "sector": "Healthcare", "industry": "Drug Manufacturers", "marketCap": 450000000000.0},
	}
}

// GenericFallback is the large-cap reference table used when no other
// fallback matches. Also serves as the last-resort dataset for the
// deterministic merge path.
func GenericFallback() []models.Record {
	return []models.Record{
		{"symbol": "AAPL", "name": "Apple Inc.", "sector": "Technology", "industry": "Consumer Electronics", "price": 175.25, "marketCap": 2800000000000.0},
		{"symbol": "MSFT", "name": "Microsoft Corporation", "sector": "Technology", "industry": "Software", "price": 325.42, "marketCap": 2700000000000.0},
		{"symbol": "GOOGL", "name": "Alphabet Inc.", "sector": "Communication Services", "industry": "Internet Content & Information", "price": 142.65, "marketCap": 1700000000000.0},
		{"symbol": "AMZN", "name": "Amazon.com Inc.", "sector": "Consumer Cyclical", "industry": "Internet Retail", "price": 132.18, "marketCap": 1500000000000.0},
		{"symbol": "NVDA", "name": "NVIDIA Corporation", "sector": "Technology", "industry": "Semiconductors", "price": 437.53, "marketCap": 1100000000000.0},
		{"symbol": "META", "name": "Meta Platforms Inc.", "sector": "Communication Services", "industry": "Internet Content & Information", "price": 342.67, "marketCap": 1000000000000.0},
		{"symbol": "BRK.B", "name": "Berkshire Hathaway Inc.", "sector": "Financial Services", "industry": "Insurance", "price": 352.56, "marketCap": 780000000000.0},
		{"symbol": "TSLA", "name": "Tesla Inc.", "sector": "Consumer Cyclical", "industry": "Auto Manufacturers", "price": 237.49, "marketCap": 750000000000.0},
		{"symbol": "UNH", "name": "UnitedHealth Group Inc.", "sector": "Healthcare", "industry": "Healthcare Plans", "price": 527.33, "marketCap": 500000000000.0},
		{"symbol": "JNJ", "name": "Johnson & Johnson", "sector": "Healthcare", "industry": "Drug Manufacturers", "price": 151.95, "marketCap": 450000000000.0},
		{"symbol": "JPM", "name": "JPMorgan Chase & Co.", "sector": "Financial Services", "industry": "Banks", "price": 151.03, "marketCap": 440000000000.0},
		{"symbol": "V", "name": "Visa Inc.", "sector": "Financial Services", "industry": "Credit Services", "price": 241.42, "marketCap": 430000000000.0},
		{"symbol": "PG", "name": "Procter & Gamble Co.", "sector": "Consumer Defensive", "industry": "Household Products", "price": 156.87, "marketCap": 370000000000.0},
		{"symbol": "MA", "name": "Mastercard Incorporated", "sector": "Financial Services", "industry": "Credit Services", "price": 401.23, "marketCap": 360000000000.0},
		{"symbol": "HD", "name": "The Home Depot, Inc.", "sector": "Consumer Cyclical", "industry": "Home Improvement Retail", "price": 342.87, "marketCap": 340000000000.0},
	}
}
