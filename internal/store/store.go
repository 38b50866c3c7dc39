// Package store persists engine state in SQLite: caller API keys, a
// query audit trail, the per-symbol company data cache consumed by the
// enrichment stage, and market index constituents. Cached reads treat
// entries past the staleness window as absent so callers refetch.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/marketquery/marketquery/pkg/models"
)

// DefaultStaleAfter bounds how long cached company and index data is
// served before a fresh upstream fetch is required.
const DefaultStaleAfter = 24 * time.Hour

const schema = `
CREATE TABLE IF NOT EXISTS api_keys (
	user_id TEXT PRIMARY KEY,
	openai_key TEXT NOT NULL DEFAULT '',
	financial_modeling_prep_key TEXT NOT NULL DEFAULT '',
	market_data_key TEXT NOT NULL DEFAULT '',
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS query_results (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL DEFAULT '',
	query_text TEXT NOT NULL,
	sql_query TEXT NOT NULL DEFAULT '',
	result_data TEXT NOT NULL DEFAULT '[]',
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS company_data_cache (
	symbol TEXT PRIMARY KEY,
	data TEXT NOT NULL,
	cached_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS market_index_companies (
	symbol TEXT NOT NULL,
	index_name TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	sector TEXT NOT NULL DEFAULT '',
	industry TEXT NOT NULL DEFAULT '',
	market_cap REAL NOT NULL DEFAULT 0,
	dividend_yield REAL NOT NULL DEFAULT 0,
	price REAL NOT NULL DEFAULT 0,
	last_updated INTEGER NOT NULL,
	PRIMARY KEY (symbol, index_name)
);
`

// Store is a SQLite-backed persistence layer. Safe for concurrent use.
type Store struct {
	db         *sql.DB
	staleAfter time.Duration
	now        func() time.Time
	log        zerolog.Logger
}

// Option configures the store.
type Option func(*Store)

// WithStaleAfter overrides the cache staleness window.
func WithStaleAfter(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.staleAfter = d
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// withClock overrides the time source, for tests.
func withClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens (creating if needed) the database at path and applies the
// schema. ":memory:" opens an ephemeral database.
func Open(path string, opts ...Option) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{
		db:         db,
		staleAfter: DefaultStaleAfter,
		now:        time.Now,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveKeys upserts the caller's API keys.
func (s *Store) SaveKeys(ctx context.Context, userID string, keys models.APIKeys) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_keys (user_id, openai_key, financial_modeling_prep_key, market_data_key, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			openai_key = excluded.openai_key,
			financial_modeling_prep_key = excluded.financial_modeling_prep_key,
			market_data_key = excluded.market_data_key,
			updated_at = excluded.updated_at`,
		userID, keys.OpenAI, keys.FinancialModelingPrep, keys.MarketData, s.now().Unix())
	if err != nil {
		return fmt.Errorf("save api keys: %w", err)
	}
	return nil
}

// LoadKeys returns the caller's stored API keys, reporting whether a
// row exists.
func (s *Store) LoadKeys(ctx context.Context, userID string) (models.APIKeys, bool, error) {
	var keys models.APIKeys
	err := s.db.QueryRowContext(ctx, `
		SELECT openai_key, financial_modeling_prep_key, market_data_key
		FROM api_keys WHERE user_id = ?`, userID).
		Scan(&keys.OpenAI, &keys.FinancialModelingPrep, &keys.MarketData)
	if errors.Is(err, sql.ErrNoRows) {
		return models.APIKeys{}, false, nil
	}
	if err != nil {
		return models.APIKeys{}, false, fmt.Errorf("load api keys: %w", err)
	}
	return keys, true, nil
}

// RecordQuery appends a resolved query to the audit trail and returns
// the generated record id.
func (s *Store) RecordQuery(ctx context.Context, userID, prompt string, result models.QueryResult) (string, error) {
	data, err := json.Marshal(result.Data)
	if err != nil {
		return "", fmt.Errorf("serialize result data: %w", err)
	}
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO query_results (id, user_id, query_text, sql_query, result_data, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, userID, prompt, result.SQLQuery, string(data), s.now().Unix())
	if err != nil {
		return "", fmt.Errorf("record query: %w", err)
	}
	return id, nil
}

// QueryHistoryEntry is one row of the audit trail.
type QueryHistoryEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId,omitempty"`
	QueryText string    `json:"queryText"`
	SQLQuery  string    `json:"sqlQuery"`
	CreatedAt time.Time `json:"createdAt"`
}

// QueryHistory returns the most recent audit entries, newest first.
func (s *Store) QueryHistory(ctx context.Context, userID string, limit int) ([]QueryHistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, query_text, sql_query, created_at
		FROM query_results WHERE user_id = ?
		ORDER BY created_at DESC, id LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []QueryHistoryEntry
	for rows.Next() {
		var e QueryHistoryEntry
		var created int64
		if err := rows.Scan(&e.ID, &e.UserID, &e.QueryText, &e.SQLQuery, &created); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		e.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetCompanyData returns the cached record for a symbol. Entries older
// than the staleness window read as absent.
func (s *Store) GetCompanyData(ctx context.Context, symbol string) (models.Record, bool, error) {
	var data string
	var cachedAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT data, cached_at FROM company_data_cache WHERE symbol = ?`, symbol).
		Scan(&data, &cachedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load company data: %w", err)
	}
	if s.stale(cachedAt) {
		return nil, false, nil
	}

	var rec models.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, false, fmt.Errorf("decode company data for %s: %w", symbol, err)
	}
	return rec, true, nil
}

// SaveCompanyData upserts the cached record for a symbol.
func (s *Store) SaveCompanyData(ctx context.Context, symbol string, data models.Record) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("serialize company data: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO company_data_cache (symbol, data, cached_at)
		VALUES (?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			data = excluded.data,
			cached_at = excluded.cached_at`,
		symbol, string(raw), s.now().Unix())
	if err != nil {
		return fmt.Errorf("save company data: %w", err)
	}
	return nil
}

// SaveIndexCompanies replaces the stored constituents of an index.
func (s *Store) SaveIndexCompanies(ctx context.Context, indexName string, companies []models.IndexCompany) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM market_index_companies WHERE index_name = ?`, indexName); err != nil {
		return fmt.Errorf("clear index constituents: %w", err)
	}
	now := s.now().Unix()
	for _, c := range companies {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO market_index_companies
				(symbol, index_name, name, sector, industry, market_cap, dividend_yield, price, last_updated)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.Symbol, indexName, c.Name, c.Sector, c.Industry, c.MarketCap, c.DividendYield, c.Price, now)
		if err != nil {
			return fmt.Errorf("save index constituent %s: %w", c.Symbol, err)
		}
	}
	return tx.Commit()
}

// LoadIndexCompanies returns the stored constituents of an index.
// A stale snapshot reads as absent.
func (s *Store) LoadIndexCompanies(ctx context.Context, indexName string) ([]models.IndexCompany, bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, name, sector, industry, market_cap, dividend_yield, price, last_updated
		FROM market_index_companies WHERE index_name = ?
		ORDER BY symbol`, indexName)
	if err != nil {
		return nil, false, fmt.Errorf("load index constituents: %w", err)
	}
	defer rows.Close()

	var out []models.IndexCompany
	var oldest int64
	for rows.Next() {
		var c models.IndexCompany
		var updated int64
		if err := rows.Scan(&c.Symbol, &c.Name, &c.Sector, &c.Industry, &c.MarketCap, &c.DividendYield, &c.Price, &updated); err != nil {
			return nil, false, fmt.Errorf("scan index constituent: %w", err)
		}
		c.IndexName = indexName
		if oldest == 0 || updated < oldest {
			oldest = updated
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}
	if len(out) == 0 || s.stale(oldest) {
		return nil, false, nil
	}
	return out, true, nil
}

func (s *Store) stale(unixSeconds int64) bool {
	return s.now().Sub(time.Unix(unixSeconds, 0)) > s.staleAfter
}
