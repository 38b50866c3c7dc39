// MarketQuery — natural language query resolution for financial data.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/marketquery/marketquery/api"
	"github.com/marketquery/marketquery/internal/config"
	"github.com/marketquery/marketquery/internal/engine"
	"github.com/marketquery/marketquery/internal/enrich"
	"github.com/marketquery/marketquery/internal/fetch"
	"github.com/marketquery/marketquery/internal/llm"
	"github.com/marketquery/marketquery/internal/marketindex"
	"github.com/marketquery/marketquery/internal/sqlgen"
	"github.com/marketquery/marketquery/internal/store"
	"github.com/marketquery/marketquery/internal/structurer"
	"github.com/marketquery/marketquery/pkg/models"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config and logger
var (
	cfg *config.Config
	log zerolog.Logger
)

func main() {
	// Load .env before viper reads the environment. Missing file is fine.
	godotenv.Load() //nolint:errcheck

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "marketquery",
	Short: "MarketQuery — natural language financial queries",
	Long: `MarketQuery resolves free-text financial questions into a SQL
statement and a structured data table, aggregating Financial Modeling
Prep market data with model-assisted structuring and enrichment.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			cfg.Logging.Level = level
		}
		log = setupLogger(cfg.Logging)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(statusCmd)
}

// setupLogger builds the process logger from the logging config.
func setupLogger(lc config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(lc.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out zerolog.Logger
	if lc.Format == "json" {
		out = zerolog.New(os.Stderr)
	} else {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	return out.Level(level).With().Timestamp().Logger()
}

// openStore opens the configured SQLite store. Callers treat a nil
// store as "persistence disabled".
func openStore() *store.Store {
	st, err := store.Open(cfg.Store.Path, store.WithLogger(log))
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.Store.Path).Msg("persistence disabled")
		return nil
	}
	return st
}

// resolver builds the pipeline from the current config on each call so
// keys updated at runtime take effect without a restart.
type resolver struct {
	st *store.Store
}

func (r *resolver) Resolve(ctx context.Context, prompt string) models.QueryResult {
	eng, err := buildEngine(cfg, r.st)
	if err != nil {
		return models.Failed(err)
	}
	return eng.Resolve(ctx, prompt)
}

// buildEngine wires the full resolution pipeline from configuration.
func buildEngine(cfg *config.Config, st *store.Store) (*engine.Engine, error) {
	keys := models.APIKeys{
		OpenAI:                cfg.LLM.OpenAIKey,
		FinancialModelingPrep: cfg.MarketData.FMPKey,
		MarketData:            cfg.MarketData.MarketDataKey,
	}
	if err := keys.Validate(); err != nil {
		return nil, err
	}

	provider, err := llm.NewOpenAIClient(keys.OpenAI, llm.WithModel(cfg.LLM.Model))
	if err != nil {
		return nil, fmt.Errorf("LLM setup failed: %w", err)
	}

	fetcher := fetch.New(keys.FinancialModelingPrep,
		fetch.WithCacheTTL(time.Duration(cfg.Fetch.CacheTTL)*time.Second),
		fetch.WithTimeout(time.Duration(cfg.Fetch.TimeoutSec)*time.Second),
		fetch.WithConcurrency(cfg.Fetch.ConcurrentFetches),
		fetch.WithLogger(log),
	)

	generator := sqlgen.New(provider,
		sqlgen.WithModels(cfg.LLM.Model, cfg.LLM.FallbackModel),
		sqlgen.WithLogger(log),
	)
	tables := structurer.New(provider,
		structurer.WithModel(cfg.LLM.Model),
		structurer.WithLogger(log),
	)

	enrichOpts := []enrich.Option{
		enrich.WithModel(cfg.LLM.Model),
		enrich.WithLogger(log),
	}
	indexOpts := []marketindex.Option{
		marketindex.WithLogger(log),
	}
	engineOpts := []engine.Option{
		engine.WithLogger(log),
	}
	if st != nil {
		enrichOpts = append(enrichOpts, enrich.WithCache(st))
		indexOpts = append(indexOpts, marketindex.WithSnapshots(st))
		engineOpts = append(engineOpts, engine.WithAuditor(st, "default"))
	}
	engineOpts = append(engineOpts,
		engine.WithEnricher(enrich.New(provider, enrichOpts...)),
		engine.WithIndexService(marketindex.New(fetcher, indexOpts...)),
	)

	return engine.New(keys, generator, fetcher, tables, engineOpts...), nil
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("MarketQuery %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Query Command ---

var queryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Resolve a natural language financial question",
	Long: `Resolve a free-text financial question into a SQL statement and a
structured data table.

Examples:
  marketquery query "top 10 tech companies by market cap"
  marketquery query "highest dividend yields in the s&p 500"
  marketquery query "AAPL income statement"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st := openStore()
		if st != nil {
			defer st.Close()
		}
		r := &resolver{st: st}

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()

		result := r.Resolve(ctx, args[0])

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		fmt.Println(string(out))

		if result.Error != "" {
			return fmt.Errorf("query failed: %s", result.Error)
		}
		return nil
	},
}

// --- Serve Command (API Server) ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		st := openStore()
		if st != nil {
			defer st.Close()

			// Keys persisted through the API override file config.
			if keys, ok, err := st.LoadKeys(cmd.Context(), "default"); err == nil && ok {
				applyStoredKeys(keys)
			}
		}

		opts := []api.Option{api.WithLogger(log)}
		if st != nil {
			opts = append(opts, api.WithKeyStore(st))
		}
		srv := api.NewServer(cfg, &resolver{st: st}, opts...)

		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		return srv.ListenAndServe(addr)
	},
}

func applyStoredKeys(keys models.APIKeys) {
	if cfg.LLM.OpenAIKey == "" && keys.OpenAI != "" {
		cfg.LLM.OpenAIKey = keys.OpenAI
	}
	if cfg.MarketData.FMPKey == "" && keys.FinancialModelingPrep != "" {
		cfg.MarketData.FMPKey = keys.FinancialModelingPrep
	}
	if cfg.MarketData.MarketDataKey == "" && keys.MarketData != "" {
		cfg.MarketData.MarketDataKey = keys.MarketData
	}
}

// --- Keys Command ---

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Show configured API keys (masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, k := range config.CheckAPIKeys(cfg) {
			status := "not set"
			if k.IsSet {
				status = fmt.Sprintf("set (%s: %s)", k.Source, k.Masked)
			}
			fmt.Printf("  %-35s %s\n", k.Name+":", status)
		}
		return nil
	},
}

// --- Status Command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show system status and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("═══════════════════════════════════════")
		fmt.Println("  MarketQuery — System Status")
		fmt.Println("═══════════════════════════════════════")
		fmt.Printf("  Version:     %s (%s)\n", version, commit)
		fmt.Println()

		fmt.Println("  Configuration:")
		fmt.Printf("    Model:        %s (fallback: %s)\n", cfg.LLM.Model, cfg.LLM.FallbackModel)
		fmt.Printf("    Cache TTL:    %ds\n", cfg.Fetch.CacheTTL)
		fmt.Printf("    Store:        %s\n", cfg.Store.Path)
		fmt.Printf("    API Server:   %s:%d\n", cfg.API.Host, cfg.API.Port)
		fmt.Println()

		fmt.Println("  API Keys:")
		for _, k := range config.CheckAPIKeys(cfg) {
			status := "❌ not set"
			if k.IsSet {
				status = fmt.Sprintf("✅ set (%s: %s)", k.Source, k.Masked)
			}
			fmt.Printf("    %-35s %s\n", k.Name+":", status)
		}
		fmt.Println("═══════════════════════════════════════")
		return nil
	},
}
