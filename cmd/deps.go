package cmd

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/abhisek/gquiz/internal/bank"
	"github.com/abhisek/gquiz/internal/config"
	"github.com/abhisek/gquiz/internal/llm"
	"github.com/abhisek/gquiz/internal/logging"
	"github.com/abhisek/gquiz/internal/metrics"
	"github.com/abhisek/gquiz/internal/orchestrator"
	"github.com/abhisek/gquiz/internal/questiongen"
	"github.com/abhisek/gquiz/internal/quota"
	"github.com/abhisek/gquiz/internal/store"
)

// loadConfig reads the environment, then applies --data-dir (highest
// priority) and --log-level.
func loadConfig(cmd *cobra.Command) (*config.App, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
		if err := cfg.Resolve(dir, nil); err != nil {
			return nil, zerolog.Nop(), err
		}
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, logging.New(cfg.Log, os.Stderr), nil
}

// openStore opens the audit database only.
func openStore(cmd *cobra.Command) (*store.Store, *config.App, error) {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if err := store.EnsureDir(cfg.DBPath); err != nil {
		return nil, nil, fmt.Errorf("resolve database path: %w", err)
	}
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return st, cfg, nil
}

// deps is everything a serving command needs. Construct with openDeps and
// release with Close.
type deps struct {
	cfg      *config.App
	logger   zerolog.Logger
	store    *store.Store
	bank     *bank.Store
	quota    *quota.Estimator
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	// gen is nil when no LLM provider is configured.
	gen questiongen.Generator
}

func openDeps(cmd *cobra.Command, withLLM bool) (*deps, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	for _, p := range []string{cfg.DBPath, cfg.BankPath, cfg.QuotaPath} {
		if err := store.EnsureDir(p); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	d := &deps{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	d.metrics = metrics.New(d.registry)

	d.store, err = store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	d.bank, err = bank.Open(cfg.BankPath, bank.Options{Logger: &logger})
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("open question bank: %w", err)
	}
	d.quota, err = quota.Open(cfg.QuotaPath, cfg.Quota, quota.Options{Logger: &logger})
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("open quota state: %w", err)
	}

	if !withLLM {
		return d, nil
	}
	if cfg.LLM.Provider == "" {
		fmt.Fprintln(os.Stderr, "LLM provider not configured: set GEMINI_API_KEY to generate questions online.")
		fmt.Fprintln(os.Stderr, "Serving from the question bank only.")
		return d, nil
	}
	provider, err := llm.NewProvider(cmd.Context(), cfg.LLM, d.store.EventRepo(), logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "LLM provider not available:", err)
		fmt.Fprintln(os.Stderr, "Serving from the question bank only.")
		return d, nil
	}
	d.gen = questiongen.New(provider, d.bank, cfg.Question)
	return d, nil
}

func (d *deps) orchestrator() *orchestrator.Orchestrator {
	return orchestrator.New(d.bank, d.quota, orchestrator.Options{
		Generator:       d.gen,
		GenerateTimeout: d.cfg.GenerateTimeout,
		Syllabus:        d.cfg.Chapters,
		Events:          d.store.EventRepo(),
		Metrics:         d.metrics,
		Logger:          &d.logger,
	})
}

// Close flushes quota state and closes the audit database.
func (d *deps) Close() {
	if d.quota != nil {
		if err := d.quota.Flush(); err != nil {
			d.logger.Warn().Err(err).Msg("could not save quota state")
		}
	}
	if d.store != nil {
		d.store.Close()
	}
}
