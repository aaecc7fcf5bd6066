// Package config loads gquiz configuration from GQUIZ_ prefixed environment
// variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/abhisek/gquiz/internal/llm"
	"github.com/abhisek/gquiz/internal/logging"
	"github.com/abhisek/gquiz/internal/questiongen"
	"github.com/abhisek/gquiz/internal/quota"
)

// Prefix is prepended to every variable name.
const Prefix = "GQUIZ_"

// App holds the runtime configuration.
type App struct {
	// DataDir holds the bank, quota state and audit database unless their
	// paths are set explicitly. Defaults to $XDG_DATA_HOME/gquiz.
	DataDir   string `env:"DATA_DIR"`
	BankPath  string `env:"BANK_PATH"`
	QuotaPath string `env:"QUOTA_PATH"`
	DBPath    string `env:"DB"`

	// Chapters is the syllabus: chapter tags that should receive
	// questions even before the bank has any.
	Chapters []string `env:"CHAPTERS" envSeparator:","`

	// GenerateTimeout bounds one remote generation call.
	GenerateTimeout time.Duration `env:"GENERATE_TIMEOUT" envDefault:"20s"`

	Quota    quota.Config       `envPrefix:"QUOTA_"`
	Refill   Refill             `envPrefix:"REFILL_"`
	HTTP     HTTP               `envPrefix:"HTTP_"`
	Log      logging.Config     `envPrefix:"LOG_"`
	LLM      llm.Config         `envPrefix:"LLM_"`
	Question questiongen.Config `envPrefix:"QUESTION_"`
}

// Refill configures the scheduled bank refill.
type Refill struct {
	MaxShare float64 `env:"MAX_SHARE" envDefault:"0.25"`
	Count    int     `env:"COUNT" envDefault:"5"`
}

// HTTP configures the API server.
type HTTP struct {
	Addr            string        `env:"ADDR" envDefault:"127.0.0.1:8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load parses the process environment.
func Load() (*App, error) {
	return LoadEnv(nil)
}

// LoadEnv parses environment, or the process environment when nil. Provider
// API keys are discovered from the same source.
func LoadEnv(environment map[string]string) (*App, error) {
	cfg := &App{}
	opts := env.Options{Prefix: Prefix, Environment: environment}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	getenv := os.Getenv
	if environment != nil {
		getenv = func(k string) string { return environment[k] }
	}
	cfg.LLM.Discover(getenv)

	if err := cfg.Resolve("", getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Resolve fills the data directory and file paths. A non-empty dataDir
// (from a flag) takes precedence over the environment. File paths that were
// not set explicitly follow the data directory.
func (a *App) Resolve(dataDir string, getenv func(string) string) error {
	if dataDir != "" {
		if a.DataDir != dataDir {
			a.BankPath, a.QuotaPath, a.DBPath = "", "", ""
		}
		a.DataDir = dataDir
	}
	if a.DataDir == "" {
		dir, err := DefaultDataDir(getenv)
		if err != nil {
			return err
		}
		a.DataDir = dir
	}
	if a.BankPath == "" {
		a.BankPath = filepath.Join(a.DataDir, "question_bank.jsonl")
	}
	if a.QuotaPath == "" {
		a.QuotaPath = filepath.Join(a.DataDir, "quota.json")
	}
	if a.DBPath == "" {
		a.DBPath = filepath.Join(a.DataDir, "gquiz.db")
	}
	return nil
}

// Validate checks the values that have no safe fallback.
func (a *App) Validate() error {
	if err := a.Quota.Validate(); err != nil {
		return err
	}
	if a.GenerateTimeout <= 0 {
		return fmt.Errorf("%sGENERATE_TIMEOUT must be positive, got %s", Prefix, a.GenerateTimeout)
	}
	if a.Refill.MaxShare <= 0 || a.Refill.MaxShare > 1 {
		return fmt.Errorf("%sREFILL_MAX_SHARE must be in (0,1], got %v", Prefix, a.Refill.MaxShare)
	}
	if a.LLM.Provider != "" {
		if err := a.LLM.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// DefaultDataDir resolves $XDG_DATA_HOME/gquiz, falling back to
// ~/.local/share/gquiz. A nil getenv uses os.Getenv.
func DefaultDataDir(getenv func(string) string) (string, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	dataHome := getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "gquiz"), nil
}
