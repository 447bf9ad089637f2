// Package config loads the server configuration from an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"cafepos/pkg/logging"
	"cafepos/pkg/store"
	"cafepos/pkg/telemetry"
)

// Store drivers.
const (
	DriverBadger = "badger"
	DriverMemory = "memory"
)

// HTTP configures the listener.
type HTTP struct {
	Port         int           `yaml:"port"`
	Domain       string        `yaml:"domain"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Store selects and tunes the document store driver.
type Store struct {
	Driver     string `yaml:"driver"`
	Path       string `yaml:"path"`
	InMemory   bool   `yaml:"in_memory"`
	SyncWrites bool   `yaml:"sync_writes"`
}

// Orders holds checkout and completion settings.
type Orders struct {
	TaxRate           float64       `yaml:"tax_rate"`
	ExpressCompletion bool          `yaml:"express_completion"`
	MaxCommitRetries  int           `yaml:"max_commit_retries"`
	RetryBackoff      time.Duration `yaml:"retry_backoff"`
	MovementBuffer    int           `yaml:"movement_buffer"`
}

// Config is the whole server configuration.
type Config struct {
	HTTP     HTTP                  `yaml:"http"`
	Store    Store                 `yaml:"store"`
	Log      logging.Config        `yaml:"log"`
	Tracing  telemetry.TraceConfig `yaml:"tracing"`
	Orders   Orders                `yaml:"orders"`
	SeedFile string                `yaml:"seed_file"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		HTTP: HTTP{
			Port:         8765,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Store: Store{Driver: DriverBadger, Path: "cafepos-data"},
		Log:   logging.DefaultConfig(),
		Orders: Orders{
			MaxCommitRetries: 5,
			RetryBackoff:     10 * time.Millisecond,
			MovementBuffer:   256,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults. The PORT
// environment variable overrides the listener port.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if port := os.Getenv("PORT"); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return Config{}, fmt.Errorf("PORT: %w", err)
		}
		cfg.HTTP.Port = n
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port %d out of range", c.HTTP.Port))
	}
	switch c.Store.Driver {
	case DriverBadger:
		if c.Store.Path == "" && !c.Store.InMemory {
			errs = append(errs, errors.New("store.path is required for the badger driver unless in_memory is set"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("store.driver %q is not one of %s, %s", c.Store.Driver, DriverBadger, DriverMemory))
	}
	if c.Orders.TaxRate < 0 {
		errs = append(errs, errors.New("orders.tax_rate must not be negative"))
	}
	if c.Orders.MaxCommitRetries < 1 {
		errs = append(errs, errors.New("orders.max_commit_retries must be at least 1"))
	}
	if c.Orders.RetryBackoff < 0 {
		errs = append(errs, errors.New("orders.retry_backoff must not be negative"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}

// Rate returns the tax rate as a decimal.
func (o Orders) Rate() decimal.Decimal {
	return decimal.NewFromFloat(o.TaxRate)
}

// Retry returns the commit retry policy.
func (o Orders) Retry() store.RetryPolicy {
	return store.RetryPolicy{Attempts: o.MaxCommitRetries, Backoff: o.RetryBackoff}
}
