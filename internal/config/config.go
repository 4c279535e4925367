// Package config provides configuration management for the crawler.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the crawler.
type Config struct {
	Crawl   CrawlConfig
	Browser BrowserConfig
	Pacing  PacingConfig
	Ledger  LedgerConfig
	Log     LogConfig
}

// CrawlConfig holds crawl behavior configuration.
type CrawlConfig struct {
	OutDir      string
	MaxOrders   int
	PageTimeout time.Duration
	MaxPasses   int
	Combined    bool
	Debug       bool
}

// BrowserConfig holds browser session configuration.
type BrowserConfig struct {
	Headless        bool
	ProfileDir      string
	Channel         string // chromium or chrome
	UseExisting     bool
	RemoteDebugPort int
	WindowWidth     int
	WindowHeight    int
}

// PacingConfig holds human-pacing delay configuration.
type PacingConfig struct {
	ScrollDelayMin time.Duration
	ScrollDelayMax time.Duration
	ExportDelayMin time.Duration
	ExportDelayMax time.Duration
	NavInterval    time.Duration
}

// LedgerConfig holds export ledger configuration.
type LedgerConfig struct {
	Path     string
	Disabled bool
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level     string
	Format    string
	AddSource bool
}

// Load reads configuration from the environment, loading a .env file first
// when one is present in the working directory.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Overload(".env"); err != nil {
			return nil, fmt.Errorf("loading .env: %w", err)
		}
	}

	cfg := &Config{
		Crawl: CrawlConfig{
			OutDir:      getEnv("WRC_OUT_DIR", "receipts"),
			MaxOrders:   getEnvAsInt("WRC_MAX_ORDERS", 0),
			PageTimeout: secondsEnv("WRC_TIMEOUT_SECONDS", 45),
			MaxPasses:   getEnvAsInt("WRC_MAX_PASSES", 60),
			Combined:    getEnvAsBool("WRC_COMBINED", true),
			Debug:       getEnvAsBool("WRC_DEBUG", false),
		},
		Browser: BrowserConfig{
			Headless:        getEnvAsBool("WRC_HEADLESS", false),
			ProfileDir:      getEnv("WRC_PROFILE_DIR", ".chromedp/walmart-profile"),
			Channel:         getEnv("WRC_BROWSER", "chromium"),
			UseExisting:     getEnvAsBool("WRC_USE_EXISTING_BROWSER", false),
			RemoteDebugPort: getEnvAsInt("WRC_REMOTE_DEBUG_PORT", 9222),
			WindowWidth:     getEnvAsInt("WRC_WINDOW_WIDTH", 1380),
			WindowHeight:    getEnvAsInt("WRC_WINDOW_HEIGHT", 820),
		},
		Pacing: PacingConfig{
			ScrollDelayMin: millisEnv("WRC_SCROLL_DELAY_MIN_MS", 3000),
			ScrollDelayMax: millisEnv("WRC_SCROLL_DELAY_MAX_MS", 6000),
			ExportDelayMin: millisEnv("WRC_EXPORT_DELAY_MIN_MS", 5000),
			ExportDelayMax: millisEnv("WRC_EXPORT_DELAY_MAX_MS", 10000),
			NavInterval:    millisEnv("WRC_NAV_INTERVAL_MS", 2000),
		},
		Ledger: LedgerConfig{
			Path:     getEnv("WRC_LEDGER_PATH", ""),
			Disabled: getEnvAsBool("WRC_NO_LEDGER", false),
		},
		Log: LogConfig{
			Level:     getEnv("LOG_LEVEL", "info"),
			Format:    getEnv("LOG_FORMAT", "text"),
			AddSource: getEnvAsBool("LOG_ADD_SOURCE", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Crawl.PageTimeout <= 0 {
		return fmt.Errorf("page timeout must be positive, got %s", c.Crawl.PageTimeout)
	}
	if c.Crawl.MaxOrders < 0 {
		return fmt.Errorf("max orders must not be negative, got %d", c.Crawl.MaxOrders)
	}
	if c.Pacing.ScrollDelayMin > c.Pacing.ScrollDelayMax {
		return fmt.Errorf("scroll delay min %s exceeds max %s", c.Pacing.ScrollDelayMin, c.Pacing.ScrollDelayMax)
	}
	if c.Pacing.ExportDelayMin > c.Pacing.ExportDelayMax {
		return fmt.Errorf("export delay min %s exceeds max %s", c.Pacing.ExportDelayMin, c.Pacing.ExportDelayMax)
	}
	if c.Browser.Channel != "chromium" && c.Browser.Channel != "chrome" {
		return fmt.Errorf("browser must be chromium or chrome, got %q", c.Browser.Channel)
	}
	if c.Browser.RemoteDebugPort < 1 || c.Browser.RemoteDebugPort > 65535 {
		return fmt.Errorf("remote debugging port out of range: %d", c.Browser.RemoteDebugPort)
	}
	return nil
}

// LedgerPath returns the configured ledger path, defaulting to a database
// file inside the output directory.
func (c *Config) LedgerPath() string {
	if c.Ledger.Path != "" {
		return c.Ledger.Path
	}
	return filepath.Join(c.Crawl.OutDir, "receipts.db")
}

func secondsEnv(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultSeconds)) * time.Second
}

func millisEnv(key string, defaultMillis int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultMillis)) * time.Millisecond
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
