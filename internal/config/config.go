// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure
type Config struct {
	App      AppConfig      `yaml:"app"`
	Exchange ExchangeConfig `yaml:"exchange"`
	Grid     GridConfig     `yaml:"grid"`
	Storage  StorageConfig  `yaml:"storage"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	LogLevel      string `yaml:"log_level"`
	CancelOnExit  bool   `yaml:"cancel_on_exit"`
	EnableMetrics bool   `yaml:"enable_metrics"`
	MetricsPort   int    `yaml:"metrics_port"`
}

// ExchangeConfig contains venue credentials and endpoints
type ExchangeConfig struct {
	Name      string `yaml:"name"` // mercadobitcoin, binance or mock
	APIID     string `yaml:"api_id"`
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"` // Optional override for API URL
}

// GridConfig contains the grid strategy parameters
type GridConfig struct {
	Pair                string  `yaml:"pair"` // quote-first, e.g. BRLBTC
	Side                string  `yaml:"side"` // BUY or SELL
	SplitCount          int     `yaml:"split_count"`
	SpreadPercent       float64 `yaml:"spread_percent"`
	PollIntervalSeconds int     `yaml:"poll_interval_seconds"`
	MinBalance          float64 `yaml:"min_balance"`
	MinQuantity         float64 `yaml:"min_quantity"`
	StartValue          float64 `yaml:"start_value"` // 0 disables the buy entry cap
	PriceDecimals       int     `yaml:"price_decimals"`
	QtyDecimals         int     `yaml:"qty_decimals"`
}

// StorageConfig contains the audit database settings
type StorageConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

// QuoteCurrency returns the lowercase quote currency of the pair, e.g. "brl"
// for BRLBTC. Pairs are quote-first with a three-letter quote currency.
func (g GridConfig) QuoteCurrency() string {
	if len(g.Pair) < 4 {
		return ""
	}
	return strings.ToLower(g.Pair[:3])
}

// BaseCurrency returns the lowercase base currency of the pair, e.g. "btc"
// for BRLBTC.
func (g GridConfig) BaseCurrency() string {
	if len(g.Pair) < 4 {
		return ""
	}
	return strings.ToLower(g.Pair[3:])
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "INFO"
	}
	if c.App.MetricsPort == 0 {
		c.App.MetricsPort = 9090
	}
	if c.Grid.Side == "" {
		c.Grid.Side = "BUY"
	}
	if c.Grid.SplitCount == 0 {
		c.Grid.SplitCount = 4
	}
	if c.Grid.SpreadPercent == 0 {
		c.Grid.SpreadPercent = 0.5
	}
	if c.Grid.PollIntervalSeconds == 0 {
		c.Grid.PollIntervalSeconds = 90
	}
	if c.Grid.PriceDecimals == 0 {
		c.Grid.PriceDecimals = 5
	}
	if c.Grid.QtyDecimals == 0 {
		c.Grid.QtyDecimals = 7
	}
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = "gridbot.db"
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errors []string

	if err := c.validateAppConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateExchangeConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateGridConfig(); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errors, "\n"))
	}

	return nil
}

func (c *Config) validateAppConfig() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.App.LogLevel)) {
		return ValidationError{
			Field:   "app.log_level",
			Value:   c.App.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	if c.App.EnableMetrics && (c.App.MetricsPort < 1 || c.App.MetricsPort > 65535) {
		return ValidationError{
			Field:   "app.metrics_port",
			Value:   c.App.MetricsPort,
			Message: "must be a valid TCP port",
		}
	}
	return nil
}

func (c *Config) validateExchangeConfig() error {
	validExchanges := []string{"mercadobitcoin", "binance", "mock"}
	if !contains(validExchanges, c.Exchange.Name) {
		return ValidationError{
			Field:   "exchange.name",
			Value:   c.Exchange.Name,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validExchanges, ", ")),
		}
	}

	// The mock venue needs no credentials.
	if c.Exchange.Name == "mock" {
		return nil
	}

	if c.Exchange.Name == "mercadobitcoin" && c.Exchange.APIID == "" {
		return ValidationError{
			Field:   "exchange.api_id",
			Message: "TAPI ID is required",
		}
	}
	if c.Exchange.APIKey == "" && c.Exchange.Name == "binance" {
		return ValidationError{
			Field:   "exchange.api_key",
			Message: "API key is required",
		}
	}
	if c.Exchange.APISecret == "" {
		return ValidationError{
			Field:   "exchange.api_secret",
			Message: "API secret is required",
		}
	}
	return nil
}

func (c *Config) validateGridConfig() error {
	if len(c.Grid.Pair) < 4 {
		return ValidationError{
			Field:   "grid.pair",
			Value:   c.Grid.Pair,
			Message: "pair is required, quote-first (e.g. BRLBTC)",
		}
	}
	side := strings.ToUpper(c.Grid.Side)
	if side != "BUY" && side != "SELL" {
		return ValidationError{
			Field:   "grid.side",
			Value:   c.Grid.Side,
			Message: "must be BUY or SELL",
		}
	}
	if c.Grid.SplitCount < 1 || c.Grid.SplitCount > 200 {
		return ValidationError{
			Field:   "grid.split_count",
			Value:   c.Grid.SplitCount,
			Message: "must be between 1 and 200",
		}
	}
	if c.Grid.SpreadPercent <= 0 || c.Grid.SpreadPercent >= 100 {
		return ValidationError{
			Field:   "grid.spread_percent",
			Value:   c.Grid.SpreadPercent,
			Message: "must be between 0 and 100 exclusive",
		}
	}
	if c.Grid.PollIntervalSeconds < 1 {
		return ValidationError{
			Field:   "grid.poll_interval_seconds",
			Value:   c.Grid.PollIntervalSeconds,
			Message: "must be at least 1 second",
		}
	}
	if c.Grid.MinBalance < 0 || c.Grid.MinQuantity < 0 || c.Grid.StartValue < 0 {
		return ValidationError{
			Field:   "grid",
			Message: "min_balance, min_quantity and start_value must not be negative",
		}
	}
	return nil
}

// String returns a string representation of the configuration (with sensitive data masked)
func (c *Config) String() string {
	configCopy := *c
	configCopy.Exchange.APIKey = maskString(c.Exchange.APIKey)
	configCopy.Exchange.APISecret = maskString(c.Exchange.APISecret)

	data, _ := yaml.Marshal(configCopy)
	return string(data)
}

// Helper functions

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func maskString(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}

// DefaultConfig returns a default configuration for testing
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			LogLevel:      "INFO",
			CancelOnExit:  true,
			EnableMetrics: true,
			MetricsPort:   9090,
		},
		Exchange: ExchangeConfig{
			Name:      "mock",
			APIID:     "test_tapi_id",
			APIKey:    "test_api_key",
			APISecret: "test_api_secret",
		},
		Grid: GridConfig{
			Pair:                "BRLBTC",
			Side:                "BUY",
			SplitCount:          4,
			SpreadPercent:       0.5,
			PollIntervalSeconds: 90,
			MinBalance:          100,
			MinQuantity:         0.001,
			StartValue:          53000,
			PriceDecimals:       5,
			QtyDecimals:         7,
		},
		Storage: StorageConfig{
			Enabled:      true,
			DatabasePath: "gridbot.db",
		},
	}
}
