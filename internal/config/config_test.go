package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const validYAML = `
app:
  log_level: DEBUG
  cancel_on_exit: true
  enable_metrics: true
  metrics_port: 9191
exchange:
  name: mercadobitcoin
  api_id: my-tapi-id
  api_secret: my-tapi-secret
grid:
  pair: BRLBTC
  side: BUY
  split_count: 3
  spread_percent: 1.5
  poll_interval_seconds: 60
  min_balance: 100
  start_value: 53000
storage:
  enabled: true
  database_path: /tmp/bot.db
`

func TestLoadConfig(t *testing.T) {
	path := writeConfigFile(t, validYAML)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.App.LogLevel)
	assert.True(t, cfg.App.CancelOnExit)
	assert.Equal(t, 9191, cfg.App.MetricsPort)
	assert.Equal(t, "mercadobitcoin", cfg.Exchange.Name)
	assert.Equal(t, "BRLBTC", cfg.Grid.Pair)
	assert.Equal(t, 3, cfg.Grid.SplitCount)
	assert.Equal(t, 1.5, cfg.Grid.SpreadPercent)
	assert.Equal(t, 60, cfg.Grid.PollIntervalSeconds)
	assert.Equal(t, "/tmp/bot.db", cfg.Storage.DatabasePath)

	// Defaults fill the fields the file leaves out.
	assert.Equal(t, 5, cfg.Grid.PriceDecimals)
	assert.Equal(t, 7, cfg.Grid.QtyDecimals)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoadConfigExpandsEnvVars(t *testing.T) {
	t.Setenv("GRIDBOT_TEST_SECRET", "secret-from-env")

	path := writeConfigFile(t, `
exchange:
  name: mercadobitcoin
  api_id: my-tapi-id
  api_secret: ${GRIDBOT_TEST_SECRET}
grid:
  pair: BRLBTC
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "secret-from-env", cfg.Exchange.APISecret)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown exchange", func(c *Config) { c.Exchange.Name = "kraken" }},
		{"missing tapi id", func(c *Config) { c.Exchange.Name = "mercadobitcoin"; c.Exchange.APIID = "" }},
		{"missing secret", func(c *Config) { c.Exchange.Name = "mercadobitcoin"; c.Exchange.APISecret = "" }},
		{"bad log level", func(c *Config) { c.App.LogLevel = "VERBOSE" }},
		{"short pair", func(c *Config) { c.Grid.Pair = "BRL" }},
		{"bad side", func(c *Config) { c.Grid.Side = "HOLD" }},
		{"zero split", func(c *Config) { c.Grid.SplitCount = 0 }},
		{"spread too large", func(c *Config) { c.Grid.SpreadPercent = 100 }},
		{"zero interval", func(c *Config) { c.Grid.PollIntervalSeconds = 0 }},
		{"negative min balance", func(c *Config) { c.Grid.MinBalance = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestMockExchangeNeedsNoCredentials(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Exchange = ExchangeConfig{Name: "mock"}
	assert.NoError(t, cfg.Validate())
}

func TestCurrencyDerivation(t *testing.T) {
	g := GridConfig{Pair: "BRLBTC"}
	assert.Equal(t, "brl", g.QuoteCurrency())
	assert.Equal(t, "btc", g.BaseCurrency())

	g = GridConfig{Pair: "BRLETH"}
	assert.Equal(t, "eth", g.BaseCurrency())
}

func TestStringMasksSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Exchange.APISecret = "super-secret-value-123"

	s := cfg.String()
	assert.NotContains(t, s, "super-secret-value-123")
	assert.Contains(t, s, "supe")
}

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}
