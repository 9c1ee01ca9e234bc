package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, 39.0, cfg.Label.WidthMM)
	assert.Equal(t, 25.0, cfg.Label.HeightMM)
	assert.Equal(t, 300, cfg.Label.DPI)
	assert.Equal(t, 28, cfg.Label.NameMaxChars)
	assert.Equal(t, "Price (VAT Inclusive): ", cfg.Label.PricePrefix)
	assert.Equal(t, 100, cfg.Print.MaxQuantity)
	assert.Equal(t, 500, cfg.Print.SoftLimit)
	assert.Equal(t, BridgeWebsocket, cfg.Bridge.Kind)
	require.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	t.Run("missing file falls back to defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, 8080, cfg.Server.Port)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "labelspool.yaml")
		content := `
server:
  port: 9090
label:
  dpi: 203
  symbology: code39
print:
  soft_limit: 50
bridge:
  kind: tspl
  printers:
    - name: packing
      address: 10.0.0.5
inventory:
  cache_ttl: 30s
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, 203, cfg.Label.DPI)
		assert.Equal(t, "code39", cfg.Label.Symbology)
		assert.Equal(t, 39.0, cfg.Label.WidthMM)
		assert.Equal(t, 50, cfg.Print.SoftLimit)
		assert.Equal(t, BridgeTSPL, cfg.Bridge.Kind)
		require.Len(t, cfg.Bridge.Printers, 1)
		assert.Equal(t, "packing", cfg.Bridge.Printers[0].Name)
		assert.Equal(t, 30*time.Second, cfg.Inventory.CacheTTL)
		require.NoError(t, cfg.Validate())
	})

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("LABELSPOOL_PORT", "7070")
		t.Setenv("LABELSPOOL_SOFT_LIMIT", "10")
		t.Setenv("LABELSPOOL_BRIDGE_KIND", "pdf")

		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)

		assert.Equal(t, 7070, cfg.Server.Port)
		assert.Equal(t, 10, cfg.Print.SoftLimit)
		assert.Equal(t, BridgePDF, cfg.Bridge.Kind)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "broken.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server: ["), 0o644))

		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"negative retention", func(c *Config) { c.Database.RetentionDays = -1 }},
		{"zero label width", func(c *Config) { c.Label.WidthMM = 0 }},
		{"dpi too low", func(c *Config) { c.Label.DPI = 10 }},
		{"unknown symbology", func(c *Config) { c.Label.Symbology = "qr" }},
		{"module range inverted", func(c *Config) { c.Label.MaxModuleDots = 1; c.Label.MinModuleDots = 3 }},
		{"width ratio above one", func(c *Config) { c.Label.BarcodeMaxWidthRatio = 1.5 }},
		{"negative soft limit", func(c *Config) { c.Print.SoftLimit = -1 }},
		{"zero max quantity", func(c *Config) { c.Print.MaxQuantity = 0 }},
		{"unknown bridge", func(c *Config) { c.Bridge.Kind = "cups" }},
		{"tspl without printers", func(c *Config) { c.Bridge.Kind = BridgeTSPL }},
		{"websocket without url", func(c *Config) { c.Bridge.URL = "" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
