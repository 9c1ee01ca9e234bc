package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Label     LabelConfig     `yaml:"label"`
	Print     PrintConfig     `yaml:"print"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	Inventory InventoryConfig `yaml:"inventory"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
	// RetentionDays bounds the job history; 0 keeps it forever.
	RetentionDays int `yaml:"retention_days"`
}

// LabelConfig describes the physical label and its layout constants.
type LabelConfig struct {
	WidthMM              float64 `yaml:"width_mm"`
	HeightMM             float64 `yaml:"height_mm"`
	DPI                  int     `yaml:"dpi"`
	Symbology            string  `yaml:"symbology"`
	NameMaxChars         int     `yaml:"name_max_chars"`
	PricePrefix          string  `yaml:"price_prefix"`
	Locale               string  `yaml:"locale"`
	OffsetXMM            float64 `yaml:"offset_x_mm"`
	MinModuleDots        int     `yaml:"min_module_dots"`
	MaxModuleDots        int     `yaml:"max_module_dots"`
	BarcodeMaxWidthRatio float64 `yaml:"barcode_max_width_ratio"`
	BarHeightMM          float64 `yaml:"bar_height_mm"`
}

type PrintConfig struct {
	SoftLimit     int `yaml:"soft_limit"`
	MaxQuantity   int `yaml:"max_quantity"`
	RenderWorkers int `yaml:"render_workers"`
}

type BridgePrinterConfig struct {
	Name    string  `yaml:"name"`
	Address string  `yaml:"address"`
	Port    int     `yaml:"port"`
	GapMM   float64 `yaml:"gap_mm"`
}

type BridgeConfig struct {
	Kind              string                `yaml:"kind"`
	URL               string                `yaml:"url"`
	ConnectionTimeout time.Duration         `yaml:"connection_timeout"`
	RequestTimeout    time.Duration         `yaml:"request_timeout"`
	OutputDir         string                `yaml:"output_dir"`
	DefaultPrinter    string                `yaml:"default_printer"`
	Printers          []BridgePrinterConfig `yaml:"printers"`
}

type InventoryConfig struct {
	BaseURL  string        `yaml:"base_url"`
	Token    string        `yaml:"token"`
	Timeout  time.Duration `yaml:"timeout"`
	RedisURL string        `yaml:"redis_url"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type WebhookConfig struct {
	RetryCount  int           `yaml:"retry_count"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	Timeout     time.Duration `yaml:"timeout"`
	WorkerCount int           `yaml:"worker_count"`
	QueueSize   int           `yaml:"queue_size"`
}

type AuthConfig struct {
	Enabled bool `yaml:"enabled"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

const (
	BridgeWebsocket = "websocket"
	BridgeTSPL      = "tspl"
	BridgePDF       = "pdf"
)

func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Database: DatabaseConfig{
			Path:          "./data/labelspool.db",
			RetentionDays: 90,
		},
		Label: LabelConfig{
			WidthMM:              39,
			HeightMM:             25,
			DPI:                  300,
			Symbology:            "code128",
			NameMaxChars:         28,
			PricePrefix:          "Price (VAT Inclusive): ",
			Locale:               "en",
			OffsetXMM:            -0.5,
			MinModuleDots:        2,
			MaxModuleDots:        6,
			BarcodeMaxWidthRatio: 0.92,
			BarHeightMM:          9,
		},
		Print: PrintConfig{
			SoftLimit:     500,
			MaxQuantity:   100,
			RenderWorkers: 4,
		},
		Bridge: BridgeConfig{
			Kind:              BridgeWebsocket,
			URL:               "ws://localhost:8182",
			ConnectionTimeout: 10 * time.Second,
			RequestTimeout:    60 * time.Second,
			OutputDir:         "./data/labels",
		},
		Inventory: InventoryConfig{
			BaseURL:  "http://localhost:8000",
			Timeout:  15 * time.Second,
			CacheTTL: 5 * time.Minute,
		},
		Webhook: WebhookConfig{
			RetryCount:  3,
			RetryDelay:  5 * time.Second,
			Timeout:     10 * time.Second,
			WorkerCount: 2,
			QueueSize:   100,
		},
		Auth: AuthConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(cfg)
	return cfg, nil
}

func LoadFromEnv() *Config {
	cfg := Defaults()
	applyEnv(cfg)
	return cfg
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("LABELSPOOL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("LABELSPOOL_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("LABELSPOOL_DPI"); v != "" {
		if dpi, err := strconv.Atoi(v); err == nil {
			cfg.Label.DPI = dpi
		}
	}

	if v := os.Getenv("LABELSPOOL_SOFT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Print.SoftLimit = n
		}
	}

	if v := os.Getenv("LABELSPOOL_BRIDGE_KIND"); v != "" {
		cfg.Bridge.Kind = v
	}

	if v := os.Getenv("LABELSPOOL_BRIDGE_URL"); v != "" {
		cfg.Bridge.URL = v
	}

	if v := os.Getenv("LABELSPOOL_INVENTORY_URL"); v != "" {
		cfg.Inventory.BaseURL = v
	}

	if v := os.Getenv("LABELSPOOL_INVENTORY_TOKEN"); v != "" {
		cfg.Inventory.Token = v
	}

	if v := os.Getenv("LABELSPOOL_REDIS_URL"); v != "" {
		cfg.Inventory.RedisURL = v
	}

	if v := os.Getenv("LABELSPOOL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be non-negative")
	}

	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server write timeout must be non-negative")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Database.RetentionDays < 0 {
		return fmt.Errorf("database retention days must be non-negative")
	}

	if c.Label.WidthMM <= 0 || c.Label.HeightMM <= 0 {
		return fmt.Errorf("label dimensions must be positive, got %.1fx%.1f mm", c.Label.WidthMM, c.Label.HeightMM)
	}

	if c.Label.DPI < 72 || c.Label.DPI > 1200 {
		return fmt.Errorf("label dpi must be between 72 and 1200, got %d", c.Label.DPI)
	}

	validSymbologies := map[string]bool{
		"code128": true,
		"code39":  true,
		"ean":     true,
	}

	if !validSymbologies[c.Label.Symbology] {
		return fmt.Errorf("invalid symbology: %s (valid: code128, code39, ean)", c.Label.Symbology)
	}

	if c.Label.NameMaxChars < 1 {
		return fmt.Errorf("name max chars must be at least 1")
	}

	if c.Label.MinModuleDots < 1 || c.Label.MaxModuleDots < c.Label.MinModuleDots {
		return fmt.Errorf("module widths must satisfy 1 <= min (%d) <= max (%d)", c.Label.MinModuleDots, c.Label.MaxModuleDots)
	}

	if c.Label.BarcodeMaxWidthRatio <= 0 || c.Label.BarcodeMaxWidthRatio > 1 {
		return fmt.Errorf("barcode max width ratio must be in (0, 1]")
	}

	if c.Print.SoftLimit < 0 {
		return fmt.Errorf("print soft limit must be non-negative")
	}

	if c.Print.MaxQuantity < 1 {
		return fmt.Errorf("print max quantity must be at least 1")
	}

	if c.Print.RenderWorkers < 1 {
		return fmt.Errorf("render workers must be at least 1")
	}

	switch c.Bridge.Kind {
	case BridgeWebsocket:
		if c.Bridge.URL == "" {
			return fmt.Errorf("bridge url is required for the websocket bridge")
		}
	case BridgeTSPL:
		if len(c.Bridge.Printers) == 0 {
			return fmt.Errorf("at least one printer is required for the tspl bridge")
		}
		for i, p := range c.Bridge.Printers {
			if p.Name == "" || p.Address == "" {
				return fmt.Errorf("bridge printer %d needs a name and an address", i)
			}
		}
	case BridgePDF:
		if c.Bridge.OutputDir == "" {
			return fmt.Errorf("bridge output dir is required for the pdf bridge")
		}
	default:
		return fmt.Errorf("invalid bridge kind: %s (valid: websocket, tspl, pdf)", c.Bridge.Kind)
	}

	if c.Bridge.ConnectionTimeout < 0 {
		return fmt.Errorf("bridge connection timeout must be non-negative")
	}

	if c.Inventory.BaseURL == "" {
		return fmt.Errorf("inventory base url is required")
	}

	if c.Inventory.CacheTTL < 0 {
		return fmt.Errorf("inventory cache ttl must be non-negative")
	}

	if c.Webhook.RetryCount < 0 {
		return fmt.Errorf("webhook retry count must be non-negative")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json":    true,
		"console": true,
	}

	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, console)", c.Logging.Format)
	}

	return nil
}
