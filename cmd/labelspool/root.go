package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/orrn/labelspool/internal/bridge"
	"github.com/orrn/labelspool/internal/config"
	"github.com/orrn/labelspool/internal/core"
	"github.com/orrn/labelspool/internal/db"
	"github.com/orrn/labelspool/internal/inventory"
	"github.com/orrn/labelspool/internal/logging"
	"github.com/orrn/labelspool/internal/webhook"
)

type rootOptions struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "labelspool",
		Short:         "Barcode label printing for inventory batches",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to load %s: %w", opts.envFile, err)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "labelspool.yaml", "path to the config file")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the config")

	cmd.AddCommand(
		newServeCmd(opts),
		newPrintCmd(opts),
		newRenderCmd(opts),
		newPrintersCmd(opts),
	)
	return cmd
}

func loadConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// app holds the wired components shared by the commands.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	bridge    core.Bridge
	session   *core.SessionManager
	collector *core.BatchCollector
	webhooks  *webhook.WebhookSender
	closers   []func() error
}

func newApp(ctx context.Context, opts *rootOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}

	if err := db.Init(db.Config{Path: cfg.Database.Path}); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)

	renderer, err := core.NewLabelRenderer(core.LayoutFromConfig(cfg.Label))
	if err != nil {
		a.Close()
		return nil, err
	}

	b, err := bridge.New(cfg.Bridge, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.bridge = b

	var lookup core.BarcodeLookup = inventory.NewClient(cfg.Inventory, logger)
	if cfg.Inventory.RedisURL != "" {
		rdb, err := inventory.NewRedisClient(ctx, cfg.Inventory.RedisURL)
		if err != nil {
			logger.Warn("barcode cache disabled", zap.Error(err))
		} else {
			a.closers = append(a.closers, rdb.Close)
			lookup = inventory.NewCachedLookup(lookup, rdb, cfg.Inventory.CacheTTL, logger)
		}
	}
	a.collector = core.NewBatchCollector(lookup, cfg.Print.SoftLimit, logger)

	a.webhooks = webhook.NewWebhookSender(db.Webhooks, cfg.Webhook, logger)
	a.webhooks.Start()

	a.session = core.NewSessionManager(b, renderer, core.SessionOptions{
		Preferences:    db.Preferences{},
		Recorder:       db.JobStore{},
		Events:         a.webhooks,
		RenderWorkers:  cfg.Print.RenderWorkers,
		ConnectTimeout: cfg.Bridge.ConnectionTimeout,
		Logger:         logger,
	})
	return a, nil
}

// Close stops the webhook workers, the bridge and the stores, in that order.
func (a *app) Close() {
	if a.webhooks != nil {
		a.webhooks.Stop()
	}
	if a.session != nil {
		if err := a.session.Close(); err != nil {
			a.logger.Warn("failed to close print bridge", zap.Error(err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("failed to close resource", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
