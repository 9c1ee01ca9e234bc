package bridge

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/orrn/labelspool/internal/config"
	"github.com/orrn/labelspool/internal/core"
)

// New builds the bridge selected by cfg.Kind.
func New(cfg config.BridgeConfig, logger *zap.Logger) (core.Bridge, error) {
	switch cfg.Kind {
	case config.BridgeWebsocket:
		return NewWebsocketBridge(cfg.URL, cfg.ConnectionTimeout, cfg.RequestTimeout, logger), nil
	case config.BridgeTSPL:
		return NewTSPLBridge(cfg, logger), nil
	case config.BridgePDF:
		return NewPDFBridge(cfg.OutputDir, logger), nil
	default:
		return nil, fmt.Errorf("unknown bridge kind: %s", cfg.Kind)
	}
}
