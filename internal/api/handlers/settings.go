package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/labelspool/internal/config"
	"github.com/orrn/labelspool/internal/db"
)

type SettingsHandler struct {
	config *config.Config
}

type LabelSettingsResponse struct {
	WidthMM     float64 `json:"width_mm"`
	HeightMM    float64 `json:"height_mm"`
	DPI         int     `json:"dpi"`
	Symbology   string  `json:"symbology"`
	PricePrefix string  `json:"price_prefix"`
	Locale      string  `json:"locale"`
}

type SettingsResponse struct {
	Label            LabelSettingsResponse `json:"label"`
	SoftLimit        int                   `json:"soft_limit"`
	MaxQuantity      int                   `json:"max_quantity"`
	BridgeKind       string                `json:"bridge_kind"`
	BridgeURL        string                `json:"bridge_url,omitempty"`
	PreferredPrinter string                `json:"preferred_printer"`
	InventoryURL     string                `json:"inventory_url"`
	InventoryCached  bool                  `json:"inventory_cached"`
	AuthEnabled      bool                  `json:"auth_enabled"`
	LogLevel         string                `json:"log_level"`
}

func NewSettingsHandler(cfg *config.Config) *SettingsHandler {
	return &SettingsHandler{config: cfg}
}

func (h *SettingsHandler) GetSettings(c *gin.Context) {
	cfg := h.config
	resp := SettingsResponse{
		Label: LabelSettingsResponse{
			WidthMM:     cfg.Label.WidthMM,
			HeightMM:    cfg.Label.HeightMM,
			DPI:         cfg.Label.DPI,
			Symbology:   cfg.Label.Symbology,
			PricePrefix: cfg.Label.PricePrefix,
			Locale:      cfg.Label.Locale,
		},
		SoftLimit:       cfg.Print.SoftLimit,
		MaxQuantity:     cfg.Print.MaxQuantity,
		BridgeKind:      cfg.Bridge.Kind,
		InventoryURL:    cfg.Inventory.BaseURL,
		InventoryCached: cfg.Inventory.RedisURL != "",
		AuthEnabled:     cfg.Auth.Enabled,
		LogLevel:        cfg.Logging.Level,
	}
	if cfg.Bridge.Kind == config.BridgeWebsocket {
		resp.BridgeURL = cfg.Bridge.URL
	}

	preferred, err := db.Preferences{}.PreferredPrinter(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to retrieve preferred printer",
		})
		return
	}
	resp.PreferredPrinter = preferred

	c.JSON(http.StatusOK, resp)
}

func RegisterSettingsRoutes(r *gin.RouterGroup, h *SettingsHandler) {
	r.GET("/settings", h.GetSettings)
}
