package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/orrn/labelspool/internal/config"
	"github.com/orrn/labelspool/internal/core"
)

const statusActive = "active"

// Client reads unit barcodes from the inventory service.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

type barcodeResponse struct {
	Data []struct {
		Code   string `json:"code"`
		Status string `json:"status"`
	} `json:"data"`
}

func NewClient(cfg config.InventoryConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("inventory"),
	}
}

// ActiveBarcodes returns the active unit barcodes of a batch in upstream order.
func (c *Client) ActiveBarcodes(ctx context.Context, batchID int64) ([]string, error) {
	url := fmt.Sprintf("%s/api/v1/batches/%d/barcodes?status=%s", c.baseURL, batchID, statusActive)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch barcodes for batch %d: %w", batchID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch barcodes for batch %d: status %d: %s", batchID, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload barcodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode barcodes for batch %d: %w", batchID, err)
	}

	codes := make([]string, 0, len(payload.Data))
	for _, b := range payload.Data {
		if b.Code == "" || (b.Status != "" && b.Status != statusActive) {
			continue
		}
		codes = append(codes, b.Code)
	}
	c.logger.Debug("fetched barcodes", zap.Int64("batch_id", batchID), zap.Int("count", len(codes)))
	return codes, nil
}

var _ core.BarcodeLookup = (*Client)(nil)
