package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orrn/labelspool/internal/db"
	"github.com/orrn/labelspool/internal/webhook"
)

// WebhookTester sends one sample event to a webhook.
type WebhookTester interface {
	Deliver(ctx context.Context, w *db.Webhook, event webhook.WebhookEvent) error
}

type WebhookHandler struct {
	tester WebhookTester
}

// WebhookRequest creates or patches a webhook. On update, omitted fields
// keep their value; an empty printers list widens the scope to every printer.
type WebhookRequest struct {
	Name     string    `json:"name"`
	URL      string    `json:"url" binding:"omitempty,url"`
	Secret   *string   `json:"secret"`
	Events   []string  `json:"events"`
	Printers *[]string `json:"printers"`
	Enabled  *bool     `json:"enabled"`
}

type WebhookResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Events    []string  `json:"events"`
	Printers  []string  `json:"printers"`
	Signed    bool      `json:"signed"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

type TestWebhookRequest struct {
	Event string `json:"event"`
}

type TestWebhookResponse struct {
	Success bool   `json:"success"`
	Event   string `json:"event"`
	Message string `json:"message"`
}

func NewWebhookHandler(tester WebhookTester) *WebhookHandler {
	return &WebhookHandler{tester: tester}
}

func (h *WebhookHandler) ListWebhooks(c *gin.Context) {
	webhooks, err := db.Webhooks.ListWebhooks(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to retrieve webhooks",
		})
		return
	}

	responses := make([]WebhookResponse, 0, len(webhooks))
	for _, w := range webhooks {
		responses = append(responses, webhookResponse(w))
	}
	c.JSON(http.StatusOK, responses)
}

func (h *WebhookHandler) CreateWebhook(c *gin.Context) {
	req, ok := bindWebhookRequest(c)
	if !ok {
		return
	}
	if req.Name == "" || req.URL == "" || len(req.Events) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "name, url and at least one event are required",
		})
		return
	}

	w := &db.Webhook{Enabled: true}
	if !applyWebhookRequest(c, w, req) {
		return
	}

	if err := db.Webhooks.CreateWebhook(c.Request.Context(), w); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to create webhook",
		})
		return
	}
	c.JSON(http.StatusCreated, webhookResponse(w))
}

func (h *WebhookHandler) GetWebhook(c *gin.Context) {
	w, ok := loadWebhook(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, webhookResponse(w))
}

func (h *WebhookHandler) UpdateWebhook(c *gin.Context) {
	w, ok := loadWebhook(c)
	if !ok {
		return
	}
	req, ok := bindWebhookRequest(c)
	if !ok {
		return
	}
	if !applyWebhookRequest(c, w, req) {
		return
	}

	if err := db.Webhooks.UpdateWebhook(c.Request.Context(), w); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to update webhook",
		})
		return
	}
	c.JSON(http.StatusOK, webhookResponse(w))
}

func (h *WebhookHandler) DeleteWebhook(c *gin.Context) {
	id, ok := webhookID(c)
	if !ok {
		return
	}

	if err := db.Webhooks.DeleteWebhook(c.Request.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "Webhook not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to delete webhook",
		})
		return
	}
	c.Status(http.StatusNoContent)
}

// TestWebhook delivers a sample labels_printed or print_failed event. The
// event defaults to the first one the webhook subscribes to.
func (h *WebhookHandler) TestWebhook(c *gin.Context) {
	if h.tester == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{
			Error:   "not_supported",
			Message: "Webhook delivery is not configured",
		})
		return
	}

	w, ok := loadWebhook(c)
	if !ok {
		return
	}

	var req TestWebhookRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "validation_error",
				Message: err.Error(),
			})
			return
		}
	}

	name := req.Event
	if name == "" {
		if subscribed := w.Events(); len(subscribed) > 0 {
			name = subscribed[0]
		} else {
			name = string(webhook.EventLabelsPrinted)
		}
	}
	events, err := webhook.ParseEvents([]string{name})
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_event",
			Message: err.Error(),
		})
		return
	}
	event := events[0]

	if err := h.tester.Deliver(c.Request.Context(), w, event); err != nil {
		c.JSON(http.StatusOK, TestWebhookResponse{
			Success: false,
			Event:   string(event),
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, TestWebhookResponse{
		Success: true,
		Event:   string(event),
		Message: "Sample " + string(event) + " event delivered",
	})
}

func bindWebhookRequest(c *gin.Context) (*WebhookRequest, bool) {
	var req WebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return nil, false
	}
	return &req, true
}

// applyWebhookRequest validates req and copies the set fields onto w. It
// writes the error response itself.
func applyWebhookRequest(c *gin.Context, w *db.Webhook, req *WebhookRequest) bool {
	if req.Events != nil {
		events, err := webhook.ParseEvents(req.Events)
		if err == nil && len(events) == 0 {
			err = errors.New("at least one event is required")
		}
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_event",
				Message: err.Error(),
			})
			return false
		}
		w.EventsJSON = mustJSON(events)
	}

	if req.Printers != nil {
		printers, err := normalizePrinters(*req.Printers)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_printer",
				Message: err.Error(),
			})
			return false
		}
		w.PrintersJSON = mustJSON(printers)
	}

	if req.Name != "" {
		w.Name = req.Name
	}
	if req.URL != "" {
		w.URL = req.URL
	}
	if req.Secret != nil {
		w.Secret = *req.Secret
	}
	if req.Enabled != nil {
		w.Enabled = *req.Enabled
	}
	return true
}

func normalizePrinters(names []string) ([]string, error) {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, errors.New("printer names must not be empty")
		}
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out, nil
}

func mustJSON(v interface{}) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func webhookID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_id",
			Message: "Invalid webhook ID",
		})
		return 0, false
	}
	return id, true
}

func loadWebhook(c *gin.Context) (*db.Webhook, bool) {
	id, ok := webhookID(c)
	if !ok {
		return nil, false
	}

	w, err := db.Webhooks.GetWebhookByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "Webhook not found",
			})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to retrieve webhook",
		})
		return nil, false
	}
	return w, true
}

func webhookResponse(w *db.Webhook) WebhookResponse {
	return WebhookResponse{
		ID:        w.ID,
		Name:      w.Name,
		URL:       w.URL,
		Events:    w.Events(),
		Printers:  w.Printers(),
		Signed:    w.Secret != "",
		Enabled:   w.Enabled,
		CreatedAt: w.CreatedAt,
	}
}

func RegisterWebhookRoutes(r *gin.RouterGroup, h *WebhookHandler) {
	r.GET("/webhooks", h.ListWebhooks)
	r.POST("/webhooks", h.CreateWebhook)
	r.GET("/webhooks/:id", h.GetWebhook)
	r.PUT("/webhooks/:id", h.UpdateWebhook)
	r.DELETE("/webhooks/:id", h.DeleteWebhook)
	r.POST("/webhooks/:id/test", h.TestWebhook)
}
