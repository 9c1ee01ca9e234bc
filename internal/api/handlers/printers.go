package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/labelspool/internal/bridge"
	"github.com/orrn/labelspool/internal/core"
)

// StatusReporter is implemented by bridges that can query a printer directly.
type StatusReporter interface {
	Status(ctx context.Context, name string) (*bridge.PrinterStatus, error)
}

type PrinterHandler struct {
	session *core.SessionManager
	status  StatusReporter
}

type PrinterListResponse struct {
	Printers []string `json:"printers"`
	Default  string   `json:"default"`
	State    string   `json:"state"`
}

type DefaultPrinterRequest struct {
	Printer string `json:"printer" binding:"required"`
}

// NewPrinterHandler wires the printer routes. status may be nil when the
// bridge cannot report printer state.
func NewPrinterHandler(session *core.SessionManager, status StatusReporter) *PrinterHandler {
	return &PrinterHandler{session: session, status: status}
}

func (h *PrinterHandler) ListPrinters(c *gin.Context) {
	ctx := c.Request.Context()
	printers, err := h.session.Printers(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	if printers == nil {
		printers = []string{}
	}

	resp := PrinterListResponse{Printers: printers}
	if def, err := h.session.ResolvePrinter(ctx); err == nil {
		resp.Default = def
	}
	resp.State = string(h.session.State())
	c.JSON(http.StatusOK, resp)
}

func (h *PrinterHandler) GetDefaultPrinter(c *gin.Context) {
	printer, err := h.session.ResolvePrinter(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"printer": printer})
}

func (h *PrinterHandler) SetDefaultPrinter(c *gin.Context) {
	var req DefaultPrinterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	if err := h.session.SetPreferredPrinter(c.Request.Context(), req.Printer); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"printer": req.Printer})
}

func (h *PrinterHandler) GetPrinterStatus(c *gin.Context) {
	if h.status == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{
			Error:   "not_supported",
			Message: "The configured print bridge does not report printer status",
		})
		return
	}

	status, err := h.status.Status(c.Request.Context(), c.Param("name"))
	if err != nil {
		if status == nil {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": status, "summary": status.Summary(), "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "summary": status.Summary()})
}

func RegisterPrinterRoutes(r *gin.RouterGroup, h *PrinterHandler) {
	r.GET("/printers", h.ListPrinters)
	r.GET("/printers/default", h.GetDefaultPrinter)
	r.PUT("/printers/default", h.SetDefaultPrinter)
	r.GET("/printers/status/:name", h.GetPrinterStatus)
}
