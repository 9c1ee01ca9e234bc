package handlers

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/orrn/labelspool/internal/bridge"
	"github.com/orrn/labelspool/internal/core"
)

type LabelHandler struct {
	session *core.SessionManager
}

type PreviewRequest struct {
	Code        string          `json:"code" binding:"required"`
	ProductName string          `json:"product_name"`
	Price       decimal.Decimal `json:"price"`
	Format      string          `json:"format"`
}

func NewLabelHandler(session *core.SessionManager) *LabelHandler {
	return &LabelHandler{session: session}
}

// Preview renders one label as PNG, or as a one-page PDF when format is "pdf".
func (h *LabelHandler) Preview(c *gin.Context) {
	var req PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	label, err := h.session.Renderer().Render(req.Code, req.ProductName, req.Price)
	if err != nil {
		respondError(c, err)
		return
	}

	switch req.Format {
	case "", "png":
		c.Data(http.StatusOK, "image/png", label.PNG)
	case "pdf":
		var buf bytes.Buffer
		cfg := h.session.NewJobConfig(bridge.PDFPrinterName)
		if err := bridge.WriteLabelsPDF(&buf, cfg, []string{label.Base64()}); err != nil {
			respondError(c, err)
			return
		}
		c.Data(http.StatusOK, "application/pdf", buf.Bytes())
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "format must be png or pdf",
		})
	}
}

func RegisterLabelRoutes(r *gin.RouterGroup, h *LabelHandler) {
	r.POST("/labels/preview", h.Preview)
}
