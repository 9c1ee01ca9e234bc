package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orrn/labelspool/internal/core"
)

const dialogTTL = 30 * time.Minute

type Notice struct {
	Severity core.Severity `json:"severity"`
	Message  string        `json:"message"`
}

// exchange is the prompt state of one HTTP request. Confirm answers come
// from the request body; notices go back in the response.
type exchange struct {
	confirm bool

	mu      sync.Mutex
	prompts []string
	notices []Notice
}

type exchangeKey struct{}

func withExchange(ctx context.Context, ex *exchange) context.Context {
	return context.WithValue(ctx, exchangeKey{}, ex)
}

func exchangeFrom(ctx context.Context) *exchange {
	ex, _ := ctx.Value(exchangeKey{}).(*exchange)
	return ex
}

func (ex *exchange) lastPrompt() string {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if len(ex.prompts) == 0 {
		return ""
	}
	return ex.prompts[len(ex.prompts)-1]
}

func (ex *exchange) collectedNotices() []Notice {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.notices
}

// httpPrompter answers dialog prompts from the request being served.
type httpPrompter struct{}

func (httpPrompter) Confirm(ctx context.Context, prompt string) bool {
	ex := exchangeFrom(ctx)
	if ex == nil {
		return false
	}
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.prompts = append(ex.prompts, prompt)
	return ex.confirm
}

func (httpPrompter) Notify(ctx context.Context, message string, severity core.Severity) {
	ex := exchangeFrom(ctx)
	if ex == nil {
		return
	}
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.notices = append(ex.notices, Notice{Severity: severity, Message: message})
}

type dialogEntry struct {
	dialog    *core.PrintDialog
	createdAt time.Time
}

type DialogHandler struct {
	session   *core.SessionManager
	collector *core.BatchCollector
	maxQty    int
	logger    *zap.Logger

	mu      sync.Mutex
	dialogs map[string]*dialogEntry
}

type CreateDialogRequest struct {
	Sources      []core.BatchSource `json:"sources"`
	ConfirmLarge bool               `json:"confirm_large"`
}

type UpdateQuantitiesRequest struct {
	Quantities map[string]int `json:"quantities" binding:"required"`
}

type SetDialogPrinterRequest struct {
	Printer string `json:"printer" binding:"required"`
}

type PrintRequest struct {
	Confirm bool `json:"confirm"`
}

type DialogResponse struct {
	ID      string           `json:"id"`
	Printer string           `json:"printer"`
	Total   int              `json:"total"`
	Items   []core.PrintItem `json:"items"`
	Notices []Notice         `json:"notices,omitempty"`
}

type PrintResponse struct {
	JobUUID string   `json:"job_uuid"`
	Printer string   `json:"printer"`
	Labels  int      `json:"labels"`
	Status  string   `json:"status"`
	Notices []Notice `json:"notices,omitempty"`
}

func NewDialogHandler(session *core.SessionManager, collector *core.BatchCollector, maxQty int, logger *zap.Logger) *DialogHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DialogHandler{
		session:   session,
		collector: collector,
		maxQty:    maxQty,
		logger:    logger,
		dialogs:   make(map[string]*dialogEntry),
	}
}

func (h *DialogHandler) CreateDialog(c *gin.Context) {
	var req CreateDialogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	ex := &exchange{confirm: req.ConfirmLarge}
	ctx := withExchange(operatorContext(c).Request.Context(), ex)

	dialog := core.NewPrintDialog(h.session, h.collector, httpPrompter{}, h.maxQty, h.logger)
	if err := dialog.Prepare(ctx, req.Sources); err != nil {
		h.respondDialogError(c, ex, err)
		return
	}

	id := uuid.NewString()
	h.mu.Lock()
	h.expireLocked(time.Now())
	h.dialogs[id] = &dialogEntry{dialog: dialog, createdAt: time.Now()}
	h.mu.Unlock()

	c.JSON(http.StatusCreated, dialogResponse(id, dialog, ex.collectedNotices()))
}

func (h *DialogHandler) GetDialog(c *gin.Context) {
	id, dialog, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, dialogResponse(id, dialog, nil))
}

func (h *DialogHandler) UpdateQuantities(c *gin.Context) {
	id, dialog, ok := h.lookup(c)
	if !ok {
		return
	}

	var req UpdateQuantitiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	if err := dialog.SetQuantities(req.Quantities); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dialogResponse(id, dialog, nil))
}

func (h *DialogHandler) IncrementItem(c *gin.Context) {
	h.stepItem(c, (*core.PrintDialog).Increment)
}

func (h *DialogHandler) DecrementItem(c *gin.Context) {
	h.stepItem(c, (*core.PrintDialog).Decrement)
}

func (h *DialogHandler) stepItem(c *gin.Context, step func(*core.PrintDialog, string) (int, error)) {
	id, dialog, ok := h.lookup(c)
	if !ok {
		return
	}
	if _, err := step(dialog, c.Param("code")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dialogResponse(id, dialog, nil))
}

func (h *DialogHandler) SetPrinter(c *gin.Context) {
	id, dialog, ok := h.lookup(c)
	if !ok {
		return
	}

	var req SetDialogPrinterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	if err := dialog.SetPrinter(c.Request.Context(), req.Printer); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dialogResponse(id, dialog, nil))
}

// Print submits the dialog. The request must carry confirm=true; without it
// the answer is 409 with the confirmation prompt as message.
func (h *DialogHandler) Print(c *gin.Context) {
	id, dialog, ok := h.lookup(c)
	if !ok {
		return
	}

	var req PrintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	ex := &exchange{confirm: req.Confirm}
	ctx := withExchange(operatorContext(c).Request.Context(), ex)

	rec, err := dialog.Print(ctx)
	if err != nil {
		h.respondDialogError(c, ex, err)
		return
	}

	h.mu.Lock()
	delete(h.dialogs, id)
	h.mu.Unlock()

	c.JSON(http.StatusOK, PrintResponse{
		JobUUID: rec.UUID,
		Printer: rec.Printer,
		Labels:  rec.Labels,
		Status:  string(rec.Status),
		Notices: ex.collectedNotices(),
	})
}

func (h *DialogHandler) CloseDialog(c *gin.Context) {
	id, dialog, ok := h.lookup(c)
	if !ok {
		return
	}
	if err := dialog.Close(); err != nil {
		respondError(c, err)
		return
	}

	h.mu.Lock()
	delete(h.dialogs, id)
	h.mu.Unlock()

	c.Status(http.StatusNoContent)
}

func (h *DialogHandler) lookup(c *gin.Context) (string, *core.PrintDialog, bool) {
	id := c.Param("id")
	h.mu.Lock()
	entry, ok := h.dialogs[id]
	h.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Print dialog not found",
		})
		return "", nil, false
	}
	return id, entry.dialog, true
}

// expireLocked drops dialogs that were abandoned without being closed.
func (h *DialogHandler) expireLocked(now time.Time) {
	for id, entry := range h.dialogs {
		if now.Sub(entry.createdAt) > dialogTTL && !entry.dialog.IsPrinting() {
			delete(h.dialogs, id)
		}
	}
}

func (h *DialogHandler) respondDialogError(c *gin.Context, ex *exchange, err error) {
	if core.Classify(err) == core.KindCancelled {
		if prompt := ex.lastPrompt(); prompt != "" && !ex.confirm {
			c.JSON(http.StatusConflict, ErrorResponse{
				Error:   "confirmation_required",
				Message: prompt,
			})
			return
		}
	}
	respondError(c, err)
}

func dialogResponse(id string, dialog *core.PrintDialog, notices []Notice) DialogResponse {
	items := dialog.Items()
	if items == nil {
		items = []core.PrintItem{}
	}
	return DialogResponse{
		ID:      id,
		Printer: dialog.Printer(),
		Total:   dialog.Total(),
		Items:   items,
		Notices: notices,
	}
}

func RegisterDialogRoutes(r *gin.RouterGroup, h *DialogHandler) {
	r.POST("/print-dialogs", h.CreateDialog)
	r.GET("/print-dialogs/:id", h.GetDialog)
	r.PUT("/print-dialogs/:id/quantities", h.UpdateQuantities)
	r.POST("/print-dialogs/:id/items/:code/increment", h.IncrementItem)
	r.POST("/print-dialogs/:id/items/:code/decrement", h.DecrementItem)
	r.PUT("/print-dialogs/:id/printer", h.SetPrinter)
	r.POST("/print-dialogs/:id/print", h.Print)
	r.DELETE("/print-dialogs/:id", h.CloseDialog)
}
