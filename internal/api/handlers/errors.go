package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/labelspool/internal/api/middleware"
	"github.com/orrn/labelspool/internal/core"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var kindStatus = map[core.ErrorKind]int{
	core.KindNothingToPrint:    http.StatusUnprocessableEntity,
	core.KindBridgeUnavailable: http.StatusServiceUnavailable,
	core.KindNoPrinter:         http.StatusNotFound,
	core.KindRender:            http.StatusUnprocessableEntity,
	core.KindCancelled:         http.StatusConflict,
	core.KindInProgress:        http.StatusConflict,
	core.KindInvalid:           http.StatusBadRequest,
	core.KindOther:             http.StatusInternalServerError,
}

// respondError writes err with the status of its kind and the operator
// message as body.
func respondError(c *gin.Context, err error) {
	kind := core.Classify(err)
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	c.Error(err)
	c.JSON(status, ErrorResponse{
		Error:   string(kind),
		Message: core.OperatorMessage(err),
	})
}

// operatorContext carries the requesting operator into the core.
func operatorContext(c *gin.Context) *gin.Context {
	name := c.GetString(middleware.ContextOperator)
	if name == "" {
		name = c.GetHeader("X-Operator")
	}
	c.Request = c.Request.WithContext(core.WithOperator(c.Request.Context(), name))
	return c
}
