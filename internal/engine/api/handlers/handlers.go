package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/R3E-Network/r3e-faas-go/internal/engine"
	faaserrors "github.com/R3E-Network/r3e-faas-go/pkg/errors"
	"github.com/R3E-Network/r3e-faas-go/pkg/logging"
)

type Handler struct {
	engine *engine.Engine
	logger logging.Logger
}

func NewHandler(e *engine.Engine, logger logging.Logger) *Handler {
	return &Handler{engine: e, logger: logger}
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, faaserrors.ErrRegistrationInvalid):
		return http.StatusBadRequest
	case errors.Is(err, faaserrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, faaserrors.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, faaserrors.ErrLeaseExpired):
		return http.StatusGone
	case errors.Is(err, faaserrors.ErrResourceExceeded):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) abortWithError(c *gin.Context, tag string, err error) {
	h.logger.Errorf("[%s] %v", tag, err)
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Health())
}
