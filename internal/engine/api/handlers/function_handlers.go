package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/R3E-Network/r3e-faas-go/internal/engine/metrics"
	"github.com/R3E-Network/r3e-faas-go/pkg/types"
)

func (h *Handler) RegisterFunction(c *gin.Context) {
	var req types.RegisterFunctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("[RegisterFunction] Error decoding request body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fn, err := h.engine.Registry().RegisterFunction(c.Request.Context(), req)
	if err != nil {
		h.abortWithError(c, "RegisterFunction", err)
		return
	}

	metrics.RegisteredFunctions.Inc()
	h.logger.Infof("[RegisterFunction] Registered function %d (%s)", fn.ID, fn.Name)
	c.JSON(http.StatusCreated, types.RegisterFunctionResponse{ID: fn.ID, Version: fn.Version})
}

func (h *Handler) GetFunction(c *gin.Context) {
	id, ok := h.functionID(c)
	if !ok {
		return
	}

	fn, err := h.engine.Registry().GetFunction(c.Request.Context(), id)
	if err != nil {
		h.abortWithError(c, "GetFunction", err)
		return
	}
	c.JSON(http.StatusOK, fn)
}

func (h *Handler) UpdateFunction(c *gin.Context) {
	id, ok := h.functionID(c)
	if !ok {
		return
	}

	var req types.UpdateFunctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("[UpdateFunction] Error decoding request body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fn, err := h.engine.Registry().UpdateFunction(c.Request.Context(), id, req)
	if err != nil {
		h.abortWithError(c, "UpdateFunction", err)
		return
	}

	h.logger.Infof("[UpdateFunction] Function %d now at version %d", fn.ID, fn.Version)
	c.JSON(http.StatusOK, types.UpdateFunctionResponse{ID: fn.ID, Version: fn.Version})
}

func (h *Handler) DeleteFunction(c *gin.Context) {
	id, ok := h.functionID(c)
	if !ok {
		return
	}

	if err := h.engine.Registry().DeleteFunction(c.Request.Context(), id); err != nil {
		h.abortWithError(c, "DeleteFunction", err)
		return
	}
	metrics.RegisteredFunctions.Dec()
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *Handler) ListFunctions(c *gin.Context) {
	pageSize, _ := strconv.Atoi(c.Query("page_size"))
	req := types.ListFunctionsRequest{
		TriggerType: types.TriggerType(c.Query("trigger_type")),
		NamePrefix:  c.Query("name_prefix"),
		PageToken:   c.Query("page_token"),
		PageSize:    pageSize,
	}

	resp, err := h.engine.Registry().ListFunctions(c.Request.Context(), req)
	if err != nil {
		h.abortWithError(c, "ListFunctions", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetFunctionCode serves the worker's AcquireFunc call. The version doubles
// as the ETag; a matching If-None-Match short-circuits to 304 so warm
// workers skip the payload.
func (h *Handler) GetFunctionCode(c *gin.Context) {
	id, ok := h.functionID(c)
	if !ok {
		return
	}

	var version uint64
	if raw := c.Query("version"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid version"})
			return
		}
		version = parsed
	}

	code, err := h.engine.Registry().GetFunctionCode(c.Request.Context(), id, version)
	if err != nil {
		h.abortWithError(c, "GetFunctionCode", err)
		return
	}
	fn, err := h.engine.Registry().GetFunction(c.Request.Context(), id)
	if err != nil {
		h.abortWithError(c, "GetFunctionCode", err)
		return
	}

	etag := `"v` + strconv.FormatUint(code.Version, 10) + `"`
	if c.GetHeader("If-None-Match") == etag {
		c.Status(http.StatusNotModified)
		return
	}
	c.Header("ETag", etag)
	c.JSON(http.StatusOK, types.AcquireFuncResponse{
		FID:         code.FID,
		Version:     code.Version,
		Code:        code.Code,
		Resources:   fn.Resources,
		Permissions: fn.Permissions,
	})
}

func (h *Handler) ListExecutions(c *gin.Context) {
	id, ok := h.functionID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	records, err := h.engine.Registry().ListExecutions(c.Request.Context(), id, limit)
	if err != nil {
		h.abortWithError(c, "ListExecutions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"executions": records})
}

func (h *Handler) functionID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid function id"})
		return 0, false
	}
	return id, true
}
