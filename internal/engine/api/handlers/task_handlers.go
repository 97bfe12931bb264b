package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/R3E-Network/r3e-faas-go/pkg/types"
)

const (
	defaultAcquireWait = 30 * time.Second
	maxAcquireWait     = 60 * time.Second
)

// AcquireTask is the long-poll suspension point of the pull protocol. The
// handler parks on the pool until a task arrives or the wait elapses; a
// client disconnect cancels the request context, which releases any lease
// granted in the delivery race.
func (h *Handler) AcquireTask(c *gin.Context) {
	var req types.AcquireTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("[AcquireTask] Error decoding request body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	wait := defaultAcquireWait
	if req.WaitMs > 0 {
		wait = time.Duration(req.WaitMs) * time.Millisecond
		if wait > maxAcquireWait {
			wait = maxAcquireWait
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), wait)
	defer cancel()

	task, ok := h.engine.AcquireTask(ctx, req.UID, req.FIDHint)
	if !ok {
		// Empty sentinel: the deadline elapsed with nothing to hand out.
		c.JSON(http.StatusOK, types.AcquireTaskResponse{Found: false})
		return
	}

	h.logger.Debugf("[AcquireTask] Task %s leased to worker %d", task.TaskID, task.UID)
	c.JSON(http.StatusOK, types.AcquireTaskResponse{Found: true, Task: &task})
}

func (h *Handler) AckTask(c *gin.Context) {
	taskID := c.Param("id")

	var req types.AckTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("[AckTask] Error decoding request body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Outcome.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown outcome"})
		return
	}

	if err := h.engine.AckTask(c.Request.Context(), taskID, req); err != nil {
		h.abortWithError(c, "AckTask", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "acknowledged"})
}

// ReleaseWorker returns all of a disconnecting worker's leases to the pool
// without waiting for the lease timeout.
func (h *Handler) ReleaseWorker(c *gin.Context) {
	var req struct {
		UID uint64 `json:"uid" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	released := h.engine.ReleaseWorker(req.UID)
	h.logger.Infof("[ReleaseWorker] Worker %d released %d leases", req.UID, released)
	c.JSON(http.StatusOK, gin.H{"released": released})
}

// SubmitEvent is the direct-request intake. The payload is queued to the
// request adapter; duplicate request ids are dropped at event registration.
func (h *Handler) SubmitEvent(c *gin.Context) {
	var req types.SubmitEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Errorf("[SubmitEvent] Error decoding request body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	eventID, err := h.engine.SubmitRequest(c.Request.Context(), req.ID, req.Payload)
	if err != nil {
		h.abortWithError(c, "SubmitEvent", err)
		return
	}
	c.JSON(http.StatusAccepted, types.SubmitEventResponse{EventID: eventID, Status: "accepted"})
}

// ListEvents queries the retained event log by trigger kind and unix-second
// time range. A zero "to" means now.
func (h *Handler) ListEvents(c *gin.Context) {
	kind := types.TriggerKind(c.Query("trigger"))
	if !kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown trigger kind"})
		return
	}

	from, _ := strconv.ParseUint(c.DefaultQuery("from", "0"), 10, 64)
	to, _ := strconv.ParseUint(c.DefaultQuery("to", "0"), 10, 64)
	if to == 0 {
		to = uint64(time.Now().Unix())
	}

	events, err := h.engine.Registry().GetEventsByTrigger(c.Request.Context(), kind, from, to)
	if err != nil {
		h.abortWithError(c, "ListEvents", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
