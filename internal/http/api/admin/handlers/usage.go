package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/teslabridge/quotaserver/internal/usage"
)

// UsageHandler handles usage event endpoints.
type UsageHandler struct {
	recorder *usage.Recorder
}

// NewUsageHandler constructs a UsageHandler.
func NewUsageHandler(recorder *usage.Recorder) *UsageHandler {
	return &UsageHandler{recorder: recorder}
}

// List returns recent usage events, optionally filtered by user id.
func (h *UsageHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	events, errList := h.recorder.List(c.Request.Context(), c.Query("userId"), limit)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query usage events failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
