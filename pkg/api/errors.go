package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/deepresearch-labs/agent/pkg/apperrors"
	"github.com/deepresearch-labs/agent/pkg/queue"
)

// writeError maps a service-layer error to an HTTP response, logging
// anything unclassified rather than leaking it verbatim to the caller.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, queue.ErrQueueFull):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "queue is full, try again later"})
	case errors.Is(err, apperrors.ErrConfiguration):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "configuration error"})
	case errors.Is(err, apperrors.ErrCheckpointCorrupt):
		// Load wraps both "no such row" and "checksum mismatch" in the
		// same sentinel (pkg/checkpoint/store.go); either way the session
		// the caller asked for can't be returned, so 404 is the honest
		// response for this surface.
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
	default:
		slog.Error("api: unhandled request error", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}
