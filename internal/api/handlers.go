package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/spigell/talent-outreach/internal/followup"
	"github.com/spigell/talent-outreach/internal/matching"
)

const healthTimeout = 2 * time.Second

type handler struct {
	matcher   Matcher
	scheduler Scheduler
	db        Pinger
	logger    *zap.Logger
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handler) match(c *gin.Context) {
	var req matching.Request
	if !bind(c, &req) {
		return
	}

	resp, err := h.matcher.Run(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handler) schedule(c *gin.Context) {
	var req followup.Request
	if !bind(c, &req) {
		return
	}

	resp, err := h.scheduler.Run(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handler) health(c *gin.Context) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// bind decodes a JSON body. An empty body is an empty request.
func bind(c *gin.Context, target any) bool {
	if err := c.ShouldBindJSON(target); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return false
	}
	return true
}

func (h *handler) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	if matching.IsValidation(err) || followup.IsValidation(err) {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
}
