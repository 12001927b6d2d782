package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"podium.app/arena/internal/http/dto"
	"podium.app/arena/internal/service"
)

type JudgingHandler struct {
	judgingService *service.JudgingService
}

func NewJudgingHandler(judgingService *service.JudgingService) *JudgingHandler {
	return &JudgingHandler{judgingService: judgingService}
}

func (h *JudgingHandler) Start(c *gin.Context) {
	ctx := c.Request.Context()
	divisionID := c.Param("divisionId")
	sessionID := c.Param("sessionId")

	result, err := h.judgingService.Start(ctx, currentUser(c), divisionID, sessionID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.StartResponse{
		StartTime:  result.StartTime,
		StartDelta: result.StartDelta,
	})
}

func (h *JudgingHandler) Abort(c *gin.Context) {
	ctx := c.Request.Context()
	divisionID := c.Param("divisionId")
	sessionID := c.Param("sessionId")

	if err := h.judgingService.Abort(ctx, currentUser(c), divisionID, sessionID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "aborted"})
}
