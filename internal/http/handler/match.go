package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"podium.app/arena/internal/http/dto"
	"podium.app/arena/internal/service"
)

type MatchHandler struct {
	matchService *service.MatchService
}

func NewMatchHandler(matchService *service.MatchService) *MatchHandler {
	return &MatchHandler{matchService: matchService}
}

func (h *MatchHandler) Start(c *gin.Context) {
	ctx := c.Request.Context()
	divisionID := c.Param("divisionId")
	matchID := c.Param("matchId")

	result, err := h.matchService.Start(ctx, currentUser(c), divisionID, matchID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.StartResponse{
		StartTime:  result.StartTime,
		StartDelta: result.StartDelta,
	})
}

func (h *MatchHandler) Abort(c *gin.Context) {
	ctx := c.Request.Context()
	divisionID := c.Param("divisionId")
	matchID := c.Param("matchId")

	if err := h.matchService.Abort(ctx, currentUser(c), divisionID, matchID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "aborted"})
}
