package router

import (
	"github.com/gin-gonic/gin"

	"podium.app/arena/internal/http/handler"
)

func MatchRouter(group *gin.RouterGroup, h *handler.MatchHandler) {
	group.POST("/:matchId/start", h.Start)
	group.POST("/:matchId/abort", h.Abort)
}
