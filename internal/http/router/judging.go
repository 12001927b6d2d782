package router

import (
	"github.com/gin-gonic/gin"

	"podium.app/arena/internal/http/handler"
)

func JudgingRouter(group *gin.RouterGroup, h *handler.JudgingHandler) {
	group.POST("/:sessionId/start", h.Start)
	group.POST("/:sessionId/abort", h.Abort)
}
