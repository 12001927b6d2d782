package router

import (
	"github.com/gin-gonic/gin"

	"podium.app/arena/internal/http/handler"
	"podium.app/arena/internal/store"
)

type Handlers struct {
	Matches *handler.MatchHandler
	Judging *handler.JudgingHandler
	Events  *handler.EventsHandler
}

func SetupRoutes(router *gin.Engine, users store.UserStore, h Handlers) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	v1.Use(handler.AuthMiddleware(users))
	{
		divisions := v1.Group("/divisions/:divisionId")
		MatchRouter(divisions.Group("/matches"), h.Matches)
		JudgingRouter(divisions.Group("/sessions"), h.Judging)
		divisions.GET("/events", h.Events.Subscribe)
	}
}
