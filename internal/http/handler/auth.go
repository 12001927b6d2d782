package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"podium.app/arena/internal/http/dto"
	"podium.app/arena/internal/model"
	"podium.app/arena/internal/store"
)

const userContextKey = "currentUser"

// AuthMiddleware resolves the bearer token to a user and stores it on the
// request. Requests without a token continue anonymously; the services turn
// a nil user into an unauthorized error. A token that resolves to nothing is
// rejected here.
func AuthMiddleware(users store.UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{
				Error: "malformed authorization header",
				Code:  "unauthorized",
			})
			return
		}

		user, err := users.GetByToken(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{
					Error: "invalid or expired token",
					Code:  "unauthorized",
				})
				return
			}
			slog.ErrorContext(c.Request.Context(), "failed to resolve token", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, dto.ErrorResponse{
				Error: "internal error",
				Code:  "internal",
			})
			return
		}

		c.Set(userContextKey, user)
		c.Next()
	}
}

// currentUser returns the authenticated user, or nil for anonymous requests.
func currentUser(c *gin.Context) *model.User {
	v, ok := c.Get(userContextKey)
	if !ok {
		return nil
	}
	user, _ := v.(*model.User)
	return user
}
