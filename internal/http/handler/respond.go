package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"podium.app/arena/common/apperr"
	"podium.app/arena/internal/http/dto"
)

// writeError maps application error codes to HTTP statuses. Anything without
// a code is an internal error and its detail stays out of the response.
func writeError(c *gin.Context, err error) {
	code := apperr.CodeOf(err)

	status := http.StatusInternalServerError
	switch code {
	case apperr.CodeUnauthorized:
		status = http.StatusUnauthorized
	case apperr.CodeForbidden:
		status = http.StatusForbidden
	case apperr.CodeNotFound:
		status = http.StatusNotFound
	case apperr.CodeConflict:
		status = http.StatusConflict
	case apperr.CodeInvalidInput:
		status = http.StatusUnprocessableEntity
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "request failed", "error", err)
		message = "internal error"
	}

	c.JSON(status, dto.ErrorResponse{Error: message, Code: string(code)})
}
