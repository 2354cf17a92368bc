package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"storecart/internal/domain"
)

type errorResponse struct {
	StatusCode int           `json:"statusCode"`
	Message    string        `json:"message"`
	Errors     []errorDetail `json:"errors"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorResponse{
		StatusCode: status,
		Message:    message,
		Errors:     []errorDetail{{Code: code, Message: message}},
	})
}

// respondError maps domain errors onto HTTP statuses. Anything unrecognised
// is attached to the gin context for the request log and reported as a
// generic 500.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(c, http.StatusNotFound, "ResourceNotFound", err.Error())
	case errors.Is(err, domain.ErrInvalidArgument):
		writeError(c, http.StatusBadRequest, "InvalidInput", err.Error())
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(c, http.StatusConflict, "DuplicateField", err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(c, http.StatusConflict, "ConcurrentModification", err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(c, http.StatusUnauthorized, "invalid_token", "invalid or expired token")
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "General", "internal server error")
	}
}
