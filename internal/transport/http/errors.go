package http

import (
	"errors"
	"net/http"

	"live-quiz-service/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type errorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// classify maps a domain error category onto an HTTP status and a short machine code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized"
	case errors.Is(err, domain.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, domain.ErrDuplicateSubmission):
		return http.StatusConflict, "duplicate_submission"
	case errors.Is(err, domain.ErrTransientStore):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func toErrorPayload(err error) errorPayload {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	return errorPayload{Message: msg, Code: code}
}

func writeError(c *gin.Context, err error) {
	status, _ := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": toErrorPayload(err)})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": errorPayload{Message: msg, Code: "invalid_argument"}})
}
