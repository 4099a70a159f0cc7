package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-go-golems/vizthinker/pkg/responder"
	"github.com/go-go-golems/vizthinker/pkg/store"
	"github.com/go-go-golems/vizthinker/pkg/tree"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var refErr *tree.ReferentialError
	switch {
	case errors.As(err, &refErr):
		if refErr.Resource == "message" {
			return http.StatusUnprocessableEntity
		}
		return http.StatusNotFound
	case errors.Is(err, tree.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, tree.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, tree.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, store.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, responder.ErrMissingAPIKey), errors.Is(err, responder.ErrUnknownProvider):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	logger := zerolog.Ctx(c.Request.Context())
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Request failed")
	} else {
		logger.Debug().Err(err).Int("status", status).Msg("Request rejected")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
