package api

import (
	"errors"
	"log"
	"net/http"

	"mnfit/studio-api/internal/service"

	"github.com/gin-gonic/gin"
)

// Helper to return JSON error response and abort request
func abortWithError(c *gin.Context, code int, message string) {
	c.AbortWithStatusJSON(code, gin.H{"error": message})
}

func statusForKind(kind service.Kind) int {
	switch kind {
	case service.KindInvalidInput:
		return http.StatusBadRequest
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindConflict:
		return http.StatusConflict
	case service.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// respondError maps a service error to its HTTP status. Internal details are logged, never returned.
func respondError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrAuthenticationFailed) || errors.Is(err, service.ErrUnauthenticated) {
		abortWithError(c, http.StatusUnauthorized, err.Error())
		return
	}

	status := statusForKind(service.KindOf(err))
	if status == http.StatusInternalServerError {
		log.Printf("ERROR: %s %s [%s]: %v", c.Request.Method, c.FullPath(), c.GetString(ContextRequestIDKey), err)
	}

	body := gin.H{"error": service.PublicMessage(err)}
	var se *service.Error
	if errors.As(err, &se) && se.Kind != service.KindInternal {
		body["code"] = se.Code
	}
	c.AbortWithStatusJSON(status, body)
}
