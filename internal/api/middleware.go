package api

import (
	"net/http"
	"strings"

	"mnfit/studio-api/internal/domain"
	"mnfit/studio-api/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Constants for context keys
const (
	ContextPrincipalKey = "principal"
	ContextRequestIDKey = "requestID"

	RequestIDHeader = "X-Request-ID"
)

// RequestIDMiddleware tags every request with an id, reusing the caller's X-Request-ID if sent.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(ContextRequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// AuthMiddleware creates a Gin middleware for JWT authentication.
// The role is loaded from the user record on every request, so a role change
// made by an admin applies to tokens that were issued before it.
func AuthMiddleware(authService service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWithError(c, http.StatusUnauthorized, "Authorization header is missing")
			return
		}

		// Expecting "Bearer <token>"
		parts := strings.Fields(authHeader)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			abortWithError(c, http.StatusUnauthorized, "Authorization header format must be Bearer {token}")
			return
		}

		userID, err := authService.ParseToken(parts[1])
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		principal, err := authService.ResolvePrincipal(c.Request.Context(), userID)
		if err != nil {
			respondError(c, err)
			return
		}

		c.Set(ContextPrincipalKey, principal)
		c.Next()
	}
}

// RoleMiddleware creates middleware to check if user has the required role(s).
// Must run AFTER AuthMiddleware.
func RoleMiddleware(allowedRoles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := getPrincipal(c)
		if !ok {
			abortWithError(c, http.StatusUnauthorized, "unauthenticated")
			return
		}

		for _, allowed := range allowedRoles {
			if principal.Role == allowed {
				c.Next()
				return
			}
		}
		abortWithError(c, http.StatusForbidden, "forbidden")
	}
}

// getPrincipal returns the caller set by AuthMiddleware.
func getPrincipal(c *gin.Context) (domain.Principal, bool) {
	raw, exists := c.Get(ContextPrincipalKey)
	if !exists {
		return domain.Principal{}, false
	}
	principal, ok := raw.(domain.Principal)
	return principal, ok
}

// mustPrincipal aborts with 401 when no principal is present.
func mustPrincipal(c *gin.Context) (domain.Principal, bool) {
	principal, ok := getPrincipal(c)
	if !ok {
		abortWithError(c, http.StatusUnauthorized, "unauthenticated")
	}
	return principal, ok
}
