package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/user/llm-proxy-go/internal/models"
	"github.com/user/llm-proxy-go/internal/repository"
	"github.com/user/llm-proxy-go/internal/security"
)

const authenticatedAPIKeyKey = "api_key"

// ExtractAPIKey reads the ingress credential from x-api-key or an
// Authorization: Bearer header. x-api-key wins when both are present,
// matching spec.md §6's authentication rule.
func ExtractAPIKey(c *gin.Context) string {
	if key := c.GetHeader("x-api-key"); key != "" {
		return key
	}
	auth := c.GetHeader("Authorization")
	if rest, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return rest
	}
	return ""
}

// AuthenticatedAPIKey returns the *models.APIKey RequireAPIKey attached to
// the request context.
func AuthenticatedAPIKey(c *gin.Context) *models.APIKey {
	v, ok := c.Get(authenticatedAPIKeyKey)
	if !ok {
		return nil
	}
	k, _ := v.(*models.APIKey)
	return k
}

// RequireAPIKey authenticates an ingress proxy request against the
// APIKeyRepository. Missing/invalid/inactive keys render spec.md §6's
// 401 authentication_error envelope.
func RequireAPIKey(keyRepo repository.APIKeyRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := ExtractAPIKey(c)
		if raw == "" {
			abortUnauthenticated(c, "missing API key")
			return
		}

		key, err := keyRepo.FindByKeyHash(c.Request.Context(), security.HashAPIKey(raw))
		if err != nil {
			abortUnauthenticated(c, "failed to validate API key")
			return
		}
		if key == nil || !key.IsActive {
			abortUnauthenticated(c, "invalid or inactive API key")
			return
		}

		c.Set(authenticatedAPIKeyKey, key)

		detachedCtx := context.WithoutCancel(c.Request.Context())
		go func() {
			_ = keyRepo.UpdateLastUsed(detachedCtx, key.ID)
		}()

		c.Next()
	}
}

func abortUnauthenticated(c *gin.Context, message string) {
	c.AbortWithStatusJSON(401, gin.H{
		"error": gin.H{
			"type":    "authentication_error",
			"code":    "invalid_api_key",
			"message": message,
		},
	})
}

// RequireAdminToken authenticates the out-of-scope admin/auth route groups
// against the stateless token AdminAuth issues, per spec.md §6's admin
// authentication scheme.
func RequireAdminToken(adminAuth *security.AdminAuth) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !adminAuth.Enabled() {
			c.AbortWithStatusJSON(503, gin.H{
				"error": gin.H{
					"type":    "service_error",
					"code":    "admin_auth_not_configured",
					"message": "admin authentication is not configured",
				},
			})
			return
		}

		token := ExtractAPIKey(c) // same Bearer/x-api-key convention as ingress auth
		if token == "" || !adminAuth.VerifyToken(token) {
			c.AbortWithStatusJSON(401, gin.H{
				"error": gin.H{
					"type":    "authentication_error",
					"code":    "invalid_admin_token",
					"message": "missing or invalid admin token",
				},
			})
			return
		}
		c.Next()
	}
}
