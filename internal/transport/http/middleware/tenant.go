package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"vextral/internal/pkg/tenanttoken"
	"vextral/internal/transport/http/response"
)

const ContextTenantIDKey = "tenant_id"

// Tenant resolves the tenant a request acts for. A Bearer token names the
// tenant explicitly; without one the request falls back to the configured
// default tenant. A present but invalid token is rejected rather than
// silently downgraded.
func Tenant(secret, defaultTenant string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			c.Set(ContextTenantIDKey, defaultTenant)
			c.Next()
			return
		}

		const prefix = "Bearer "
		if !strings.HasPrefix(authHeader, prefix) {
			response.Error(c, 401, response.CodeUnauthorized, "invalid authorization scheme")
			c.Abort()
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
		tenantID, err := tenanttoken.Parse(secret, token)
		if err != nil {
			response.Error(c, 401, response.CodeUnauthorized, "invalid or expired tenant token")
			c.Abort()
			return
		}

		c.Set(ContextTenantIDKey, tenantID)
		c.Next()
	}
}

// TenantID returns the tenant resolved by the Tenant middleware.
func TenantID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ContextTenantIDKey)
	if !ok {
		return "", false
	}
	tenantID, ok := v.(string)
	return tenantID, ok && tenantID != ""
}
