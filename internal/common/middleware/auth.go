package middleware

import (
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	headerAPIKey  = "X-Api-Key"
	headerOwnerID = "X-Owner-Id"

	// CtxOwnerID is the gin context key holding the authenticated owner id.
	CtxOwnerID = "owner_id"
)

// RequireAPIKey authenticates the admin collaborator by its shared API key and
// binds the acting owner id from the X-Owner-Id header into the context.
func RequireAPIKey(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(headerAPIKey)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: invalid API key"})
			return
		}

		ownerStr := c.GetHeader(headerOwnerID)
		if ownerStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: missing owner id"})
			return
		}
		ownerID, err := strconv.ParseInt(ownerStr, 10, 64)
		if err != nil || ownerID <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid owner id"})
			return
		}

		c.Set(CtxOwnerID, ownerID)
		c.Next()
	}
}

// OwnerID returns the authenticated owner id from the request context.
func OwnerID(c *gin.Context) int64 {
	if v, exists := c.Get(CtxOwnerID); exists {
		if id, ok := v.(int64); ok {
			return id
		}
	}
	return 0
}
