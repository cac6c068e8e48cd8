package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// OrgContextKey Handler 层取组织 ID 用
const OrgContextKey = "orgID"

// OrgAuth 把 X-API-Key 解析成组织 ID 放进 Context。
// 解析出来的组织 ID 会显式传给每一个 Service 调用，
// Service 层没有任何隐式的"当前组织"。
func OrgAuth(resolve func(ctx context.Context, apiKey string) (uint, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "缺少 X-API-Key"})
			return
		}
		orgID, err := resolve(c.Request.Context(), apiKey)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "API Key 无效"})
			return
		}
		c.Set(OrgContextKey, orgID)
		c.Next()
	}
}
