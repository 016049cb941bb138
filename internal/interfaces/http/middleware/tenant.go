// Package middleware 提供 HTTP 中间件
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tenantstore/internal/store"
	"tenantstore/pkg/errors"
	"tenantstore/pkg/logger"
)

// GinTenantIDKey 活动租户 ID 在 Gin Context 中的键
const GinTenantIDKey = "tenant_id"

// Tenant 租户激活中间件
//
// 从请求头解析租户 ID，经门面激活租户上下文后才放行到数据面路由。
// 无论后续处理器正常返回还是 panic，defer 都会清除活动租户，
// 上下文不会泄漏到连接复用的下一个请求。
func Tenant(st *store.Store, headerName string) gin.HandlerFunc {
	if headerName == "" {
		headerName = "X-Tenant-ID"
	}

	return func(c *gin.Context) {
		tenantID := c.GetHeader(headerName)
		if tenantID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"code":    errors.CodeInvalidParam,
				"message": "missing tenant header",
			})
			return
		}

		ctx, err := st.SetTenantContext(c.Request.Context(), tenantID)
		if err != nil {
			appErr := errors.AsAppError(err)
			logger.Warn(c.Request.Context(), "tenant activation rejected", "status", appErr.HTTPStatus)
			c.AbortWithStatusJSON(appErr.HTTPStatus, gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
			})
			return
		}

		c.Set(GinTenantIDKey, tenantID)
		c.Request = c.Request.WithContext(ctx)

		defer func() {
			c.Request = c.Request.WithContext(st.ClearTenantContext(c.Request.Context()))
		}()

		c.Next()
	}
}

// ActiveTenantID 从 Gin Context 取出已激活的租户 ID
func ActiveTenantID(c *gin.Context) string {
	return c.GetString(GinTenantIDKey)
}
