// Package middleware 提供 HTTP 中间件
package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	apperrors "contentforge-ai-api/pkg/errors"
	"contentforge-ai-api/pkg/logger"
)

// Recovery 捕获处理器 panic，记录堆栈并返回 500
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			logger.Error(c.Request.Context(), "panic recovered",
				fmt.Errorf("%v", r),
				"stack", string(debug.Stack()),
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)

			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"code":    apperrors.CodeInternalError,
				"message": "internal server error",
			})
		}()

		c.Next()
	}
}
