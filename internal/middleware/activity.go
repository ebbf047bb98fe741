package middleware

import (
	"context"
	"time"

	"quiz_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ActivityTracker interface {
	TouchLastActive(ctx context.Context, userID string)
}

// ActivityMiddleware 请求完成后记录目录用户的最近活跃时间
func ActivityMiddleware(tracker ActivityTracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		user := util.GetDirectoryUser(c)
		if user == nil {
			return
		}
		// 异步更新，不阻塞主流程
		go func(id string) {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			tracker.TouchLastActive(ctx, id)
		}(user.ID)
	}
}
