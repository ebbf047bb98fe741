package controller

import (
	"context"
	"net/http"
	"quiz_backend/internal/util"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger 存储后端连通性检查
type Pinger func(ctx context.Context) error

type HealthController struct {
	Ping Pinger
}

func NewHealthController(ping Pinger) *HealthController {
	return &HealthController{Ping: ping}
}

// @Summary 健康检查
// @Description 检查服务状态
// @Tags 系统
// @Produce json
// @Success 200 {object} util.Response
// @Failure 503 {object} util.Response
// @Router /api/health [get]
func (c *HealthController) HealthCheck(ctx *gin.Context) {
	pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	// 检查数据库连接
	if err := c.Ping(pingCtx); err != nil {
		util.Error(ctx, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	util.Success(ctx, gin.H{
		"status": "ok",
		"components": gin.H{
			"database": "up",
		},
	})
}
