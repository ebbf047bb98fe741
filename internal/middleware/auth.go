package middleware

import (
	"context"
	"errors"
	"quiz_backend/internal/model"
	"quiz_backend/internal/repository"
	"quiz_backend/internal/util"
	"quiz_backend/pkg/logger"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func bearerToken(c *gin.Context) string {
	tokenString := ""
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		tokenString = strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}

	if tokenString == "" {
		tokenString = c.Query("token")
	}
	return tokenString
}

func AuthMiddleware(provider IdentityProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		claims, err := provider.Verify(c.Request.Context(), tokenString)
		if err != nil {
			logger.Log.Debug("Token verification failed", zap.Error(err))
			util.Unauthorized(c)
			c.Abort()
			return
		}

		c.Set(util.ContextUser, claims)
		c.Next()
	}
}

// TryAuth 有凭证时解析身份，失败不拦截
func TryAuth(provider IdentityProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenString := bearerToken(c); tokenString != "" {
			if claims, err := provider.Verify(c.Request.Context(), tokenString); err == nil {
				c.Set(util.ContextUser, claims)
			}
		}
		c.Next()
	}
}

// UserLookup 角色校验所需的目录查询
type UserLookup interface {
	FindByUID(ctx context.Context, uid string) (*model.User, error)
}

// RoleMiddleware 以用户目录中的角色为准（不信任 token 中的 role 声明）。
// 目录中不存在返回 404，角色不符返回 403，管理员直接放行。
func RoleMiddleware(users UserLookup, roles ...model.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := util.GetUserFromContext(c)
		if claims == nil {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		user, err := users.FindByUID(c.Request.Context(), claims.UID)
		if errors.Is(err, repository.ErrNotFound) {
			util.RespondError(c, util.NotFoundError("user not found"))
			c.Abort()
			return
		}
		if err != nil {
			util.LogInternalError(c, err)
			c.Abort()
			return
		}

		hasRole := user.Role == model.Admin
		for _, role := range roles {
			if user.Role == role {
				hasRole = true
				break
			}
		}

		if !hasRole {
			util.Forbidden(c)
			c.Abort()
			return
		}

		c.Set(util.ContextDirectoryUser, user)
		c.Next()
	}
}
