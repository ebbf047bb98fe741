package app

import (
	"quiz_backend/docs"
	"quiz_backend/internal/middleware"
	"quiz_backend/internal/model"
	"quiz_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, provider middleware.IdentityProvider) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c, provider)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(provider), middleware.ActivityMiddleware(a.services.user))
	{
		// 学生/通用 授权接口
		a.registerStudentRoutes(authGroup, c)

		// 教师相关接口
		a.registerInstructorRoutes(authGroup, c, repos)

		// 管理员相关接口
		a.registerAdminRoutes(authGroup, c, repos)
	}
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers, provider middleware.IdentityProvider) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/auth/register", c.auth.Register)
		public.POST("/auth/login", c.auth.Login)

		public.GET("/quizzes", c.quiz.ListQuizzes)
		// 可选认证：教师/创建者可带 includeAnswers 查看答案
		public.GET("/quizzes/:id", middleware.TryAuth(provider), c.quiz.GetQuiz)
	}
}

func (a *App) registerStudentRoutes(rg *gin.RouterGroup, c *controllers) {
	rg.POST("/quizzes/:id/start", c.attempt.StartAttempt)
	rg.PUT("/quizzes/attempts/:attemptId/submit", c.attempt.SubmitAttempt)
	rg.GET("/quizzes/my/attempts", c.attempt.GetMyAttempts)
}

func (a *App) registerInstructorRoutes(rg *gin.RouterGroup, c *controllers, repos *repositories) {
	instructor := middleware.RoleMiddleware(repos.user, model.Instructor)

	rg.POST("/quizzes", instructor, c.quiz.CreateQuiz)
	rg.PUT("/quizzes/:id", instructor, c.quiz.UpdateQuiz)
	rg.GET("/quizzes/:id/results", instructor, c.attempt.GetQuizResults)
}

func (a *App) registerAdminRoutes(rg *gin.RouterGroup, c *controllers, repos *repositories) {
	admin := middleware.RoleMiddleware(repos.user, model.Admin)

	rg.DELETE("/quizzes/:id", admin, c.quiz.DeleteQuiz)
	rg.DELETE("/quizzes/:id/attempts", admin, c.quiz.PurgeAttempts)
}
