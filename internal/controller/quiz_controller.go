package controller

import (
	"quiz_backend/internal/service"
	"quiz_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type QuizController struct {
	QuizService *service.QuizService
	UserService *service.UserService
	PageSize    int
	MaxPageSize int
}

func NewQuizController(quizService *service.QuizService, userService *service.UserService, pageSize, maxPageSize int) *QuizController {
	return &QuizController{
		QuizService: quizService,
		UserService: userService,
		PageSize:    pageSize,
		MaxPageSize: maxPageSize,
	}
}

// @Summary 测验列表
// @Description 仅返回启用中的测验，题目不含答案
// @Tags 测验
// @Produce json
// @Param courseId query string false "课程ID"
// @Param createdBy query string false "创建者ID"
// @Param isPublished query bool false "是否已发布"
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量" default(20)
// @Success 200 {object} util.Response{data=service.QuizPage}
// @Router /api/quizzes [get]
func (c *QuizController) ListQuizzes(ctx *gin.Context) {
	page, limit := util.ParsePage(ctx.Query("page"), ctx.Query("limit"), c.PageSize, c.MaxPageSize)
	query := service.ListQuizzesQuery{
		CourseID:  ctx.Query("courseId"),
		CreatedBy: ctx.Query("createdBy"),
		Page:      page,
		Limit:     limit,
	}
	if v, ok := ctx.GetQuery("isPublished"); ok {
		published := util.ParseBool(v)
		query.IsPublished = &published
	}

	result, err := c.QuizService.ListQuizzes(ctx.Request.Context(), query)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary 测验详情
// @Description includeAnswers=true 且调用者为教师、管理员或创建者时返回答案
// @Tags 测验
// @Produce json
// @Param id path string true "测验ID"
// @Param includeAnswers query bool false "是否包含答案"
// @Success 200 {object} util.Response{data=service.QuizView}
// @Failure 404 {object} util.Response
// @Router /api/quizzes/{id} [get]
func (c *QuizController) GetQuiz(ctx *gin.Context) {
	includeAnswers := util.ParseBool(ctx.Query("includeAnswers"))

	var caller = util.GetDirectoryUser(ctx)
	if includeAnswers && caller == nil {
		if claims := util.GetUserFromContext(ctx); claims != nil {
			u, err := c.UserService.Lookup(ctx.Request.Context(), claims.UID)
			if err == nil {
				caller = u
			}
		}
	}

	view, err := c.QuizService.GetQuiz(ctx.Request.Context(), ctx.Param("id"), caller, includeAnswers)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// @Summary 创建测验
// @Tags 测验
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.QuizCreateRequest true "测验信息"
// @Success 201 {object} util.Response{data=service.QuizView}
// @Failure 400 {object} util.Response
// @Failure 403 {object} util.Response
// @Router /api/quizzes [post]
func (c *QuizController) CreateQuiz(ctx *gin.Context) {
	user := util.GetDirectoryUser(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.QuizCreateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, bindingMessage(err))
		return
	}

	view, err := c.QuizService.CreateQuiz(ctx.Request.Context(), user, req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, view)
}

// @Summary 更新测验
// @Description 仅创建者或管理员；修改题目会重算总分，已有答题记录不会重新判分
// @Tags 测验
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "测验ID"
// @Param body body service.QuizUpdateRequest true "需要更新的字段"
// @Success 200 {object} util.Response{data=service.QuizView}
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/quizzes/{id} [put]
func (c *QuizController) UpdateQuiz(ctx *gin.Context) {
	user := util.GetDirectoryUser(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.QuizUpdateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, bindingMessage(err))
		return
	}

	view, err := c.QuizService.UpdateQuiz(ctx.Request.Context(), user, ctx.Param("id"), req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// @Summary 删除测验（软删除）
// @Tags 测验
// @Produce json
// @Security BearerAuth
// @Param id path string true "测验ID"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/quizzes/{id} [delete]
func (c *QuizController) DeleteQuiz(ctx *gin.Context) {
	if err := c.QuizService.DeleteQuiz(ctx.Request.Context(), ctx.Param("id")); err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"message": "Quiz deleted successfully"})
}

// @Summary 清空测验的全部答题记录
// @Description 管理员操作，物理删除
// @Tags 测验
// @Produce json
// @Security BearerAuth
// @Param id path string true "测验ID"
// @Success 200 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/quizzes/{id}/attempts [delete]
func (c *QuizController) PurgeAttempts(ctx *gin.Context) {
	deleted, err := c.QuizService.PurgeAttempts(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"deleted": deleted})
}
