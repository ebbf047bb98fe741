package controller

import (
	"quiz_backend/internal/model"
	"quiz_backend/internal/service"
	"quiz_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AttemptController struct {
	AttemptService *service.AttemptService
	PageSize       int
	MaxPageSize    int
}

func NewAttemptController(attemptService *service.AttemptService, pageSize, maxPageSize int) *AttemptController {
	return &AttemptController{
		AttemptService: attemptService,
		PageSize:       pageSize,
		MaxPageSize:    maxPageSize,
	}
}

type AnswerInput struct {
	QuestionID     string `json:"questionId" binding:"required"`
	SelectedOption string `json:"selectedOption"`
	TextAnswer     string `json:"textAnswer"`
}

// SubmitRequest isCorrect/pointsEarned 不接受客户端输入
type SubmitRequest struct {
	Answers []AnswerInput `json:"answers" binding:"dive"`
}

func (r SubmitRequest) toAnswers() []model.Answer {
	answers := make([]model.Answer, 0, len(r.Answers))
	for _, a := range r.Answers {
		answers = append(answers, model.Answer{
			QuestionID:     a.QuestionID,
			SelectedOption: a.SelectedOption,
			TextAnswer:     a.TextAnswer,
		})
	}
	return answers
}

// @Summary 开始答题
// @Description 超过最大次数返回 409 attempt_limit_exceeded；并发冲突重试耗尽返回 503
// @Tags 答题
// @Produce json
// @Security BearerAuth
// @Param id path string true "测验ID"
// @Success 200 {object} util.Response{data=service.StartResult}
// @Failure 404 {object} util.Response
// @Failure 409 {object} util.Response
// @Failure 503 {object} util.Response
// @Router /api/quizzes/{id}/start [post]
func (c *AttemptController) StartAttempt(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	result, err := c.AttemptService.StartAttempt(
		ctx.Request.Context(),
		ctx.Param("id"),
		service.IdentityFromClaims(claims),
		service.ClientContext{IPAddress: ctx.ClientIP(), UserAgent: ctx.Request.UserAgent()},
	)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary 提交答题
// @Description 同一次答题只能提交一次，重复提交返回 409 already_submitted
// @Tags 答题
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param attemptId path string true "答题ID"
// @Param body body SubmitRequest true "答案"
// @Success 200 {object} util.Response{data=service.SubmitResult}
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /api/quizzes/attempts/{attemptId}/submit [put]
func (c *AttemptController) SubmitAttempt(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	var req SubmitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, bindingMessage(err))
		return
	}

	result, err := c.AttemptService.SubmitAttempt(
		ctx.Request.Context(),
		ctx.Param("attemptId"),
		service.IdentityFromClaims(claims),
		req.toAnswers(),
	)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary 我的答题记录
// @Tags 答题
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response{data=[]service.AttemptView}
// @Router /api/quizzes/my/attempts [get]
func (c *AttemptController) GetMyAttempts(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	attempts, err := c.AttemptService.GetMyAttempts(ctx.Request.Context(), service.IdentityFromClaims(claims))
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, attempts)
}

// @Summary 测验成绩与统计
// @Description 仅测验创建者或管理员
// @Tags 答题
// @Produce json
// @Security BearerAuth
// @Param id path string true "测验ID"
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量" default(20)
// @Success 200 {object} util.Response{data=service.QuizResults}
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Router /api/quizzes/{id}/results [get]
func (c *AttemptController) GetQuizResults(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	page, limit := util.ParsePage(ctx.Query("page"), ctx.Query("limit"), c.PageSize, c.MaxPageSize)
	results, err := c.AttemptService.GetQuizResults(
		ctx.Request.Context(),
		ctx.Param("id"),
		service.IdentityFromClaims(claims),
		page,
		limit,
	)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, results)
}
