package service

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"quiz_backend/internal/event"
	"quiz_backend/internal/model"
	"quiz_backend/internal/repository"
	"quiz_backend/internal/util"
	"quiz_backend/pkg/logger"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	DefaultTimeLimit    = 30
	DefaultMaxAttempts  = 1
	DefaultPassingScore = 60
	DefaultCourseID     = "general"
	DefaultPoints       = 1

	quizViewCachePrefix = "quiz:view:"
)

type QuizService struct {
	QuizRepo    repository.QuizStore
	AttemptRepo repository.AttemptStore
	Redis       *redis.Client
	Events      event.Publisher
	CacheTTL    time.Duration
}

func NewQuizService(quizRepo repository.QuizStore, attemptRepo repository.AttemptStore, rdb *redis.Client, events event.Publisher, cacheTTL time.Duration) *QuizService {
	return &QuizService{
		QuizRepo:    quizRepo,
		AttemptRepo: attemptRepo,
		Redis:       rdb,
		Events:      events,
		CacheTTL:    cacheTTL,
	}
}

type OptionInput struct {
	Text      string `json:"text" binding:"required"`
	IsCorrect bool   `json:"isCorrect"`
}

type QuestionInput struct {
	ID            string             `json:"id"`
	Question      string             `json:"question" binding:"required"`
	Type          model.QuestionType `json:"type" binding:"omitempty,questiontype"`
	Options       []OptionInput      `json:"options" binding:"omitempty,dive"`
	CorrectAnswer string             `json:"correctAnswer"`
	Points        *int               `json:"points" binding:"omitempty,min=0"`
	Explanation   string             `json:"explanation"`
}

type QuizCreateRequest struct {
	Title              string          `json:"title" binding:"required,max=255"`
	Description        string          `json:"description" binding:"required"`
	CourseID           string          `json:"courseId"`
	Questions          []QuestionInput `json:"questions" binding:"required,min=1,dive"`
	TimeLimit          *int            `json:"timeLimit" binding:"omitempty,min=0"`
	MaxAttempts        *int            `json:"maxAttempts" binding:"omitempty,min=1"`
	PassingScore       *int            `json:"passingScore" binding:"omitempty,min=0,max=100"`
	ShowResults        *bool           `json:"showResults"`
	ShowCorrectAnswers *bool           `json:"showCorrectAnswers"`
	RandomizeQuestions *bool           `json:"randomizeQuestions"`
	StartDate          *time.Time      `json:"startDate"`
	EndDate            *time.Time      `json:"endDate"`
	IsPublished        *bool           `json:"isPublished"`
}

// QuizUpdateRequest 仅更新非空字段
type QuizUpdateRequest struct {
	Title              *string          `json:"title" binding:"omitempty,min=1,max=255"`
	Description        *string          `json:"description" binding:"omitempty,min=1"`
	CourseID           *string          `json:"courseId"`
	Questions          *[]QuestionInput `json:"questions" binding:"omitempty,min=1,dive"`
	TimeLimit          *int             `json:"timeLimit" binding:"omitempty,min=0"`
	MaxAttempts        *int             `json:"maxAttempts" binding:"omitempty,min=1"`
	PassingScore       *int             `json:"passingScore" binding:"omitempty,min=0,max=100"`
	ShowResults        *bool            `json:"showResults"`
	ShowCorrectAnswers *bool            `json:"showCorrectAnswers"`
	RandomizeQuestions *bool            `json:"randomizeQuestions"`
	StartDate          *time.Time       `json:"startDate"`
	EndDate            *time.Time       `json:"endDate"`
	IsPublished        *bool            `json:"isPublished"`
	IsActive           *bool            `json:"isActive"`
}

type ListQuizzesQuery struct {
	CourseID    string
	CreatedBy   string
	IsPublished *bool
	Page        int
	Limit       int
}

type QuizPage struct {
	Quizzes    []*QuizView     `json:"quizzes"`
	Pagination util.Pagination `json:"pagination"`
}

func (s *QuizService) CreateQuiz(ctx context.Context, creator *model.User, req QuizCreateRequest) (*QuizView, error) {
	if creator == nil || !creator.Role.CanAuthor() {
		return nil, util.ForbiddenError("only instructors and admins can create quizzes")
	}

	title := strings.TrimSpace(req.Title)
	description := strings.TrimSpace(req.Description)
	if title == "" || description == "" {
		return nil, util.ValidationError("title and description are required")
	}
	questions, err := buildQuestions(req.Questions)
	if err != nil {
		return nil, err
	}

	quiz := &model.Quiz{
		Title:              title,
		Description:        description,
		CourseID:           strings.TrimSpace(req.CourseID),
		CreatorID:          creator.ID,
		Questions:          questions,
		TimeLimit:          intOr(req.TimeLimit, DefaultTimeLimit),
		MaxAttempts:        intOr(req.MaxAttempts, DefaultMaxAttempts),
		PassingScore:       intOr(req.PassingScore, DefaultPassingScore),
		ShowResults:        boolOr(req.ShowResults, true),
		ShowCorrectAnswers: boolOr(req.ShowCorrectAnswers, true),
		RandomizeQuestions: boolOr(req.RandomizeQuestions, false),
		StartDate:          req.StartDate,
		EndDate:            req.EndDate,
		IsActive:           true,
		IsPublished:        boolOr(req.IsPublished, false),
	}
	if quiz.CourseID == "" {
		quiz.CourseID = DefaultCourseID
	}
	if err := validateSettings(quiz); err != nil {
		return nil, err
	}
	quiz.RecomputeTotalPoints()

	if err := s.QuizRepo.Create(ctx, quiz); err != nil {
		return nil, err
	}

	logger.Log.Info("Quiz created",
		zap.String("quiz_id", quiz.ID),
		zap.String("creator_id", creator.ID),
		zap.Int("questions", len(quiz.Questions)),
		zap.Int("total_points", quiz.TotalPoints))
	return NewQuizView(quiz, true), nil
}

// UpdateQuiz 修改题目会重算总分，已有答题记录不重新判分
func (s *QuizService) UpdateQuiz(ctx context.Context, caller *model.User, id string, req QuizUpdateRequest) (*QuizView, error) {
	quiz, err := s.findQuiz(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller == nil || (!quiz.OwnedBy(caller.ID) && caller.Role != model.Admin) {
		return nil, util.ForbiddenError("you can only edit your own quizzes")
	}

	if req.Title != nil {
		quiz.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		quiz.Description = strings.TrimSpace(*req.Description)
	}
	if quiz.Title == "" || quiz.Description == "" {
		return nil, util.ValidationError("title and description are required")
	}
	if req.CourseID != nil {
		quiz.CourseID = strings.TrimSpace(*req.CourseID)
		if quiz.CourseID == "" {
			quiz.CourseID = DefaultCourseID
		}
	}
	if req.Questions != nil {
		questions, err := buildQuestions(*req.Questions)
		if err != nil {
			return nil, err
		}
		quiz.Questions = questions
		quiz.RecomputeTotalPoints()
	}
	quiz.TimeLimit = intOr(req.TimeLimit, quiz.TimeLimit)
	quiz.MaxAttempts = intOr(req.MaxAttempts, quiz.MaxAttempts)
	quiz.PassingScore = intOr(req.PassingScore, quiz.PassingScore)
	quiz.ShowResults = boolOr(req.ShowResults, quiz.ShowResults)
	quiz.ShowCorrectAnswers = boolOr(req.ShowCorrectAnswers, quiz.ShowCorrectAnswers)
	quiz.RandomizeQuestions = boolOr(req.RandomizeQuestions, quiz.RandomizeQuestions)
	quiz.IsPublished = boolOr(req.IsPublished, quiz.IsPublished)
	quiz.IsActive = boolOr(req.IsActive, quiz.IsActive)
	if req.StartDate != nil {
		quiz.StartDate = req.StartDate
	}
	if req.EndDate != nil {
		quiz.EndDate = req.EndDate
	}
	if err := validateSettings(quiz); err != nil {
		return nil, err
	}

	if err := s.QuizRepo.Update(ctx, quiz); err != nil {
		return nil, err
	}
	s.invalidateView(ctx, quiz.ID)

	logger.Log.Info("Quiz updated", zap.String("quiz_id", quiz.ID), zap.String("editor_id", caller.ID))
	return NewQuizView(quiz, true), nil
}

// DeleteQuiz 软删除，答题记录保留
func (s *QuizService) DeleteQuiz(ctx context.Context, id string) error {
	err := s.QuizRepo.SetActive(ctx, id, false)
	if errors.Is(err, repository.ErrNotFound) {
		return util.NotFoundError("quiz not found")
	}
	if err != nil {
		return err
	}
	s.invalidateView(ctx, id)
	logger.Log.Info("Quiz deactivated", zap.String("quiz_id", id))
	return nil
}

// GetQuiz 默认返回脱敏视图；教师、管理员或创建者可请求包含答案的完整视图
func (s *QuizService) GetQuiz(ctx context.Context, id string, caller *model.User, includeAnswers bool) (*QuizView, error) {
	if includeAnswers && caller != nil {
		quiz, err := s.findQuiz(ctx, id)
		if err != nil {
			return nil, err
		}
		if caller.Role.CanAuthor() || quiz.OwnedBy(caller.ID) {
			return NewQuizView(quiz, true), nil
		}
		return s.cacheAndShuffle(ctx, quiz), nil
	}

	if view, ok := s.cachedView(ctx, id); ok {
		if view.RandomizeQuestions {
			shuffleQuestions(view.Questions)
		}
		return view, nil
	}

	quiz, err := s.findQuiz(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.cacheAndShuffle(ctx, quiz), nil
}

func (s *QuizService) ListQuizzes(ctx context.Context, q ListQuizzesQuery) (*QuizPage, error) {
	filter := repository.QuizFilter{
		CourseID:    q.CourseID,
		CreatedBy:   q.CreatedBy,
		IsPublished: q.IsPublished,
		ActiveOnly:  true,
	}
	quizzes, total, err := s.QuizRepo.List(ctx, filter, (q.Page-1)*q.Limit, q.Limit)
	if err != nil {
		return nil, err
	}

	views := make([]*QuizView, 0, len(quizzes))
	for i := range quizzes {
		views = append(views, NewQuizView(&quizzes[i], false))
	}
	return &QuizPage{
		Quizzes:    views,
		Pagination: util.NewPagination(q.Page, q.Limit, total),
	}, nil
}

// PurgeAttempts 管理员清理某测验的全部答题记录（物理删除）
func (s *QuizService) PurgeAttempts(ctx context.Context, quizID string) (int64, error) {
	if _, err := s.findQuiz(ctx, quizID); err != nil {
		return 0, err
	}
	deleted, err := s.AttemptRepo.DeleteByQuiz(ctx, quizID)
	if err != nil {
		return 0, err
	}

	logger.Log.Warn("Quiz attempts purged", zap.String("quiz_id", quizID), zap.Int64("deleted", deleted))
	publish(ctx, s.Events, &event.AttemptEvent{
		EventType: util.EventAttemptsPurged,
		QuizID:    quizID,
		Deleted:   deleted,
	})
	return deleted, nil
}

// RedactedView 开始答题时返回给学生的视图
func (s *QuizService) RedactedView(quiz *model.Quiz) *QuizView {
	view := NewQuizView(quiz, false)
	if view.RandomizeQuestions {
		shuffleQuestions(view.Questions)
	}
	return view
}

func (s *QuizService) findQuiz(ctx context.Context, id string) (*model.Quiz, error) {
	quiz, err := s.QuizRepo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, util.NotFoundError("quiz not found")
	}
	return quiz, err
}

func (s *QuizService) cacheAndShuffle(ctx context.Context, quiz *model.Quiz) *QuizView {
	view := NewQuizView(quiz, false)
	s.storeView(ctx, view)
	if view.RandomizeQuestions {
		shuffleQuestions(view.Questions)
	}
	return view
}

func (s *QuizService) cachedView(ctx context.Context, id string) (*QuizView, bool) {
	if s.Redis == nil || s.CacheTTL <= 0 {
		return nil, false
	}
	val, err := s.Redis.Get(ctx, quizViewCachePrefix+id).Result()
	if err == redis.Nil {
		return nil, false
	} else if err != nil {
		logger.Log.Warn("Quiz view cache read failed", zap.String("quiz_id", id), zap.Error(err))
		return nil, false
	}
	var view QuizView
	if err := json.Unmarshal([]byte(val), &view); err != nil {
		return nil, false
	}
	return &view, true
}

func (s *QuizService) storeView(ctx context.Context, view *QuizView) {
	if s.Redis == nil || s.CacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(view)
	if err != nil {
		return
	}
	if err := s.Redis.Set(ctx, quizViewCachePrefix+view.ID, data, s.CacheTTL).Err(); err != nil {
		logger.Log.Warn("Quiz view cache write failed", zap.String("quiz_id", view.ID), zap.Error(err))
	}
}

func (s *QuizService) invalidateView(ctx context.Context, id string) {
	if s.Redis == nil {
		return
	}
	if err := s.Redis.Del(ctx, quizViewCachePrefix+id).Err(); err != nil {
		logger.Log.Warn("Quiz view cache invalidation failed", zap.String("quiz_id", id), zap.Error(err))
	}
}

// buildQuestions 校验题目并分配 ID。选择题与判断题必须恰好一个正确选项
func buildQuestions(inputs []QuestionInput) ([]model.Question, error) {
	if len(inputs) == 0 {
		return nil, util.ValidationError("quiz must have at least one question")
	}

	seen := make(map[string]struct{}, len(inputs))
	questions := make([]model.Question, 0, len(inputs))
	for i, in := range inputs {
		n := i + 1
		q := model.Question{
			ID:          strings.TrimSpace(in.ID),
			Text:        strings.TrimSpace(in.Question),
			Type:        in.Type,
			Explanation: strings.TrimSpace(in.Explanation),
			Points:      intOr(in.Points, DefaultPoints),
		}
		if q.Type == "" {
			q.Type = model.MultipleChoice
		}
		if q.Text == "" {
			return nil, util.ValidationError("question %d: text is required", n)
		}
		if !q.Type.Valid() {
			return nil, util.ValidationError("question %d: unsupported type %q", n, q.Type)
		}
		if q.Points < 0 {
			return nil, util.ValidationError("question %d: points must be >= 0", n)
		}

		if q.Type.IsChoice() {
			if len(in.Options) < 2 {
				return nil, util.ValidationError("question %d: at least two options are required", n)
			}
			correct := 0
			for _, o := range in.Options {
				if strings.TrimSpace(o.Text) == "" {
					return nil, util.ValidationError("question %d: option text is required", n)
				}
				if o.IsCorrect {
					correct++
				}
				q.Options = append(q.Options, model.Option{Text: o.Text, IsCorrect: o.IsCorrect})
			}
			if correct != 1 {
				return nil, util.ValidationError("question %d: exactly one option must be marked correct, got %d", n, correct)
			}
		} else {
			q.CorrectAnswer = strings.TrimSpace(in.CorrectAnswer)
			if q.CorrectAnswer == "" {
				return nil, util.ValidationError("question %d: correctAnswer is required for short-answer", n)
			}
		}

		if q.ID == "" {
			q.ID = model.GenerateUUID()
		}
		if _, dup := seen[q.ID]; dup {
			return nil, util.ValidationError("question %d: duplicate id %s", n, q.ID)
		}
		seen[q.ID] = struct{}{}
		questions = append(questions, q)
	}
	return questions, nil
}

func validateSettings(q *model.Quiz) error {
	switch {
	case q.TimeLimit < 0:
		return util.ValidationError("timeLimit must be >= 0")
	case q.MaxAttempts < 1:
		return util.ValidationError("maxAttempts must be >= 1")
	case q.PassingScore < 0 || q.PassingScore > 100:
		return util.ValidationError("passingScore must be between 0 and 100")
	case q.StartDate != nil && q.EndDate != nil && !q.EndDate.After(*q.StartDate):
		return util.ValidationError("endDate must be after startDate")
	}
	return nil
}

func shuffleQuestions(qs []QuestionView) {
	rand.Shuffle(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func publish(ctx context.Context, p event.Publisher, e *event.AttemptEvent) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		logger.Log.Warn("Failed to publish event",
			zap.String("event", e.EventType),
			zap.String("quiz_id", e.QuizID),
			zap.Error(err))
	}
}
