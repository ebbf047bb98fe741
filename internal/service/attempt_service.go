package service

import (
	"context"
	"errors"
	"quiz_backend/internal/config"
	"quiz_backend/internal/event"
	"quiz_backend/internal/grading"
	"quiz_backend/internal/model"
	"quiz_backend/internal/repository"
	"quiz_backend/internal/util"
	"quiz_backend/pkg/logger"
	"quiz_backend/pkg/monitoring"
	"quiz_backend/pkg/tracing"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// AttemptService 答题生命周期：开始、提交、过期、查询
type AttemptService struct {
	QuizRepo    repository.QuizStore
	AttemptRepo repository.AttemptStore
	UserRepo    repository.UserStore
	Users       *UserService
	Quizzes     *QuizService
	Engine      *grading.Engine
	Events      event.Publisher

	mu     sync.RWMutex
	policy config.QuizConfig

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewAttemptService(
	quizRepo repository.QuizStore,
	attemptRepo repository.AttemptStore,
	userRepo repository.UserStore,
	users *UserService,
	quizzes *QuizService,
	events event.Publisher,
	policy config.QuizConfig,
) *AttemptService {
	s := &AttemptService{
		QuizRepo:    quizRepo,
		AttemptRepo: attemptRepo,
		UserRepo:    userRepo,
		Users:       users,
		Quizzes:     quizzes,
		Engine:      grading.NewEngine(),
		Events:      events,
		now:         time.Now,
		sleep:       sleepContext,
	}
	s.SetPolicy(policy)
	return s
}

// SetPolicy 配置热更新时调用
func (s *AttemptService) SetPolicy(p config.QuizConfig) {
	if p.MaxStartRetries < 1 {
		p.MaxStartRetries = 1
	}
	s.mu.Lock()
	s.policy = p
	s.mu.Unlock()
}

func (s *AttemptService) Policy() config.QuizConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy
}

type ClientContext struct {
	IPAddress string
	UserAgent string
}

type StartedAttempt struct {
	ID            string    `json:"id"`
	AttemptNumber int       `json:"attemptNumber"`
	StartedAt     time.Time `json:"startedAt"`
	TimeLimit     int       `json:"timeLimit"`
}

type StartResult struct {
	Attempt StartedAttempt `json:"attempt"`
	Quiz    *QuizView      `json:"quiz"`
}

// StartAttempt 创建新的答题记录。
// 读取最大序号与插入之间不是原子的，(quiz, student, attemptNumber) 唯一键是真正的保护：
// 插入冲突时按线性退避重试，重试耗尽才返回 transient_conflict。
func (s *AttemptService) StartAttempt(ctx context.Context, quizID string, id Identity, client ClientContext) (_ *StartResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "AttemptService.StartAttempt", attribute.String("quiz.id", quizID))
	defer func() { tracing.EndSpan(span, err) }()

	user, err := s.Users.EnsureUser(ctx, id)
	if err != nil {
		return nil, err
	}

	quiz, err := s.QuizRepo.FindByID(ctx, quizID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, util.NotFoundError("quiz not found")
	}
	if err != nil {
		return nil, err
	}
	if err := s.checkAvailable(quiz); err != nil {
		return nil, err
	}

	policy := s.Policy()
	maxAttempts := quiz.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var attempt *model.Attempt
	for try := 1; try <= policy.MaxStartRetries; try++ {
		count, err := s.AttemptRepo.CountByQuizAndStudent(ctx, quiz.ID, user.ID)
		if err != nil {
			return nil, err
		}
		if int(count) >= maxAttempts {
			return nil, util.AttemptLimitError(int(count), maxAttempts)
		}

		last, err := s.AttemptRepo.MaxAttemptNumber(ctx, quiz.ID, user.ID)
		if err != nil {
			return nil, err
		}
		next := last + 1
		if next > maxAttempts {
			return nil, util.AttemptLimitError(last, maxAttempts)
		}

		candidate := &model.Attempt{
			QuizID:        quiz.ID,
			StudentID:     user.ID,
			AttemptNumber: next,
			Status:        model.AttemptInProgress,
			Answers:       []model.Answer{},
			StartedAt:     s.now(),
			TotalPoints:   quiz.TotalPoints,
			IPAddress:     client.IPAddress,
			UserAgent:     client.UserAgent,
		}
		err = s.AttemptRepo.Create(ctx, candidate)
		if err == nil {
			attempt = candidate
			break
		}
		if !errors.Is(err, repository.ErrDuplicateKey) {
			return nil, err
		}

		logger.Log.Warn("Duplicate attempt number, retrying",
			zap.String("quiz_id", quiz.ID),
			zap.String("student_id", user.ID),
			zap.Int("attempt_number", next),
			zap.Int("retry", try))
		if try == policy.MaxStartRetries {
			monitoring.AttemptStartConflicts.WithLabelValues("exhausted").Inc()
			return nil, util.WrapError(util.KindTransientConflict, err, "could not start attempt, please retry")
		}
		monitoring.AttemptStartConflicts.WithLabelValues("retried").Inc()
		if err := s.sleep(ctx, policy.RetryBackoff()*time.Duration(try)); err != nil {
			return nil, err
		}
	}

	monitoring.AttemptsStarted.Inc()
	logger.Log.Info("Quiz attempt started",
		zap.String("quiz_id", quiz.ID),
		zap.String("attempt_id", attempt.ID),
		zap.String("student_id", user.ID),
		zap.Int("attempt_number", attempt.AttemptNumber))
	publish(ctx, s.Events, &event.AttemptEvent{
		EventType:     util.EventAttemptStarted,
		QuizID:        quiz.ID,
		AttemptID:     attempt.ID,
		StudentID:     user.ID,
		AttemptNumber: attempt.AttemptNumber,
		Status:        string(attempt.Status),
		TotalPoints:   attempt.TotalPoints,
	})

	return &StartResult{
		Attempt: StartedAttempt{
			ID:            attempt.ID,
			AttemptNumber: attempt.AttemptNumber,
			StartedAt:     attempt.StartedAt,
			TimeLimit:     quiz.TimeLimit,
		},
		Quiz: s.Quizzes.RedactedView(quiz),
	}, nil
}

func (s *AttemptService) checkAvailable(quiz *model.Quiz) error {
	if !quiz.IsActive || !quiz.IsPublished {
		return util.UnavailableError("quiz not available")
	}
	now := s.now()
	if quiz.EndDate != nil && now.After(*quiz.EndDate) {
		return util.UnavailableError("quiz has expired")
	}
	if quiz.StartDate != nil && now.Before(*quiz.StartDate) {
		return util.UnavailableError("quiz has not started yet")
	}
	return nil
}

type SubmitResult struct {
	AttemptID        string           `json:"attemptId"`
	Status           string           `json:"status"`
	PointsEarned     int              `json:"pointsEarned"`
	TotalPoints      int              `json:"totalPoints"`
	Percentage       int              `json:"percentage"`
	Passed           bool             `json:"passed"`
	Grade            string           `json:"grade,omitempty"`
	TimeSpent        string           `json:"timeSpent"`
	TimeSpentSeconds int              `json:"timeSpentSeconds"`
	Answers          []model.Answer   `json:"answers,omitempty"`
	Review           []QuestionReview `json:"review,omitempty"`
}

// SubmitAttempt 判分并持久化。只有仍为 in-progress 的记录会被写入，
// 第二次提交（包括并发提交）返回 already_submitted 且不改变已有成绩。
func (s *AttemptService) SubmitAttempt(ctx context.Context, attemptID string, id Identity, answers []model.Answer) (_ *SubmitResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "AttemptService.SubmitAttempt", attribute.String("attempt.id", attemptID))
	defer func() { tracing.EndSpan(span, err) }()

	user, err := s.Users.Lookup(ctx, id.UID)
	if err != nil {
		return nil, err
	}

	attempt, err := s.AttemptRepo.FindByID(ctx, attemptID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, util.NotFoundError("quiz attempt not found")
	}
	if err != nil {
		return nil, err
	}
	if attempt.StudentID != user.ID {
		return nil, util.ForbiddenError("you can only submit your own attempts")
	}
	if attempt.Status != model.AttemptInProgress {
		return nil, util.ErrAlreadySubmitted
	}

	quiz, err := s.QuizRepo.FindByID(ctx, attempt.QuizID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, util.NotFoundError("quiz not found")
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	attempt.SubmittedAt = &now
	attempt.TimeSpent = secondsBetween(attempt.StartedAt, now)

	if s.overdue(attempt, quiz, now) {
		markExpired(attempt, answers)
	} else {
		result := s.Engine.Grade(quiz.Questions, answers, attempt.TotalPoints, quiz.PassingScore)
		attempt.Answers = result.Answers
		attempt.PointsEarned = result.PointsEarned
		attempt.Percentage = result.Percentage
		attempt.Passed = result.Passed
		attempt.Status = model.AttemptGraded
		attempt.GradedAt = &now
	}

	applied, err := s.AttemptRepo.Finalize(ctx, attempt)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, util.ErrAlreadySubmitted
	}

	if err := s.QuizRepo.IncrementTotalAttempts(ctx, quiz.ID); err != nil {
		logger.Log.Warn("Failed to increment quiz attempt counter", zap.String("quiz_id", quiz.ID), zap.Error(err))
	}
	s.recordFinalized(ctx, attempt)

	out := &SubmitResult{
		AttemptID:        attempt.ID,
		Status:           string(attempt.Status),
		PointsEarned:     attempt.PointsEarned,
		TotalPoints:      attempt.TotalPoints,
		Percentage:       attempt.Percentage,
		Passed:           attempt.Passed,
		TimeSpent:        attempt.FormattedTimeSpent(),
		TimeSpentSeconds: attempt.TimeSpent,
	}
	// 过期的答题不给等级
	if attempt.Status == model.AttemptGraded {
		out.Grade = grading.LetterGrade(attempt.Percentage)
	}
	if attempt.Status == model.AttemptGraded && quiz.ShowResults {
		out.Answers = attempt.Answers
		if quiz.ShowCorrectAnswers {
			for _, q := range quiz.Questions {
				out.Review = append(out.Review, reviewFor(q))
			}
		}
	}
	return out, nil
}

// overdue 仅在启用服务端限时时生效；timeLimit 为 0 表示不限时
func (s *AttemptService) overdue(attempt *model.Attempt, quiz *model.Quiz, now time.Time) bool {
	policy := s.Policy()
	if !policy.EnforceTimeLimit {
		return false
	}
	deadline, ok := attempt.Deadline(quiz.TimeLimit)
	if !ok {
		return false
	}
	return now.After(deadline.Add(policy.ExpiryGrace()))
}

// markExpired 超时：答案原样保存但不判分，得分为 0
func markExpired(attempt *model.Attempt, answers []model.Answer) {
	stored := make([]model.Answer, 0, len(answers))
	for _, a := range answers {
		a.IsCorrect = false
		a.PointsEarned = 0
		stored = append(stored, a)
	}
	attempt.Answers = stored
	attempt.PointsEarned = 0
	attempt.Percentage = 0
	attempt.Passed = false
	attempt.Status = model.AttemptExpired
}

func (s *AttemptService) recordFinalized(ctx context.Context, attempt *model.Attempt) {
	monitoring.ObserveFinalized(string(attempt.Status), attempt.Passed, attempt.Percentage)

	eventType := util.EventAttemptGraded
	if attempt.Status == model.AttemptExpired {
		eventType = util.EventAttemptExpired
	}
	logger.Log.Info("Quiz attempt finalized",
		zap.String("quiz_id", attempt.QuizID),
		zap.String("attempt_id", attempt.ID),
		zap.String("student_id", attempt.StudentID),
		zap.String("status", string(attempt.Status)),
		zap.Int("points_earned", attempt.PointsEarned),
		zap.Int("total_points", attempt.TotalPoints),
		zap.Int("percentage", attempt.Percentage))
	publish(ctx, s.Events, &event.AttemptEvent{
		EventType:     eventType,
		QuizID:        attempt.QuizID,
		AttemptID:     attempt.ID,
		StudentID:     attempt.StudentID,
		AttemptNumber: attempt.AttemptNumber,
		Status:        string(attempt.Status),
		PointsEarned:  attempt.PointsEarned,
		TotalPoints:   attempt.TotalPoints,
		Percentage:    attempt.Percentage,
		Passed:        attempt.Passed,
	})
}

// ExpireOverdue 将超时未提交的记录置为 expired，quizID 为空时处理全部测验。
// 未启用服务端限时时不做任何事。
func (s *AttemptService) ExpireOverdue(ctx context.Context, quizID string) (int, error) {
	policy := s.Policy()
	if !policy.EnforceTimeLimit {
		return 0, nil
	}

	now := s.now()
	candidates, err := s.AttemptRepo.ListInProgress(ctx, quizID, now.Add(-policy.ExpiryGrace()))
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	quizIDs := make([]string, 0, len(candidates))
	for _, a := range candidates {
		quizIDs = append(quizIDs, a.QuizID)
	}
	quizzes, err := s.QuizRepo.FindByIDs(ctx, quizIDs)
	if err != nil {
		return 0, err
	}
	byID := make(map[string]*model.Quiz, len(quizzes))
	for i := range quizzes {
		byID[quizzes[i].ID] = &quizzes[i]
	}

	expired := 0
	for i := range candidates {
		attempt := &candidates[i]
		quiz, ok := byID[attempt.QuizID]
		if !ok || !s.overdue(attempt, quiz, now) {
			continue
		}
		deadline, _ := attempt.Deadline(quiz.TimeLimit)
		attempt.SubmittedAt = nil
		attempt.TimeSpent = secondsBetween(attempt.StartedAt, deadline)
		markExpired(attempt, attempt.Answers)

		applied, err := s.AttemptRepo.Finalize(ctx, attempt)
		if err != nil {
			return expired, err
		}
		if !applied {
			continue
		}
		expired++
		s.recordFinalized(ctx, attempt)
	}
	return expired, nil
}

type QuizSummary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	TotalPoints  int    `json:"totalPoints"`
	PassingScore int    `json:"passingScore"`
}

type StudentSummary struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

type AttemptView struct {
	model.Attempt
	Grade              string          `json:"grade,omitempty"`
	FormattedTimeSpent string          `json:"formattedTimeSpent"`
	Quiz               *QuizSummary    `json:"quiz,omitempty"`
	Student            *StudentSummary `json:"student,omitempty"`
}

func newAttemptView(a model.Attempt) AttemptView {
	v := AttemptView{Attempt: a, FormattedTimeSpent: a.FormattedTimeSpent()}
	if a.Status == model.AttemptGraded {
		v.Grade = grading.LetterGrade(a.Percentage)
	}
	return v
}

// GetMyAttempts 当前学生的全部答题记录，按创建时间倒序
func (s *AttemptService) GetMyAttempts(ctx context.Context, id Identity) ([]AttemptView, error) {
	user, err := s.Users.Lookup(ctx, id.UID)
	if err != nil {
		return nil, err
	}

	attempts, err := s.AttemptRepo.ListByStudent(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	quizIDs := make([]string, 0, len(attempts))
	for _, a := range attempts {
		quizIDs = append(quizIDs, a.QuizID)
	}
	quizzes, err := s.QuizRepo.FindByIDs(ctx, quizIDs)
	if err != nil {
		return nil, err
	}
	summaries := make(map[string]*QuizSummary, len(quizzes))
	for _, q := range quizzes {
		summaries[q.ID] = &QuizSummary{
			ID:           q.ID,
			Title:        q.Title,
			Description:  q.Description,
			TotalPoints:  q.TotalPoints,
			PassingScore: q.PassingScore,
		}
	}

	views := make([]AttemptView, 0, len(attempts))
	for _, a := range attempts {
		v := newAttemptView(a)
		v.Quiz = summaries[a.QuizID]
		views = append(views, v)
	}
	return views, nil
}

type QuizResults struct {
	Quiz       QuizSummary     `json:"quiz"`
	Attempts   []AttemptView   `json:"attempts"`
	Statistics Statistics      `json:"statistics"`
	Pagination util.Pagination `json:"pagination"`
}

// GetQuizResults 仅测验创建者或管理员可查看
func (s *AttemptService) GetQuizResults(ctx context.Context, quizID string, id Identity, page, limit int) (_ *QuizResults, err error) {
	ctx, span := tracing.StartSpan(ctx, "AttemptService.GetQuizResults", attribute.String("quiz.id", quizID))
	defer func() { tracing.EndSpan(span, err) }()

	user, err := s.Users.Lookup(ctx, id.UID)
	if err != nil {
		return nil, err
	}
	quiz, err := s.QuizRepo.FindByID(ctx, quizID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, util.NotFoundError("quiz not found")
	}
	if err != nil {
		return nil, err
	}
	if !quiz.OwnedBy(user.ID) && user.Role != model.Admin {
		return nil, util.ForbiddenError("unauthorized to view results")
	}

	// 顺便把超时未提交的记录置为 expired
	if n, err := s.ExpireOverdue(ctx, quiz.ID); err != nil {
		logger.Log.Warn("Lazy expiry failed", zap.String("quiz_id", quiz.ID), zap.Error(err))
	} else if n > 0 {
		logger.Log.Info("Expired overdue attempts", zap.String("quiz_id", quiz.ID), zap.Int("count", n))
	}

	var (
		attempts []model.Attempt
		total    int64
		rows     []repository.ScoreRow
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		attempts, err = s.AttemptRepo.ListByQuiz(gctx, quiz.ID, (page-1)*limit, limit)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = s.AttemptRepo.CountByQuiz(gctx, quiz.ID)
		return err
	})
	g.Go(func() error {
		var err error
		rows, err = s.AttemptRepo.ScoresByQuiz(gctx, quiz.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	studentIDs := make([]string, 0, len(attempts))
	for _, a := range attempts {
		studentIDs = append(studentIDs, a.StudentID)
	}
	students, err := s.UserRepo.FindByIDs(ctx, studentIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*StudentSummary, len(students))
	for _, u := range students {
		byID[u.ID] = &StudentSummary{ID: u.ID, DisplayName: u.DisplayName, Email: u.Email}
	}

	views := make([]AttemptView, 0, len(attempts))
	for _, a := range attempts {
		v := newAttemptView(a)
		v.Student = byID[a.StudentID]
		views = append(views, v)
	}

	return &QuizResults{
		Quiz: QuizSummary{
			ID:           quiz.ID,
			Title:        quiz.Title,
			TotalPoints:  quiz.TotalPoints,
			PassingScore: quiz.PassingScore,
		},
		Attempts:   views,
		Statistics: Summarize(rows),
		Pagination: util.NewPagination(page, limit, total),
	}, nil
}

func secondsBetween(from, to time.Time) int {
	d := int(to.Sub(from) / time.Second)
	if d < 0 {
		return 0
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
