package repository

import (
	"context"
	"errors"
	"quiz_backend/internal/model"
	"strings"
	"time"

	"gorm.io/gorm"
)

// 各存储后端统一归一化为以下错误
var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicateKey = errors.New("duplicate key")
)

type QuizFilter struct {
	CourseID    string
	CreatedBy   string
	IsPublished *bool
	ActiveOnly  bool
}

// ScoreRow 统计所需的最小投影
type ScoreRow struct {
	Percentage int
	Passed     bool
}

type QuizStore interface {
	Create(ctx context.Context, quiz *model.Quiz) error
	Update(ctx context.Context, quiz *model.Quiz) error
	FindByID(ctx context.Context, id string) (*model.Quiz, error)
	FindByIDs(ctx context.Context, ids []string) ([]model.Quiz, error)
	List(ctx context.Context, filter QuizFilter, offset, limit int) ([]model.Quiz, int64, error)
	SetActive(ctx context.Context, id string, active bool) error
	IncrementTotalAttempts(ctx context.Context, id string) error
}

type AttemptStore interface {
	CountByQuizAndStudent(ctx context.Context, quizID, studentID string) (int64, error)
	MaxAttemptNumber(ctx context.Context, quizID, studentID string) (int, error)
	// Create 唯一键冲突时返回 ErrDuplicateKey
	Create(ctx context.Context, attempt *model.Attempt) error
	FindByID(ctx context.Context, id string) (*model.Attempt, error)
	// Finalize 仅当记录仍为 in-progress 时写入提交结果，返回是否生效
	Finalize(ctx context.Context, attempt *model.Attempt) (bool, error)
	ListByStudent(ctx context.Context, studentID string) ([]model.Attempt, error)
	ListByQuiz(ctx context.Context, quizID string, offset, limit int) ([]model.Attempt, error)
	CountByQuiz(ctx context.Context, quizID string) (int64, error)
	ScoresByQuiz(ctx context.Context, quizID string) ([]ScoreRow, error)
	// ListInProgress quizID 为空时跨所有测验
	ListInProgress(ctx context.Context, quizID string, startedBefore time.Time) ([]model.Attempt, error)
	DeleteByQuiz(ctx context.Context, quizID string) (int64, error)
}

type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByUID(ctx context.Context, uid string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByIDs(ctx context.Context, ids []string) ([]model.User, error)
	UpdateRole(ctx context.Context, id string, role model.UserRole) error
	TouchLastActive(ctx context.Context, id string, at time.Time) error
}

// translateError 将 gorm/驱动错误映射为仓储错误
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || IsDuplicateMessage(err) {
		return errors.Join(ErrDuplicateKey, err)
	}
	return err
}

// IsDuplicateMessage 驱动未翻译错误时的兜底判断（mysql/postgres/sqlite）
func IsDuplicateMessage(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// UniqueIDs 去重并去掉空值，供各后端批量查询使用
func UniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
