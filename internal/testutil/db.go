// Package testutil 测试共用的内存数据库与测试数据
package testutil

import (
	"testing"

	"quiz_backend/internal/model"
	"quiz_backend/pkg/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB 每个测试一个独立的内存 SQLite 库，迁移与生产一致
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func CreateUser(t testing.TB, db *gorm.DB, uid string, role model.UserRole) *model.User {
	t.Helper()
	u := &model.User{
		UID:         uid,
		Email:       uid + "@example.com",
		DisplayName: uid,
		Role:        role,
		IsActive:    true,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// ChoiceQuestion 单个正确选项的选择题
func ChoiceQuestion(id, correct string, points int, others ...string) model.Question {
	q := model.Question{
		ID:     id,
		Text:   "question " + id,
		Type:   model.MultipleChoice,
		Points: points,
	}
	q.Options = append(q.Options, model.Option{Text: correct, IsCorrect: true})
	for _, o := range others {
		q.Options = append(q.Options, model.Option{Text: o})
	}
	return q
}

func ShortAnswerQuestion(id, answer string, points int) model.Question {
	return model.Question{
		ID:            id,
		Text:          "question " + id,
		Type:          model.ShortAnswer,
		CorrectAnswer: answer,
		Points:        points,
	}
}

// CreateQuiz 已发布、启用的测验；opts 可修改默认值
func CreateQuiz(t testing.TB, db *gorm.DB, creatorID string, questions []model.Question, opts ...func(*model.Quiz)) *model.Quiz {
	t.Helper()
	q := &model.Quiz{
		Title:        "Quiz",
		Description:  "test quiz",
		CourseID:     "general",
		CreatorID:    creatorID,
		Questions:    questions,
		TimeLimit:    30,
		MaxAttempts:  1,
		PassingScore: 60,
		ShowResults:  true,
		IsActive:     true,
		IsPublished:  true,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.RecomputeTotalPoints()
	require.NoError(t, db.Create(q).Error)
	return q
}
