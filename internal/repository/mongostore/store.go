// Package mongostore 是仓储接口的 MongoDB 实现，与 SQL 后端共享唯一索引语义
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"quiz_backend/internal/repository"

	"go.mongodb.org/mongo-driver/v2/mongo"
)

const (
	QuizCollection    = "quizzes"
	AttemptCollection = "quiz_attempts"
	UserCollection    = "users"
)

type Stores struct {
	Quizzes  *QuizRepository
	Attempts *AttemptRepository
	Users    *UserRepository
}

func New(db *mongo.Database) *Stores {
	return &Stores{
		Quizzes:  NewQuizRepository(db, QuizCollection),
		Attempts: NewAttemptRepository(db, AttemptCollection),
		Users:    NewUserRepository(db, UserCollection),
	}
}

// InitializeIndexes 创建全部集合的索引，启动时调用
func (s *Stores) InitializeIndexes(ctx context.Context) error {
	if err := s.Quizzes.InitializeIndexes(ctx); err != nil {
		return fmt.Errorf("quizzes: %w", err)
	}
	if err := s.Attempts.InitializeIndexes(ctx); err != nil {
		return fmt.Errorf("quiz_attempts: %w", err)
	}
	if err := s.Users.InitializeIndexes(ctx); err != nil {
		return fmt.Errorf("users: %w", err)
	}
	return nil
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return repository.ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return errors.Join(repository.ErrDuplicateKey, err)
	}
	return err
}

var (
	_ repository.QuizStore    = (*QuizRepository)(nil)
	_ repository.AttemptStore = (*AttemptRepository)(nil)
	_ repository.UserStore    = (*UserRepository)(nil)
)
