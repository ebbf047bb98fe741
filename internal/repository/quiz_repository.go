package repository

import (
	"context"
	"quiz_backend/internal/model"

	"gorm.io/gorm"
)

type QuizRepository struct {
	DB *gorm.DB
}

func NewQuizRepository(db *gorm.DB) *QuizRepository {
	return &QuizRepository{DB: db}
}

func (r *QuizRepository) Create(ctx context.Context, quiz *model.Quiz) error {
	return translateError(r.DB.WithContext(ctx).Create(quiz).Error)
}

func (r *QuizRepository) Update(ctx context.Context, quiz *model.Quiz) error {
	return translateError(r.DB.WithContext(ctx).Save(quiz).Error)
}

func (r *QuizRepository) FindByID(ctx context.Context, id string) (*model.Quiz, error) {
	var quiz model.Quiz
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&quiz).Error; err != nil {
		return nil, translateError(err)
	}
	return &quiz, nil
}

func (r *QuizRepository) FindByIDs(ctx context.Context, ids []string) ([]model.Quiz, error) {
	ids = UniqueIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	var quizzes []model.Quiz
	err := r.DB.WithContext(ctx).Where("id IN ?", ids).Find(&quizzes).Error
	return quizzes, translateError(err)
}

func (r *QuizRepository) List(ctx context.Context, filter QuizFilter, offset, limit int) ([]model.Quiz, int64, error) {
	query := r.DB.WithContext(ctx).Model(&model.Quiz{})
	if filter.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}
	if filter.CourseID != "" {
		query = query.Where("course_id = ?", filter.CourseID)
	}
	if filter.CreatedBy != "" {
		query = query.Where("creator_id = ?", filter.CreatedBy)
	}
	if filter.IsPublished != nil {
		query = query.Where("is_published = ?", *filter.IsPublished)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, translateError(err)
	}

	var quizzes []model.Quiz
	err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&quizzes).Error
	return quizzes, total, translateError(err)
}

func (r *QuizRepository) SetActive(ctx context.Context, id string, active bool) error {
	res := r.DB.WithContext(ctx).Model(&model.Quiz{}).
		Where("id = ?", id).
		Update("is_active", active)
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementTotalAttempts 原子自增，不刷新 updated_at
func (r *QuizRepository) IncrementTotalAttempts(ctx context.Context, id string) error {
	return translateError(r.DB.WithContext(ctx).Model(&model.Quiz{}).
		Where("id = ?", id).
		UpdateColumn("total_attempts", gorm.Expr("total_attempts + ?", 1)).
		Error)
}
