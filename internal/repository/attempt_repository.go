package repository

import (
	"context"
	"quiz_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

func (r *AttemptRepository) CountByQuizAndStudent(ctx context.Context, quizID, studentID string) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.Attempt{}).
		Where("quiz_id = ? AND student_id = ?", quizID, studentID).
		Count(&count).Error
	return count, translateError(err)
}

// MaxAttemptNumber 没有记录时返回 0
func (r *AttemptRepository) MaxAttemptNumber(ctx context.Context, quizID, studentID string) (int, error) {
	var max int
	err := r.DB.WithContext(ctx).Model(&model.Attempt{}).
		Where("quiz_id = ? AND student_id = ?", quizID, studentID).
		Select("COALESCE(MAX(attempt_number), 0)").
		Scan(&max).Error
	return max, translateError(err)
}

func (r *AttemptRepository) Create(ctx context.Context, attempt *model.Attempt) error {
	return translateError(r.DB.WithContext(ctx).Create(attempt).Error)
}

func (r *AttemptRepository) FindByID(ctx context.Context, id string) (*model.Attempt, error) {
	var a model.Attempt
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, translateError(err)
	}
	return &a, nil
}

func (r *AttemptRepository) Finalize(ctx context.Context, attempt *model.Attempt) (bool, error) {
	now := time.Now()
	res := r.DB.WithContext(ctx).Model(&model.Attempt{}).
		Where("id = ? AND status = ?", attempt.ID, model.AttemptInProgress).
		Updates(map[string]interface{}{
			"answers":       attempt.Answers,
			"status":        attempt.Status,
			"submitted_at":  attempt.SubmittedAt,
			"time_spent":    attempt.TimeSpent,
			"points_earned": attempt.PointsEarned,
			"percentage":    attempt.Percentage,
			"passed":        attempt.Passed,
			"graded_at":     attempt.GradedAt,
			"updated_at":    now,
		})
	if res.Error != nil {
		return false, translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	attempt.UpdatedAt = now
	return true, nil
}

func (r *AttemptRepository) ListByStudent(ctx context.Context, studentID string) ([]model.Attempt, error) {
	var attempts []model.Attempt
	err := r.DB.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("created_at DESC").
		Find(&attempts).Error
	return attempts, translateError(err)
}

func (r *AttemptRepository) ListByQuiz(ctx context.Context, quizID string, offset, limit int) ([]model.Attempt, error) {
	var attempts []model.Attempt
	err := r.DB.WithContext(ctx).
		Where("quiz_id = ?", quizID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&attempts).Error
	return attempts, translateError(err)
}

func (r *AttemptRepository) CountByQuiz(ctx context.Context, quizID string) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.Attempt{}).
		Where("quiz_id = ?", quizID).
		Count(&count).Error
	return count, translateError(err)
}

func (r *AttemptRepository) ScoresByQuiz(ctx context.Context, quizID string) ([]ScoreRow, error) {
	var rows []ScoreRow
	err := r.DB.WithContext(ctx).Model(&model.Attempt{}).
		Select("percentage, passed").
		Where("quiz_id = ?", quizID).
		Scan(&rows).Error
	return rows, translateError(err)
}

func (r *AttemptRepository) ListInProgress(ctx context.Context, quizID string, startedBefore time.Time) ([]model.Attempt, error) {
	query := r.DB.WithContext(ctx).
		Where("status = ? AND started_at < ?", model.AttemptInProgress, startedBefore)
	if quizID != "" {
		query = query.Where("quiz_id = ?", quizID)
	}
	var attempts []model.Attempt
	err := query.Order("started_at ASC").Find(&attempts).Error
	return attempts, translateError(err)
}

// DeleteByQuiz 管理员清理，物理删除
func (r *AttemptRepository) DeleteByQuiz(ctx context.Context, quizID string) (int64, error) {
	res := r.DB.WithContext(ctx).Where("quiz_id = ?", quizID).Delete(&model.Attempt{})
	return res.RowsAffected, translateError(res.Error)
}
