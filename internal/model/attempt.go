package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in-progress"
	AttemptSubmitted  AttemptStatus = "submitted"
	AttemptGraded     AttemptStatus = "graded"
	AttemptExpired    AttemptStatus = "expired"
)

// Answer 内嵌于 Attempt；IsCorrect 与 PointsEarned 只由判分引擎写入
type Answer struct {
	QuestionID     string `json:"questionId" bson:"question_id"`
	SelectedOption string `json:"selectedOption,omitempty" bson:"selected_option,omitempty"`
	TextAnswer     string `json:"textAnswer,omitempty" bson:"text_answer,omitempty"`
	IsCorrect      bool   `json:"isCorrect" bson:"is_correct"`
	PointsEarned   int    `json:"pointsEarned" bson:"points_earned"`
}

// Attempt 每个 (quiz, student, attemptNumber) 唯一。
// 管理员清理时物理删除，因此不带软删除字段，避免唯一索引被已删除记录占用。
// swagger:model Attempt
type Attempt struct {
	ID            string                      `gorm:"primaryKey;type:varchar(36)" json:"id" bson:"_id"`
	QuizID        string                      `gorm:"type:varchar(36);not null;uniqueIndex:idx_attempt_quiz_student_number,priority:1;index:idx_attempt_quiz_status,priority:1" json:"quizId" bson:"quiz_id"`
	StudentID     string                      `gorm:"type:varchar(36);not null;uniqueIndex:idx_attempt_quiz_student_number,priority:2;index:idx_attempt_student_created,priority:1" json:"studentId" bson:"student_id"`
	AttemptNumber int                         `gorm:"not null;uniqueIndex:idx_attempt_quiz_student_number,priority:3" json:"attemptNumber" bson:"attempt_number"`
	Status        AttemptStatus               `gorm:"size:20;not null;index:idx_attempt_quiz_status,priority:2" json:"status" bson:"status"`
	Answers       datatypes.JSONSlice[Answer] `json:"answers" bson:"answers"`

	StartedAt   time.Time  `json:"startedAt" bson:"started_at"`
	SubmittedAt *time.Time `json:"submittedAt,omitempty" bson:"submitted_at,omitempty"`
	TimeSpent   int        `json:"timeSpent" bson:"time_spent"` // 秒

	// TotalPoints 为开始答题时的快照，之后题目修改不影响
	TotalPoints  int  `json:"totalPoints" bson:"total_points"`
	PointsEarned int  `json:"pointsEarned" bson:"points_earned"`
	Percentage   int  `json:"percentage" bson:"percentage"`
	Passed       bool `json:"passed" bson:"passed"`

	IPAddress string     `gorm:"size:64" json:"ipAddress,omitempty" bson:"ip_address,omitempty"`
	UserAgent string     `gorm:"size:512" json:"userAgent,omitempty" bson:"user_agent,omitempty"`
	Feedback  string     `gorm:"type:text" json:"feedback,omitempty" bson:"feedback,omitempty"`
	GradedBy  string     `gorm:"type:varchar(36)" json:"gradedBy,omitempty" bson:"graded_by,omitempty"`
	GradedAt  *time.Time `json:"gradedAt,omitempty" bson:"graded_at,omitempty"`

	CreatedAt time.Time `gorm:"index:idx_attempt_student_created,priority:2" json:"createdAt" bson:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updated_at"`
}

func (Attempt) TableName() string {
	return "quiz_attempts"
}

func (a *Attempt) BeforeCreate(tx *gorm.DB) (err error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return
}

// FormattedTimeSpent 形如 "m:ss"
func (a *Attempt) FormattedTimeSpent() string {
	return FormatDuration(a.TimeSpent)
}

// Deadline 计时上限；timeLimit 为 0 表示不限时
func (a *Attempt) Deadline(timeLimitMinutes int) (time.Time, bool) {
	if timeLimitMinutes <= 0 {
		return time.Time{}, false
	}
	return a.StartedAt.Add(time.Duration(timeLimitMinutes) * time.Minute), true
}

func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
