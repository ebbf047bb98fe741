package model

import (
	"time"

	"gorm.io/datatypes"
)

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple-choice"
	TrueFalse      QuestionType = "true-false"
	ShortAnswer    QuestionType = "short-answer"
)

func (t QuestionType) Valid() bool {
	switch t {
	case MultipleChoice, TrueFalse, ShortAnswer:
		return true
	}
	return false
}

// IsChoice 选择类题目按选项文本判分
func (t QuestionType) IsChoice() bool {
	return t == MultipleChoice || t == TrueFalse
}

type Option struct {
	Text      string `json:"text" bson:"text"`
	IsCorrect bool   `json:"isCorrect" bson:"is_correct"`
}

// Question 内嵌于 Quiz，不单独寻址
type Question struct {
	ID            string       `json:"id" bson:"id"`
	Text          string       `json:"question" bson:"question"`
	Type          QuestionType `json:"type" bson:"type"`
	Options       []Option     `json:"options,omitempty" bson:"options,omitempty"`
	CorrectAnswer string       `json:"correctAnswer,omitempty" bson:"correct_answer,omitempty"` // 简答题
	Points        int          `json:"points" bson:"points"`
	Explanation   string       `json:"explanation,omitempty" bson:"explanation,omitempty"`
}

// CorrectOption 返回第一个标记为正确的选项
func (q Question) CorrectOption() (Option, bool) {
	for _, o := range q.Options {
		if o.IsCorrect {
			return o, true
		}
	}
	return Option{}, false
}

// swagger:model Quiz
type Quiz struct {
	UUIDBase    `bson:",inline"`
	Title       string                        `gorm:"size:255;not null" json:"title" bson:"title"`
	Description string                        `gorm:"type:text" json:"description" bson:"description"`
	CourseID    string                        `gorm:"size:64;index:idx_quiz_course_published,priority:1" json:"courseId" bson:"course_id"`
	CreatorID   string                        `gorm:"type:varchar(36);index:idx_quiz_creator_active,priority:1" json:"createdBy" bson:"creator_id"`
	Questions   datatypes.JSONSlice[Question] `json:"questions" bson:"questions"`

	TimeLimit          int  `json:"timeLimit" bson:"time_limit"` // 分钟
	MaxAttempts        int  `json:"maxAttempts" bson:"max_attempts"`
	PassingScore       int  `json:"passingScore" bson:"passing_score"` // 百分比
	ShowResults        bool `json:"showResults" bson:"show_results"`
	ShowCorrectAnswers bool `json:"showCorrectAnswers" bson:"show_correct_answers"`
	RandomizeQuestions bool `json:"randomizeQuestions" bson:"randomize_questions"`

	StartDate   *time.Time `json:"startDate,omitempty" bson:"start_date,omitempty"`
	EndDate     *time.Time `json:"endDate,omitempty" bson:"end_date,omitempty"`
	IsActive    bool       `gorm:"index:idx_quiz_creator_active,priority:2" json:"isActive" bson:"is_active"`
	IsPublished bool       `gorm:"index:idx_quiz_course_published,priority:2" json:"isPublished" bson:"is_published"`

	TotalPoints   int `json:"totalPoints" bson:"total_points"`
	TotalAttempts int `json:"totalAttempts" bson:"total_attempts"`
}

func (Quiz) TableName() string {
	return "quizzes"
}

// RecomputeTotalPoints 题目变化后必须调用
func (q *Quiz) RecomputeTotalPoints() {
	total := 0
	for _, question := range q.Questions {
		total += question.Points
	}
	q.TotalPoints = total
}

// OwnedBy 创建者判断
func (q *Quiz) OwnedBy(userID string) bool {
	return q.CreatorID != "" && q.CreatorID == userID
}
