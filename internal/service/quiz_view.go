package service

import (
	"quiz_backend/internal/model"
	"time"
)

type OptionView struct {
	Text      string `json:"text"`
	IsCorrect *bool  `json:"isCorrect,omitempty"`
}

type QuestionView struct {
	ID            string             `json:"id"`
	Question      string             `json:"question"`
	Type          model.QuestionType `json:"type"`
	Options       []OptionView       `json:"options,omitempty"`
	Points        int                `json:"points"`
	CorrectAnswer string             `json:"correctAnswer,omitempty"`
	Explanation   string             `json:"explanation,omitempty"`
}

// QuizView 对外的测验表示。脱敏视图不含正确选项、简答答案和解析
type QuizView struct {
	ID                 string         `json:"id"`
	Title              string         `json:"title"`
	Description        string         `json:"description"`
	CourseID           string         `json:"courseId"`
	CreatedBy          string         `json:"createdBy"`
	Questions          []QuestionView `json:"questions"`
	TimeLimit          int            `json:"timeLimit"`
	MaxAttempts        int            `json:"maxAttempts"`
	PassingScore       int            `json:"passingScore"`
	ShowResults        bool           `json:"showResults"`
	ShowCorrectAnswers bool           `json:"showCorrectAnswers"`
	RandomizeQuestions bool           `json:"randomizeQuestions"`
	StartDate          *time.Time     `json:"startDate,omitempty"`
	EndDate            *time.Time     `json:"endDate,omitempty"`
	IsActive           bool           `json:"isActive"`
	IsPublished        bool           `json:"isPublished"`
	TotalPoints        int            `json:"totalPoints"`
	TotalAttempts      int            `json:"totalAttempts"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

func NewQuizView(q *model.Quiz, includeAnswers bool) *QuizView {
	view := &QuizView{
		ID:                 q.ID,
		Title:              q.Title,
		Description:        q.Description,
		CourseID:           q.CourseID,
		CreatedBy:          q.CreatorID,
		Questions:          make([]QuestionView, 0, len(q.Questions)),
		TimeLimit:          q.TimeLimit,
		MaxAttempts:        q.MaxAttempts,
		PassingScore:       q.PassingScore,
		ShowResults:        q.ShowResults,
		ShowCorrectAnswers: q.ShowCorrectAnswers,
		RandomizeQuestions: q.RandomizeQuestions,
		StartDate:          q.StartDate,
		EndDate:            q.EndDate,
		IsActive:           q.IsActive,
		IsPublished:        q.IsPublished,
		TotalPoints:        q.TotalPoints,
		TotalAttempts:      q.TotalAttempts,
		CreatedAt:          q.CreatedAt,
		UpdatedAt:          q.UpdatedAt,
	}
	for _, question := range q.Questions {
		view.Questions = append(view.Questions, newQuestionView(question, includeAnswers))
	}
	return view
}

func newQuestionView(q model.Question, includeAnswers bool) QuestionView {
	v := QuestionView{
		ID:       q.ID,
		Question: q.Text,
		Type:     q.Type,
		Points:   q.Points,
	}
	for _, o := range q.Options {
		ov := OptionView{Text: o.Text}
		if includeAnswers {
			correct := o.IsCorrect
			ov.IsCorrect = &correct
		}
		v.Options = append(v.Options, ov)
	}
	if includeAnswers {
		v.CorrectAnswer = q.CorrectAnswer
		v.Explanation = q.Explanation
	}
	return v
}

// QuestionReview 提交后展示的正确答案与解析
type QuestionReview struct {
	QuestionID    string `json:"questionId"`
	CorrectAnswer string `json:"correctAnswer"`
	Explanation   string `json:"explanation,omitempty"`
}

func reviewFor(q model.Question) QuestionReview {
	r := QuestionReview{QuestionID: q.ID, Explanation: q.Explanation}
	if q.Type.IsChoice() {
		if opt, ok := q.CorrectOption(); ok {
			r.CorrectAnswer = opt.Text
		}
	} else {
		r.CorrectAnswer = q.CorrectAnswer
	}
	return r
}
