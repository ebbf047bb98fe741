// Package grading 纯函数判分：(题目, 提交答案) -> 每题对错与得分、总分、百分比、等级
package grading

import (
	"quiz_backend/internal/model"
	"strings"
)

// Strategy 判断单个答案是否正确
type Strategy interface {
	Correct(q model.Question, a model.Answer) bool
}

type Engine struct {
	strategies map[model.QuestionType]Strategy
}

func NewEngine() *Engine {
	return &Engine{
		strategies: map[model.QuestionType]Strategy{
			model.MultipleChoice: choiceStrategy{},
			model.TrueFalse:      choiceStrategy{},
			model.ShortAnswer:    shortAnswerStrategy{},
		},
	}
}

type Result struct {
	Answers      []model.Answer `json:"answers"`
	PointsEarned int            `json:"pointsEarned"`
	TotalPoints  int            `json:"totalPoints"`
	Percentage   int            `json:"percentage"`
	Passed       bool           `json:"passed"`
	Grade        string         `json:"grade"`
}

// Grade 对提交的答案判分。totalPoints 为答题开始时的快照，passingScore 为测验当前及格线。
// 客户端提交的 isCorrect/pointsEarned 一律重置；找不到题目的答案原样保留并记 0 分；
// 同一题目重复作答只对第一次判分。
func (e *Engine) Grade(questions []model.Question, answers []model.Answer, totalPoints, passingScore int) Result {
	byID := make(map[string]model.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	graded := make([]model.Answer, 0, len(answers))
	seen := make(map[string]struct{}, len(answers))
	earned := 0
	for _, a := range answers {
		a.IsCorrect = false
		a.PointsEarned = 0

		q, ok := byID[a.QuestionID]
		if !ok {
			graded = append(graded, a)
			continue
		}
		if q.Type.IsChoice() {
			a.TextAnswer = ""
		} else {
			a.SelectedOption = ""
		}
		if _, dup := seen[a.QuestionID]; dup {
			graded = append(graded, a)
			continue
		}
		seen[a.QuestionID] = struct{}{}

		if s, ok := e.strategies[q.Type]; ok && s.Correct(q, a) {
			a.IsCorrect = true
			a.PointsEarned = q.Points
			earned += q.Points
		}
		graded = append(graded, a)
	}

	pct := Percentage(earned, totalPoints)
	return Result{
		Answers:      graded,
		PointsEarned: earned,
		TotalPoints:  totalPoints,
		Percentage:   pct,
		Passed:       Passed(pct, passingScore),
		Grade:        LetterGrade(pct),
	}
}

// choiceStrategy 选择题/判断题：与标记为正确的选项文本完全一致（区分大小写，不去空格）
type choiceStrategy struct{}

func (choiceStrategy) Correct(q model.Question, a model.Answer) bool {
	opt, ok := q.CorrectOption()
	if !ok {
		return false
	}
	return a.SelectedOption == opt.Text
}

// shortAnswerStrategy 去除首尾空白并转小写后比较
type shortAnswerStrategy struct{}

func (shortAnswerStrategy) Correct(q model.Question, a model.Answer) bool {
	return normalize(a.TextAnswer) == normalize(q.CorrectAnswer)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
