package grading

import (
	"testing"

	"quiz_backend/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func choice(id string, points int, correct string, others ...string) model.Question {
	q := model.Question{ID: id, Text: "q-" + id, Type: model.MultipleChoice, Points: points}
	q.Options = append(q.Options, model.Option{Text: correct, IsCorrect: true})
	for _, o := range others {
		q.Options = append(q.Options, model.Option{Text: o})
	}
	return q
}

func TestGradeAllCorrectMultipleChoice(t *testing.T) {
	questions := []model.Question{
		choice("q1", 1, "4", "3", "5"),
		choice("q2", 1, "Go", "Rust"),
	}
	answers := []model.Answer{
		{QuestionID: "q1", SelectedOption: "4"},
		{QuestionID: "q2", SelectedOption: "Go"},
	}

	res := NewEngine().Grade(questions, answers, 2, 60)

	assert.Equal(t, 2, res.PointsEarned)
	assert.Equal(t, 2, res.TotalPoints)
	assert.Equal(t, 100, res.Percentage)
	assert.Equal(t, "A", res.Grade)
	assert.True(t, res.Passed)
	for _, a := range res.Answers {
		assert.True(t, a.IsCorrect)
		assert.Equal(t, 1, a.PointsEarned)
	}
}

func TestGradeChoiceIsCaseSensitive(t *testing.T) {
	questions := []model.Question{choice("q1", 2, "Paris", "London")}

	res := NewEngine().Grade(questions, []model.Answer{{QuestionID: "q1", SelectedOption: "paris"}}, 2, 50)
	assert.False(t, res.Answers[0].IsCorrect)
	assert.Zero(t, res.PointsEarned)

	res = NewEngine().Grade(questions, []model.Answer{{QuestionID: "q1", SelectedOption: " Paris"}}, 2, 50)
	assert.False(t, res.Answers[0].IsCorrect)
}

func TestGradeShortAnswerTrimsAndLowercases(t *testing.T) {
	questions := []model.Question{{ID: "q1", Type: model.ShortAnswer, CorrectAnswer: "Paris", Points: 3}}

	res := NewEngine().Grade(questions, []model.Answer{{QuestionID: "q1", TextAnswer: " paris "}}, 3, 60)

	require.Len(t, res.Answers, 1)
	assert.True(t, res.Answers[0].IsCorrect)
	assert.Equal(t, 3, res.Answers[0].PointsEarned)
	assert.Equal(t, 100, res.Percentage)
}

func TestGradeShortAnswerNoFuzzyMatch(t *testing.T) {
	questions := []model.Question{{ID: "q1", Type: model.ShortAnswer, CorrectAnswer: "Paris", Points: 1}}

	res := NewEngine().Grade(questions, []model.Answer{{QuestionID: "q1", TextAnswer: "Pariss"}}, 1, 60)
	assert.False(t, res.Answers[0].IsCorrect)
}

func TestGradeNoCorrectOptionNeverCorrect(t *testing.T) {
	q := model.Question{ID: "q1", Type: model.TrueFalse, Points: 1, Options: []model.Option{{Text: "True"}, {Text: "False"}}}

	res := NewEngine().Grade([]model.Question{q}, []model.Answer{{QuestionID: "q1", SelectedOption: "True"}}, 1, 0)
	assert.False(t, res.Answers[0].IsCorrect)
	assert.Zero(t, res.PointsEarned)
}

func TestGradeUnknownQuestionPassesThrough(t *testing.T) {
	questions := []model.Question{choice("q1", 1, "a", "b")}
	answers := []model.Answer{
		{QuestionID: "ghost", SelectedOption: "a", IsCorrect: true, PointsEarned: 99},
		{QuestionID: "q1", SelectedOption: "a"},
	}

	res := NewEngine().Grade(questions, answers, 1, 60)

	require.Len(t, res.Answers, 2)
	assert.Equal(t, "ghost", res.Answers[0].QuestionID)
	assert.Equal(t, "a", res.Answers[0].SelectedOption)
	assert.False(t, res.Answers[0].IsCorrect)
	assert.Zero(t, res.Answers[0].PointsEarned)
	assert.Equal(t, 1, res.PointsEarned)
}

func TestGradeIgnoresClientSuppliedScores(t *testing.T) {
	questions := []model.Question{choice("q1", 5, "a", "b")}
	answers := []model.Answer{{QuestionID: "q1", SelectedOption: "b", IsCorrect: true, PointsEarned: 5}}

	res := NewEngine().Grade(questions, answers, 5, 60)

	assert.False(t, res.Answers[0].IsCorrect)
	assert.Zero(t, res.Answers[0].PointsEarned)
	assert.Zero(t, res.PointsEarned)
	assert.Equal(t, "F", res.Grade)
}

func TestGradeDuplicateAnswerScoredOnce(t *testing.T) {
	questions := []model.Question{choice("q1", 2, "a", "b")}
	answers := []model.Answer{
		{QuestionID: "q1", SelectedOption: "a"},
		{QuestionID: "q1", SelectedOption: "a"},
	}

	res := NewEngine().Grade(questions, answers, 2, 60)

	assert.Equal(t, 2, res.PointsEarned)
	assert.Equal(t, 100, res.Percentage)
	assert.True(t, res.Answers[0].IsCorrect)
	assert.False(t, res.Answers[1].IsCorrect)
}

func TestGradeUsesFrozenTotal(t *testing.T) {
	// 快照总分 4，当前题目总分只剩 2
	questions := []model.Question{choice("q1", 1, "a"), choice("q2", 1, "a")}
	answers := []model.Answer{{QuestionID: "q1", SelectedOption: "a"}, {QuestionID: "q2", SelectedOption: "a"}}

	res := NewEngine().Grade(questions, answers, 4, 60)

	assert.Equal(t, 2, res.PointsEarned)
	assert.Equal(t, 4, res.TotalPoints)
	assert.Equal(t, 50, res.Percentage)
	assert.False(t, res.Passed)
}

func TestGradeZeroTotal(t *testing.T) {
	questions := []model.Question{choice("q1", 0, "a")}

	res := NewEngine().Grade(questions, []model.Answer{{QuestionID: "q1", SelectedOption: "a"}}, 0, 0)

	assert.Zero(t, res.Percentage)
	assert.True(t, res.Answers[0].IsCorrect)
	assert.True(t, res.Passed)
}

func TestGradeIsDeterministic(t *testing.T) {
	questions := []model.Question{
		choice("q1", 3, "x", "y"),
		{ID: "q2", Type: model.ShortAnswer, CorrectAnswer: "Blue", Points: 2},
		choice("q3", 4, "z", "w"),
	}
	answers := []model.Answer{
		{QuestionID: "q1", SelectedOption: "x"},
		{QuestionID: "q2", TextAnswer: "blue "},
		{QuestionID: "q3", SelectedOption: "w"},
	}

	engine := NewEngine()
	first := engine.Grade(questions, answers, 9, 50)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, engine.Grade(questions, answers, 9, 50))
	}
	assert.Equal(t, 5, first.PointsEarned)
	assert.Equal(t, 56, first.Percentage)
}

func TestGradeDoesNotMutateInput(t *testing.T) {
	questions := []model.Question{choice("q1", 1, "a")}
	answers := []model.Answer{{QuestionID: "q1", SelectedOption: "a", TextAnswer: "junk"}}

	NewEngine().Grade(questions, answers, 1, 60)

	assert.False(t, answers[0].IsCorrect)
	assert.Equal(t, "junk", answers[0].TextAnswer)
}
