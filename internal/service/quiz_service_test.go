package service

import (
	"context"
	"errors"
	"testing"

	"quiz_backend/internal/model"
	"quiz_backend/internal/testutil"
	"quiz_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func validCreateRequest() QuizCreateRequest {
	return QuizCreateRequest{
		Title:       "Go basics",
		Description: "warm-up",
		Questions: []QuestionInput{
			{Question: "2+2", Options: []OptionInput{{Text: "4", IsCorrect: true}, {Text: "5"}}, Points: intPtr(2)},
			{Question: "Go is compiled", Type: model.TrueFalse, Options: []OptionInput{{Text: "true", IsCorrect: true}, {Text: "false"}}},
			{Question: "capital of France", Type: model.ShortAnswer, CorrectAnswer: " Paris ", Explanation: "geography"},
		},
	}
}

func TestCreateQuizAppliesDefaults(t *testing.T) {
	f := newFixture(t)
	author := f.instructor(t)

	view, err := f.quizzes.CreateQuiz(context.Background(), author, validCreateRequest())
	require.NoError(t, err)

	assert.Equal(t, 4, view.TotalPoints)
	assert.Equal(t, DefaultTimeLimit, view.TimeLimit)
	assert.Equal(t, DefaultMaxAttempts, view.MaxAttempts)
	assert.Equal(t, DefaultPassingScore, view.PassingScore)
	assert.Equal(t, DefaultCourseID, view.CourseID)
	assert.Equal(t, author.ID, view.CreatedBy)
	assert.True(t, view.IsActive)
	assert.False(t, view.IsPublished)
	require.Len(t, view.Questions, 3)
	assert.Equal(t, model.MultipleChoice, view.Questions[0].Type)
	assert.Equal(t, "Paris", view.Questions[2].CorrectAnswer)
	for _, q := range view.Questions {
		assert.NotEmpty(t, q.ID)
	}

	stored := f.reloadQuiz(t, view.ID)
	assert.Equal(t, 4, stored.TotalPoints)
	assert.Len(t, stored.Questions, 3)
}

func TestCreateQuizValidation(t *testing.T) {
	f := newFixture(t)
	author := f.instructor(t)

	cases := []struct {
		name   string
		mutate func(*QuizCreateRequest)
	}{
		{"no questions", func(r *QuizCreateRequest) { r.Questions = nil }},
		{"blank title", func(r *QuizCreateRequest) { r.Title = "  " }},
		{"two correct options", func(r *QuizCreateRequest) {
			r.Questions[0].Options = []OptionInput{{Text: "4", IsCorrect: true}, {Text: "four", IsCorrect: true}}
		}},
		{"no correct option", func(r *QuizCreateRequest) {
			r.Questions[0].Options = []OptionInput{{Text: "4"}, {Text: "5"}}
		}},
		{"single option", func(r *QuizCreateRequest) {
			r.Questions[0].Options = []OptionInput{{Text: "4", IsCorrect: true}}
		}},
		{"short answer without answer", func(r *QuizCreateRequest) { r.Questions[2].CorrectAnswer = " " }},
		{"unknown type", func(r *QuizCreateRequest) { r.Questions[0].Type = "essay" }},
		{"negative points", func(r *QuizCreateRequest) { r.Questions[0].Points = intPtr(-1) }},
		{"passing score above 100", func(r *QuizCreateRequest) { r.PassingScore = intPtr(101) }},
		{"zero max attempts", func(r *QuizCreateRequest) { r.MaxAttempts = intPtr(0) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validCreateRequest()
			tc.mutate(&req)
			_, err := f.quizzes.CreateQuiz(context.Background(), author, req)
			assert.True(t, errors.Is(err, util.ErrValidation), "got %v", err)
		})
	}
}

func TestCreateQuizRequiresAuthorRole(t *testing.T) {
	f := newFixture(t)
	student := testutil.CreateUser(t, f.db, "stu-author", model.Student)

	_, err := f.quizzes.CreateQuiz(context.Background(), student, validCreateRequest())
	assert.True(t, errors.Is(err, util.ErrForbidden))

	_, err = f.quizzes.CreateQuiz(context.Background(), nil, validCreateRequest())
	assert.True(t, errors.Is(err, util.ErrForbidden))
}

func TestGetQuizRedactsAnswers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	author := f.instructor(t)
	created, err := f.quizzes.CreateQuiz(ctx, author, validCreateRequest())
	require.NoError(t, err)

	student := testutil.CreateUser(t, f.db, "stu-peek", model.Student)

	redacted, err := f.quizzes.GetQuiz(ctx, created.ID, student, true)
	require.NoError(t, err)
	for _, q := range redacted.Questions {
		assert.Empty(t, q.CorrectAnswer)
		assert.Empty(t, q.Explanation)
		for _, o := range q.Options {
			assert.Nil(t, o.IsCorrect)
		}
	}

	anonymous, err := f.quizzes.GetQuiz(ctx, created.ID, nil, true)
	require.NoError(t, err)
	assert.Empty(t, anonymous.Questions[2].CorrectAnswer)

	full, err := f.quizzes.GetQuiz(ctx, created.ID, author, true)
	require.NoError(t, err)
	assert.Equal(t, "Paris", full.Questions[2].CorrectAnswer)
	assert.Equal(t, "geography", full.Questions[2].Explanation)
	require.NotNil(t, full.Questions[0].Options[0].IsCorrect)
	assert.True(t, *full.Questions[0].Options[0].IsCorrect)

	_, err = f.quizzes.GetQuiz(ctx, "missing", nil, false)
	assert.True(t, errors.Is(err, util.ErrNotFound))
}

func TestRandomizedViewKeepsAllQuestions(t *testing.T) {
	f := newFixture(t)
	questions := make([]model.Question, 0, 10)
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"} {
		questions = append(questions, testutil.ChoiceQuestion(id, "yes", 1, "no"))
	}
	quiz := testutil.CreateQuiz(t, f.db, f.instructor(t).ID, questions, func(q *model.Quiz) {
		q.RandomizeQuestions = true
	})

	view := f.quizzes.RedactedView(quiz)
	ids := make([]string, 0, len(view.Questions))
	for _, q := range view.Questions {
		ids = append(ids, q.ID)
	}
	assert.ElementsMatch(t, []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}, ids)
	assert.Equal(t, "a", quiz.Questions[0].ID)
}

func TestUpdateQuizOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.instructor(t)
	created, err := f.quizzes.CreateQuiz(ctx, owner, validCreateRequest())
	require.NoError(t, err)

	title := "Renamed"
	_, err = f.quizzes.UpdateQuiz(ctx, f.instructor(t), created.ID, QuizUpdateRequest{Title: &title})
	assert.True(t, errors.Is(err, util.ErrForbidden))

	admin := testutil.CreateUser(t, f.db, "admin-edit", model.Admin)
	view, err := f.quizzes.UpdateQuiz(ctx, admin, created.ID, QuizUpdateRequest{Title: &title, IsPublished: boolPtr(true)})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", view.Title)
	assert.True(t, view.IsPublished)
	assert.Equal(t, 4, view.TotalPoints)

	_, err = f.quizzes.UpdateQuiz(ctx, owner, created.ID, QuizUpdateRequest{PassingScore: intPtr(-5)})
	assert.True(t, errors.Is(err, util.ErrValidation))

	_, err = f.quizzes.UpdateQuiz(ctx, owner, "missing", QuizUpdateRequest{Title: &title})
	assert.True(t, errors.Is(err, util.ErrNotFound))
}

func TestDeleteQuizIsSoft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	author := f.instructor(t)
	quiz := testutil.CreateQuiz(t, f.db, author.ID, twoChoiceQuestions())

	require.NoError(t, f.quizzes.DeleteQuiz(ctx, quiz.ID))

	page, err := f.quizzes.ListQuizzes(ctx, ListQuizzesQuery{Page: 1, Limit: 20})
	require.NoError(t, err)
	assert.Empty(t, page.Quizzes)

	view, err := f.quizzes.GetQuiz(ctx, quiz.ID, nil, false)
	require.NoError(t, err)
	assert.False(t, view.IsActive)

	_, err = f.attempts.StartAttempt(ctx, quiz.ID, studentIdentity("stu-deleted"), ClientContext{})
	assert.True(t, errors.Is(err, util.ErrUnavailable))

	assert.True(t, errors.Is(f.quizzes.DeleteQuiz(ctx, "missing"), util.ErrNotFound))
}

func TestListQuizzesFiltersAndPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.instructor(t)
	bob := f.instructor(t)
	for i := 0; i < 3; i++ {
		testutil.CreateQuiz(t, f.db, alice.ID, twoChoiceQuestions(), func(q *model.Quiz) { q.CourseID = "go-101" })
	}
	testutil.CreateQuiz(t, f.db, bob.ID, twoChoiceQuestions(), func(q *model.Quiz) { q.IsPublished = false })

	page, err := f.quizzes.ListQuizzes(ctx, ListQuizzesQuery{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Quizzes, 2)
	assert.Equal(t, util.Pagination{Page: 1, Limit: 2, Total: 4, Pages: 2}, page.Pagination)

	page, err = f.quizzes.ListQuizzes(ctx, ListQuizzesQuery{CourseID: "go-101", Page: 1, Limit: 20})
	require.NoError(t, err)
	assert.Len(t, page.Quizzes, 3)

	page, err = f.quizzes.ListQuizzes(ctx, ListQuizzesQuery{CreatedBy: bob.ID, Page: 1, Limit: 20})
	require.NoError(t, err)
	require.Len(t, page.Quizzes, 1)
	assert.False(t, page.Quizzes[0].IsPublished)

	page, err = f.quizzes.ListQuizzes(ctx, ListQuizzesQuery{IsPublished: boolPtr(true), Page: 1, Limit: 20})
	require.NoError(t, err)
	assert.Len(t, page.Quizzes, 3)
	for _, q := range page.Quizzes {
		for _, question := range q.Questions {
			for _, o := range question.Options {
				assert.Nil(t, o.IsCorrect)
			}
		}
	}
}

func TestPurgeAttempts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	quiz := testutil.CreateQuiz(t, f.db, f.instructor(t).ID, twoChoiceQuestions(), func(q *model.Quiz) {
		q.MaxAttempts = 2
	})
	student := studentIdentity("stu-purge")
	for i := 0; i < 2; i++ {
		_, err := f.attempts.StartAttempt(ctx, quiz.ID, student, ClientContext{})
		require.NoError(t, err)
	}

	deleted, err := f.quizzes.PurgeAttempts(ctx, quiz.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	purged := f.events.Events(util.EventAttemptsPurged)
	require.Len(t, purged, 1)
	assert.EqualValues(t, 2, purged[0].Deleted)

	// 清理后序号重新从 1 开始
	started, err := f.attempts.StartAttempt(ctx, quiz.ID, student, ClientContext{})
	require.NoError(t, err)
	assert.Equal(t, 1, started.Attempt.AttemptNumber)

	_, err = f.quizzes.PurgeAttempts(ctx, "missing")
	assert.True(t, errors.Is(err, util.ErrNotFound))
}
