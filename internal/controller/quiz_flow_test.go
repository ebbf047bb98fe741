package controller

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"quiz_backend/internal/config"
	"quiz_backend/internal/event"
	"quiz_backend/internal/middleware"
	"quiz_backend/internal/model"
	"quiz_backend/internal/repository"
	"quiz_backend/internal/service"
	"quiz_backend/internal/testutil"
	"quiz_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const flowSecret = "controller-test-secret-0123456789abcdef"

type flow struct {
	t      *testing.T
	router *gin.Engine
	tokens map[string]string
}

func newFlow(t *testing.T) *flow {
	t.Helper()
	gin.SetMode(gin.TestMode)
	RegisterValidators()

	db := testutil.NewDB(t)
	quizRepo := repository.NewQuizRepository(db)
	attemptRepo := repository.NewAttemptRepository(db)
	userRepo := repository.NewUserRepository(db)
	events := &event.Recorder{}

	users := service.NewUserService(userRepo)
	quizzes := service.NewQuizService(quizRepo, attemptRepo, nil, events, 0)
	attempts := service.NewAttemptService(quizRepo, attemptRepo, userRepo, users, quizzes, events, config.DefaultQuizConfig())

	quizCtl := NewQuizController(quizzes, users, 20, 100)
	attemptCtl := NewAttemptController(attempts, 20, 100)
	provider := middleware.NewJWTProvider(flowSecret)

	r := gin.New()
	api := r.Group("/api")
	api.GET("/quizzes", quizCtl.ListQuizzes)
	api.GET("/quizzes/:id", middleware.TryAuth(provider), quizCtl.GetQuiz)

	auth := r.Group("/api")
	auth.Use(middleware.AuthMiddleware(provider))
	instructor := middleware.RoleMiddleware(userRepo, model.Instructor)
	admin := middleware.RoleMiddleware(userRepo, model.Admin)
	auth.POST("/quizzes/:id/start", attemptCtl.StartAttempt)
	auth.PUT("/quizzes/attempts/:attemptId/submit", attemptCtl.SubmitAttempt)
	auth.GET("/quizzes/my/attempts", attemptCtl.GetMyAttempts)
	auth.POST("/quizzes", instructor, quizCtl.CreateQuiz)
	auth.GET("/quizzes/:id/results", instructor, attemptCtl.GetQuizResults)
	auth.DELETE("/quizzes/:id/attempts", admin, quizCtl.PurgeAttempts)

	f := &flow{t: t, router: r, tokens: map[string]string{}}
	for uid, role := range map[string]model.UserRole{"author": model.Instructor, "root": model.Admin} {
		testutil.CreateUser(t, db, uid, role)
		f.tokens[uid] = f.sign(uid, role)
	}
	// 学生首次访问时自动注册
	f.tokens["alice"] = f.sign("alice", model.Student)
	f.tokens["bob"] = f.sign("bob", model.Student)
	return f
}

func (f *flow) sign(uid string, role model.UserRole) string {
	token, err := util.GenerateJWT(&model.User{UID: uid, Email: uid + "@example.com", DisplayName: uid, Role: role}, flowSecret, time.Hour)
	require.NoError(f.t, err)
	return token
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Kind    util.ErrorKind  `json:"kind"`
	Data    json.RawMessage `json:"data"`
}

func (f *flow) do(method, path, as string, body interface{}) (int, envelope) {
	f.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if as != "" {
		req.Header.Set("Authorization", "Bearer "+f.tokens[as])
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(f.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func (f *flow) createQuiz() service.QuizView {
	f.t.Helper()
	status, env := f.do(http.MethodPost, "/api/quizzes", "author", gin.H{
		"title":       "HTTP quiz",
		"description": "flow",
		"isPublished": true,
		"questions": []gin.H{
			{"question": "2+2", "options": []gin.H{{"text": "4", "isCorrect": true}, {"text": "5"}}, "points": 1},
			{"question": "capital of France", "type": "short-answer", "correctAnswer": "Paris", "points": 1},
		},
	})
	require.Equal(f.t, http.StatusCreated, status, env.Message)
	var view service.QuizView
	require.NoError(f.t, json.Unmarshal(env.Data, &view))
	return view
}

func TestQuizAttemptFlow(t *testing.T) {
	f := newFlow(t)
	quiz := f.createQuiz()
	require.Len(t, quiz.Questions, 2)

	// 匿名查看不含答案
	status, env := f.do(http.MethodGet, "/api/quizzes/"+quiz.ID+"?includeAnswers=true", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.NotContains(t, string(env.Data), "Paris")

	status, env = f.do(http.MethodPost, "/api/quizzes/"+quiz.ID+"/start", "alice", nil)
	require.Equal(t, http.StatusOK, status, env.Message)
	var started service.StartResult
	require.NoError(t, json.Unmarshal(env.Data, &started))
	assert.Equal(t, 1, started.Attempt.AttemptNumber)
	assert.NotContains(t, string(env.Data), "isCorrect")

	status, env = f.do(http.MethodPost, "/api/quizzes/"+quiz.ID+"/start", "alice", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, util.KindAttemptLimitExceeded, env.Kind)
	assert.Contains(t, env.Message, "1 of 1")

	submitPath := "/api/quizzes/attempts/" + started.Attempt.ID + "/submit"

	status, env = f.do(http.MethodPut, submitPath, "alice", gin.H{"answers": []gin.H{{"selectedOption": "4"}}})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, util.KindValidation, env.Kind)

	status, env = f.do(http.MethodPut, submitPath, "bob", gin.H{"answers": []gin.H{}})
	assert.Equal(t, http.StatusNotFound, status, "bob is not in the directory yet")

	answers := gin.H{"answers": []gin.H{
		{"questionId": quiz.Questions[0].ID, "selectedOption": "4"},
		{"questionId": quiz.Questions[1].ID, "textAnswer": " paris "},
	}}
	status, env = f.do(http.MethodPut, submitPath, "alice", answers)
	require.Equal(t, http.StatusOK, status, env.Message)
	var result service.SubmitResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, 100, result.Percentage)
	assert.Equal(t, "A", result.Grade)
	assert.True(t, result.Passed)

	status, env = f.do(http.MethodPut, submitPath, "alice", answers)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, util.KindAlreadySubmitted, env.Kind)

	status, env = f.do(http.MethodGet, "/api/quizzes/my/attempts", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	var mine []service.AttemptView
	require.NoError(t, json.Unmarshal(env.Data, &mine))
	require.Len(t, mine, 1)
	assert.Equal(t, model.AttemptGraded, mine[0].Status)

	status, env = f.do(http.MethodGet, "/api/quizzes/"+quiz.ID+"/results", "alice", nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, util.KindForbidden, env.Kind)

	status, env = f.do(http.MethodGet, "/api/quizzes/"+quiz.ID+"/results", "author", nil)
	require.Equal(t, http.StatusOK, status, env.Message)
	var results service.QuizResults
	require.NoError(t, json.Unmarshal(env.Data, &results))
	assert.Equal(t, 1, results.Statistics.TotalAttempts)
	assert.EqualValues(t, 100, results.Statistics.AverageScore)
	require.Len(t, results.Attempts, 1)
	require.NotNil(t, results.Attempts[0].Student)

	status, env = f.do(http.MethodDelete, "/api/quizzes/"+quiz.ID+"/attempts", "author", nil)
	assert.Equal(t, http.StatusForbidden, status)
	status, env = f.do(http.MethodDelete, "/api/quizzes/"+quiz.ID+"/attempts", "root", nil)
	require.Equal(t, http.StatusOK, status, env.Message)
	assert.JSONEq(t, `{"deleted":1}`, string(env.Data))
}

func TestQuizEndpointsErrors(t *testing.T) {
	f := newFlow(t)

	status, env := f.do(http.MethodGet, "/api/quizzes/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, util.KindNotFound, env.Kind)

	status, env = f.do(http.MethodPost, "/api/quizzes/missing/start", "alice", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = f.do(http.MethodPost, "/api/quizzes/missing/start", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	// 学生不能创建测验
	status, _ = f.do(http.MethodPost, "/api/quizzes", "alice", gin.H{"title": "x"})
	assert.Equal(t, http.StatusNotFound, status, "alice has not visited yet")

	status, env = f.do(http.MethodPost, "/api/quizzes", "author", gin.H{
		"title":       "bad type",
		"description": "d",
		"questions":   []gin.H{{"question": "q", "type": "essay", "correctAnswer": "x"}},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, env.Message, "must be one of")

	status, env = f.do(http.MethodPost, "/api/quizzes", "author", gin.H{
		"title":       "two correct",
		"description": "d",
		"questions": []gin.H{{"question": "q", "options": []gin.H{
			{"text": "a", "isCorrect": true}, {"text": "b", "isCorrect": true},
		}}},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, util.KindValidation, env.Kind)

	status, env = f.do(http.MethodGet, "/api/quizzes?limit=1", "", nil)
	require.Equal(t, http.StatusOK, status)
	var page service.QuizPage
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, 1, page.Pagination.Limit)
}
