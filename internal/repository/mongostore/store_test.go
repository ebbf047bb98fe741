package mongostore

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"quiz_backend/internal/model"
	"quiz_backend/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// newTestStores 需要 QUIZ_TEST_MONGO_URI，否则跳过
func newTestStores(t *testing.T) *Stores {
	t.Helper()
	uri := os.Getenv("QUIZ_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("QUIZ_TEST_MONGO_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	require.NoError(t, err)

	db := client.Database("quiz_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		db.Drop(ctx)
		client.Disconnect(ctx)
	})

	stores := New(db)
	require.NoError(t, stores.InitializeIndexes(ctx))
	return stores
}

func TestMongoAttemptLifecycle(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	quiz := &model.Quiz{Title: "mongo", MaxAttempts: 2, IsActive: true, IsPublished: true}
	quiz.Questions = []model.Question{{ID: "q1", Type: model.MultipleChoice, Points: 2,
		Options: []model.Option{{Text: "4", IsCorrect: true}, {Text: "5"}}}}
	quiz.RecomputeTotalPoints()
	require.NoError(t, stores.Quizzes.Create(ctx, quiz))
	require.NotEmpty(t, quiz.ID)

	max, err := stores.Attempts.MaxAttemptNumber(ctx, quiz.ID, "stu-1")
	require.NoError(t, err)
	assert.Zero(t, max)

	started := time.Now().UTC().Truncate(time.Millisecond)
	a := &model.Attempt{QuizID: quiz.ID, StudentID: "stu-1", AttemptNumber: 1,
		Status: model.AttemptInProgress, StartedAt: started, TotalPoints: 2}
	require.NoError(t, stores.Attempts.Create(ctx, a))

	dup := &model.Attempt{QuizID: quiz.ID, StudentID: "stu-1", AttemptNumber: 1,
		Status: model.AttemptInProgress, StartedAt: started}
	err = stores.Attempts.Create(ctx, dup)
	assert.True(t, errors.Is(err, repository.ErrDuplicateKey), "got %v", err)

	max, err = stores.Attempts.MaxAttemptNumber(ctx, quiz.ID, "stu-1")
	require.NoError(t, err)
	assert.Equal(t, 1, max)

	overdue, err := stores.Attempts.ListInProgress(ctx, "", started.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, overdue, 1)

	now := time.Now().UTC()
	a.Status = model.AttemptGraded
	a.Percentage = 100
	a.Passed = true
	a.SubmittedAt = &now
	applied, err := stores.Attempts.Finalize(ctx, a)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = stores.Attempts.Finalize(ctx, a)
	require.NoError(t, err)
	assert.False(t, applied)

	require.NoError(t, stores.Quizzes.IncrementTotalAttempts(ctx, quiz.ID))
	stored, err := stores.Quizzes.FindByID(ctx, quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.TotalAttempts)

	rows, err := stores.Attempts.ScoresByQuiz(ctx, quiz.ID)
	require.NoError(t, err)
	assert.Equal(t, []repository.ScoreRow{{Percentage: 100, Passed: true}}, rows)

	deleted, err := stores.Attempts.DeleteByQuiz(ctx, quiz.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	_, err = stores.Attempts.FindByID(ctx, a.ID)
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestMongoUserUIDIsUnique(t *testing.T) {
	stores := newTestStores(t)
	ctx := context.Background()

	u := &model.User{UID: "ext-1", Email: "a@example.com", DisplayName: "a", Role: model.Student}
	require.NoError(t, stores.Users.Create(ctx, u))
	err := stores.Users.Create(ctx, &model.User{UID: "ext-1", Email: "b@example.com", DisplayName: "b", Role: model.Student})
	assert.True(t, errors.Is(err, repository.ErrDuplicateKey), "got %v", err)

	require.NoError(t, stores.Users.UpdateRole(ctx, u.ID, model.Instructor))
	found, err := stores.Users.FindByUID(ctx, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, model.Instructor, found.Role)
}
