package mongostore

import (
	"context"
	"errors"
	"fmt"
	"quiz_backend/internal/model"
	"quiz_backend/internal/repository"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type AttemptRepository struct {
	collection *mongo.Collection
}

func NewAttemptRepository(database *mongo.Database, collection string) *AttemptRepository {
	return &AttemptRepository{
		collection: database.Collection(collection),
	}
}

// InitializeIndexes (quiz_id, student_id, attempt_number) 唯一索引是并发开始答题的串行化点
func (r *AttemptRepository) InitializeIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "quiz_id", Value: 1},
				{Key: "student_id", Value: 1},
				{Key: "attempt_number", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("idx_attempt_quiz_student_number"),
		},
		{
			Keys: bson.D{
				{Key: "quiz_id", Value: 1},
				{Key: "status", Value: 1},
			},
			Options: options.Index().SetName("idx_attempt_quiz_status"),
		},
		{
			Keys: bson.D{
				{Key: "student_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("idx_attempt_student_created"),
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func (r *AttemptRepository) CountByQuizAndStudent(ctx context.Context, quizID, studentID string) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{
		"quiz_id":    quizID,
		"student_id": studentID,
	})
	return count, translateError(err)
}

func (r *AttemptRepository) MaxAttemptNumber(ctx context.Context, quizID, studentID string) (int, error) {
	var last struct {
		AttemptNumber int `bson:"attempt_number"`
	}
	opts := options.FindOne().
		SetSort(bson.D{{Key: "attempt_number", Value: -1}}).
		SetProjection(bson.M{"attempt_number": 1})
	err := r.collection.FindOne(ctx, bson.M{
		"quiz_id":    quizID,
		"student_id": studentID,
	}, opts).Decode(&last)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, translateError(err)
	}
	return last.AttemptNumber, nil
}

func (r *AttemptRepository) Create(ctx context.Context, attempt *model.Attempt) error {
	now := time.Now()
	if attempt.ID == "" {
		attempt.ID = model.GenerateUUID()
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = now
	}
	attempt.UpdatedAt = now

	_, err := r.collection.InsertOne(ctx, attempt)
	return translateError(err)
}

func (r *AttemptRepository) FindByID(ctx context.Context, id string) (*model.Attempt, error) {
	var a model.Attempt
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&a); err != nil {
		return nil, translateError(err)
	}
	return &a, nil
}

func (r *AttemptRepository) Finalize(ctx context.Context, attempt *model.Attempt) (bool, error) {
	now := time.Now()
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": attempt.ID, "status": model.AttemptInProgress},
		bson.M{"$set": bson.M{
			"answers":       attempt.Answers,
			"status":        attempt.Status,
			"submitted_at":  attempt.SubmittedAt,
			"time_spent":    attempt.TimeSpent,
			"points_earned": attempt.PointsEarned,
			"percentage":    attempt.Percentage,
			"passed":        attempt.Passed,
			"graded_at":     attempt.GradedAt,
			"updated_at":    now,
		}})
	if err != nil {
		return false, translateError(err)
	}
	if res.MatchedCount == 0 {
		return false, nil
	}
	attempt.UpdatedAt = now
	return true, nil
}

func (r *AttemptRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptionsBuilder) ([]model.Attempt, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, translateError(err)
	}
	defer cursor.Close(ctx)

	var attempts []model.Attempt
	if err := cursor.All(ctx, &attempts); err != nil {
		return nil, translateError(err)
	}
	return attempts, nil
}

func (r *AttemptRepository) ListByStudent(ctx context.Context, studentID string) ([]model.Attempt, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return r.find(ctx, bson.M{"student_id": studentID}, opts)
}

func (r *AttemptRepository) ListByQuiz(ctx context.Context, quizID string, offset, limit int) ([]model.Attempt, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	return r.find(ctx, bson.M{"quiz_id": quizID}, opts)
}

func (r *AttemptRepository) CountByQuiz(ctx context.Context, quizID string) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"quiz_id": quizID})
	return count, translateError(err)
}

func (r *AttemptRepository) ScoresByQuiz(ctx context.Context, quizID string) ([]repository.ScoreRow, error) {
	opts := options.Find().SetProjection(bson.M{"percentage": 1, "passed": 1})
	cursor, err := r.collection.Find(ctx, bson.M{"quiz_id": quizID}, opts)
	if err != nil {
		return nil, translateError(err)
	}
	defer cursor.Close(ctx)

	var rows []repository.ScoreRow
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, translateError(err)
	}
	return rows, nil
}

// inProgressQuery quizID 为空时跨所有测验
func inProgressQuery(quizID string, startedBefore time.Time) bson.M {
	filter := bson.M{
		"status":     model.AttemptInProgress,
		"started_at": bson.M{"$lt": startedBefore},
	}
	if quizID != "" {
		filter["quiz_id"] = quizID
	}
	return filter
}

func (r *AttemptRepository) ListInProgress(ctx context.Context, quizID string, startedBefore time.Time) ([]model.Attempt, error) {
	opts := options.Find().SetSort(bson.D{{Key: "started_at", Value: 1}})
	return r.find(ctx, inProgressQuery(quizID, startedBefore), opts)
}

func (r *AttemptRepository) DeleteByQuiz(ctx context.Context, quizID string) (int64, error) {
	res, err := r.collection.DeleteMany(ctx, bson.M{"quiz_id": quizID})
	if err != nil {
		return 0, translateError(err)
	}
	return res.DeletedCount, nil
}
