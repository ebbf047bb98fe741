package mongostore

import (
	"context"
	"fmt"
	"quiz_backend/internal/model"
	"quiz_backend/internal/repository"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type QuizRepository struct {
	collection *mongo.Collection
}

func NewQuizRepository(database *mongo.Database, collection string) *QuizRepository {
	return &QuizRepository{
		collection: database.Collection(collection),
	}
}

func (r *QuizRepository) InitializeIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "creator_id", Value: 1},
				{Key: "is_active", Value: 1},
			},
		},
		{
			Keys: bson.D{
				{Key: "course_id", Value: 1},
				{Key: "is_published", Value: 1},
			},
		},
		{
			Keys: bson.D{
				{Key: "created_at", Value: -1},
			},
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func (r *QuizRepository) Create(ctx context.Context, quiz *model.Quiz) error {
	quiz.Touch(time.Now())
	_, err := r.collection.InsertOne(ctx, quiz)
	return translateError(err)
}

func (r *QuizRepository) Update(ctx context.Context, quiz *model.Quiz) error {
	quiz.Touch(time.Now())
	res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": quiz.ID}, quiz)
	if err != nil {
		return translateError(err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *QuizRepository) FindByID(ctx context.Context, id string) (*model.Quiz, error) {
	var quiz model.Quiz
	if err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&quiz); err != nil {
		return nil, translateError(err)
	}
	return &quiz, nil
}

func (r *QuizRepository) FindByIDs(ctx context.Context, ids []string) ([]model.Quiz, error) {
	ids = repository.UniqueIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	cursor, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, translateError(err)
	}
	defer cursor.Close(ctx)

	var quizzes []model.Quiz
	if err := cursor.All(ctx, &quizzes); err != nil {
		return nil, translateError(err)
	}
	return quizzes, nil
}

// listQuery 与 SQL 后端的 List 条件一致
func listQuery(filter repository.QuizFilter) bson.M {
	query := bson.M{}
	if filter.ActiveOnly {
		query["is_active"] = true
	}
	if filter.CourseID != "" {
		query["course_id"] = filter.CourseID
	}
	if filter.CreatedBy != "" {
		query["creator_id"] = filter.CreatedBy
	}
	if filter.IsPublished != nil {
		query["is_published"] = *filter.IsPublished
	}
	return query
}

func (r *QuizRepository) List(ctx context.Context, filter repository.QuizFilter, offset, limit int) ([]model.Quiz, int64, error) {
	query := listQuery(filter)

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, translateError(err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, translateError(err)
	}
	defer cursor.Close(ctx)

	var quizzes []model.Quiz
	if err := cursor.All(ctx, &quizzes); err != nil {
		return nil, 0, translateError(err)
	}
	return quizzes, total, nil
}

func (r *QuizRepository) SetActive(ctx context.Context, id string, active bool) error {
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"is_active": active, "updated_at": time.Now()},
	})
	if err != nil {
		return translateError(err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *QuizRepository) IncrementTotalAttempts(ctx context.Context, id string) error {
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$inc": bson.M{"total_attempts": 1},
	})
	return translateError(err)
}
