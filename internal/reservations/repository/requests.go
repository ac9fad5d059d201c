package repository

import (
	"context"
	"errors"
	"fmt"
	reservationserrors "loanbook/internal/reservations/errors"
	"loanbook/pkg/config"
	"loanbook/pkg/model"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type RequestRepository interface {
	Create(ctx context.Context, request *model.Request) error
	FindByID(ctx context.Context, id int64) (*model.Request, error)
	FindPending(ctx context.Context, limit int, offset int64) ([]*model.Request, error)
	CountPending(ctx context.Context) (int64, error)
	// MarkAccepted flips a pending request to accepted. It returns
	// ErrRequestNotFound when no pending request with id exists.
	MarkAccepted(ctx context.Context, id, reservationID int64, modifiedAt time.Time) error
	DeletePending(ctx context.Context, id int64) error
}

type mongoRequestRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoRequestRepository(cfg *config.Config) RequestRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoRequestRepository{
		cfg:        cfg,
		collection: db.Collection(RequestsCollection),
	}
}

func (r *mongoRequestRepository) Create(ctx context.Context, request *model.Request) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, request); err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

func (r *mongoRequestRepository) FindByID(ctx context.Context, id int64) (*model.Request, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var request model.Request
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&request)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %d", reservationserrors.ErrRequestNotFound, id)
		}
		return nil, fmt.Errorf("failed to find request: %w", err)
	}
	return &request, nil
}

func (r *mongoRequestRepository) FindPending(ctx context.Context, limit int, offset int64) ([]*model.Request, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "priority", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, bson.M{"request_accepted": false}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find pending requests: %w", err)
	}
	defer cursor.Close(ctx)

	requests := []*model.Request{}
	if err = cursor.All(ctx, &requests); err != nil {
		return nil, fmt.Errorf("failed to decode requests: %w", err)
	}
	return requests, nil
}

func (r *mongoRequestRepository) CountPending(ctx context.Context) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{"request_accepted": false})
	if err != nil {
		return 0, fmt.Errorf("failed to count pending requests: %w", err)
	}
	return count, nil
}

func (r *mongoRequestRepository) MarkAccepted(ctx context.Context, id, reservationID int64, modifiedAt time.Time) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{"_id": id, "request_accepted": false}
	update := bson.M{"$set": bson.M{
		"request_accepted": true,
		"reservation_id":   reservationID,
		"modified_at":      modifiedAt,
	}}
	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to accept request: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: %d", reservationserrors.ErrRequestNotFound, id)
	}
	return nil
}

func (r *mongoRequestRepository) DeletePending(ctx context.Context, id int64) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id, "request_accepted": false})
	if err != nil {
		return fmt.Errorf("failed to delete request: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("%w: %d", reservationserrors.ErrRequestNotFound, id)
	}
	return nil
}
