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

type ReservationRepository interface {
	Create(ctx context.Context, reservation *model.Reservation) error
	FindByID(ctx context.Context, id int64) (*model.Reservation, error)
	FindByIDs(ctx context.Context, ids []int64) ([]*model.Reservation, error)
	FindAll(ctx context.Context) ([]*model.Reservation, error)
	FindPage(ctx context.Context, limit int, offset int64) ([]*model.Reservation, error)
	FindOpenByItem(ctx context.Context, itemID int64) ([]*model.Reservation, error)
	Count(ctx context.Context) (int64, error)
	// MarkCompleted completes an open reservation and reports whether this
	// call made the transition.
	MarkCompleted(ctx context.Context, id int64, endedAt time.Time) (bool, error)
	Delete(ctx context.Context, id int64) error
	DetachItem(ctx context.Context, itemID int64) error
}

type mongoReservationRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoReservationRepository(cfg *config.Config) ReservationRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoReservationRepository{
		cfg:        cfg,
		collection: db.Collection(ReservationsCollection),
	}
}

func (r *mongoReservationRepository) Create(ctx context.Context, reservation *model.Reservation) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, reservation); err != nil {
		return fmt.Errorf("failed to create reservation: %w", err)
	}
	return nil
}

func (r *mongoReservationRepository) FindByID(ctx context.Context, id int64) (*model.Reservation, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var reservation model.Reservation
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&reservation)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %d", reservationserrors.ErrReservationNotFound, id)
		}
		return nil, fmt.Errorf("failed to find reservation: %w", err)
	}
	return &reservation, nil
}

func (r *mongoReservationRepository) FindByIDs(ctx context.Context, ids []int64) ([]*model.Reservation, error) {
	if len(ids) == 0 {
		return []*model.Reservation{}, nil
	}
	return r.find(ctx, bson.M{"_id": bson.M{"$in": ids}}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
}

func (r *mongoReservationRepository) FindAll(ctx context.Context) ([]*model.Reservation, error) {
	return r.find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
}

func (r *mongoReservationRepository) FindPage(ctx context.Context, limit int, offset int64) ([]*model.Reservation, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "start_date", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)
	return r.find(ctx, bson.M{}, opts)
}

func (r *mongoReservationRepository) FindOpenByItem(ctx context.Context, itemID int64) ([]*model.Reservation, error) {
	filter := bson.M{"item_ids": itemID, "completed": false}
	return r.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
}

func (r *mongoReservationRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*model.Reservation, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find reservations: %w", err)
	}
	defer cursor.Close(ctx)

	reservations := []*model.Reservation{}
	if err = cursor.All(ctx, &reservations); err != nil {
		return nil, fmt.Errorf("failed to decode reservations: %w", err)
	}
	return reservations, nil
}

func (r *mongoReservationRepository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count reservations: %w", err)
	}
	return count, nil
}

func (r *mongoReservationRepository) MarkCompleted(ctx context.Context, id int64, endedAt time.Time) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{"_id": id, "completed": false}
	update := bson.M{"$set": bson.M{
		"completed":        true,
		"planned_end_date": endedAt,
	}}
	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to complete reservation: %w", err)
	}
	return result.ModifiedCount == 1, nil
}

func (r *mongoReservationRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete reservation: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("%w: %d", reservationserrors.ErrReservationNotFound, id)
	}
	return nil
}

func (r *mongoReservationRepository) DetachItem(ctx context.Context, itemID int64) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{"item_ids": itemID}
	update := bson.M{"$pull": bson.M{"item_ids": itemID}}
	if _, err := r.collection.UpdateMany(ctx, filter, update); err != nil {
		return fmt.Errorf("failed to detach item %d: %w", itemID, err)
	}
	return nil
}
