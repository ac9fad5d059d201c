package repository

import (
	"context"
	"errors"
	"fmt"
	reservationserrors "loanbook/internal/reservations/errors"
	"loanbook/pkg/config"
	"loanbook/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ItemRepository interface {
	Create(ctx context.Context, item *model.Item) error
	FindByID(ctx context.Context, id int64) (*model.Item, error)
	FindByIDs(ctx context.Context, ids []int64) ([]*model.Item, error)
	FindByLookupToken(ctx context.Context, token string) (*model.Item, error)
	FindAll(ctx context.Context) ([]*model.Item, error)
	// AttachReservation appends reservationID to every listed item and
	// returns how many items matched.
	AttachReservation(ctx context.Context, reservationID int64, itemIDs []int64) (int64, error)
	DetachReservation(ctx context.Context, reservationID int64) error
	Delete(ctx context.Context, id int64) error
}

type mongoItemRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoItemRepository(cfg *config.Config) ItemRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoItemRepository{
		cfg:        cfg,
		collection: db.Collection(ItemsCollection),
	}
}

func (r *mongoItemRepository) Create(ctx context.Context, item *model.Item) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if item.ReservationIDs == nil {
		item.ReservationIDs = []int64{}
	}
	if _, err := r.collection.InsertOne(ctx, item); err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}
	return nil
}

func (r *mongoItemRepository) FindByID(ctx context.Context, id int64) (*model.Item, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var item model.Item
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&item)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %d", reservationserrors.ErrItemNotFound, id)
		}
		return nil, fmt.Errorf("failed to find item: %w", err)
	}
	return &item, nil
}

func (r *mongoItemRepository) FindByIDs(ctx context.Context, ids []int64) ([]*model.Item, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find items: %w", err)
	}
	defer cursor.Close(ctx)

	items := []*model.Item{}
	if err = cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("failed to decode items: %w", err)
	}
	return items, nil
}

func (r *mongoItemRepository) FindByLookupToken(ctx context.Context, token string) (*model.Item, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var item model.Item
	err := r.collection.FindOne(ctx, bson.M{"lookup_token": token}).Decode(&item)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, reservationserrors.ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to find item by token: %w", err)
	}
	return &item, nil
}

func (r *mongoItemRepository) FindAll(ctx context.Context) ([]*model.Item, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer cursor.Close(ctx)

	items := []*model.Item{}
	if err = cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("failed to decode items: %w", err)
	}
	return items, nil
}

func (r *mongoItemRepository) AttachReservation(ctx context.Context, reservationID int64, itemIDs []int64) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{"_id": bson.M{"$in": itemIDs}}
	update := bson.M{"$push": bson.M{"reservation_ids": reservationID}}
	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("failed to attach reservation %d: %w", reservationID, err)
	}
	return result.MatchedCount, nil
}

func (r *mongoItemRepository) DetachReservation(ctx context.Context, reservationID int64) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{"reservation_ids": reservationID}
	update := bson.M{"$pull": bson.M{"reservation_ids": reservationID}}
	if _, err := r.collection.UpdateMany(ctx, filter, update); err != nil {
		return fmt.Errorf("failed to detach reservation %d: %w", reservationID, err)
	}
	return nil
}

func (r *mongoItemRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("%w: %d", reservationserrors.ErrItemNotFound, id)
	}
	return nil
}
