package repository

import (
	"context"
	"fmt"
	"loanbook/pkg/config"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	SequenceItems        = "items"
	SequenceReservations = "reservations"
	SequenceRequests     = "requests"
)

// SequenceRepository hands out strictly increasing ids per named sequence.
type SequenceRepository interface {
	Next(ctx context.Context, name string) (int64, error)
}

type mongoSequenceRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoSequenceRepository(cfg *config.Config) SequenceRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoSequenceRepository{
		cfg:        cfg,
		collection: db.Collection(CountersCollection),
	}
}

type counter struct {
	Name  string `bson:"_id"`
	Value int64  `bson:"value"`
}

func (r *mongoSequenceRepository) Next(ctx context.Context, name string) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var c counter
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		opts,
	).Decode(&c)
	if err != nil {
		return 0, fmt.Errorf("failed to advance sequence %s: %w", name, err)
	}
	return c.Value, nil
}
