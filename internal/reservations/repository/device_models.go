package repository

import (
	"context"
	"fmt"
	"loanbook/pkg/config"
	"loanbook/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// DeviceModelRepository is a read-only view of the device catalog.
type DeviceModelRepository interface {
	FindByIDs(ctx context.Context, ids []int64) ([]*model.DeviceModel, error)
}

type mongoDeviceModelRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoDeviceModelRepository(cfg *config.Config) DeviceModelRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoDeviceModelRepository{
		cfg:        cfg,
		collection: db.Collection(DeviceModelsCollection),
	}
}

func (r *mongoDeviceModelRepository) FindByIDs(ctx context.Context, ids []int64) ([]*model.DeviceModel, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	cursor, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("failed to find device models: %w", err)
	}
	defer cursor.Close(ctx)

	models := []*model.DeviceModel{}
	if err = cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("failed to decode device models: %w", err)
	}
	return models, nil
}
