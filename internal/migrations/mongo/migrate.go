package mongo

import (
	"context"
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"loanbook/internal/migrations/mongo/validators"
	"loanbook/internal/reservations/repository"
	"loanbook/pkg/logger"
)

var (
	ItemsIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "lookup_token", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("lookup_token_unique"),
		},
		{Keys: bson.D{{Key: "model_ref", Value: 1}}},
	}

	ReservationsIndexes = []mongo.IndexModel{
		{Keys: bson.D{{Key: "item_ids", Value: 1}, {Key: "completed", Value: 1}}},
		{Keys: bson.D{{Key: "start_date", Value: 1}, {Key: "planned_end_date", Value: 1}}},
		{
			Keys:    bson.D{{Key: "request_id", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
	}

	RequestsIndexes = []mongo.IndexModel{
		{Keys: bson.D{
			{Key: "request_accepted", Value: 1},
			{Key: "priority", Value: -1},
			{Key: "_id", Value: 1},
		}},
	}

	ReservationLocksIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("expires_at_ttl"),
		},
	}
)

type CollectionDef struct {
	Indexes   []mongo.IndexModel
	Validator bson.M
}

// Collections lists every collection the service relies on.
func Collections() map[string]CollectionDef {
	return map[string]CollectionDef{
		repository.ItemsCollection: {
			Indexes:   ItemsIndexes,
			Validator: validators.ItemValidator,
		},
		repository.ReservationsCollection: {
			Indexes:   ReservationsIndexes,
			Validator: validators.ReservationValidator,
		},
		repository.RequestsCollection: {
			Indexes:   RequestsIndexes,
			Validator: validators.RequestValidator,
		},
		repository.DeviceModelsCollection: {
			Validator: validators.DeviceModelValidator,
		},
		repository.CountersCollection: {
			Validator: validators.CounterValidator,
		},
		repository.LocksCollection: {
			Indexes:   ReservationLocksIndexes,
			Validator: validators.ReservationLockValidator,
		},
	}
}

func RunMigration(ctx context.Context, db *mongo.Database, log *logger.Logger) error {
	log.Info("Running Mongo migrations", "database", db.Name())

	defs := Collections()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		def := defs[name]
		if err := ensureCollection(ctx, db, name, def.Validator, log); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", name, err)
		}
		if err := ensureIndexes(ctx, db, name, def.Indexes, log); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", name, err)
		}
	}

	log.Info("All migrations applied successfully", "collections", len(names))
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M, log *logger.Logger) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		log.Info("Creating collection", "collection", name)
		opts := options.CreateCollection().SetValidator(validator)
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
		return nil
	}

	log.Info("Collection already exists, updating validator", "collection", name)
	command := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
	}
	if err := db.RunCommand(ctx, command).Err(); err != nil {
		log.Warn("Failed updating validator", "collection", name, "error", err)
	}
	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, name string, models []mongo.IndexModel, log *logger.Logger) error {
	if len(models) == 0 {
		return nil
	}
	coll := db.Collection(name)
	if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
		return err
	}
	log.Info("Ensured indexes", "collection", name, "count", len(models))
	return nil
}
