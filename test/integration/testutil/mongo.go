package testutil

import (
	"context"
	"testing"
	"time"

	"loanbook/internal/reservations/repository"
	"loanbook/pkg/client"
	"loanbook/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	DefaultMongoURI     = "mongodb://localhost:27017"
	DefaultDatabaseName = "loanbook_test"
	ConnectionTimeout   = 10 * time.Second
)

// ResetCollections are emptied between runs. Collections keep their
// validators and indexes.
var ResetCollections = []string{
	repository.ItemsCollection,
	repository.ReservationsCollection,
	repository.RequestsCollection,
	repository.CountersCollection,
	repository.LocksCollection,
}

type MongoHelper struct {
	Client   *mongo.Client
	Database *mongo.Database
	DBName   string
}

func NewMongoHelper(t *testing.T, mongoURI, dbName string) *MongoHelper {
	t.Helper()

	testLogger := logger.New(logger.Config{
		Service: "integration-tests",
		Level:   logger.DEBUG,
	})

	c := client.NewClient()
	c.SetMongo(testLogger, mongoURI, ConnectionTimeout)

	return &MongoHelper{
		Client:   c.Mongo,
		Database: c.Mongo.Database(dbName),
		DBName:   dbName,
	}
}

func (m *MongoHelper) Close(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.Client.Disconnect(ctx); err != nil {
		t.Logf("warning: failed to disconnect from MongoDB: %v", err)
	}
}

func (m *MongoHelper) CleanCollections(t *testing.T, names ...string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, name := range names {
		result, err := m.Database.Collection(name).DeleteMany(ctx, bson.M{})
		if err != nil {
			t.Fatalf("failed to clean collection %s: %v", name, err)
		}
		t.Logf("Cleaned %d documents from collection: %s", result.DeletedCount, name)
	}
}

func (m *MongoHelper) CountDocuments(t *testing.T, collectionName string, filter bson.M) int64 {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	count, err := m.Database.Collection(collectionName).CountDocuments(ctx, filter)
	if err != nil {
		t.Fatalf("failed to count documents in %s: %v", collectionName, err)
	}
	return count
}
