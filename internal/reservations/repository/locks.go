package repository

import (
	"context"
	"fmt"
	reservationserrors "loanbook/internal/reservations/errors"
	"loanbook/pkg/config"
	"loanbook/pkg/model"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// ItemLocker provides short-lived advisory locks on single items.
// Lock returns ErrLockBusy when another owner holds an unexpired lock.
type ItemLocker interface {
	Lock(ctx context.Context, itemID int64, owner string, ttl time.Duration) error
	Unlock(ctx context.Context, itemID int64, owner string) error
}

func LockKey(itemID int64) string {
	return fmt.Sprintf("reservation_lock_item_%d", itemID)
}

type mongoItemLocker struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoItemLocker(cfg *config.Config) ItemLocker {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoItemLocker{
		cfg:        cfg,
		collection: db.Collection(LocksCollection),
	}
}

// Lock inserts a lock document; a duplicate key means the lock is held.
// Expired documents the TTL monitor has not reaped yet are taken over.
func (l *mongoItemLocker) Lock(ctx context.Context, itemID int64, owner string, ttl time.Duration) error {
	ctx, cancel := withTimeout(ctx, l.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC()
	lock := &model.ReservationLock{
		ID:        LockKey(itemID),
		Owner:     owner,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	_, err := l.collection.InsertOne(ctx, lock)
	if err == nil {
		return nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("failed to acquire lock for item %d: %w", itemID, err)
	}

	if _, err := l.collection.DeleteOne(ctx, bson.M{"_id": lock.ID, "expires_at": bson.M{"$lt": now}}); err != nil {
		return fmt.Errorf("failed to reap expired lock for item %d: %w", itemID, err)
	}
	if _, err := l.collection.InsertOne(ctx, lock); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: item %d", reservationserrors.ErrLockBusy, itemID)
		}
		return fmt.Errorf("failed to acquire lock for item %d: %w", itemID, err)
	}
	return nil
}

func (l *mongoItemLocker) Unlock(ctx context.Context, itemID int64, owner string) error {
	ctx, cancel := withTimeout(ctx, l.cfg.WriteTimeout)
	defer cancel()

	_, err := l.collection.DeleteOne(ctx, bson.M{"_id": LockKey(itemID), "owner": owner})
	if err != nil {
		return fmt.Errorf("failed to release lock for item %d: %w", itemID, err)
	}
	return nil
}
