package mongo

import (
	"context"
	"errors"
	apperrors "loanbook/pkg/errors"

	"go.mongodb.org/mongo-driver/mongo"
)

const (
	transientTransactionLabel = "TransientTransactionError"
	unknownCommitLabel        = "UnknownTransactionCommitResult"
)

// ClassifyError maps a driver error onto the application taxonomy.
// AppErrors pass through unchanged and nil stays nil.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	if apperrors.IsAppError(err) {
		return err
	}

	if mongo.IsDuplicateKeyError(err) {
		return apperrors.Concurrency("a concurrent write touched the same record", err)
	}

	var labeled mongo.LabeledError
	if errors.As(err, &labeled) {
		if labeled.HasErrorLabel(transientTransactionLabel) || labeled.HasErrorLabel(unknownCommitLabel) {
			return apperrors.Concurrency("transaction aborted by a concurrent write", err)
		}
	}

	if mongo.IsNetworkError(err) ||
		mongo.IsTimeout(err) ||
		errors.Is(err, mongo.ErrClientDisconnected) ||
		errors.Is(err, context.DeadlineExceeded) {
		return apperrors.StoreUnavailable(err)
	}

	return apperrors.Internal("storage operation failed", err)
}
