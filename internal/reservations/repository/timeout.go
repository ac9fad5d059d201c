package repository

import (
	"context"
	mongotx "loanbook/pkg/db/mongo"
	"time"
)

const (
	ItemsCollection        = "Items"
	ReservationsCollection = "Reservations"
	RequestsCollection     = "Requests"
	DeviceModelsCollection = "Device_models"
	CountersCollection     = "Counters"
	LocksCollection        = "Reservation_locks"
)

// withTimeout bounds ctx by timeout unless ctx is a transaction session,
// which cannot be wrapped without losing the session binding.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if mongotx.InTransaction(ctx) {
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return context.WithTimeout(ctx, timeout)
	}

	remaining := time.Until(deadline)
	if remaining < timeout {
		return context.WithTimeout(ctx, remaining)
	}

	return context.WithTimeout(ctx, timeout)
}
