package errors

import "errors"

var (
	ErrItemNotFound = errors.New("item not found")

	ErrReservationNotFound = errors.New("reservation not found")

	ErrRequestNotFound = errors.New("request not found")

	ErrDeviceModelNotFound = errors.New("device model not found")

	ErrLockBusy = errors.New("item is locked by another reservation in progress")

	ErrAlreadyCompleted = errors.New("reservation already completed")
)
