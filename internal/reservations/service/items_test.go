package service

import (
	"context"
	"regexp"
	"testing"
	"time"

	apperrors "loanbook/pkg/errors"
	"loanbook/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var lookupTokenPattern = regexp.MustCompile(`^\d+-[0-9a-f]{32}$`)

func TestItemService_Register(t *testing.T) {
	f := newFixture(date(time.January, 1, 8))
	f.db.seedModel(3, "Camera")

	item, err := f.items.Register(context.Background(), &model.Item{
		Name:         "  Canon   EOS ",
		SerialNumber: " ab 12_cd ",
		ModelRef:     ref(3),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), item.ID)
	assert.Equal(t, "Canon EOS", item.Name)
	assert.Equal(t, "AB-12-CD", item.SerialNumber)
	assert.Regexp(t, lookupTokenPattern, item.LookupToken)
	assert.True(t, item.Available)
	assert.Empty(t, item.ReservationIDs)

	byToken, err := f.items.GetByLookupToken(context.Background(), " "+item.LookupToken+" ")
	require.NoError(t, err)
	assert.Equal(t, item.ID, byToken.ID)

	second, err := f.items.Register(context.Background(), &model.Item{Name: "Tripod"})
	require.NoError(t, err)
	assert.NotEqual(t, item.LookupToken, second.LookupToken)
}

func TestItemService_RegisterRejections(t *testing.T) {
	tests := []struct {
		name     string
		item     *model.Item
		wantCode string
	}{
		{"nil payload", nil, apperrors.CodeInvalidInput},
		{"name too short", &model.Item{Name: " x "}, apperrors.CodeValidation},
		{"unknown model", &model.Item{Name: "Drone", ModelRef: ref(99)}, apperrors.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(date(time.January, 1, 8))
			_, err := f.items.Register(context.Background(), tt.item)
			assert.True(t, apperrors.IsCode(err, tt.wantCode), "got %v", err)
		})
	}
}

func TestItemService_GetReportsAvailability(t *testing.T) {
	f := newFixture(date(time.January, 3, 12))
	a := f.db.seedItem("A", nil)

	got, err := f.items.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.True(t, got.Available)

	_, err = f.coordinator.Create(context.Background(),
		newCandidate("Now", date(time.January, 3, 9), date(time.January, 3, 17)), []int64{a.ID}, "u")
	require.NoError(t, err)

	got, err = f.items.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	assert.False(t, got.Available)

	_, err = f.items.GetByID(context.Background(), 404)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
	_, err = f.items.GetByLookupToken(context.Background(), "missing")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
	_, err = f.items.GetByLookupToken(context.Background(), "   ")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))
}

func TestItemService_DeleteGuardedByOpenReservations(t *testing.T) {
	f := newFixture(date(time.January, 1, 8))
	a := f.db.seedItem("A", nil)
	b := f.db.seedItem("B", nil)

	r, err := f.coordinator.Create(context.Background(),
		newCandidate("Shared", date(time.January, 3, 9), date(time.January, 3, 17)), []int64{a.ID, b.ID}, "u")
	require.NoError(t, err)

	err = f.items.Delete(context.Background(), a.ID)
	appErr := apperrors.AsAppError(err)
	require.Equal(t, apperrors.CodeConflict, appErr.Code)
	assert.Equal(t, []int64{r.ID}, appErr.Details["reservation_ids"])
	assert.NotNil(t, f.db.item(a.ID))

	f.clock.Set(date(time.January, 3, 12))
	_, err = f.coordinator.Finish(context.Background(), r.ID)
	require.NoError(t, err)

	require.NoError(t, f.items.Delete(context.Background(), a.ID))
	assert.Nil(t, f.db.item(a.ID))
	assert.Equal(t, []int64{b.ID}, f.db.reservation(r.ID).ItemIDs)
	assert.Zero(t, f.db.heldLocks())

	err = f.items.Delete(context.Background(), a.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}
