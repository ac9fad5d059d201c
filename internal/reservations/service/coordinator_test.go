package service

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"loanbook/internal/reservations/availability"
	"loanbook/internal/reservations/events"
	apperrors "loanbook/pkg/errors"
	"loanbook/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinator_CreateCommitsReservationAndBackReferences(t *testing.T) {
	f := newFixture(date(time.January, 1, 8))
	a := f.db.seedItem("Camera A", nil)
	b := f.db.seedItem("Camera B", nil)

	r, err := f.coordinator.Create(context.Background(),
		newCandidate("  Field   trip ", date(time.January, 3, 9), date(time.January, 5, 17)),
		[]int64{b.ID, a.ID}, "user-1")
	require.NoError(t, err)

	assert.Equal(t, int64(1), r.ID)
	assert.Equal(t, "Field trip", r.Name)
	assert.Equal(t, "user-1", r.Responsible)
	assert.False(t, r.Completed)
	assert.False(t, r.Active, "future reservation is inactive")

	stored := f.db.reservation(r.ID)
	require.NotNil(t, stored)
	assert.ElementsMatch(t, []int64{a.ID, b.ID}, stored.ItemIDs)
	assert.Equal(t, []int64{r.ID}, f.db.item(a.ID).ReservationIDs)
	assert.Equal(t, []int64{r.ID}, f.db.item(b.ID).ReservationIDs)

	assert.Zero(t, f.db.heldLocks(), "locks must be released")
	assert.Equal(t, []recordedEvent{{Type: events.ReservationCreated, ReservationID: r.ID}}, f.publisher.recorded())
}

func TestCoordinator_CreateAssignsSequentialIDs(t *testing.T) {
	f := newFixture(date(time.January, 1, 8))
	a := f.db.seedItem("Camera", nil)

	first, err := f.coordinator.Create(context.Background(),
		newCandidate("First", date(time.January, 2, 9), date(time.January, 2, 12)), []int64{a.ID}, "u")
	require.NoError(t, err)
	second, err := f.coordinator.Create(context.Background(),
		newCandidate("Second", date(time.January, 3, 9), date(time.January, 3, 12)), []int64{a.ID}, "u")
	require.NoError(t, err)

	assert.Equal(t, first.ID+1, second.ID)
	assert.Equal(t, []int64{first.ID, second.ID}, f.db.item(a.ID).ReservationIDs)
}

func TestCoordinator_CreateRejections(t *testing.T) {
	start, end := date(time.January, 3, 9), date(time.January, 3, 17)

	tests := []struct {
		name     string
		setup    func(f *fixture) (*model.Reservation, []int64)
		wantCode string
	}{
		{
			name: "zero length interval",
			setup: func(f *fixture) (*model.Reservation, []int64) {
				a := f.db.seedItem("A", nil)
				return newCandidate("Zero", start, start), []int64{a.ID}
			},
			wantCode: apperrors.CodeValidation,
		},
		{
			name: "inverted interval",
			setup: func(f *fixture) (*model.Reservation, []int64) {
				a := f.db.seedItem("A", nil)
				return newCandidate("Inverted", end, start), []int64{a.ID}
			},
			wantCode: apperrors.CodeValidation,
		},
		{
			name: "empty item set",
			setup: func(f *fixture) (*model.Reservation, []int64) {
				return newCandidate("Nothing", start, end), []int64{}
			},
			wantCode: apperrors.CodeValidation,
		},
		{
			name: "unknown item",
			setup: func(f *fixture) (*model.Reservation, []int64) {
				a := f.db.seedItem("A", nil)
				return newCandidate("Missing", start, end), []int64{a.ID, 99}
			},
			wantCode: apperrors.CodeNotFound,
		},
		{
			name: "lock held by another caller",
			setup: func(f *fixture) (*model.Reservation, []int64) {
				a := f.db.seedItem("A", nil)
				require.NoError(t, f.db.stores().Locker.Lock(context.Background(), a.ID, "someone-else", time.Second))
				return newCandidate("Locked", start, end), []int64{a.ID}
			},
			wantCode: apperrors.CodeConcurrency,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(date(time.January, 1, 8))
			candidate, ids := tt.setup(f)

			_, err := f.coordinator.Create(context.Background(), candidate, ids, "u")
			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, tt.wantCode), "got %v", err)
			assert.Zero(t, f.db.reservationCount(), "rejection must not mutate")
			assert.Empty(t, f.publisher.recorded())
		})
	}
}

func TestCoordinator_CreateUnknownItemListsMissingIDs(t *testing.T) {
	f := newFixture(date(time.January, 1, 8))
	a := f.db.seedItem("A", nil)

	_, err := f.coordinator.Create(context.Background(),
		newCandidate("Missing", date(time.January, 3, 9), date(time.January, 3, 17)), []int64{a.ID, 42, 7}, "u")

	appErr := apperrors.AsAppError(err)
	require.Equal(t, apperrors.CodeNotFound, appErr.Code)
	assert.Equal(t, []int64{7, 42}, appErr.Details["ids"])
	assert.Empty(t, f.db.item(a.ID).ReservationIDs)
	assert.Zero(t, f.db.heldLocks())
}

func TestCoordinator_CreateCollisionReportsOffenders(t *testing.T) {
	f := newFixture(date(time.January, 1, 8))
	a := f.db.seedItem("A", nil)
	b := f.db.seedItem("B", nil)

	existing, err := f.coordinator.Create(context.Background(),
		newCandidate("Existing", date(time.January, 3, 0), date(time.January, 5, 0)), []int64{a.ID}, "u")
	require.NoError(t, err)

	_, err = f.coordinator.Create(context.Background(),
		newCandidate("Overlap", date(time.January, 4, 9), date(time.January, 4, 17)), []int64{b.ID, a.ID}, "u")
	appErr := apperrors.AsAppError(err)
	require.Equal(t, apperrors.CodeConflict, appErr.Code)
	assert.Equal(t, []int64{existing.ID}, appErr.Details["reservation_ids"])

	assert.Equal(t, 1, f.db.reservationCount())
	assert.Empty(t, f.db.item(b.ID).ReservationIDs, "rolled back")
}

func TestCoordinator_CreateTouchingBoundaryCollides(t *testing.T) {
	f := newFixture(date(time.January, 1, 8))
	a := f.db.seedItem("A", nil)

	_, err := f.coordinator.Create(context.Background(),
		newCandidate("First", date(time.January, 3, 9), date(time.January, 3, 12)), []int64{a.ID}, "u")
	require.NoError(t, err)

	_, err = f.coordinator.Create(context.Background(),
		newCandidate("Touching", date(time.January, 3, 12), date(time.January, 3, 15)), []int64{a.ID}, "u")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict), "got %v", err)
}

func TestCoordinator_CreateComparesAtMillisecondPrecision(t *testing.T) {
	f := newFixture(date(time.January, 1, 8))
	a := f.db.seedItem("A", nil)

	_, err := f.coordinator.Create(context.Background(),
		newCandidate("First", date(time.January, 3, 9), date(time.January, 3, 12)), []int64{a.ID}, "u")
	require.NoError(t, err)

	start := date(time.January, 3, 12).Add(500 * time.Microsecond)
	_, err = f.coordinator.Create(context.Background(),
		newCandidate("Sub-millisecond gap", start, date(time.January, 3, 15)), []int64{a.ID}, "u")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict), "got %v", err)
	assert.Equal(t, 1, f.db.reservationCount())
}

func TestCoordinator_CreateStoresTruncatedDates(t *testing.T) {
	f := newFixture(date(time.January, 1, 8))
	a := f.db.seedItem("A", nil)

	start := date(time.January, 3, 9).Add(1500 * time.Microsecond)
	end := date(time.January, 3, 12).Add(999 * time.Microsecond)
	r, err := f.coordinator.Create(context.Background(), newCandidate("Precise", start, end), []int64{a.ID}, "u")
	require.NoError(t, err)

	stored := f.db.reservation(r.ID)
	require.NotNil(t, stored)
	assert.Equal(t, date(time.January, 3, 9).Add(time.Millisecond), stored.StartDate)
	assert.Equal(t, date(time.January, 3, 12), stored.PlannedEndDate)
	assert.Equal(t, stored.StartDate, r.StartDate)
}

func TestCoordinator_FailedCommitLeavesCandidateUnchanged(t *testing.T) {
	f := newFixture(date(time.January, 1, 8))
	a := f.db.seedItem("A", nil)
	f.db.createReservationErr = errors.New("write failed")

	candidate := newCandidate("Doomed", date(time.January, 3, 9), date(time.January, 3, 12))
	_, err := f.coordinator.Create(context.Background(), candidate, []int64{a.ID}, "u")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInternal), "got %v", err)
	assert.Zero(t, candidate.ID)
	assert.True(t, candidate.CreatedAt.IsZero())

	f.db.createReservationErr = nil
	r, err := f.coordinator.Create(context.Background(), candidate, []int64{a.ID}, "u")
	require.NoError(t, err)
	assert.Equal(t, int64(1), r.ID, "sequence rolled back with the transaction")
}

func TestCoordinator_CompletedReservationsDoNotBlock(t *testing.T) {
	f := newFixture(date(time.January, 3, 10))
	a := f.db.seedItem("A", nil)

	r, err := f.coordinator.Create(context.Background(),
		newCandidate("Short", date(time.January, 3, 9), date(time.January, 5, 9)), []int64{a.ID}, "u")
	require.NoError(t, err)
	_, err = f.coordinator.Finish(context.Background(), r.ID)
	require.NoError(t, err)

	_, err = f.coordinator.Create(context.Background(),
		newCandidate("Follow up", date(time.January, 4, 9), date(time.January, 4, 17)), []int64{a.ID}, "u")
	assert.NoError(t, err)
}

// N concurrent creates for one item with overlapping intervals: exactly one
// wins and every loser sees a conflict or a concurrency error.
func TestCoordinator_SingleWriterRace(t *testing.T) {
	const callers = 25
	f := newFixture(date(time.January, 1, 8))
	a := f.db.seedItem("Projector", nil)

	var wg sync.WaitGroup
	errs := make([]error, callers)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			offset := time.Duration(i) * time.Minute
			_, errs[i] = f.coordinator.Create(context.Background(),
				newCandidate("Race", date(time.January, 4, 9).Add(offset), date(time.January, 4, 17).Add(offset)),
				[]int64{a.ID}, "u")
		}(i)
	}
	close(start)
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		ok := apperrors.IsCode(err, apperrors.CodeConflict) || apperrors.IsCode(err, apperrors.CodeConcurrency)
		assert.True(t, ok, "unexpected error: %v", err)
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, f.db.reservationCount())
	assert.Len(t, f.db.item(a.ID).ReservationIDs, 1)
	assert.Zero(t, f.db.heldLocks())
}

// Random candidates never leave two open reservations overlapping on a
// shared item.
func TestCoordinator_NoOverlapInvariant(t *testing.T) {
	f := newFixture(date(time.January, 1, 0))
	var ids []int64
	for i := 0; i < 4; i++ {
		ids = append(ids, f.db.seedItem("Item", nil).ID)
	}

	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 300; i++ {
		start := date(time.January, 1+rng.Intn(25), rng.Intn(24))
		end := start.Add(time.Duration(1+rng.Intn(60)) * time.Hour)
		var chosen []int64
		for _, id := range ids {
			if rng.Intn(2) == 0 {
				chosen = append(chosen, id)
			}
		}
		if len(chosen) == 0 {
			chosen = []int64{ids[rng.Intn(len(ids))]}
		}

		r, err := f.coordinator.Create(context.Background(), newCandidate("Random", start, end), chosen, "u")
		if err != nil {
			require.True(t, apperrors.IsCode(err, apperrors.CodeConflict), "unexpected error: %v", err)
			continue
		}
		if rng.Intn(5) == 0 {
			f.clock.Set(r.StartDate.Add(time.Hour))
			_, err := f.coordinator.Finish(context.Background(), r.ID)
			require.NoError(t, err)
		}
	}

	all := f.db.allReservations()
	for i := 0; i < len(all); i++ {
		for j := i + 1; j < len(all); j++ {
			x, y := all[i], all[j]
			if x.Completed || y.Completed || !sharesItem(x, y) {
				continue
			}
			assert.True(t, availability.NoCollision([]*model.Reservation{x}, y),
				"reservations %d and %d overlap on a shared item", x.ID, y.ID)
		}
	}
	for _, id := range ids {
		for _, rid := range f.db.item(id).ReservationIDs {
			r := f.db.reservation(rid)
			require.NotNil(t, r)
			assert.True(t, r.ContainsItem(id))
		}
	}
}

func sharesItem(x, y *model.Reservation) bool {
	for _, id := range x.ItemIDs {
		if y.ContainsItem(id) {
			return true
		}
	}
	return false
}

func TestCoordinator_FinishIsIdempotent(t *testing.T) {
	f := newFixture(date(time.January, 3, 8))
	a := f.db.seedItem("A", nil)

	r, err := f.coordinator.Create(context.Background(),
		newCandidate("Loan", date(time.January, 2, 9), date(time.January, 6, 9)), []int64{a.ID}, "u")
	require.NoError(t, err)

	f.clock.Set(date(time.January, 4, 12))
	first, err := f.coordinator.Finish(context.Background(), r.ID)
	require.NoError(t, err)
	assert.True(t, first.Completed)
	assert.Equal(t, date(time.January, 4, 12), first.PlannedEndDate)

	f.clock.Set(date(time.January, 5, 12))
	second, err := f.coordinator.Finish(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Completed, second.Completed)
	assert.Equal(t, first.PlannedEndDate, second.PlannedEndDate)
	assert.Equal(t, first.ItemIDs, second.ItemIDs)

	finished := 0
	for _, e := range f.publisher.recorded() {
		if e.Type == events.ReservationFinished {
			finished++
		}
	}
	assert.Equal(t, 1, finished)
}

func TestCoordinator_FinishBeforeStartEndsAtStart(t *testing.T) {
	f := newFixture(date(time.January, 1, 8))
	a := f.db.seedItem("A", nil)

	r, err := f.coordinator.Create(context.Background(),
		newCandidate("Later", date(time.January, 3, 9), date(time.January, 4, 9)), []int64{a.ID}, "u")
	require.NoError(t, err)

	done, err := f.coordinator.Finish(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.StartDate, done.PlannedEndDate)
}

func TestCoordinator_FinishUnknown(t *testing.T) {
	f := newFixture(date(time.January, 1, 8))

	_, err := f.coordinator.Finish(context.Background(), 404)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	_, err = f.coordinator.Finish(context.Background(), 0)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))
}

func TestCoordinator_CancelDetachesItems(t *testing.T) {
	f := newFixture(date(time.January, 1, 8))
	a := f.db.seedItem("A", nil)
	b := f.db.seedItem("B", nil)

	r, err := f.coordinator.Create(context.Background(),
		newCandidate("Cancelled", date(time.January, 3, 9), date(time.January, 3, 17)), []int64{a.ID, b.ID}, "u")
	require.NoError(t, err)

	require.NoError(t, f.coordinator.Cancel(context.Background(), r.ID))
	assert.Nil(t, f.db.reservation(r.ID))
	assert.Empty(t, f.db.item(a.ID).ReservationIDs)
	assert.Empty(t, f.db.item(b.ID).ReservationIDs)
	assert.Contains(t, f.publisher.recorded(), recordedEvent{Type: events.ReservationCancelled, ReservationID: r.ID})

	err = f.coordinator.Cancel(context.Background(), r.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	_, err = f.coordinator.Create(context.Background(),
		newCandidate("Rebooked", date(time.January, 3, 9), date(time.January, 3, 17)), []int64{a.ID}, "u")
	assert.NoError(t, err)
}

func TestCoordinator_PublishFailureDoesNotFailCreate(t *testing.T) {
	f := newFixture(date(time.January, 1, 8))
	f.publisher.err = errors.New("broker down")
	a := f.db.seedItem("A", nil)

	r, err := f.coordinator.Create(context.Background(),
		newCandidate("Best effort", date(time.January, 3, 9), date(time.January, 3, 17)), []int64{a.ID}, "u")
	require.NoError(t, err)
	assert.NotNil(t, f.db.reservation(r.ID))
}

func TestCoordinator_GetByIDAndGetAll(t *testing.T) {
	f := newFixture(date(time.January, 3, 12))
	a := f.db.seedItem("A", nil)

	var created []*model.Reservation
	for day := 2; day <= 6; day++ {
		r, err := f.coordinator.Create(context.Background(),
			newCandidate("Daily", date(time.January, day, 9), date(time.January, day, 17)), []int64{a.ID}, "u")
		require.NoError(t, err)
		created = append(created, r)
	}

	got, err := f.coordinator.GetByID(context.Background(), created[1].ID)
	require.NoError(t, err)
	assert.True(t, got.Active, "in progress as of Jan 3 noon")

	page, total, err := f.coordinator.GetAll(context.Background(), 2, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, page, 2)
	assert.Equal(t, created[1].ID, page[0].ID)
	assert.Equal(t, created[2].ID, page[1].ID)

	_, err = f.coordinator.GetByID(context.Background(), 999)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

// Item A holds R1 = [Jan 3, Jan 5]. Booking before it succeeds, booking inside
// it conflicts, and finishing R1 frees A for the following days.
func TestScenario_FinishFreesItem(t *testing.T) {
	ctx := context.Background()
	f := newFixture(date(time.January, 1, 0))
	a := f.db.seedItem("A", nil)

	r1, err := f.coordinator.Create(ctx, newCandidate("R1", date(time.January, 3, 0), date(time.January, 5, 0)), []int64{a.ID}, "u")
	require.NoError(t, err)

	_, err = f.coordinator.Create(ctx, newCandidate("Early", date(time.January, 1, 0), date(time.January, 2, 0)), []int64{a.ID}, "u")
	require.NoError(t, err)

	_, err = f.coordinator.Create(ctx, newCandidate("Inside", date(time.January, 4, 9), date(time.January, 4, 17)), []int64{a.ID}, "u")
	require.True(t, apperrors.IsCode(err, apperrors.CodeConflict), "got %v", err)

	free, err := f.availability.ItemsAvailableInTimespan(ctx, date(time.January, 1, 0), date(time.January, 10, 0))
	require.NoError(t, err)
	assert.Empty(t, free)

	free, err = f.availability.ItemsAvailableInTimespan(ctx, date(time.January, 4, 18), date(time.January, 10, 0))
	require.NoError(t, err)
	assert.Empty(t, free, "R1 still holds A until Jan 5")

	f.clock.Set(date(time.January, 4, 12))
	_, err = f.coordinator.Finish(ctx, r1.ID)
	require.NoError(t, err)

	for _, window := range [][2]time.Time{
		{date(time.January, 4, 18), date(time.January, 10, 0)},
		{date(time.January, 6, 0), date(time.January, 10, 0)},
	} {
		free, err = f.availability.ItemsAvailableInTimespan(ctx, window[0], window[1])
		require.NoError(t, err)
		require.Len(t, free, 1)
		assert.Equal(t, a.ID, free[0].ID)
	}
}
