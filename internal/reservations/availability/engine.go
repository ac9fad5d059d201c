// Package availability holds the pure decision rules for item availability
// and reservation collisions. Nothing here touches storage or the wall clock;
// every function is a deterministic function of its arguments.
package availability

import (
	"loanbook/pkg/model"
	"sort"
	"time"
)

type Status int

const (
	Inactive Status = iota
	Active
)

func (s Status) String() string {
	if s == Active {
		return "active"
	}
	return "inactive"
}

// Classify reports whether r holds its items as of asOf.
//
// A completed reservation never holds its items. A reservation that has not
// started yet is inactive. Everything else is active, including a reservation
// whose planned end has passed without being completed: the items have not
// come back.
func Classify(r *model.Reservation, asOf time.Time) Status {
	if r.Completed {
		return Inactive
	}
	if r.StartDate.After(asOf) {
		return Inactive
	}
	return Active
}

// IsOverdue reports an uncompleted reservation past its planned end.
func IsOverdue(r *model.Reservation, asOf time.Time) bool {
	return !r.Completed && r.PlannedEndDate.Before(asOf)
}

// ItemAvailability marks an item available only when every reservation it
// references classifies inactive. References missing from reservations are
// ignored.
func ItemAvailability(items []*model.Item, reservations []*model.Reservation, asOf time.Time) map[int64]bool {
	byID := indexReservations(reservations)
	result := make(map[int64]bool, len(items))

	for _, item := range items {
		available := true
		for _, rid := range item.ReservationIDs {
			r, ok := byID[rid]
			if !ok {
				continue
			}
			if Classify(r, asOf) == Active {
				available = false
				break
			}
		}
		result[item.ID] = available
	}
	return result
}

// Annotate fills the derived Available and Active fields in place.
func Annotate(items []*model.Item, reservations []*model.Reservation, asOf time.Time) {
	for _, r := range reservations {
		r.Active = Classify(r, asOf) == Active
	}
	availability := ItemAvailability(items, reservations, asOf)
	for _, item := range items {
		item.Available = availability[item.ID]
	}
}

// NoCollision reports whether candidate may proceed against existing.
// The candidate must end strictly before or start strictly after each
// existing reservation; touching boundaries collide.
func NoCollision(existing []*model.Reservation, candidate *model.Reservation) bool {
	for _, ex := range existing {
		if collides(ex, candidate) {
			return false
		}
	}
	return true
}

// Collisions returns the members of existing that candidate overlaps.
func Collisions(existing []*model.Reservation, candidate *model.Reservation) []*model.Reservation {
	var offenders []*model.Reservation
	for _, ex := range existing {
		if collides(ex, candidate) {
			offenders = append(offenders, ex)
		}
	}
	return offenders
}

func collides(existing, candidate *model.Reservation) bool {
	before := candidate.PlannedEndDate.Before(existing.StartDate)
	after := candidate.StartDate.After(existing.PlannedEndDate)
	return !(before || after)
}

// Intersects reports whether r overlaps the closed window [start, end].
func Intersects(r *model.Reservation, start, end time.Time) bool {
	return !(r.PlannedEndDate.Before(start) || r.StartDate.After(end))
}

// ItemsAvailableInTimespan returns the items that no reservation intersecting
// [start, end] covers, ordered by id. Completion is not consulted.
func ItemsAvailableInTimespan(allItems []*model.Item, allReservations []*model.Reservation, start, end time.Time) []*model.Item {
	reserved := make(map[int64]struct{})
	for _, r := range allReservations {
		if !Intersects(r, start, end) {
			continue
		}
		for _, id := range r.ItemIDs {
			reserved[id] = struct{}{}
		}
	}

	available := make([]*model.Item, 0, len(allItems))
	for _, item := range allItems {
		if _, taken := reserved[item.ID]; !taken {
			available = append(available, item)
		}
	}
	sort.Slice(available, func(i, j int) bool { return available[i].ID < available[j].ID })
	return available
}

// ReferencedReservationIDs returns the sorted union of reservation ids the
// items point at.
func ReferencedReservationIDs(items []*model.Item) []int64 {
	seen := make(map[int64]struct{})
	ids := make([]int64, 0)
	for _, item := range items {
		for _, rid := range item.ReservationIDs {
			if _, ok := seen[rid]; ok {
				continue
			}
			seen[rid] = struct{}{}
			ids = append(ids, rid)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func indexReservations(reservations []*model.Reservation) map[int64]*model.Reservation {
	byID := make(map[int64]*model.Reservation, len(reservations))
	for _, r := range reservations {
		byID[r.ID] = r
	}
	return byID
}
