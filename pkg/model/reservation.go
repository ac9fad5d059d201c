package model

import "time"

type Reservation struct {
	ID               int64     `json:"id" bson:"_id"`
	Name             string    `json:"name" bson:"name" validate:"required,min=2,max=100"`
	Description      string    `json:"description,omitempty" bson:"description,omitempty" validate:"omitempty,max=500"`
	Responsible      string    `json:"responsible" bson:"responsible"`
	ItemIDs          []int64   `json:"item_ids" bson:"item_ids" validate:"required,min=1,unique,dive,gt=0"`
	StartDate        time.Time `json:"start_date" bson:"start_date" validate:"required"`
	PlannedEndDate   time.Time `json:"planned_end_date" bson:"planned_end_date" validate:"required,gtfield=StartDate"`
	Completed        bool      `json:"completed" bson:"completed"`
	ApprovalRequired bool      `json:"approval_required" bson:"approval_required"`
	Approved         bool      `json:"approved" bson:"approved"`
	RequestID        *int64    `json:"request_id,omitempty" bson:"request_id,omitempty"`
	Active           bool      `json:"active" bson:"-"`
	CreatedAt        time.Time `json:"created_at" bson:"created_at"`
}

// ContainsItem reports whether the reservation covers itemID.
func (r *Reservation) ContainsItem(itemID int64) bool {
	for _, id := range r.ItemIDs {
		if id == itemID {
			return true
		}
	}
	return false
}
