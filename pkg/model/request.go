package model

import "time"

// SubRequest asks for Count items of one device model.
type SubRequest struct {
	ModelRef int64 `json:"model_ref" bson:"model_ref" validate:"required,gt=0"`
	Count    int   `json:"count" bson:"count" validate:"required,min=1,max=1000"`
}

// Request is a user's ask for items over an interval. Exactly one of
// DeviceCount or SubRequests is set.
type Request struct {
	ID              int64        `json:"id" bson:"_id"`
	UserCreated     string       `json:"user_created" bson:"user_created"`
	StartDate       time.Time    `json:"start_date" bson:"start_date" validate:"required"`
	PlannedEndDate  time.Time    `json:"planned_end_date" bson:"planned_end_date" validate:"required,gtfield=StartDate"`
	Note            string       `json:"note,omitempty" bson:"note,omitempty" validate:"omitempty,max=500"`
	DeviceCount     int          `json:"device_count,omitempty" bson:"device_count,omitempty" validate:"omitempty,min=1,max=1000"`
	SubRequests     []SubRequest `json:"sub_requests,omitempty" bson:"sub_requests,omitempty" validate:"omitempty,dive"`
	Priority        int          `json:"priority" bson:"priority" validate:"omitempty,min=0,max=10"`
	RequestAccepted bool         `json:"request_accepted" bson:"request_accepted"`
	ReservationID   *int64       `json:"reservation_id,omitempty" bson:"reservation_id,omitempty"`
	CreatedAt       time.Time    `json:"created_at" bson:"created_at"`
	ModifiedAt      time.Time    `json:"modified_at" bson:"modified_at"`
}

// RequestedTotal is the number of items the request asks for.
func (r *Request) RequestedTotal() int {
	if len(r.SubRequests) == 0 {
		return r.DeviceCount
	}
	total := 0
	for _, sub := range r.SubRequests {
		total += sub.Count
	}
	return total
}
