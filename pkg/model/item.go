package model

import "time"

type Item struct {
	ID             int64     `json:"id" bson:"_id"`
	LookupToken    string    `json:"lookup_token" bson:"lookup_token"`
	Name           string    `json:"name" bson:"name" validate:"required,min=2,max=100"`
	SerialNumber   string    `json:"serial_number,omitempty" bson:"serial_number,omitempty" validate:"omitempty,max=100"`
	Notes          string    `json:"notes,omitempty" bson:"notes,omitempty" validate:"omitempty,max=500"`
	ModelRef       *int64    `json:"model_ref,omitempty" bson:"model_ref,omitempty" validate:"omitempty,gt=0"`
	ReservationIDs []int64   `json:"reservation_ids" bson:"reservation_ids"`
	Available      bool      `json:"available" bson:"-"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at"`
}
