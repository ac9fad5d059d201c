package events

import (
	"context"
	"strconv"
	"time"

	"loanbook/pkg/kafka"
	"loanbook/pkg/logger"
	"loanbook/pkg/model"
)

type EventType string

const (
	ReservationCreated   EventType = "reservation.created"
	ReservationFinished  EventType = "reservation.finished"
	ReservationCancelled EventType = "reservation.cancelled"

	SchemaVersion = "1"
	Source        = "reservations"
)

// ReservationEvent is the payload written to the reservations topic.
type ReservationEvent struct {
	EventType      EventType `json:"event_type"`
	ReservationID  int64     `json:"reservation_id"`
	ItemIDs        []int64   `json:"item_ids"`
	StartDate      time.Time `json:"start_date"`
	PlannedEndDate time.Time `json:"planned_end_date"`
	Completed      bool      `json:"completed"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Publisher emits reservation lifecycle events after commit. Publishing is
// best effort; callers log failures and carry on.
type Publisher interface {
	Publish(ctx context.Context, eventType EventType, r *model.Reservation, occurredAt time.Time) error
}

func NewEvent(eventType EventType, r *model.Reservation, occurredAt time.Time) ReservationEvent {
	return ReservationEvent{
		EventType:      eventType,
		ReservationID:  r.ID,
		ItemIDs:        r.ItemIDs,
		StartDate:      r.StartDate,
		PlannedEndDate: r.PlannedEndDate,
		Completed:      r.Completed,
		OccurredAt:     occurredAt,
	}
}

// MessagePublisher is satisfied by *kafka.Producer.
type MessagePublisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

type kafkaPublisher struct {
	producer MessagePublisher
	timeout  time.Duration
}

func NewKafkaPublisher(producer MessagePublisher, timeout time.Duration) Publisher {
	return &kafkaPublisher{producer: producer, timeout: timeout}
}

func (p *kafkaPublisher) Publish(ctx context.Context, eventType EventType, r *model.Reservation, occurredAt time.Time) error {
	msg, err := kafka.NewMessage().
		WithKey(strconv.FormatInt(r.ID, 10)).
		WithValue(NewEvent(eventType, r, occurredAt)).
		WithEventType(string(eventType)).
		WithSource(Source).
		WithSchemaVersion(SchemaVersion).
		WithTimestamp(occurredAt).
		Build()
	if err != nil {
		return err
	}

	// Detach from the request so a client disconnect after commit does not
	// drop the event.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	return p.producer.Publish(ctx, msg)
}

type noopPublisher struct {
	log *logger.Logger
}

// NewNoopPublisher is used when Kafka is disabled.
func NewNoopPublisher(log *logger.Logger) Publisher {
	return &noopPublisher{log: log}
}

func (p *noopPublisher) Publish(_ context.Context, eventType EventType, r *model.Reservation, _ time.Time) error {
	p.log.Debug("Kafka disabled, dropping event", "event_type", eventType, "reservation_id", r.ID)
	return nil
}
