package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	EventReservationCreated   = "reservation_created"
	EventPaymentCompleted     = "payment_completed"
	EventReservationCancelled = "reservation_cancelled"
	EventReservationCompleted = "reservation_completed"
)

// ReservationEventTypes lists every event the booking engine emits.
func ReservationEventTypes() []string {
	return []string{
		EventReservationCreated,
		EventPaymentCompleted,
		EventReservationCancelled,
		EventReservationCompleted,
	}
}

// ReservationEventPayload is the reservation snapshot sent to event consumers.
type ReservationEventPayload struct {
	EventID       string    `json:"event_id"`
	ReservationID int64     `json:"reservation_id"`
	TableID       int64     `json:"table_id"`
	CustomerID    int64     `json:"customer_id"`
	Status        string    `json:"status"`
	StartAt       time.Time `json:"start_at"`
	EndAt         time.Time `json:"end_at"`
	FinalCost     int64     `json:"final_cost"`
	PaymentStatus string    `json:"payment_status,omitempty"`
	PaymentMethod string    `json:"payment_method,omitempty"`
	PromoCode     string    `json:"promo_code,omitempty"`
	ChangedBy     string    `json:"changed_by,omitempty"`
	ChangedByID   int64     `json:"changed_by_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewReservationEventPayload stamps a fresh event id and time.
func NewReservationEventPayload() ReservationEventPayload {
	return ReservationEventPayload{
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
	}
}

// Event represents a lightweight domain event.
type Event struct {
	ID        string
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll registers one handler for several event types.
func (b *EventBus) SubscribeAll(eventTypes []string, handler EventHandler) {
	for _, t := range eventTypes {
		b.Subscribe(t, handler)
	}
}

// Publish runs every subscriber of the event type synchronously. A failing handler does not
// stop the rest; their errors are joined.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	var errs []error
	for _, handler := range handlers {
		if err := handler(event); err != nil {
			errs = append(errs, fmt.Errorf("%s handler: %w", event.Type, err))
		}
	}
	return errors.Join(errs...)
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}

	return b.Publish(&event)
}

// NewJSONEvent builds an Event with JSON payload. A reservation payload keeps its own event id.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	id := uuid.NewString()
	if p, ok := payload.(ReservationEventPayload); ok && p.EventID != "" {
		id = p.EventID
	}

	return Event{ID: id, Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}

// Reservation decodes the payload of a reservation event.
func (e *Event) Reservation() (ReservationEventPayload, error) {
	var p ReservationEventPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return p, fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	if p.ReservationID == 0 {
		return p, fmt.Errorf("%s payload has no reservation id", e.Type)
	}
	return p, nil
}
