package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventBookingStatusChanged = "booking_status_changed"
	EventPaymentsSynced       = "payments_synced"
	EventPayoutRunGenerated   = "payout_run_generated"
	EventPayoutRunLocked      = "payout_run_locked"
	EventPayoutRunDeleted     = "payout_run_deleted"
)

// BookingStatusPayload describes a status change for event consumers.
type BookingStatusPayload struct {
	BookingID      int64     `json:"booking_id"`
	AthleteID      int64     `json:"athlete_id"`
	AthleteName    string    `json:"athlete_name"`
	Field          string    `json:"field"`
	Value          string    `json:"value"`
	Status         string    `json:"status"`
	PaymentStatus  string    `json:"payment_status"`
	Attendance     string    `json:"attendance_status"`
	Date           time.Time `json:"date"`
	Warnings       []string  `json:"warnings,omitempty"`
}

// PayoutRunPayload is the run snapshot carried by payout run events.
type PayoutRunPayload struct {
	RunID          int64     `json:"run_id"`
	PeriodStart    time.Time `json:"period_start"`
	PeriodEnd      time.Time `json:"period_end"`
	Status         string    `json:"status"`
	TotalSessions  int64     `json:"total_sessions"`
	TotalOwedCents int64     `json:"total_owed_cents"`
	Failed         int       `json:"failed,omitempty"`
}

// PaymentsSyncedPayload summarizes a reconciliation batch.
type PaymentsSyncedPayload struct {
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
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

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
