package ledger

import (
	"context"
	"time"
)

// EventType names a ledger lifecycle event.
type EventType string

const (
	LedgerRegistered EventType = "ledger:registered"
	FetchStart       EventType = "ledger:fetch:start"
	FetchSuccess     EventType = "ledger:fetch:success"
	FetchFailed      EventType = "ledger:fetch:failed"
	ComputeSuccess   EventType = "ledger:compute:success"
	ComputeFailed    EventType = "ledger:compute:failed"
)

// Event is emitted around every fetch and computation of a ledger.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"` // Unix milliseconds.
	Ledger    string    `json:"ledger"`
	Operation string    `json:"operation"`
	Error     *string   `json:"error,omitempty"`
	Duration  *int64    `json:"duration,omitempty"` // Milliseconds.
	// Rows is the number of records fetched, or rows left after computing.
	Rows    *int           `json:"rows,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// EventCallback receives ledger events.
type EventCallback func(ctx context.Context, event Event) error

// Subscription describes a registered event callback.
type Subscription struct {
	ID          string    `json:"id"`
	Event       EventType `json:"event"`
	Label       string    `json:"label,omitempty"`
	Description string    `json:"description,omitempty"`

	unsubscribe func()
}

// SubscribeOptions configure a subscription.
type SubscribeOptions struct {
	Event       EventType
	Label       string
	Description string
	Callback    EventCallback
}

func newEvent(eventType EventType, operation, ledger string, started time.Time, rows *int, err error) Event {
	now := time.Now()
	event := Event{
		Type:      eventType,
		Timestamp: now.UnixMilli(),
		Ledger:    ledger,
		Operation: operation,
		Rows:      rows,
	}
	if !started.IsZero() {
		d := now.Sub(started).Milliseconds()
		event.Duration = &d
	}
	if err != nil {
		msg := err.Error()
		event.Error = &msg
	}
	return event
}
