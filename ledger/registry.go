package ledger

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/asaidimu/go-events"
	"github.com/asaidimu/go-tabula/core/schema"
	"github.com/asaidimu/go-tabula/core/view"
	"github.com/asaidimu/go-tabula/export"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Registry holds the ledgers a deployment serves.
type Registry struct {
	ledgers map[string]*Ledger
	order   []string
	mu      sync.RWMutex

	bus           *events.TypedEventBus[Event]
	subscriptions map[string]*Subscription
	subMu         sync.RWMutex

	logger *zap.Logger
}

// NewRegistry creates an empty registry with its own event bus.
func NewRegistry(logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	bus, err := events.NewTypedEventBus[Event](events.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create event bus: %w", err)
	}
	return &Registry{
		ledgers:       make(map[string]*Ledger),
		bus:           bus,
		subscriptions: make(map[string]*Subscription),
		logger:        logger,
	}, nil
}

// Register adds a ledger under its name.
func (r *Registry) Register(l *Ledger) error {
	r.mu.Lock()
	if _, exists := r.ledgers[l.Name]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: '%s'", ErrDuplicateLedger, l.Name)
	}
	r.ledgers[l.Name] = l
	r.order = append(r.order, l.Name)
	r.mu.Unlock()

	r.logger.Info("Registered ledger", zap.String("ledger", l.Name), zap.String("schema", l.Schema().Name))
	r.emit(newEvent(LedgerRegistered, "register", l.Name, time.Time{}, nil, nil))
	return nil
}

// Get returns the named ledger.
func (r *Registry) Get(name string) (*Ledger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.ledgers[name]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownLedger, name)
	}
	return l, nil
}

// Ledgers returns the registered ledgers in registration order.
func (r *Registry) Ledgers() []*Ledger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Ledger, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.ledgers[name])
	}
	return out
}

// Fetch loads every record of the named ledger.
func (r *Registry) Fetch(ctx context.Context, name string) ([]schema.Document, error) {
	l, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return r.fetch(ctx, l)
}

func (r *Registry) fetch(ctx context.Context, l *Ledger) ([]schema.Document, error) {
	started := time.Now()
	r.emit(newEvent(FetchStart, "fetch", l.Name, started, nil, nil))

	records, err := l.Provider.Fetch(ctx)
	if err != nil {
		r.logger.Error("Failed to fetch ledger", zap.String("ledger", l.Name), zap.Error(err))
		r.emit(newEvent(FetchFailed, "fetch", l.Name, started, nil, err))
		return nil, &FetchError{Ledger: l.Name, Err: err}
	}

	n := len(records)
	r.emit(newEvent(FetchSuccess, "fetch", l.Name, started, &n, nil))
	return records, nil
}

// Render fetches the named ledger and computes its view for state. Masked
// columns are redacted in the returned rows; aggregates see the stored values.
func (r *Registry) Render(ctx context.Context, name string, state view.ViewState) (*view.Result, error) {
	l, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	result, err := r.render(ctx, l, state)
	if err != nil {
		return nil, err
	}
	for i, row := range result.Rows {
		result.Rows[i] = l.Layout.Redact(row)
	}
	return result, nil
}

func (r *Registry) render(ctx context.Context, l *Ledger, state view.ViewState) (*view.Result, error) {
	records, err := r.fetch(ctx, l)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	result, err := l.View.Compute(records, state)
	if err != nil {
		r.emit(newEvent(ComputeFailed, "compute", l.Name, started, nil, err))
		return nil, fmt.Errorf("ledger '%s': %w", l.Name, err)
	}
	r.emit(newEvent(ComputeSuccess, "compute", l.Name, started, &result.Matched, nil))
	return result, nil
}

// Record returns the record whose key field equals key. The key may be the
// text form of a numeric key, as it arrives in a URL.
func (r *Registry) Record(ctx context.Context, name string, key any) (schema.Document, error) {
	l, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	field := l.Schema().Key
	if field == "" {
		return nil, fmt.Errorf("%w: '%s'", ErrNoKey, l.Name)
	}
	records, err := r.fetch(ctx, l)
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		if raw, ok := record.Get(field); ok && view.EqualValues(raw, key) {
			return l.Layout.Redact(record), nil
		}
	}
	return nil, fmt.Errorf("%w: '%v' in ledger '%s'", ErrUnknownRecord, key, l.Name)
}

// Options returns the distinct values of field across the ledger's records.
func (r *Registry) Options(ctx context.Context, name, field string) ([]string, error) {
	l, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	records, err := r.fetch(ctx, l)
	if err != nil {
		return nil, err
	}
	options, err := l.View.Options(records, field)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(options))
	out := options[:0]
	for _, option := range options {
		option = l.Layout.RedactValue(field, option)
		if _, dup := seen[option]; dup {
			continue
		}
		seen[option] = struct{}{}
		out = append(out, option)
	}
	return out, nil
}

// Export renders the ledger for state and writes the rows to w. The format is
// checked before anything is fetched.
func (r *Registry) Export(ctx context.Context, name string, state view.ViewState, format Format, w io.Writer) error {
	if _, err := ParseFormat(string(format)); err != nil {
		return err
	}
	l, err := r.Get(name)
	if err != nil {
		return err
	}
	result, err := r.render(ctx, l, state)
	if err != nil {
		return err
	}

	switch format {
	case FormatCSV:
		return export.CSV(w, l.Layout, result.Rows)
	case FormatXLSX:
		sheet := l.Title
		if sheet == "" {
			sheet = l.Name
		}
		return export.XLSX(w, sheet, l.Layout, result.Rows)
	}
	return fmt.Errorf("%w: '%s'", ErrUnknownFormat, format)
}

func (r *Registry) emit(event Event) {
	if r.bus != nil {
		r.bus.Emit(string(event.Type), event)
	}
}

// Subscribe registers a callback for a ledger event and returns its id.
func (r *Registry) Subscribe(options SubscribeOptions) string {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	callback := options.Callback
	id := uuid.New().String()
	r.subscriptions[id] = &Subscription{
		ID:          id,
		Event:       options.Event,
		Label:       options.Label,
		Description: options.Description,
		unsubscribe: r.bus.Subscribe(string(options.Event), func(ctx context.Context, e Event) error {
			return callback(ctx, e)
		}),
	}
	return id
}

// Unsubscribe removes a subscription by id.
func (r *Registry) Unsubscribe(id string) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	if sub, ok := r.subscriptions[id]; ok {
		sub.unsubscribe()
		delete(r.subscriptions, id)
	}
}

// Subscriptions lists the active subscriptions ordered by event then label.
func (r *Registry) Subscriptions() []Subscription {
	r.subMu.RLock()
	defer r.subMu.RUnlock()
	subs := make([]Subscription, 0, len(r.subscriptions))
	for _, sub := range r.subscriptions {
		subs = append(subs, *sub)
	}
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].Event != subs[j].Event {
			return subs[i].Event < subs[j].Event
		}
		return subs[i].Label < subs[j].Label
	})
	return subs
}
