package view

import (
	"sync"

	"github.com/asaidimu/go-tabula/core/schema"
	"go.uber.org/zap"
)

// PredicateFunction is a pure Go predicate backing a custom filter rule. It
// receives the record, the rule's field and the value bound in the ViewState.
// Predicates must not mutate the record.
type PredicateFunction func(doc schema.Document, field string, value any) bool

// PredicateRegistry holds the custom predicates views may reference by name.
type PredicateRegistry struct {
	predicates map[string]PredicateFunction
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewPredicateRegistry creates an empty registry.
func NewPredicateRegistry(logger *zap.Logger) *PredicateRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PredicateRegistry{
		predicates: make(map[string]PredicateFunction),
		logger:     logger,
	}
}

// Register registers a predicate under an operator name, replacing any
// previous registration.
func (r *PredicateRegistry) Register(operator string, fn PredicateFunction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.predicates[operator] = fn
	r.logger.Info("Registered filter predicate", zap.String("operator", operator))
}

// RegisterAll registers multiple predicates from a map.
func (r *PredicateRegistry) RegisterAll(predicates map[string]PredicateFunction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for operator, fn := range predicates {
		r.predicates[operator] = fn
		r.logger.Info("Registered filter predicate", zap.String("operator", operator))
	}
}

// Lookup returns the predicate registered under operator.
func (r *PredicateRegistry) Lookup(operator string) (PredicateFunction, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.predicates[operator]
	return fn, ok
}
