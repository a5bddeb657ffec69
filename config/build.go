package config

import (
	"fmt"

	"github.com/asaidimu/go-tabula/core/view"
	"github.com/asaidimu/go-tabula/ledger"
	"github.com/asaidimu/go-tabula/source"
	"github.com/asaidimu/go-tabula/sqlite"
	"go.uber.org/zap"
)

// Deployment is everything a config file wires together.
type Deployment struct {
	Registry *ledger.Registry
	// Store is nil unless a ledger reads from sqlite.
	Store  *sqlite.Store
	logger *zap.Logger
}

// Close releases the database handle, if any.
func (d *Deployment) Close() error {
	if d.Store == nil {
		return nil
	}
	return d.Store.Close()
}

// Build registers every configured ledger. Custom filter operators referenced
// by the views must be present in predicates.
func Build(cfg *Config, logger *zap.Logger, predicates *view.PredicateRegistry) (*Deployment, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	registry, err := ledger.NewRegistry(logger)
	if err != nil {
		return nil, err
	}
	d := &Deployment{Registry: registry, logger: logger}

	if cfg.usesSQLite() {
		store, err := sqlite.Open(cfg.Database.Path, logger, &sqlite.Options{
			TablePrefix: cfg.Database.TablePrefix,
			IfNotExists: true,
		})
		if err != nil {
			return nil, err
		}
		d.Store = store
	}

	opts := []view.Option{view.WithLogger(logger)}
	if predicates != nil {
		opts = append(opts, view.WithPredicates(predicates))
	}

	for i := range cfg.Ledgers {
		lc := &cfg.Ledgers[i]
		s := &lc.Schema
		provider, err := d.provider(lc)
		if err != nil {
			d.Close()
			return nil, err
		}
		l, err := ledger.New(ledger.Spec{
			Name:       lc.Name,
			Title:      lc.Title,
			Schema:     s,
			View:       lc.View,
			Provider:   source.Validated(provider, s, logger),
			Columns:    lc.Export.Columns,
			RowNumbers: lc.Export.RowNumbersEnabled(),
		}, opts...)
		if err != nil {
			d.Close()
			return nil, err
		}
		if err := registry.Register(l); err != nil {
			d.Close()
			return nil, err
		}
	}
	return d, nil
}

func (d *Deployment) provider(lc *LedgerConfig) (source.Provider, error) {
	switch lc.Source.Type {
	case SourceJSON:
		return source.NewJSONFile(lc.Source.Path, d.logger), nil
	case SourceSQLite:
		return sqlite.NewProvider(d.Store, &lc.Schema, lc.Source.Table), nil
	case SourceStatic:
		return source.NewStatic(lc.Source.Records...), nil
	}
	return nil, fmt.Errorf("ledger '%s': unsupported source type '%s'", lc.Name, lc.Source.Type)
}

func (c *Config) usesSQLite() bool {
	for _, l := range c.Ledgers {
		if l.Source.Type == SourceSQLite {
			return true
		}
	}
	return false
}
