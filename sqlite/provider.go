package sqlite

import (
	"context"

	"github.com/asaidimu/go-tabula/core/schema"
	"github.com/asaidimu/go-tabula/source"
)

// Provider serves the rows of one ledger table.
type Provider struct {
	store  *Store
	schema *schema.SchemaDefinition
	table  string
}

var _ source.Provider = (*Provider)(nil)

// NewProvider creates a provider over table. An empty table name uses the
// schema name.
func NewProvider(store *Store, sc *schema.SchemaDefinition, table string) *Provider {
	if table == "" {
		table = sc.Name
	}
	return &Provider{store: store, schema: sc, table: table}
}

// Fetch reads every row of the table.
func (p *Provider) Fetch(ctx context.Context) ([]schema.Document, error) {
	return p.store.Select(ctx, p.schema, p.table)
}

// Table returns the unprefixed table name.
func (p *Provider) Table() string {
	return p.table
}
