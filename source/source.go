// Package source defines where ledger records come from. A Provider is the
// asynchronous input collaborator of a view: it eventually yields every record
// of a ledger or an error, and the view is not computed until it has.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"github.com/asaidimu/go-tabula/core/schema"
	"github.com/asaidimu/go-tabula/utils"
	"go.uber.org/zap"
)

// Provider yields the full record set of a ledger.
type Provider interface {
	Fetch(ctx context.Context) ([]schema.Document, error)
}

// ProviderFunc adapts a function to a Provider.
type ProviderFunc func(ctx context.Context) ([]schema.Document, error)

// Fetch calls f.
func (f ProviderFunc) Fetch(ctx context.Context) ([]schema.Document, error) {
	return f(ctx)
}

// Static serves a fixed slice of records.
type Static struct {
	records []schema.Document
}

// NewStatic creates a provider over records. The slice is copied; the records
// themselves are shared and must not be modified afterwards.
func NewStatic(records ...schema.Document) *Static {
	return &Static{records: slices.Clone(records)}
}

// Fetch returns a copy of the record slice.
func (s *Static) Fetch(ctx context.Context) ([]schema.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return slices.Clone(s.records), nil
}

// FromStructs creates a static provider over typed records, converted through
// their JSON form.
func FromStructs[T any](records []T) (*Static, error) {
	docs, err := utils.StructsToDocuments(records)
	if err != nil {
		return nil, err
	}
	return &Static{records: docs}, nil
}

// JSONFile reads records from a JSON file on every fetch, so edits to the file
// show up without a restart. The file holds either an array of objects or an
// object with the array under "data".
type JSONFile struct {
	path   string
	logger *zap.Logger
}

// NewJSONFile creates a provider reading path.
func NewJSONFile(path string, logger *zap.Logger) *JSONFile {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JSONFile{path: path, logger: logger}
}

// Fetch reads and decodes the file. Numbers are kept as json.Number so money
// amounts reach the view without a float round trip.
func (j *JSONFile) Fetch(ctx context.Context) ([]schema.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(j.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", j.path, err)
	}
	records, err := DecodeJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", j.path, err)
	}
	j.logger.Debug("Loaded records from file", zap.String("path", j.path), zap.Int("count", len(records)))
	return records, nil
}

// DecodeJSON decodes an array of records, or an object wrapping one under
// "data".
func DecodeJSON(data []byte) ([]schema.Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var envelope struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, err
		}
		if envelope.Data == nil {
			return nil, fmt.Errorf("object has no \"data\" array")
		}
		trimmed = envelope.Data
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var raw []map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	records := make([]schema.Document, len(raw))
	for i, r := range raw {
		records[i] = schema.Document(r)
	}
	return records, nil
}

// Validated wraps a provider so every fetched record is checked against a
// schema. Issues are logged and the records are returned regardless: bad data
// never stops a ledger from rendering.
func Validated(p Provider, s *schema.SchemaDefinition, logger *zap.Logger) Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	validator := schema.NewValidator(s)
	return ProviderFunc(func(ctx context.Context) ([]schema.Document, error) {
		records, err := p.Fetch(ctx)
		if err != nil {
			return nil, err
		}
		for i, record := range records {
			result := validator.Validate(record, false)
			for _, issue := range result.Issues {
				logger.Warn("Record does not match schema",
					zap.String("schema", s.Name),
					zap.Int("index", i),
					zap.Any("key", record[s.Key]),
					zap.String("code", issue.Code),
					zap.String("path", issue.Path),
					zap.String("message", issue.Message))
			}
		}
		return records, nil
	})
}
