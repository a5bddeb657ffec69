package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/asaidimu/go-tabula/core/schema"
)

// StructToDocument converts a struct into a record through its JSON form, so
// `json` tags name the fields. Nested structs become nested maps that dotted
// field paths can reach. Numbers are kept as json.Number.
//
// The input must be a struct or a non-nil pointer to one.
//
// Example:
//
//	type Staff struct {
//		ID     int    `json:"id"`
//		Name   string `json:"name"`
//		Office struct {
//			Area string `json:"area"`
//		} `json:"office"`
//	}
//	doc, err := StructToDocument(Staff{ID: 1, Name: "山田太郎"})
//	// doc["office"] is map[string]any{"area": ""}
func StructToDocument[T any](record T) (schema.Document, error) {
	val := reflect.ValueOf(record)
	if !val.IsValid() {
		return nil, fmt.Errorf("input record cannot be nil")
	}
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			return nil, fmt.Errorf("input record cannot be a nil pointer to a struct")
		}
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return nil, fmt.Errorf("input record must be a struct or a pointer to a struct, got %s", val.Kind())
	}

	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("StructToDocument: failed to marshal record: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc schema.Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("StructToDocument: failed to decode record: %w", err)
	}
	return doc, nil
}

// StructsToDocuments converts a slice of structs, failing on the first
// record that cannot be converted.
func StructsToDocuments[T any](records []T) ([]schema.Document, error) {
	docs := make([]schema.Document, 0, len(records))
	for i, record := range records {
		doc, err := StructToDocument(record)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// DocumentToStruct is the inverse of StructToDocument: it decodes a record,
// such as a computed row, back into T.
func DocumentToStruct[T any](doc schema.Document) (T, error) {
	var zero T
	if doc == nil {
		return zero, fmt.Errorf("DocumentToStruct: input record cannot be nil")
	}
	typ := reflect.TypeOf(zero)
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return zero, fmt.Errorf("DocumentToStruct: generic type T must be a struct type (or pointer to struct), got %s", typ.Kind())
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return zero, fmt.Errorf("DocumentToStruct: failed to marshal record: %w", err)
	}
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return zero, fmt.Errorf("DocumentToStruct: failed to decode into target struct: %w", err)
	}
	return result, nil
}
