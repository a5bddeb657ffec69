package server

import (
	"bytes"
	"mime"
	"net/http"

	"github.com/asaidimu/go-tabula/core/schema"
	"github.com/asaidimu/go-tabula/core/view"
	"github.com/asaidimu/go-tabula/export"
	"github.com/asaidimu/go-tabula/ledger"
	"github.com/gin-gonic/gin"
)

// HealthResponse is returned by /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Ledgers int    `json:"ledgers"`
}

// LedgerSummary describes a ledger and the rules a client may bind.
type LedgerSummary struct {
	Name       string               `json:"name"`
	Title      string               `json:"title,omitempty"`
	Schema     string               `json:"schema"`
	Filters    []view.FilterRule    `json:"filters"`
	Sorts      []view.SortRule      `json:"sorts"`
	Aggregates []view.AggregateRule `json:"aggregates"`
	Columns    []string             `json:"columns"`
}

// RenderResponse is a computed view of one ledger.
type RenderResponse struct {
	Ledger string         `json:"ledger"`
	State  view.ViewState `json:"state"`
	*view.Result
}

// RecordResponse is one record looked up by its key.
type RecordResponse struct {
	Ledger string          `json:"ledger"`
	Key    string          `json:"key"`
	Record schema.Document `json:"record"`
}

// OptionsResponse lists the distinct values of a field.
type OptionsResponse struct {
	Ledger  string   `json:"ledger"`
	Field   string   `json:"field"`
	Options []string `json:"options"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Ledgers: len(s.registry.Ledgers())})
}

func (s *Server) handleList(c *gin.Context) {
	ledgers := s.registry.Ledgers()
	out := make([]LedgerSummary, 0, len(ledgers))
	for _, l := range ledgers {
		rules := l.View.Rules()
		out = append(out, LedgerSummary{
			Name:       l.Name,
			Title:      l.Title,
			Schema:     l.Schema().Name,
			Filters:    nonNil(rules.Filters),
			Sorts:      nonNil(rules.Sorts),
			Aggregates: nonNil(rules.Aggregates),
			Columns:    l.Layout.Header(),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleRender(c *gin.Context) {
	name := c.Param("name")
	l, err := s.registry.Get(name)
	if err != nil {
		s.fail(c, err)
		return
	}
	state := StateFromQuery(l.View.Rules(), c.Request.URL.Query())
	result, err := s.registry.Render(c.Request.Context(), name, state)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, RenderResponse{Ledger: name, State: state, Result: result})
}

func (s *Server) handleRecord(c *gin.Context) {
	name, key := c.Param("name"), c.Param("key")
	record, err := s.registry.Record(c.Request.Context(), name, key)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, RecordResponse{Ledger: name, Key: key, Record: record})
}

func (s *Server) handleOptions(c *gin.Context) {
	name, field := c.Param("name"), c.Param("field")
	options, err := s.registry.Options(c.Request.Context(), name, field)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, OptionsResponse{Ledger: name, Field: field, Options: options})
}

func (s *Server) handleExport(c *gin.Context) {
	name := c.Param("name")
	format, err := ledger.ParseFormat(c.Param("format"))
	if err != nil {
		s.fail(c, err)
		return
	}
	l, err := s.registry.Get(name)
	if err != nil {
		s.fail(c, err)
		return
	}

	// Buffered so a failed render still answers with a JSON error.
	var buf bytes.Buffer
	state := StateFromQuery(l.View.Rules(), c.Request.URL.Query())
	if err := s.registry.Export(c.Request.Context(), name, state, format, &buf); err != nil {
		s.fail(c, err)
		return
	}

	filename := export.Filename(l.Name, string(format), s.options.Now())
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
