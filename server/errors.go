package server

import (
	"errors"
	"net/http"

	"github.com/asaidimu/go-tabula/core/view"
	"github.com/asaidimu/go-tabula/ledger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	CodeUnknownLedger = "UNKNOWN_LEDGER"
	CodeUnknownRecord = "UNKNOWN_RECORD"
	CodeNoKey         = "NO_KEY"
	CodeInvalidState  = "INVALID_STATE"
	CodeUnknownFormat = "UNKNOWN_FORMAT"
	CodeFetchFailed   = "FETCH_FAILED"
	CodeInternal      = "INTERNAL"
)

func classify(err error) (int, string) {
	var fetchErr *ledger.FetchError
	var stateErr *view.StateError
	switch {
	case errors.Is(err, ledger.ErrUnknownLedger):
		return http.StatusNotFound, CodeUnknownLedger
	case errors.Is(err, ledger.ErrUnknownRecord):
		return http.StatusNotFound, CodeUnknownRecord
	case errors.Is(err, ledger.ErrNoKey):
		return http.StatusNotFound, CodeNoKey
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway, CodeFetchFailed
	case errors.Is(err, ledger.ErrUnknownFormat):
		return http.StatusBadRequest, CodeUnknownFormat
	case errors.As(err, &stateErr), errors.Is(err, view.ErrUnknownField):
		return http.StatusBadRequest, CodeInvalidState
	}
	return http.StatusInternalServerError, CodeInternal
}

func (s *Server) fail(c *gin.Context, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.String("path", c.Request.URL.Path), zap.String("code", code), zap.Error(err))
	} else {
		s.logger.Debug("Request rejected", zap.String("path", c.Request.URL.Path), zap.String("code", code), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Code: code, Message: err.Error()})
}
