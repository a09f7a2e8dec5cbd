package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lox/spend-advisor/internal/insights"
	"github.com/lox/spend-advisor/internal/llm"
	"github.com/lox/spend-advisor/internal/session"
)

const (
	kindInvalidInput    = "invalid_input"
	kindNoContext       = "no_context"
	kindSessionBusy     = "session_busy"
	kindQuotaExceeded   = "quota_exceeded"
	kindInvalidResponse = "invalid_response"
	kindRejected        = "llm_rejected"
	kindUnavailable     = "llm_unavailable"
	kindTimeout         = "timeout"
	kindCanceled        = "canceled"
	kindInternal        = "internal"
)

// inputError is a client mistake that never reaches the model
type inputError struct {
	msg string
}

func (e inputError) Error() string {
	return e.msg
}

func invalidInput(msg string) error {
	return inputError{msg: msg}
}

// statusClientClosedRequest is nginx's status for a client that went away
// before the response was ready
const statusClientClosedRequest = 499

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// errorStatus maps an error onto an HTTP status and a stable kind
func errorStatus(err error) (int, string) {
	var ie inputError
	switch {
	case errors.As(err, &ie):
		return http.StatusBadRequest, kindInvalidInput
	case errors.Is(err, insights.ErrNoContext):
		return http.StatusConflict, kindNoContext
	case errors.Is(err, session.ErrBusy):
		return http.StatusConflict, kindSessionBusy
	case errors.Is(err, llm.ErrQuotaExceeded):
		return http.StatusTooManyRequests, kindQuotaExceeded
	case errors.Is(err, insights.ErrInvalidResponse):
		return http.StatusBadGateway, kindInvalidResponse
	case errors.Is(err, llm.ErrRejected):
		return http.StatusBadGateway, kindRejected
	case errors.Is(err, llm.ErrUnavailable):
		return http.StatusServiceUnavailable, kindUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, kindTimeout
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest, kindCanceled
	default:
		return http.StatusInternalServerError, kindInternal
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := errorStatus(err)
	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		s.logger.Error("Request error", "path", r.URL.Path, "error", err)
		msg = "internal error"
	case statusClientClosedRequest:
		s.logger.Debug("Client went away", "path", r.URL.Path, "error", err)
	}
	s.writeJSON(w, status, errorResponse{Error: msg, Kind: kind})
}

// writeJSON encodes v before touching the response so an encoding failure
// can still become a 500
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("Failed to encode response", "status", status, "error", err)
		status = http.StatusInternalServerError
		b, _ = json.Marshal(errorResponse{Error: "internal error", Kind: kindInternal})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(b, '\n')); err != nil {
		s.logger.Debug("Failed to write response", "error", err)
	}
}
