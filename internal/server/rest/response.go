package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Chanzhaoyu/nest-blog-api/internal/common"
)

const (
	StatusSuccess         = "Success"
	StatusCreated         = "Created"
	StatusBadRequest      = "Bad Request"
	StatusValidation      = "Validation Error"
	StatusUnauthorized    = "Unauthorized"
	StatusForbidden       = "Forbidden"
	StatusNotFound        = "Not Found"
	StatusConflict        = "Conflict"
	StatusTooManyRequests = "Too Many Requests"
	StatusInternal        = "Internal Server Error"
)

// Envelope wraps every JSON response. Code is 1 on success and 0 on failure.
type Envelope struct {
	Code      int    `json:"code"`
	Data      any    `json:"data"`
	Message   string `json:"message"`
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) timestamp() string {
	return s.clock.Now().UTC().Format(time.RFC3339Nano)
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, body Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) ok(w http.ResponseWriter, data any, msg string) {
	s.writeJSON(w, http.StatusOK, Envelope{Code: 1, Data: data, Message: msg, Status: StatusSuccess, Timestamp: s.timestamp()})
}

func (s *Server) created(w http.ResponseWriter, data any, msg string) {
	s.writeJSON(w, http.StatusCreated, Envelope{Code: 1, Data: data, Message: msg, Status: StatusCreated, Timestamp: s.timestamp()})
}

func (s *Server) fail(w http.ResponseWriter, code int, status, msg string) {
	s.writeJSON(w, code, Envelope{Code: 0, Message: msg, Status: status, Timestamp: s.timestamp()})
}

// errorStatus maps an error kind to its HTTP status and envelope status.
func errorStatus(err error) (int, string) {
	switch common.KindOf(err) {
	case common.ErrorValidation:
		return http.StatusBadRequest, StatusValidation
	case common.ErrorBadRequest:
		return http.StatusBadRequest, StatusBadRequest
	case common.ErrorUnauthorized:
		return http.StatusUnauthorized, StatusUnauthorized
	case common.ErrorForbidden:
		return http.StatusForbidden, StatusForbidden
	case common.ErrorNotFound:
		return http.StatusNotFound, StatusNotFound
	case common.ErrorConflict:
		return http.StatusConflict, StatusConflict
	default:
		return http.StatusInternalServerError, StatusInternal
	}
}

// writeError renders err. Causes of internal errors are logged, never sent.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, status := errorStatus(err)

	if code == http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		var e *common.Error
		if errors.As(err, &e) && e.Cause != nil {
			s.logger.Warn(r.Context(), "request rejected", "path", r.URL.Path, "status", code, "cause", e.Cause)
		}
	}

	s.fail(w, code, status, common.PublicMessage(err))
}
