package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/pders01/ntrack/internal/debuglog"
	"github.com/pders01/ntrack/internal/engine"
	"github.com/pders01/ntrack/internal/tracker"
)

const (
	headerContentType   = "Content-Type"
	contentTypeJSONUTF8 = "application/json; charset=utf-8"
)

// HTTPError is an error with the status code and message sent to the client.
type HTTPError struct {
	cause   error
	Code    int
	Message string
}

func (he *HTTPError) Error() string {
	return he.Message
}

func (he *HTTPError) Unwrap() error {
	return he.cause
}

func newHTTPError(code int, message string, cause error) *HTTPError {
	return &HTTPError{cause: cause, Code: code, Message: message}
}

func errBadRequest(message string) *HTTPError {
	return newHTTPError(http.StatusBadRequest, message, nil)
}

// AppHandler is a handler that reports failure by returning an error.
type AppHandler func(w http.ResponseWriter, r *http.Request) error

// MakeHandler turns an AppHandler into an http.HandlerFunc that writes
// returned errors as JSON.
func MakeHandler(h AppHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		err := h(ww, r)
		if err == nil {
			return
		}

		he := toHTTPError(err)
		fields := map[string]interface{}{
			"method": r.Method,
			"path":   r.URL.Path,
			"code":   he.Code,
		}
		if he.Code >= http.StatusInternalServerError {
			debuglog.WithFields(fields).Errorf("request failed: %v", err)
		} else {
			debuglog.WithFields(fields).Warnf("request rejected: %v", err)
		}

		if ww.Status() != 0 {
			debuglog.Warnf("handler for %s returned an error after writing the response", r.URL.Path)
			return
		}
		respondJSON(ww, he.Code, map[string]string{"error": he.Message})
	}
}

// toHTTPError maps engine and store errors to status codes.
func toHTTPError(err error) *HTTPError {
	var he *HTTPError
	if errors.As(err, &he) {
		return he
	}

	switch {
	case errors.Is(err, tracker.ErrNotFound):
		return newHTTPError(http.StatusNotFound, "tracker not found", err)
	case errors.Is(err, tracker.ErrLimitReached):
		return newHTTPError(http.StatusConflict, err.Error(), err)
	case errors.Is(err, engine.ErrNeedsConfiguration):
		return newHTTPError(http.StatusUnprocessableEntity, err.Error(), err)
	case errors.Is(err, engine.ErrInvalidSource),
		errors.Is(err, engine.ErrInvalidInterval),
		errors.Is(err, engine.ErrInvalidLimit):
		return newHTTPError(http.StatusBadRequest, err.Error(), err)
	case errors.Is(err, engine.ErrInitialFetch):
		return newHTTPError(http.StatusBadGateway, err.Error(), err)
	}
	return newHTTPError(http.StatusInternalServerError, "Internal Server Error", err)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		debuglog.Errorf("encoding response: %v", err)
		w.Header().Set(headerContentType, contentTypeJSONUTF8)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Internal Server Error"}`))
		return
	}

	w.Header().Set(headerContentType, contentTypeJSONUTF8)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
