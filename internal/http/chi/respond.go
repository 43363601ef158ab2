package chi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/httplog"
	"github.com/marcelsud/webhook-dispatch/apikey"
	"github.com/marcelsud/webhook-dispatch/webhook"
)

/* envelope wraps every JSON response of the API
 * Data is set on success, Error otherwise
 */
type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code     string `json:"code"`
	Category string `json:"category"`
	Message  string `json:"message"`
}

const maxBodyBytes = 1 << 20

var errForbidden = errors.New("api key lacks the required permission")

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func writeFailure(w http.ResponseWriter, status int, body errorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Error: &body})
}

// writeError maps domain errors to a status, internal details stay in the request log
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if status == http.StatusInternalServerError {
		httplog.LogEntrySetField(r.Context(), "error", err.Error())
	}
	writeFailure(w, status, body)
}

func classify(err error) (int, errorBody) {
	switch {
	case errors.Is(err, apikey.ErrUnauthorized):
		return http.StatusUnauthorized, errorBody{"UNAUTHORIZED", "authentication", err.Error()}
	case errors.Is(err, errForbidden):
		return http.StatusForbidden, errorBody{"FORBIDDEN", "authorization", err.Error()}
	case errors.Is(err, apikey.ErrInvalid):
		return http.StatusBadRequest, errorBody{"VALIDATION_ERROR", string(webhook.CategoryValidation), err.Error()}
	case errors.Is(err, apikey.ErrNotFound):
		return http.StatusNotFound, errorBody{"NOT_FOUND", string(webhook.CategoryNotFound), err.Error()}
	}

	category, code := webhook.Classify(err)
	switch category {
	case webhook.CategoryValidation:
		return http.StatusBadRequest, errorBody{code, string(category), err.Error()}
	case webhook.CategoryNotFound:
		return http.StatusNotFound, errorBody{code, string(category), err.Error()}
	default:
		return http.StatusInternalServerError, errorBody{code, string(category), "internal server error"}
	}
}

// decodeJSON reads a bounded request body into dst
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeFailure(w, http.StatusBadRequest, errorBody{"INVALID_BODY", string(webhook.CategoryValidation), "failed to read request body"})
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeFailure(w, http.StatusBadRequest, errorBody{"INVALID_JSON", string(webhook.CategoryValidation), "request body must be a JSON object"})
		return false
	}
	return true
}
