package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// Query parameters naming the entity, in precedence order.
var entityParams = []string{"empresa_id", "user_id"}

// Error codes returned in the "code" field.
const (
	codeBadRequest       = "bad_request"
	codeRemoteFetch      = "remote_fetch_error"
	codeInternal         = "internal_error"
	codeNotFound         = "not_found"
	codeMethodNotAllowed = "method_not_allowed"
	codeRateLimited      = "rate_limited"
	codeUnauthorized     = "unauthorized"
	codeForbidden        = "forbidden"
)

// APIError is the body of every error response.
type APIError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// entityParam returns the first non-blank entity parameter.
func entityParam(r *http.Request) string {
	q := r.URL.Query()
	for _, p := range entityParams {
		if v := strings.TrimSpace(q.Get(p)); v != "" {
			return v
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIError{Error: message, Code: code})
}
