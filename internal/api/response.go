package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/erazemk/makerledger/internal/model"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("error encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// writeError maps a domain error to its HTTP status. Errors without a domain
// kind are logged and reported as internal errors.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var derr *model.Error
	if !errors.As(err, &derr) {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}

	status := http.StatusInternalServerError
	switch derr.Kind {
	case model.KindValidation:
		status = http.StatusBadRequest
	case model.KindNotFound:
		status = http.StatusNotFound
	case model.KindConflict:
		status = http.StatusConflict
	case model.KindExternal:
		status = http.StatusBadGateway
		slog.Warn("upstream failure", "path", r.URL.Path, "code", derr.Code, "error", err)
	}
	jsonResponse(w, status, map[string]string{"error": derr.Error(), "code": derr.Code})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}
