package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"communityshare.org/internal/resource"
)

// writeJSON writes an arbitrary JSON body with the given status.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeData wraps a serialized payload in the {"data": ...} envelope.
func writeData(w http.ResponseWriter, code int, data any) {
	writeJSON(w, code, map[string]any{"data": data})
}

// writeMessage wraps a human-readable outcome in the {"message": ...}
// envelope.
func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"message": msg})
}

// writeError maps the error taxonomy onto HTTP statuses. The caller-facing
// message travels verbatim; anything outside the taxonomy becomes an opaque
// 500.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, resource.ErrBadRequest):
		writeMessage(w, http.StatusBadRequest, resource.MessageOf(err))
	case errors.Is(err, resource.ErrUnauthorized):
		writeMessage(w, http.StatusUnauthorized, resource.MessageOf(err))
	case errors.Is(err, resource.ErrForbidden):
		writeMessage(w, http.StatusForbidden, resource.MessageOf(err))
	case errors.Is(err, resource.ErrNotFound):
		writeMessage(w, http.StatusNotFound, resource.MessageOf(err))
	default:
		writeMessage(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeBody decodes a JSON object payload. Wire payloads stay as maps so the
// serializer engine controls which keys are consumed.
func decodeBody(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	var data map[string]any
	if err := dec.Decode(&data); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, resource.BadRequestf("request body is required")
		}
		return nil, resource.BadRequestf("invalid JSON body")
	}
	return data, nil
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeMessage(w, http.StatusMethodNotAllowed, "method not allowed")
}
