// Package httputil holds JSON response helpers matching the storefront API's
// wire conventions: payloads are encoded as-is, errors carry a verbatim
// human-readable reason in a {"reason": "..."} body.
package httputil

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes a JSON response with the given status code.
// Headers are already sent if encoding fails, so the error is dropped.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteReason writes an error body in the storefront's rejection format.
func WriteReason(w http.ResponseWriter, status int, reason string) {
	WriteJSON(w, status, map[string]string{"reason": reason})
}
