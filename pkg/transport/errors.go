package transport

import (
	"encoding/json"
	"net/http"

	"github.com/rhuss/tenantgate/pkg/api"
)

// WriteErrorResponse writes a JSON error response using the ErrorResponse
// wrapper format from pkg/api. It sets the Content-Type header and writes
// the HTTP status code.
func WriteErrorResponse(w http.ResponseWriter, apiErr *api.APIError, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(api.ErrorResponse{Error: apiErr})
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}
