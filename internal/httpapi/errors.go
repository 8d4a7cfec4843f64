package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/dlorp/synapse-engine-sub002/internal/orchestrator"
	"github.com/dlorp/synapse-engine-sub002/internal/selector"
	"github.com/dlorp/synapse-engine-sub002/pkg/types"
)

// statusFor maps pipeline errors onto HTTP status codes. Anything not in the
// taxonomy is a 500.
func statusFor(err error) int {
	switch {
	case orchestrator.IsValidation(err):
		return http.StatusBadRequest
	case selector.IsNoModelsAvailable(err):
		return http.StatusServiceUnavailable
	case orchestrator.IsModelUnavailable(err):
		return http.StatusServiceUnavailable
	case orchestrator.IsQueryTimeout(err):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}
