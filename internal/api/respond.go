package api

import (
	"encoding/json"
	"net/http"

	"github.com/RevCBH/shipyard/internal/lifecycle"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusForKind maps a lifecycle failure to an HTTP status for endpoints
// that do not report Info.
func statusForKind(kind lifecycle.ErrorKind) int {
	switch kind {
	case lifecycle.KindNotFound:
		return http.StatusNotFound
	case lifecycle.KindConfiguration:
		return http.StatusUnprocessableEntity
	case lifecycle.KindDiscovery:
		return http.StatusConflict
	case lifecycle.KindTimeout:
		return http.StatusGatewayTimeout
	case lifecycle.KindEngine:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeLifecycleError(w http.ResponseWriter, err error) {
	kind := lifecycle.KindOf(err)
	writeJSON(w, statusForKind(kind), errorResponse{Error: err.Error(), Kind: string(kind)})
}
