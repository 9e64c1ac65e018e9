package gateway

import (
	"encoding/json"
	"net/http"

	"agentmux/internal/domain"
)

// statusForKind maps runner error kinds to HTTP status codes. Provider
// unavailability (missing or unauthenticated binary) is a 503 so callers can
// retry against a different provider; tool failures surface as a bad gateway.
func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindConfig:
		return http.StatusBadRequest
	case domain.KindBinaryNotFound, domain.KindAuthFailure:
		return http.StatusServiceUnavailable
	case domain.KindTimeout:
		return http.StatusGatewayTimeout
	case domain.KindExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorTypeForStatus(status int) string {
	if status == http.StatusBadRequest {
		return "invalid_request_error"
	}
	return "api_error"
}

// writeError renders err as an OpenAI-style error body, carrying the error
// kind as the code.
func writeError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	status := statusForKind(kind)
	writeErrorBody(w, status, errorBody{
		Message: err.Error(),
		Type:    errorTypeForStatus(status),
		Code:    string(kind),
	})
}

func writeErrorBody(w http.ResponseWriter, status int, body errorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: body})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
