package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"

	"agentmux/internal/domain"
)

// handleMultiplex serves POST /v1/multiplex: one request fanned out to
// several providers, results returned in target order with per-target
// timing. A failed target fills its slot with an error body instead of
// failing the batch.
func (s *Server) handleMultiplex(w http.ResponseWriter, r *http.Request) {
	var req multiplexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorBody(w, http.StatusBadRequest, errorBody{
			Message: "invalid JSON body: " + err.Error(),
			Type:    "invalid_request_error",
			Code:    string(domain.KindConfig),
		})
		return
	}
	if len(req.Messages) == 0 {
		writeErrorBody(w, http.StatusBadRequest, errorBody{
			Message: "messages must not be empty",
			Type:    "invalid_request_error",
			Code:    string(domain.KindConfig),
		})
		return
	}

	chatReq := domain.ChatRequest{
		Messages:    toDomainMessages(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	results, err := s.dispatcher.Dispatch(r.Context(), chatReq, req.Targets)
	if err != nil {
		writeError(w, err)
		return
	}

	items := make([]multiplexItem, len(results))
	for i, result := range results {
		item := multiplexItem{
			Provider:   result.Provider,
			Model:      result.Model,
			DurationMS: result.Duration.Milliseconds(),
			Response:   result.Response,
		}
		if result.Err != nil {
			kind := domain.KindOf(result.Err)
			item.Error = &errorBody{
				Message: result.Err.Error(),
				Type:    errorTypeForStatus(statusForKind(kind)),
				Code:    string(kind),
			}
		}
		items[i] = item
	}

	writeJSON(w, http.StatusOK, multiplexResponse{
		ID:      "mpx-" + ulid.Make().String(),
		Object:  "multiplex.result",
		Created: time.Now().Unix(),
		Results: items,
	})
}
