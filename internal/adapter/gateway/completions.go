package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"

	"agentmux/internal/domain"
)

// handleChatCompletions serves POST /v1/chat/completions. The model field
// routes to a runner: "provider/model" or a bare provider name for its
// default model. With stream: true the response is sent as SSE chunks
// terminated by "data: [DONE]".
func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorBody(w, http.StatusBadRequest, errorBody{
			Message: "invalid JSON body: " + err.Error(),
			Type:    "invalid_request_error",
			Code:    string(domain.KindConfig),
		})
		return
	}
	if req.Model == "" {
		writeErrorBody(w, http.StatusBadRequest, errorBody{
			Message: "model is required",
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

	providerName, model := splitModel(req.Model)
	provider, err := s.registry.Get(providerName)
	if err != nil {
		writeError(w, err)
		return
	}
	if model == "" {
		model = provider.DefaultModel()
	}

	chatReq := domain.ChatRequest{
		Messages:    toDomainMessages(req.Messages),
		Model:       model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      req.Stream,
	}

	if req.Stream {
		s.streamCompletion(w, r, provider, chatReq, req.Model)
		return
	}

	resp, err := provider.Complete(r.Context(), chatReq)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, chatCompletionResponse{
		ID:      completionID(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []choice{{
			Message:      chatMessage{Role: domain.RoleAssistant, Content: resp.Content},
			FinishReason: resp.FinishReason,
		}},
		Usage: resp.Usage,
	})
}

// streamCompletion relays runner deltas as OpenAI SSE chunks. Errors after
// the stream has started cannot change the status code; they end the stream
// with an "error" finish reason.
func (s *Server) streamCompletion(w http.ResponseWriter, r *http.Request, provider domain.Provider, req domain.ChatRequest, modelID string) {
	deltas, err := provider.CompleteStream(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeErrorBody(w, http.StatusInternalServerError, errorBody{
			Message: "streaming unsupported by connection",
			Type:    "api_error",
			Code:    string(domain.KindInternal),
		})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	id := completionID()
	created := time.Now().Unix()

	writeChunk := func(delta chunkDelta, finish *string) {
		chunk := chatCompletionChunk{
			ID:      id,
			Object:  "chat.completion.chunk",
			Created: created,
			Model:   modelID,
			Choices: []chunkChoice{{Delta: delta, FinishReason: finish}},
		}
		payload, err := json.Marshal(chunk)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}

	writeChunk(chunkDelta{Role: domain.RoleAssistant}, nil)

	for delta := range deltas {
		if delta.Err != nil {
			s.logger.Warn("stream aborted", "provider", provider.Name(), "error", delta.Err)
			reason := "error"
			writeChunk(chunkDelta{}, &reason)
			break
		}
		if delta.Content != "" {
			writeChunk(chunkDelta{Content: delta.Content}, nil)
		}
		if delta.Done {
			reason := delta.FinishReason
			if reason == "" {
				reason = "stop"
			}
			writeChunk(chunkDelta{}, &reason)
			break
		}
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func completionID() string {
	return "chatcmpl-" + ulid.Make().String()
}
