package gateway

import "net/http"

// handleModels serves GET /v1/models: every provider's models plus one bare
// entry per provider for its default model.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	list := modelList{Object: "list"}
	for _, provider := range s.registry.List() {
		name := provider.Name()
		list.Data = append(list.Data, modelInfo{
			ID:      name,
			Object:  "model",
			OwnedBy: name,
		})
		for _, model := range provider.AvailableModels() {
			list.Data = append(list.Data, modelInfo{
				ID:      name + "/" + model,
				Object:  "model",
				OwnedBy: name,
			})
		}
	}
	writeJSON(w, http.StatusOK, list)
}
