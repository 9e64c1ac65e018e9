package gateway

import (
	"net/http"
	"sync"

	"agentmux/internal/domain"
)

// handleHealth serves GET /healthz: per-provider readiness, probed
// concurrently. Overall status is "ok" when at least one provider is ready.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	providers := s.registry.List()
	statuses := make([]providerHealth, len(providers))

	var wg sync.WaitGroup
	for i, provider := range providers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			readiness, err := provider.HealthCheck(r.Context())
			if err != nil {
				readiness = domain.ReadinessUnknown
			}
			statuses[i] = providerHealth{
				Name:         provider.Name(),
				DisplayName:  provider.DisplayName(),
				Readiness:    readiness.String(),
				DefaultModel: provider.DefaultModel(),
			}
		}()
	}
	wg.Wait()

	status := "degraded"
	for _, ph := range statuses {
		if ph.Readiness == domain.ReadinessReady.String() {
			status = "ok"
			break
		}
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, healthResponse{Status: status, Providers: statuses})
}
