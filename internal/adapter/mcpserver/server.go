// Package mcpserver exposes the runner registry as an MCP stdio server, so
// MCP clients can drive the wrapped CLI agents as tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"agentmux/internal/adapter/runner"
	"agentmux/internal/domain"
	"agentmux/internal/usecase/multiplex"
)

// maxOutputBytes is the maximum tool response size before truncation (1 MB).
const maxOutputBytes = 1 << 20

// Server is the agentmux MCP server.
type Server struct {
	version    string
	registry   *runner.Registry
	dispatcher *multiplex.Dispatcher
	logger     *slog.Logger
}

// New creates an MCP server over the given registry.
func New(version string, registry *runner.Registry, dispatcher *multiplex.Dispatcher, logger *slog.Logger) *Server {
	return &Server{
		version:    version,
		registry:   registry,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Serve starts the MCP server on stdio and blocks until the client
// disconnects.
func (s *Server) Serve() error {
	srv := s.build()
	return mcpserver.ServeStdio(srv)
}

func (s *Server) build() *mcpserver.MCPServer {
	srv := mcpserver.NewMCPServer(
		"agentmux",
		s.version,
		mcpserver.WithRecovery(),
		mcpserver.WithToolCapabilities(false),
	)
	s.registerTools(srv)
	return srv
}

func (s *Server) registerTools(srv *mcpserver.MCPServer) {
	srv.AddTool(
		mcp.NewTool("prompt",
			mcp.WithDescription("Send a prompt to one of the wrapped CLI agents and return its completion"),
			mcp.WithString("provider",
				mcp.Description("Provider name: "+strings.Join(s.registry.Names(), ", ")),
				mcp.Required(),
			),
			mcp.WithString("prompt",
				mcp.Description("User prompt text"),
				mcp.Required(),
			),
			mcp.WithString("model",
				mcp.Description("Model identifier; the provider default when omitted"),
			),
			mcp.WithString("system",
				mcp.Description("Optional system prompt"),
			),
		),
		s.handlePrompt,
	)

	srv.AddTool(
		mcp.NewTool("multiplex_prompt",
			mcp.WithDescription("Send one prompt to several CLI agents concurrently and return all results"),
			mcp.WithString("prompt",
				mcp.Description("User prompt text"),
				mcp.Required(),
			),
			mcp.WithString("targets",
				mcp.Description("Comma-separated targets, each \"provider\" or \"provider/model\""),
				mcp.Required(),
			),
			mcp.WithString("system",
				mcp.Description("Optional system prompt"),
			),
		),
		s.handleMultiplexPrompt,
	)

	srv.AddTool(
		mcp.NewTool("provider_status",
			mcp.WithDescription("Report readiness of every configured CLI agent"),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		s.handleProviderStatus,
	)
}

func (s *Server) handlePrompt(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	providerName, err := request.RequireString("provider")
	if err != nil {
		return mcp.NewToolResultError("missing required argument: provider"), nil
	}
	prompt, err := request.RequireString("prompt")
	if err != nil {
		return mcp.NewToolResultError("missing required argument: prompt"), nil
	}

	provider, err := s.registry.Get(providerName)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	req := domain.ChatRequest{
		Messages: buildMessages(request.GetString("system", ""), prompt),
		Model:    request.GetString("model", ""),
	}
	if req.Model == "" {
		req.Model = provider.DefaultModel()
	}

	resp, err := provider.Complete(ctx, req)
	if err != nil {
		s.logger.Warn("prompt tool failed", "provider", providerName, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(truncate(resp.Content)), nil
}

func (s *Server) handleMultiplexPrompt(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt, err := request.RequireString("prompt")
	if err != nil {
		return mcp.NewToolResultError("missing required argument: prompt"), nil
	}
	rawTargets, err := request.RequireString("targets")
	if err != nil {
		return mcp.NewToolResultError("missing required argument: targets"), nil
	}

	targets := parseTargets(rawTargets)
	if len(targets) == 0 {
		return mcp.NewToolResultError("targets must name at least one provider"), nil
	}

	req := domain.ChatRequest{
		Messages: buildMessages(request.GetString("system", ""), prompt),
	}

	results, err := s.dispatcher.Dispatch(ctx, req, targets)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	type item struct {
		Provider   string `json:"provider"`
		Model      string `json:"model,omitempty"`
		DurationMS int64  `json:"duration_ms"`
		Content    string `json:"content,omitempty"`
		Error      string `json:"error,omitempty"`
	}
	items := make([]item, len(results))
	for i, result := range results {
		items[i] = item{
			Provider:   result.Provider,
			Model:      result.Model,
			DurationMS: result.Duration.Milliseconds(),
		}
		if result.Err != nil {
			items[i].Error = result.Err.Error()
			continue
		}
		items[i].Content = result.Response.Content
	}

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding results: %v", err)), nil
	}
	return mcp.NewToolResultText(truncate(string(data))), nil
}

func (s *Server) handleProviderStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	type status struct {
		Name         string `json:"name"`
		DisplayName  string `json:"display_name"`
		Readiness    string `json:"readiness"`
		DefaultModel string `json:"default_model"`
	}

	providers := s.registry.List()
	statuses := make([]status, len(providers))
	for i, provider := range providers {
		readiness, err := provider.HealthCheck(ctx)
		if err != nil {
			readiness = domain.ReadinessUnknown
		}
		statuses[i] = status{
			Name:         provider.Name(),
			DisplayName:  provider.DisplayName(),
			Readiness:    readiness.String(),
			DefaultModel: provider.DefaultModel(),
		}
	}

	data, err := json.MarshalIndent(statuses, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding status: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// parseTargets splits "claude-code/opus, opencode" into multiplex targets.
func parseTargets(raw string) []domain.MultiplexTarget {
	var targets []domain.MultiplexTarget
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		target := domain.MultiplexTarget{Provider: part}
		if i := strings.IndexByte(part, '/'); i >= 0 {
			target.Provider = part[:i]
			target.Model = part[i+1:]
		}
		targets = append(targets, target)
	}
	return targets
}

func buildMessages(system, prompt string) []domain.ChatMessage {
	var messages []domain.ChatMessage
	if system != "" {
		messages = append(messages, domain.SystemMessage(system))
	}
	return append(messages, domain.UserMessage(prompt))
}

// truncate limits output to maxOutputBytes, appending a notice if needed.
func truncate(s string) string {
	if len(s) <= maxOutputBytes {
		return s
	}
	return s[:maxOutputBytes] + "\n... [truncated: output exceeded 1MB limit]"
}
