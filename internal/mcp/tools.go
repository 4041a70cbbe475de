// Package mcp exposes fact checking as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/ppiankov/factloop/internal/model"
	"github.com/ppiankov/factloop/internal/pipeline"
	"github.com/ppiankov/factloop/internal/store"
	"github.com/ppiankov/factloop/internal/worker"
)

// Archive is the read side of the session archive
type Archive interface {
	Get(ctx context.Context, id string) (*model.Result, error)
	List(ctx context.Context, limit int) ([]store.Entry, error)
}

// Handlers implements the MCP tools
type Handlers struct {
	checker  worker.Checker
	archive  Archive
	renderer *pipeline.Renderer
	logger   *zap.Logger
}

// NewHandlers creates tool handlers. archive may be nil.
func NewHandlers(checker worker.Checker, archive Archive, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		checker:  checker,
		archive:  archive,
		renderer: pipeline.NewRenderer(true),
		logger:   logger,
	}
}

// RegisterTools registers every tool with the server
func RegisterTools(server *mcpserver.MCPServer, h *Handlers) {
	server.AddTool(mcp.Tool{
		Name: "fact_check",
		Description: "Fact-check a claim. Identifies check points, retrieves evidence, refines a verdict " +
			"draft until it scores well or the round limit is reached, and returns a cited report.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"claim": map[string]any{
					"type":        "string",
					"description": "The claim to verify",
				},
				"source": map[string]any{
					"type":        "string",
					"description": "Optional label of where the claim was seen",
				},
				"format": map[string]any{
					"type":        "string",
					"description": "Output format: markdown (default) or json",
					"enum":        []string{"markdown", "json"},
				},
			},
			Required: []string{"claim"},
		},
	}, h.FactCheck)

	if h.archive == nil {
		return
	}

	server.AddTool(mcp.Tool{
		Name:        "get_session",
		Description: "Get an archived fact-check session by id as Markdown.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"id": map[string]any{
					"type":        "string",
					"description": "Session id returned by fact_check",
				},
			},
			Required: []string{"id"},
		},
	}, h.GetSession)

	server.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List recently finished fact-check sessions.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"limit": map[string]any{
					"type":        "number",
					"description": "Maximum number of sessions (default: 20)",
					"default":     20,
				},
			},
		},
	}, h.ListSessions)
}

// FactCheck handles the fact_check tool
func (h *Handlers) FactCheck(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	claim, err := request.RequireString("claim")
	if err != nil {
		return mcp.NewToolResultError("claim argument is required and must be a string"), nil
	}
	source := request.GetString("source", "")
	format := request.GetString("format", "markdown")

	result, err := h.checker.Check(ctx, model.Claim{Text: claim, Source: source})
	if err != nil {
		h.logger.Warn("fact check failed", zap.Error(err))
		return mcp.NewToolResultError(fmt.Sprintf("fact check failed: %v", err)), nil
	}
	return h.render(result, format)
}

// GetSession handles the get_session tool
func (h *Handlers) GetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id argument is required and must be a string"), nil
	}
	result, err := h.archive.Get(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return h.render(result, "markdown")
}

// ListSessions handles the list_sessions tool
func (h *Handlers) ListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entries, err := h.archive.List(ctx, request.GetInt("limit", 20))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list sessions failed: %v", err)), nil
	}
	if entries == nil {
		entries = []store.Entry{}
	}
	data, err := json.Marshal(map[string]any{"sessions": entries})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (h *Handlers) render(result *model.Result, format string) (*mcp.CallToolResult, error) {
	switch format {
	case "json":
		data, err := h.renderer.JSON(result)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	case "", "markdown":
		return mcp.NewToolResultText(h.renderer.Markdown(result)), nil
	}
	return mcp.NewToolResultError(fmt.Sprintf("unknown format %q (use markdown or json)", format)), nil
}
