package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/gantz-ai/gantz/internal/dispatch"
	"github.com/gantz-ai/gantz/internal/logging"
	"github.com/gantz-ai/gantz/internal/registry"
	"github.com/gantz-ai/gantz/internal/tokens"
	"github.com/gantz-ai/gantz/pkg/params"
)

// registerTools exposes the latest version of every registry entry as an
// MCP tool. Pinned-version calls stay on the HTTP API; the protocol
// surface tracks the catalog head.
func (s *Server) registerTools() int {
	count := 0
	for _, name := range s.registry.Names() {
		tool, err := s.registry.Resolve(name, "")
		if err != nil {
			logging.Debug("Skipping MCP registration for %s: %v", name, err)
			continue
		}

		s.mcpServer.AddTool(toolDefinition(tool), s.callHandler(tool.Name))
		count++
	}
	return count
}

func toolDefinition(tool registry.Tool) mcp.Tool {
	description := tool.Description
	if description == "" {
		description = "Gantz tool " + tool.Name
	}
	description = fmt.Sprintf("%s (v%s)", description, tool.Version)
	if tool.Deprecated {
		description += " [deprecated]"
	}

	opts := []mcp.ToolOption{mcp.WithDescription(description)}
	for _, spec := range tool.Params {
		opts = append(opts, paramOption(spec))
	}
	return mcp.NewTool(tool.Name, opts...)
}

func paramOption(spec params.Spec) mcp.ToolOption {
	props := []mcp.PropertyOption{}
	if spec.Description != "" {
		props = append(props, mcp.Description(spec.Description))
	}
	if spec.Required {
		props = append(props, mcp.Required())
	}

	switch spec.Type {
	case params.TypeInt, params.TypeFloat:
		return mcp.WithNumber(spec.Name, props...)
	case params.TypeBool:
		return mcp.WithBoolean(spec.Name, props...)
	case params.TypeObject:
		return mcp.WithObject(spec.Name, props...)
	case params.TypeArray:
		return mcp.WithArray(spec.Name, props...)
	default:
		if len(spec.Enum) > 0 {
			props = append(props, mcp.Enum(spec.Enum...))
		}
		return mcp.WithString(spec.Name, props...)
	}
}

// callHandler routes an MCP tools/call through the dispatcher. Dispatch
// errors become protocol tool errors prefixed with their kind; the
// transport itself never fails a call.
func (s *Server) callHandler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resp, err := s.dispatcher.Dispatch(ctx, bearerFromContext(ctx), dispatch.Request{
			Tool:   name,
			Params: request.GetArguments(),
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("%s: %v", dispatch.Kind(err), err)), nil
		}

		payload := map[string]interface{}{
			"request_id": resp.RequestID,
			"tool":       resp.Result.ToolName,
			"version":    resp.Result.ToolVersion,
			"result":     resp.Result.Output,
		}
		if resp.Result.Cached {
			payload["cached"] = true
		}
		if len(resp.Warnings) > 0 {
			payload["deprecation_warning"] = resp.Warnings[0]
		}

		resultJSON, _ := json.MarshalIndent(payload, "", "  ")
		return mcp.NewToolResultText(string(resultJSON)), nil
	}
}

// visibleTools filters tools/list by the caller's scopes. Local mode sees
// everything; unauthenticated or unscoped callers see nothing.
func (s *Server) visibleTools(ctx context.Context, list []mcp.Tool) []mcp.Tool {
	if s.localMode {
		return list
	}

	token, err := s.tokens.Validate(ctx, bearerFromContext(ctx))
	if err != nil {
		return nil
	}
	if !tokens.CanReadTools(token.Scopes) {
		return nil
	}

	visible := make([]mcp.Tool, 0, len(list))
	for _, t := range list {
		if tokens.VisibleTool(token.Scopes, t.Name) {
			visible = append(visible, t)
		}
	}
	return visible
}
