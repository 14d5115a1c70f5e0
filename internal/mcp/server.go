package mcp

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/server"

	"github.com/gantz-ai/gantz/internal/dispatch"
	"github.com/gantz-ai/gantz/internal/logging"
	"github.com/gantz-ai/gantz/internal/registry"
	"github.com/gantz-ai/gantz/internal/tokens"
	"github.com/gantz-ai/gantz/internal/version"
)

type contextKey string

// bearerKey carries the caller's bearer secret from the HTTP transport
// into tool handlers. Stdio transport never sets it; local mode does not
// need it.
const bearerKey contextKey = "gantz.bearer"

// Server exposes the registry over the Model Context Protocol. Calls go
// through the same dispatcher as the HTTP API, so auth, budgets, caching,
// and run history behave identically on both surfaces.
type Server struct {
	mcpServer  *server.MCPServer
	httpServer *server.StreamableHTTPServer
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	tokens     *tokens.Store
	localMode  bool
}

func NewServer(reg *registry.Registry, dispatcher *dispatch.Dispatcher, store *tokens.Store, localMode bool) *Server {
	s := &Server{
		registry:   reg,
		dispatcher: dispatcher,
		tokens:     store,
		localMode:  localMode,
	}

	s.mcpServer = server.NewMCPServer(
		"Gantz Gateway",
		version.GetVersion(),
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithToolFilter(s.visibleTools),
	)

	registered := s.registerTools()
	logging.Info("MCP server configured with %d tools", registered)

	return s
}

// Start serves the streamable HTTP transport until ctx is cancelled. The
// Authorization header travels into handler context so the dispatcher can
// authenticate each call.
func (s *Server) Start(ctx context.Context, port int) error {
	s.httpServer = server.NewStreamableHTTPServer(s.mcpServer,
		server.WithHTTPContextFunc(bearerContextFunc),
	)

	addr := fmt.Sprintf(":%d", port)
	logging.Info("Starting MCP server on %s (endpoint http://localhost:%d/mcp)", addr, port)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("MCP server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// StartStdio serves the stdio transport, used by gantz serve --local for
// single-user sessions.
func (s *Server) StartStdio(ctx context.Context) error {
	logging.Info("Starting MCP server on stdio")

	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("MCP stdio server error: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	logging.Info("MCP server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// bearerContextFunc extracts the bearer secret from the incoming request.
// Missing or malformed headers leave the context untouched; the dispatcher
// classifies the failure when the tool is actually called.
func bearerContextFunc(ctx context.Context, r *http.Request) context.Context {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ctx
	}
	secret, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || secret == "" {
		return ctx
	}
	return context.WithValue(ctx, bearerKey, secret)
}

func bearerFromContext(ctx context.Context) string {
	if secret, ok := ctx.Value(bearerKey).(string); ok {
		return secret
	}
	return ""
}
