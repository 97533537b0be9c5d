// Package server exposes the tool catalogue over MCP: stdio by default, a
// streamable HTTP transport with health and bearer-auth middleware when
// MCP_TRANSPORT=http.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	sdk_server "github.com/mark3labs/mcp-go/server"

	"github.com/orchestra-mcp/orchestra/internal/catalogue"
	"github.com/orchestra-mcp/orchestra/internal/config"
	"github.com/orchestra-mcp/orchestra/internal/conversation"
	"github.com/orchestra-mcp/orchestra/internal/handler"
	"github.com/orchestra-mcp/orchestra/internal/provider"
)

// Server binds the request handler to an MCP transport.
type Server struct {
	mcp       *sdk_server.MCPServer
	handler   *handler.Handler
	catalogue *catalogue.Registry
	providers *provider.Registry
	store     *conversation.Store
	startTime time.Time
}

// New builds the MCP server and registers every visible tool plus the
// select_mode/execute_mode meta-tools.
func New(h *handler.Handler, reg *catalogue.Registry, providers *provider.Registry, store *conversation.Store) *Server {
	s := &Server{
		mcp: sdk_server.NewMCPServer(
			"orchestra",
			config.Version,
			sdk_server.WithToolCapabilities(false),
			sdk_server.WithRecovery(),
		),
		handler:   h,
		catalogue: reg,
		providers: providers,
		store:     store,
		startTime: time.Now(),
	}
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	for _, d := range s.catalogue.List() {
		tool := mcp.NewToolWithRawSchema(d.Name, d.Description, s.catalogue.Schema(d))
		s.mcp.AddTool(tool, s.toolHandler(d.Name))
	}

	s.mcp.AddTool(
		mcp.NewToolWithRawSchema("select_mode",
			"Pick the right tool and complexity for a task; returns the schema the follow-up call must match",
			metaSelectSchema),
		s.toolHandler("select_mode"))
	s.mcp.AddTool(
		mcp.NewToolWithRawSchema("execute_mode",
			"Execute a previously selected mode with a request matching its schema",
			metaExecuteSchema),
		s.toolHandler("execute_mode"))

	log.Printf("[Server] Registered %d tools", len(s.catalogue.List())+2)
}

func (s *Server) toolHandler(name string) sdk_server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		out := s.handler.HandleToolCall(ctx, name, req.GetArguments())
		return mcp.NewToolResultText(out), nil
	}
}

// Run serves the configured transport until the process is signalled.
func (s *Server) Run() error {
	if config.MCPTransport() == "http" {
		return s.runHTTP()
	}
	log.Printf("[Server] Serving MCP over stdio")
	return sdk_server.ServeStdio(s.mcp)
}

func (s *Server) runHTTP() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/mcp", s.authMiddleware(sdk_server.NewStreamableHTTPServer(s.mcp)))

	addr := fmt.Sprintf("%s:%d", config.MCPHost(), config.MCPPort())
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		log.Printf("[Server] Received signal %v, shutting down", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[Server] Graceful shutdown error: %v", err)
		}
	}()

	log.Printf("[Server] Serving MCP over HTTP at http://%s/mcp", addr)
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		log.Printf("[Server] Stopped gracefully")
		return nil
	}
	return err
}

// authMiddleware enforces the bearer token when one is configured. The
// health endpoint stays open.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	token := config.MCPAuthToken()
	required := config.MCPRequireAuth() || token != ""
	if !required {
		return next
	}
	if token == "" {
		log.Printf("[Server] WARNING: MCP_REQUIRE_AUTH set without MCP_AUTH_TOKEN; all requests will be rejected")
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":         "ok",
		"version":        config.Version,
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
		"providers":      len(s.providers.Providers()),
		"tools":          len(s.catalogue.List()) + 2,
		"threads":        s.store.Count(),
	})
}

var metaSelectSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "task_description": {"type": "string", "description": "What the caller wants to accomplish"},
    "context_size": {"type": "string", "enum": ["small", "medium", "large", "huge"], "description": "Rough size of the relevant context"},
    "confidence_level": {"type": "string", "description": "Caller's confidence in their current understanding"}
  },
  "required": ["task_description"]
}`)

var metaExecuteSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "mode": {"type": "string", "description": "Mode returned by select_mode"},
    "complexity": {"type": "string", "enum": ["simple", "workflow"], "description": "Complexity returned by select_mode"},
    "request": {"type": "object", "description": "Request matching the mode's required_schema"}
  },
  "required": ["mode", "request"]
}`)
