// Package mcpapi provides a stateless MCP streamable-HTTP adapter.
package mcpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/hylla/warden/internal/adapters/server/common"
	"github.com/hylla/warden/internal/app"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler behind bearer auth.
type Handler struct {
	httpHandler http.Handler
	auth        common.Authenticator
}

// NewHandler builds one stateless MCP adapter exposing the workspace tools.
func NewHandler(cfg Config, workspace common.Workspace, auth common.Authenticator) (*Handler, error) {
	if workspace == nil {
		return nil, fmt.Errorf("workspace service is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerAuthorizeTool(mcpSrv, workspace)
	registerProjectTools(mcpSrv, workspace)
	registerMemberTools(mcpSrv, workspace)
	registerTaskTools(mcpSrv, workspace)
	registerStatusTools(mcpSrv, workspace)
	registerCommentTools(mcpSrv, workspace)

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
		mcpserver.WithHTTPContextFunc(carryActor),
	)
	return &Handler{httpHandler: streamable, auth: auth}, nil
}

// ServeHTTP authenticates and handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	ctx, err := common.AuthenticateHeader(r.Context(), h.auth, r.Header.Get("Authorization"))
	if err != nil {
		w.Header().Set("WWW-Authenticate", `Bearer realm="warden"`)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"code": "unauthenticated", "message": "bearer token required"},
		})
		return
	}
	h.httpHandler.ServeHTTP(w, r.WithContext(ctx))
}

// carryActor copies the authenticated caller into the tool-call context.
func carryActor(ctx context.Context, r *http.Request) context.Context {
	if actorID, ok := app.ActorFromContext(r.Context()); ok {
		return app.WithActor(ctx, actorID)
	}
	return ctx
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "warden"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	if !strings.HasPrefix(cfg.EndpointPath, "/") {
		cfg.EndpointPath = "/" + cfg.EndpointPath
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// toolResultFromError maps service errors into MCP-visible tool errors.
func toolResultFromError(err error) *mcp.CallToolResult {
	kind := common.Classify(err)
	return mcp.NewToolResultError(kind.Code + ": " + common.PublicMessage(err, kind))
}

// invalidRequestToolResult reports argument binding failures.
func invalidRequestToolResult(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError("invalid_request: " + err.Error())
}

// bindTool decodes tool arguments into T and encodes the handler result as JSON.
func bindTool[T any](name string, fn func(context.Context, T) (any, error)) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args T
		if err := req.BindArguments(&args); err != nil {
			return invalidRequestToolResult(err), nil
		}
		out, err := fn(ctx, args)
		if err != nil {
			return toolResultFromError(err), nil
		}
		result, err := mcp.NewToolResultJSON(out)
		if err != nil {
			return nil, fmt.Errorf("encode %s result: %w", name, err)
		}
		return result, nil
	}
}

// addTool registers one tool whose handler is built by bindTool.
func addTool[T any](srv *mcpserver.MCPServer, tool mcp.Tool, fn func(context.Context, T) (any, error)) {
	srv.AddTool(tool, bindTool(tool.Name, fn))
}

// requireArg reports a missing required string argument.
func requireArg(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: required argument %q not found", common.ErrInvalidRequest, name)
	}
	return nil
}
