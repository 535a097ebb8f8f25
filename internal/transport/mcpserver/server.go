// Package mcpserver exposes the operation catalog as MCP tools over the
// streamable HTTP transport. Each declared operation becomes one tool; every
// invocation runs through the governed pipeline, so transport code never
// touches authentication, caching, or admission directly.
package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"vcgate/internal/catalog"
	"vcgate/internal/pipeline"
	dErrors "vcgate/pkg/domain-errors"
)

type contextKey string

const (
	credentialKey contextKey = "credential"
	requestIDKey  contextKey = "request_id"
)

// Server bridges MCP tool calls into the pipeline.
type Server struct {
	mcp      *server.MCPServer
	pipeline *pipeline.Pipeline
	logger   *slog.Logger
}

// New registers every catalog operation as an MCP tool.
func New(name, version string, cat *catalog.Catalog, pipe *pipeline.Pipeline, logger *slog.Logger) *Server {
	s := &Server{
		mcp: server.NewMCPServer(
			name,
			version,
			server.WithToolCapabilities(false),
			server.WithLogging(),
		),
		pipeline: pipe,
		logger:   logger,
	}
	for _, op := range cat.All() {
		s.mcp.AddTool(toolDeclaration(op), s.toolHandler(op.Name))
	}
	return s
}

// StreamableHTTP returns the HTTP server for the /mcp endpoint. Credentials
// ride in the Authorization header and are carried into the tool handler via
// the request context.
func (s *Server) StreamableHTTP() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(
		s.mcp,
		server.WithEndpointPath("/mcp"),
		server.WithHTTPContextFunc(injectRequestMeta),
	)
}

func injectRequestMeta(ctx context.Context, r *http.Request) context.Context {
	if header := r.Header.Get("Authorization"); header != "" {
		ctx = context.WithValue(ctx, credentialKey, strings.TrimPrefix(header, "Bearer "))
	}
	if id := r.Header.Get("X-Request-Id"); id != "" {
		ctx = context.WithValue(ctx, requestIDKey, id)
	}
	return ctx
}

func (s *Server) toolHandler(operation string) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		credential, _ := ctx.Value(credentialKey).(string)
		requestID, _ := ctx.Value(requestIDKey).(string)

		args, ok := req.Params.Arguments.(map[string]any)
		if !ok {
			args = make(map[string]any)
		}

		resp, err := s.pipeline.Execute(ctx, pipeline.Request{
			Operation:  operation,
			Params:     args,
			Credential: credential,
			RequestID:  requestID,
		})
		if err != nil {
			s.logger.Debug("tool call rejected",
				"operation", operation,
				"request_id", resp.RequestID,
				"code", dErrors.CodeOf(err),
			)
			// Error results carry the kind, the message, and the request id
			// so clients can correlate failures with the audit log.
			return mcp.NewToolResultError(fmt.Sprintf(
				"%s: %s (request_id=%s)",
				dErrors.CodeOf(err), dErrors.MessageOf(err), resp.RequestID,
			)), nil
		}

		// Results are already canonical JSON; indent for human-facing clients.
		var pretty bytes.Buffer
		if indentErr := json.Indent(&pretty, resp.Result, "", "  "); indentErr != nil {
			return mcp.NewToolResultText(string(resp.Result)), nil
		}
		return mcp.NewToolResultText(pretty.String()), nil
	}
}

func toolDeclaration(op catalog.Operation) mcp.Tool {
	properties := make(map[string]interface{}, len(op.Params))
	for name, p := range op.Params {
		properties[name] = map[string]interface{}{
			"type":        p.Type,
			"description": p.Description,
		}
	}
	return mcp.Tool{
		Name:        op.Name,
		Description: op.Description,
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: properties,
			Required:   op.RequiredParams(),
		},
	}
}
