// Package mcpserver exposes resource operations as MCP tools over stdio.
//
// The stdio transport is trusted: there is no caller token check. The
// server runs against a local *resource.Operations or, in proxy mode,
// against an apiclient.Client talking to a remote gateway.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/tonimelisma/sharepoint-gateway/internal/authz"
	"github.com/tonimelisma/sharepoint-gateway/internal/fault"
	"github.com/tonimelisma/sharepoint-gateway/internal/resource"
)

const implementationName = "sharepoint-gateway"

// ErrNotInitialized is returned by New when no operations are supplied.
var ErrNotInitialized = fault.New(fault.Unavailable, "mcpserver", "SharePoint tools not initialized")

// Options configures a Server. Zero values select the defaults.
type Options struct {
	Version string

	// Local enables the tools that read or write the gateway host's
	// filesystem. Leave nil in proxy mode.
	Local resource.LocalFiles

	// DefaultDepth applies to Get_SharePoint_Tree calls without max_depth.
	DefaultDepth int
}

// Server is an MCP server bound to one resource.Service.
type Server struct {
	svc          resource.Service
	local        resource.LocalFiles
	defaultDepth int
	logger       *slog.Logger
	mcp          *mcp.Server
}

// New builds the server and registers its tools.
func New(svc resource.Service, opts Options, logger *slog.Logger) (*Server, error) {
	if !resource.Usable(svc) {
		return nil, ErrNotInitialized
	}

	if logger == nil {
		logger = slog.Default()
	}

	if opts.DefaultDepth <= 0 {
		opts.DefaultDepth = resource.DefaultTreeDepth
	}

	version := opts.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		svc:          svc,
		local:        opts.Local,
		defaultDepth: opts.DefaultDepth,
		logger:       logger,
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    implementationName,
			Version: version,
		}, nil),
	}

	s.registerTools()

	return s, nil
}

// Run serves MCP over stdin/stdout until ctx is canceled or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server listening on stdio", slog.Bool("local_files", s.local != nil))

	return s.RunTransport(ctx, &mcp.StdioTransport{})
}

// RunTransport serves MCP over t.
func (s *Server) RunTransport(ctx context.Context, t mcp.Transport) error {
	if err := s.mcp.Run(ctx, t); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcpserver: %w", err)
	}

	return nil
}

// Connect attaches a single session on t without blocking.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, t, nil)
}

// callFunc runs one tool invocation and returns the value to render.
type callFunc[In any] func(ctx context.Context, in In) (any, error)

// handler adapts fn into an SDK tool handler. Results become one indented
// JSON text block; failures are rendered as tool errors, never protocol
// errors.
func handler[In any](s *Server, name string, fn callFunc[In]) mcp.ToolHandlerFor[In, any] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, any, error) {
		ctx = authz.WithCaller(ctx, authz.Caller{Transport: authz.TransportMCP})

		s.logger.Debug("tool called", slog.String("tool", name))

		out, err := fn(ctx, in)
		if err != nil {
			s.logger.Error("tool execution failed",
				slog.String("tool", name),
				slog.String("kind", fault.KindOf(err).String()),
				slog.String("error", fault.Message(err)),
			)

			return failure(err), nil, nil
		}

		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return failure(fmt.Errorf("encoding result: %w", err)), nil, nil
		}

		return textResult(string(data), false), nil, nil
	}
}

type failureBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func failure(err error) *mcp.CallToolResult {
	data, _ := json.MarshalIndent(failureBody{
		Success: false,
		Message: "Tool execution failed: " + fault.Message(err),
	}, "", "  ")

	return textResult(string(data), true)
}

func textResult(text string, isError bool) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: isError,
	}
}
