// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes sidecar tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/sidecar/internal/apperr"
	"github.com/starford/sidecar/internal/service"
	"github.com/starford/sidecar/internal/storage"
)

const formatURI = "sidecar://format"

// Server wraps the MCP server with sidecar tools.
type Server struct {
	mcp   *server.MCPServer
	svc   *service.Service
	files storage.Provider
}

// New creates a new MCP server with all sidecar tools registered.
func New(svc *service.Service, files storage.Provider) *Server {
	s := &Server{svc: svc, files: files}

	s.mcp = server.NewMCPServer(
		"Sidecar",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("create_sidecar",
		mcp.WithDescription("Create the metadata sidecar note for one asset file (image, PDF, ...). "+
			"Does nothing when the sidecar already exists."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Vault-relative path of the asset (e.g. images/photo.png)")),
	), s.createSidecar)

	s.mcp.AddTool(mcp.NewTool("bulk_create_sidecars",
		mcp.WithDescription("Create every missing sidecar for assets inside the watched folders."),
	), s.bulkCreate)

	s.mcp.AddTool(mcp.NewTool("lookup_sidecar",
		mcp.WithDescription("Classify a vault path as source, sidecar or irrelevant and resolve its counterpart, "+
			"including the sidecar's parsed frontmatter."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Vault-relative path of an asset or sidecar")),
	), s.lookupSidecar)

	s.mcp.AddTool(mcp.NewTool("recent_activity",
		mcp.WithDescription("List the most recent sidecar creations, deletions and renames."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of entries (default 50)")),
	), s.recentActivity)

	s.mcp.AddTool(mcp.NewTool("import_asset",
		mcp.WithDescription("Save an asset from a base64 data URI into the vault and create its sidecar. "+
			"Read the sidecar format via the get_sidecar_format tool or the "+formatURI+" resource."),
		mcp.WithString("data", mcp.Required(), mcp.Description("data:<mime>;base64,<payload>")),
		mcp.WithString("folder", mcp.Description("Target folder (default: vault root)")),
		mcp.WithString("filename", mcp.Description("File name; derived from the MIME type when empty")),
	), s.importAsset)

	s.mcp.AddTool(mcp.NewTool("get_sidecar_format",
		mcp.WithDescription("Returns how sidecars are named and what a new sidecar contains under the current settings."),
	), s.getSidecarFormat)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Sidecar Format",
			mcp.WithResourceDescription("Naming pattern and template used for sidecar notes."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func errorResult(path string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path))
	case errors.Is(err, apperr.ErrNotAsset):
		return mcp.NewToolResultError(fmt.Sprintf("not an asset (notes have no sidecar): %s", path))
	case errors.Is(err, apperr.ErrNoSidecarPath):
		return mcp.NewToolResultError(fmt.Sprintf("no sidecar possible (asset has no extension): %s", path))
	case errors.Is(err, apperr.ErrInvalidPath):
		return mcp.NewToolResultError(fmt.Sprintf("invalid path: %s", path))
	default:
		return mcp.NewToolResultError(err.Error())
	}
}

func (s *Server) createSidecar(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.CreateForPath(ctx, path)
	if err != nil {
		return errorResult(path, err), nil
	}
	if !res.Created {
		return mcp.NewToolResultText(fmt.Sprintf("exists: %s", res.Sidecar)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", res.Sidecar)), nil
}

func (s *Server) bulkCreate(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := s.svc.BulkCreate(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("created %d sidecars, some failed: %v", n, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %d", n)), nil
}

func (s *Server) lookupSidecar(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Lookup(ctx, path)
	if err != nil {
		return errorResult(path, err), nil
	}
	return jsonResult(res)
}

func (s *Server) recentActivity(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rows, err := s.svc.Activity(ctx, req.GetInt("limit", 0))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(rows) == 0 {
		return mcp.NewToolResultText("no activity recorded"), nil
	}
	return jsonResult(rows)
}

func (s *Server) getSidecarFormat(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(FormatGuide(s.svc.Settings())), nil
}

func (s *Server) readFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     FormatGuide(s.svc.Settings()),
		},
	}, nil
}
