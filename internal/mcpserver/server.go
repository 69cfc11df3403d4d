// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes beacon tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/skarde/beacon/internal/engine"
)

// Server wraps the MCP server with beacon tools.
type Server struct {
	mcp *server.MCPServer
	svc *engine.Service
}

// New creates a new MCP server with all beacon tools registered.
func New(svc *engine.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Beacon",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_documents",
		mcp.WithDescription("Full-text search within one view. Returns matching documents with snippets."),
		mcp.WithString("view", mcp.Required(), mcp.Description("View name to search in (see list_views)")),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Max results (default 20)")),
	), s.search)

	s.mcp.AddTool(mcp.NewTool("list_views",
		mcp.WithDescription("List search views with their link counts."),
	), s.listViews)

	s.mcp.AddTool(mcp.NewTool("list_collections",
		mcp.WithDescription("List document collections with document and link counts."),
	), s.listCollections)

	s.mcp.AddTool(mcp.NewTool("read_document",
		mcp.WithDescription("Read one stored document by collection name and revision id."),
		mcp.WithString("collection", mcp.Required(), mcp.Description("Collection name")),
		mcp.WithNumber("rid", mcp.Required(), mcp.Description("Revision id of the document")),
	), s.readDocument)

	s.mcp.AddTool(mcp.NewTool("insert_document",
		mcp.WithDescription("Store a JSON document in a collection and index it through the collection's links."),
		mcp.WithString("collection", mcp.Required(), mcp.Description("Collection name")),
		mcp.WithString("document", mcp.Required(), mcp.Description("Document body as a JSON object string")),
	), s.insertDocument)

	s.mcp.AddTool(mcp.NewTool("get_link_contract",
		mcp.WithDescription("Returns the link definition format. "+
			"Call this before creating links to ensure a correct definition."),
	), s.getLinkContract)

	// Resource: link definition contract.
	s.mcp.AddResource(
		mcp.NewResource("beacon://link-format", "Link Definition Contract",
			mcp.WithResourceDescription("JSON definition format that binds a collection to a search view."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readLinkFormatResource,
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

func (s *Server) search(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	view, err := req.RequireString("view")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := req.GetInt("limit", 20)
	results, err := s.svc.Search(ctx, view, query, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("no matches"), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listViews(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	infos, err := s.svc.Views(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(infos, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listCollections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	infos, err := s.svc.Collections(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(infos, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	collection, err := req.RequireString("collection")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rid, err := req.RequireInt("rid")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if rid < 1 {
		return mcp.NewToolResultError("rid must be a positive integer"), nil
	}
	row, err := s.svc.GetDocument(ctx, collection, uint64(rid))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s/%d", collection, rid)), nil
	}
	return mcp.NewToolResultText(string(row.Body)), nil
}

func (s *Server) insertDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	collection, err := req.RequireString("collection")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	document, err := req.RequireString("document")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rid, err := s.svc.InsertDocument(ctx, collection, []byte(document))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("stored: %s/%d", collection, rid)), nil
}

func (s *Server) getLinkContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(LinkFormatContract), nil
}

func (s *Server) readLinkFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "beacon://link-format",
			MIMEType: "text/markdown",
			Text:     LinkFormatContract,
		},
	}, nil
}
