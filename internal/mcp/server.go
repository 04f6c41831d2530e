package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/mfenderov/blog-harvester/pkg/models"
)

// DefaultLimit is the number of chunks returned when the caller gives none.
const DefaultLimit = 10

// maxLimit caps a single search.
const maxLimit = 100

// Config holds MCP server configuration.
type Config struct {
	Name    string
	Version string
}

// ChunkIndex answers chunk lookups.
type ChunkIndex interface {
	Search(ctx context.Context, query string, limit int) ([]models.Chunk, error)
	GetChunk(ctx context.Context, id string) (*models.Chunk, error)
}

// Server exposes the chunk index as MCP tools.
type Server struct {
	mcpServer *server.MCPServer
	index     ChunkIndex
}

// NewServer creates a new MCP server with search tools.
func NewServer(config Config, index ChunkIndex) *Server {
	mcpServer := server.NewMCPServer(
		config.Name,
		config.Version,
		server.WithToolCapabilities(true),
	)

	s := &Server{
		mcpServer: mcpServer,
		index:     index,
	}

	searchTool := mcp.NewTool("search_chunks",
		mcp.WithDescription("Search harvested blog article chunks by query. Each result carries the source page URL and the chunk position within the page."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query string"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results to return (default: 10)"),
		),
	)
	mcpServer.AddTool(searchTool, s.searchHandler)

	getChunkTool := mcp.NewTool("get_chunk",
		mcp.WithDescription("Get a specific chunk by ID"),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Chunk ID to retrieve"),
		),
	)
	mcpServer.AddTool(getChunkTool, s.getChunkHandler)

	return s
}

// searchHandler handles the search_chunks tool call.
func (s *Server) searchHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil || query == "" {
		return mcp.NewToolResultError("query parameter is required"), nil
	}

	limit := req.GetInt("limit", DefaultLimit)
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	chunks, err := s.index.Search(ctx, query, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if chunks == nil {
		chunks = []models.Chunk{}
	}

	result, err := json.Marshal(chunks)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}

	return mcp.NewToolResultText(string(result)), nil
}

// getChunkHandler handles the get_chunk tool call.
func (s *Server) getChunkHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil || id == "" {
		return mcp.NewToolResultError("id parameter is required"), nil
	}

	chunk, err := s.index.GetChunk(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get chunk failed: %v", err)), nil
	}

	if chunk == nil {
		return mcp.NewToolResultError(fmt.Sprintf("chunk not found: %s", id)), nil
	}

	result, err := json.Marshal(chunk)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal chunk: %v", err)), nil
	}

	return mcp.NewToolResultText(string(result)), nil
}

// ServeStdio starts the MCP server using stdio transport.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
