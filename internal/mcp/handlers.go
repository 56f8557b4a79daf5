package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/arturoeanton/design-copilot/internal/service"
)

// AskDocuments handles the ask_documents tool.
func (s *Server) AskDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, ok := ownerFrom(ctx)
	if !ok {
		return mcp.NewToolResultError("unauthorized"), nil
	}
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("question argument is required and must be a string"), nil
	}

	answer, err := s.query.Answer(ctx, owner, question)
	if err != nil {
		slog.Error("MCP ask failed", "owner_id", owner, "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("ask failed: %v", err)), nil
	}
	return jsonResult(answer)
}

// SearchDocuments handles the search_documents tool.
func (s *Server) SearchDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, ok := ownerFrom(ctx)
	if !ok {
		return mcp.NewToolResultError("unauthorized"), nil
	}
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query argument is required and must be a string"), nil
	}
	topK := request.GetInt("top_k", 5)

	results, err := s.query.Search(ctx, owner, query, topK)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	return jsonResult(map[string]interface{}{
		"results": results,
		"count":   len(results),
	})
}

// IngestText handles the ingest_text tool.
func (s *Server) IngestText(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, ok := ownerFrom(ctx)
	if !ok {
		return mcp.NewToolResultError("unauthorized"), nil
	}
	content, err := request.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError("content argument is required and must be a string"), nil
	}

	result, err := s.ingest.Ingest(ctx, service.IngestRequest{
		OwnerID:  owner,
		Filename: request.GetString("filename", ""),
		Text:     content,
		Metadata: map[string]string{"source": "mcp"},
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("ingest failed: %v", err)), nil
	}
	return jsonResult(result)
}

// ListDocuments handles the list_documents tool.
func (s *Server) ListDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, ok := ownerFrom(ctx)
	if !ok {
		return mcp.NewToolResultError("unauthorized"), nil
	}

	docs, err := s.documents.List(ctx, owner)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
	}
	return jsonResult(map[string]interface{}{
		"documents": docs,
		"count":     len(docs),
	})
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
