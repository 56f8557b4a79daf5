// Package mcp exposes document ingestion and retrieval as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/arturoeanton/design-copilot/internal/domain"
	"github.com/arturoeanton/design-copilot/internal/middleware"
	"github.com/arturoeanton/design-copilot/internal/service"
)

// Server implements the Model Context Protocol (MCP) server.
// It exposes tools for external AI agents to query and feed the caller's documents.
// Every HTTP request must carry a bearer token; tools act for its subject.
type Server struct {
	query     *service.QueryService
	ingest    *service.IngestService
	documents *service.DocumentService
	audit     middleware.AuditWriter
	jwt       middleware.JWTConfig

	mcp  *mcpserver.MCPServer
	http *http.Server
}

// NewServer creates a new MCP server and registers its tools. audit may be nil.
func NewServer(
	query *service.QueryService,
	ingest *service.IngestService,
	documents *service.DocumentService,
	audit middleware.AuditWriter,
	jwtCfg middleware.JWTConfig,
	port, version string,
) *Server {
	s := &Server{
		query:     query,
		ingest:    ingest,
		documents: documents,
		audit:     audit,
		jwt:       jwtCfg,
		mcp: mcpserver.NewMCPServer(
			"design-copilot",
			version,
			mcpserver.WithToolCapabilities(false),
			mcpserver.WithRecovery(),
		),
	}
	s.registerTools()
	s.http = &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the authenticated streamable HTTP transport mounted on /mcp.
func (s *Server) Handler() http.Handler {
	streamable := mcpserver.NewStreamableHTTPServer(s.mcp,
		mcpserver.WithEndpointPath("/mcp"),
		mcpserver.WithHTTPContextFunc(ownerFromRequest),
	)
	mux := http.NewServeMux()
	mux.Handle("/mcp", s.requireBearer(streamable))
	return mux
}

// Start serves the transport. It blocks until Shutdown.
func (s *Server) Start() error {
	slog.Info("MCP server starting", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP transport.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

type ownerKey struct{}

func withOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerKey{}, ownerID)
}

// ownerFrom returns the authenticated owner placed in ctx by requireBearer.
func ownerFrom(ctx context.Context) (string, bool) {
	owner, ok := ctx.Value(ownerKey{}).(string)
	return owner, ok && owner != ""
}

// ownerFromRequest carries the owner from the HTTP request into the tool call context.
func ownerFromRequest(ctx context.Context, r *http.Request) context.Context {
	if owner, ok := ownerFrom(r.Context()); ok {
		return withOwner(ctx, owner)
	}
	return ctx
}

// requireBearer rejects requests without a valid token before they reach the MCP session.
func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || strings.TrimSpace(token) == "" {
			writeUnauthorized(w, "missing authorization")
			return
		}
		claims, err := middleware.ValidateJWT(strings.TrimSpace(token), s.jwt)
		if err != nil {
			slog.Warn("MCP request rejected", "remote", r.RemoteAddr, "error", err)
			writeUnauthorized(w, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(withOwner(r.Context(), claims.Subject)))
	})
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="mcp"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.Tool{
		Name:        "ask_documents",
		Description: "Answer a question using only the caller's ingested design documents. Returns the answer and the chunks it was grounded on.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"question": map[string]interface{}{
					"type":        "string",
					"description": "Question in natural language",
				},
			},
			Required: []string{"question"},
		},
	}, s.audited("ask_documents", s.AskDocuments))

	s.mcp.AddTool(mcp.Tool{
		Name:        "search_documents",
		Description: "Semantic search over the caller's document chunks without generating an answer.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query",
				},
				"top_k": map[string]interface{}{
					"type":        "number",
					"description": "Maximum number of chunks to return (default: 5, max: 50)",
					"default":     5,
				},
			},
			Required: []string{"query"},
		},
	}, s.audited("search_documents", s.SearchDocuments))

	s.mcp.AddTool(mcp.Tool{
		Name:        "ingest_text",
		Description: "Chunk, embed and store a text document for the caller.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"filename": map[string]interface{}{
					"type":        "string",
					"description": "Name to store the document under (default: untitled.txt)",
				},
				"content": map[string]interface{}{
					"type":        "string",
					"description": "Plain text or markdown content",
				},
			},
			Required: []string{"content"},
		},
	}, s.audited("ingest_text", s.IngestText))

	s.mcp.AddTool(mcp.Tool{
		Name:        "list_documents",
		Description: "List the caller's documents, newest first.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{},
		},
	}, s.audited("list_documents", s.ListDocuments))
}

// audited records one audit entry per tool call. Arguments are not recorded.
func (s *Server) audited(name string, next mcpserver.ToolHandlerFunc) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result, err := next(ctx, request)
		if s.audit != nil {
			owner, ok := ownerFrom(ctx)
			if !ok {
				owner = "anonymous"
			}
			details, _ := json.Marshal(map[string]interface{}{
				"tool":     name,
				"is_error": err != nil || (result != nil && result.IsError),
			})
			if writeErr := s.audit.WriteAudit(owner, domain.AuditActionMCPCall, "tool", name, string(details), "", "mcp"); writeErr != nil {
				slog.Error("failed to write audit log", "error", writeErr)
			}
		}
		return result, err
	}
}
