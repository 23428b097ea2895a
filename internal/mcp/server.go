package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/quarrydev/quarry/internal/indexer"
	"github.com/quarrydev/quarry/internal/searcher"
	"github.com/quarrydev/quarry/internal/session"
	"github.com/quarrydev/quarry/internal/store"
	"github.com/quarrydev/quarry/pkg/types"
)

const (
	// ServerName is the MCP server name
	ServerName = "quarry"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// cachedSearch is the per-session state kept between queries: the last query
// and its results, so an agent re-asking the same question inside one
// session never rescans the corpus.
type cachedSearch struct {
	Query   string
	Mode    searcher.Mode
	Limit   int
	Results []types.ScoredDocument
}

// Server wraps the MCP server with application dependencies. Dependencies
// are injected fully constructed; the server owns none of their lifecycles
// except the store, which it flushes on shutdown.
type Server struct {
	mcp      *server.MCPServer
	store    *store.Store
	indexer  *indexer.Indexer
	searcher *searcher.Searcher
	sessions *session.Cache[cachedSearch]
}

// NewServer creates a new MCP server instance
func NewServer(st *store.Store, idx *indexer.Indexer, srch *searcher.Searcher) *Server {
	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion),
		store:    st,
		indexer:  idx,
		searcher: srch,
		sessions: session.New[cachedSearch](session.DefaultMaxEntries),
	}
	s.registerTools()
	return s
}

// Serve starts the MCP server on stdio and blocks until shutdown. The store
// is flushed and closed when the server stops.
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.store.Close() }()
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(indexWorkspaceTool(), s.handleIndexWorkspace)
	s.mcp.AddTool(searchCodeTool(), s.handleSearchCode)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	s.mcp.AddTool(clearIndexTool(), s.handleClearIndex)
}
