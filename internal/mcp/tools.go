package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/quarrydev/quarry/internal/searcher"
	"github.com/quarrydev/quarry/internal/store"
	"github.com/quarrydev/quarry/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodeIndexingInProgress = -32002 // Another indexing run is already active
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
)

// snippetLen bounds how much chunk text a search result carries
const snippetLen = 300

// handleIndexWorkspace handles the index_workspace tool invocation
func (s *Server) handleIndexWorkspace(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	if err := validatePath(path); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	if force, _ := args["force"].(bool); force {
		s.store.Clear()
	}

	result, err := s.indexer.Run(ctx, path)
	if errors.Is(err, types.ErrIndexingInProgress) {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "an indexing run is already active", nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"run_id":               result.RunID,
		"indexed":              result.Indexed,
		"skipped":              result.Skipped,
		"errors":               result.Errors,
		"embeddings_available": result.EmbeddingsAvailable,
		"cancelled":            result.Cancelled,
		"duration_ms":          result.Duration.Milliseconds(),
	}

	if len(result.ErrorMessages) > 0 {
		msgs := result.ErrorMessages
		if len(msgs) > 5 {
			msgs = msgs[:5]
		}
		response["error_messages"] = msgs
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchCode handles the search_code tool invocation
func (s *Server) handleSearchCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	mode := searcher.Mode(getStringDefault(args, "mode", string(searcher.ModeAuto)))
	limit := getIntDefault(args, "limit", searcher.DefaultLimit)
	if limit < 1 || limit > searcher.MaxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams,
			fmt.Sprintf("limit must be between 1 and %d", searcher.MaxLimit), map[string]interface{}{
				"param": "limit",
				"value": limit,
			})
	}

	sessionID := getStringDefault(args, "session_id", "")
	if sessionID != "" {
		cached, ok := s.sessions.Get(sessionID)
		if ok && cached.Query == query && cached.Mode == mode && cached.Limit == limit {
			return mcp.NewToolResultText(formatSearchResponse(query, cached.Results, true)), nil
		}
	}

	results, err := s.searcher.Search(ctx, query, mode, limit)
	if errors.Is(err, types.ErrEmptyQuery) {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query cannot be blank", nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	if sessionID != "" {
		s.sessions.Set(sessionID, cachedSearch{Query: query, Mode: mode, Limit: limit, Results: results})
	}

	return mcp.NewToolResultText(formatSearchResponse(query, results, false)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	response := map[string]interface{}{
		"state":     string(s.indexer.State()),
		"documents": s.store.Count(),
		"files":     s.store.FileCount(),
		"vectors":   s.store.VectorCount(),
		"build": map[string]interface{}{
			"mode":   store.BuildMode,
			"driver": store.DriverName,
		},
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleClearIndex handles the clear_index tool invocation
func (s *Server) handleClearIndex(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.store.Clear()
	s.sessions.Clear()

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"cleared":   true,
		"documents": s.store.Count(),
	})), nil
}

// formatSearchResponse renders results with bounded snippets
func formatSearchResponse(query string, results []types.ScoredDocument, fromCache bool) string {
	rendered := make([]map[string]interface{}, 0, len(results))
	for _, r := range results {
		snippet := r.Document.Text
		if len(snippet) > snippetLen {
			snippet = snippet[:snippetLen] + "..."
		}
		rendered = append(rendered, map[string]interface{}{
			"id":         r.Document.ID,
			"file_path":  r.Document.FilePath,
			"start_line": r.Document.StartLine,
			"end_line":   r.Document.EndLine,
			"language":   r.Document.Language,
			"score":      r.Score,
			"snippet":    snippet,
		})
	}

	return formatJSON(map[string]interface{}{
		"query":      query,
		"count":      len(results),
		"from_cache": fromCache,
		"results":    rendered,
	})
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{Code: code, Message: message, Data: data}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validatePath checks that a path is an absolute, readable directory
func validatePath(path string) error {
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}
	return nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
