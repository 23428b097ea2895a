package chunker

import (
	"path/filepath"
	"strings"

	"github.com/quarrydev/quarry/pkg/types"
)

const (
	// DefaultChunkSize is the default window size in characters
	DefaultChunkSize = 1000

	// DefaultOverlap is the default look-back overlap between windows
	DefaultOverlap = 200

	// MinChunkLen is the minimum window length; shorter windows are
	// dropped as noise
	MinChunkLen = 50
)

// Chunker splits file text into overlapping fixed-size windows
type Chunker struct {
	chunkSize int
	overlap   int
}

// Option configures a Chunker
type Option func(*Chunker)

// WithChunkSize sets the window size in characters
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between consecutive windows in characters
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// New creates a Chunker with the given options
func New(opts ...Option) *Chunker {
	c := &Chunker{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultOverlap,
	}

	for _, opt := range opts {
		opt(c)
	}

	// Overlap must leave a positive stride
	if c.overlap >= c.chunkSize {
		c.overlap = c.chunkSize / 4
	}

	return c
}

// Chunk splits text into documents using a sliding window with overlap.
// The stride is chunkSize - overlap. Windows shorter than MinChunkLen are
// dropped. Empty or whitespace-only input yields zero chunks and no error;
// Chunk is a pure function of its input and is safe to call concurrently.
func (c *Chunker) Chunk(text, filePath string) []types.Document {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	stride := c.chunkSize - c.overlap
	language := detectLanguage(filePath)

	docs := make([]types.Document, 0, len(text)/stride+1)

	// Line numbers are derived by counting newlines in the prefix up to
	// the window's byte offset. Tracked incrementally per stride so large
	// files are not rescanned per window.
	startLine := 1
	prevOffset := 0

	for offset := 0; offset < len(text); offset += stride {
		end := offset + c.chunkSize
		if end > len(text) {
			end = len(text)
		}

		startLine += strings.Count(text[prevOffset:offset], "\n")
		prevOffset = offset

		window := text[offset:end]
		if len(window) >= MinChunkLen {
			docs = append(docs, types.Document{
				ID:        types.DocumentID(filePath, offset),
				Text:      window,
				FilePath:  filePath,
				StartLine: startLine,
				EndLine:   startLine + strings.Count(window, "\n"),
				ChunkType: types.ChunkWindow,
				Language:  language,
			})
		}

		if end == len(text) {
			break
		}
	}

	return docs
}

// ChunkSize returns the configured window size
func (c *Chunker) ChunkSize() int {
	return c.chunkSize
}

// Overlap returns the configured window overlap
func (c *Chunker) Overlap() int {
	return c.overlap
}

// languageByExt maps file extensions to language tags used as provenance
// metadata on documents. Unknown extensions map to the empty string.
var languageByExt = map[string]string{
	".go":    "go",
	".ts":    "typescript",
	".tsx":   "typescript",
	".js":    "javascript",
	".jsx":   "javascript",
	".py":    "python",
	".rb":    "ruby",
	".rs":    "rust",
	".java":  "java",
	".kt":    "kotlin",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".swift": "swift",
	".php":   "php",
	".sh":    "shell",
	".sql":   "sql",
	".md":    "markdown",
	".json":  "json",
	".yaml":  "yaml",
	".yml":   "yaml",
	".toml":  "toml",
	".html":  "html",
	".css":   "css",
}

// detectLanguage infers a language tag from the file extension
func detectLanguage(filePath string) string {
	return languageByExt[strings.ToLower(filepath.Ext(filePath))]
}
