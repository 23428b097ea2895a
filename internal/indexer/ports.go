package indexer

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// FileSystem abstracts workspace enumeration and file reads so tests can
// index synthetic trees.
type FileSystem interface {
	// ListFiles returns every indexable file under root
	ListFiles(ctx context.Context, root string) ([]string, error)
	// ReadFile returns the file's full content
	ReadFile(path string) ([]byte, error)
}

// ProgressReporter receives state transitions and per-file progress during a
// run. Implementations must be safe for concurrent use.
type ProgressReporter interface {
	StateChanged(state State)
	FileProcessed(progress Progress)
}

// Progress is a point-in-time snapshot of a run
type Progress struct {
	TotalFiles  int
	Processed   int
	Indexed     int
	Skipped     int
	Errors      int
	CurrentFile string
}

// Notifier receives operator-facing notices. Failures inside a run are
// notified, never raised past the coordinator. source names what the notice
// is about, usually a file path or the workspace root.
type Notifier interface {
	Notify(level, title, message, source string)
}

// NopNotifier discards notices
type NopNotifier struct{}

func (NopNotifier) Notify(string, string, string, string) {}

// LogNotifier writes notices to the standard logger
type LogNotifier struct{}

func (LogNotifier) Notify(level, title, message, source string) {
	log.Printf("indexer: [%s] %s (%s): %s", level, title, source, message)
}

// NopProgress discards all progress events
type NopProgress struct{}

func (NopProgress) StateChanged(State)     {}
func (NopProgress) FileProcessed(Progress) {}

// LogProgress writes state transitions to the standard logger. Per-file
// events are dropped to keep logs readable on large workspaces.
type LogProgress struct{}

func (LogProgress) StateChanged(state State) {
	log.Printf("indexer: state -> %s", state)
}

func (LogProgress) FileProcessed(Progress) {}

// excludedDirs are directory names never descended into during a scan
var excludedDirs = map[string]struct{}{
	"node_modules": {},
	"vendor":       {},
	"dist":         {},
	"build":        {},
	"target":       {},
}

// indexableExts are the file extensions the scanner picks up
var indexableExts = map[string]struct{}{
	".go": {}, ".ts": {}, ".tsx": {}, ".js": {}, ".jsx": {},
	".py": {}, ".rb": {}, ".rs": {}, ".java": {}, ".kt": {},
	".c": {}, ".h": {}, ".cpp": {}, ".cc": {}, ".hpp": {},
	".cs": {}, ".swift": {}, ".php": {}, ".sh": {}, ".sql": {},
	".md": {}, ".json": {}, ".yaml": {}, ".yml": {}, ".toml": {},
	".html": {}, ".css": {},
}

// OSFileSystem walks the real filesystem, skipping hidden directories,
// dependency trees, and files with unrecognized extensions.
type OSFileSystem struct{}

func (OSFileSystem) ListFiles(ctx context.Context, root string) ([]string, error) {
	var files []string

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if info.IsDir() {
			name := info.Name()
			if _, skip := excludedDirs[name]; skip {
				return filepath.SkipDir
			}
			if strings.HasPrefix(name, ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}

		if _, ok := indexableExts[strings.ToLower(filepath.Ext(path))]; ok {
			files = append(files, path)
		}
		return nil
	})

	return files, err
}

func (OSFileSystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}
