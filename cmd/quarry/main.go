package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/quarrydev/quarry/internal/chunker"
	"github.com/quarrydev/quarry/internal/embedder"
	"github.com/quarrydev/quarry/internal/indexer"
	"github.com/quarrydev/quarry/internal/mcp"
	"github.com/quarrydev/quarry/internal/searcher"
	"github.com/quarrydev/quarry/internal/store"
	"github.com/quarrydev/quarry/internal/watcher"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("Quarry MCP Server\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", store.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", store.DriverName)
		os.Exit(0)
	}

	// Stdout is reserved for the MCP protocol
	log.SetOutput(os.Stderr)
	log.Printf("Quarry MCP Server v%s starting...", version)
	log.Printf("Build Mode: %s, Driver: %s", store.BuildMode, store.DriverName)

	// Optional .env for embedding credentials
	_ = godotenv.Load()

	dbPath, err := resolveDBPath()
	if err != nil {
		log.Fatalf("Failed to resolve database path: %v", err)
	}

	st, err := store.Open(dbPath)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}

	emb, err := embedder.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to initialize embedder: %v", err)
	}
	if emb == nil {
		log.Println("No embedding provider configured, running in text-only mode")
	} else {
		log.Printf("Embedding provider: %s model=%s", emb.Provider(), emb.Model())
	}

	idx := indexer.New(st, chunker.New(), emb,
		indexer.WithProgress(indexer.LogProgress{}),
		indexer.WithNotifier(indexer.LogNotifier{}))
	srch := searcher.New(st, emb)
	srv := mcp.NewServer(st, idx, srch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// QUARRY_WATCH_PATH enables continuous re-indexing of one workspace
	if watchPath := os.Getenv("QUARRY_WATCH_PATH"); watchPath != "" {
		w, err := watcher.New(watchPath, func(paths []string) {
			log.Printf("Watcher: %d paths changed, re-indexing %s", len(paths), watchPath)
			if _, err := idx.Run(ctx, watchPath); err != nil {
				log.Printf("Watcher re-index failed: %v", err)
			}
		})
		if err != nil {
			log.Fatalf("Failed to watch %s: %v", watchPath, err)
		}
		defer func() { _ = w.Close() }()
		log.Printf("Watching %s for changes", watchPath)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		log.Println("MCP server ready, listening on stdio...")
		errChan <- srv.Serve(ctx)
	}()

	select {
	case sig := <-sigChan:
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
		if err := st.Close(); err != nil {
			log.Printf("Store close: %v", err)
		}
	case err := <-errChan:
		if err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}

	log.Println("Server stopped")
}

// resolveDBPath returns the index database location, creating its directory
func resolveDBPath() (string, error) {
	dbPath := os.Getenv("QUARRY_DB_PATH")
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dbPath = filepath.Join(home, ".quarry", "index.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return "", err
	}
	return dbPath, nil
}
