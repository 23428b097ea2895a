package indexer

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/quarrydev/quarry/internal/chunker"
	"github.com/quarrydev/quarry/internal/store"
	"github.com/quarrydev/quarry/pkg/types"
)

// State is the lifecycle phase of the indexer
type State string

const (
	StateIdle      State = "idle"
	StateScanning  State = "scanning"
	StatePreflight State = "preflight"
	StateIndexing  State = "indexing"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

// Embedder is the slice of the embedding client the coordinator needs. A nil
// Embedder puts every run in text-only mode.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	CheckAvailability(ctx context.Context) bool
}

// Indexer coordinates the indexing pipeline: scan -> read/chunk -> embed ->
// store. Workers only read and chunk; the store and the embedder are touched
// exclusively from the coordinating goroutine, so neither needs to tolerate
// concurrent writers.
type Indexer struct {
	store    *store.Store
	chunker  *chunker.Chunker
	embedder Embedder
	fs       FileSystem
	progress ProgressReporter
	notifier Notifier

	workers int
	lock    runLock
	state   atomic.Value // State
}

// Option configures an Indexer
type Option func(*Indexer)

// WithWorkers sets the parse worker pool size
func WithWorkers(n int) Option {
	return func(idx *Indexer) {
		if n > 0 {
			idx.workers = n
		}
	}
}

// WithFileSystem replaces the workspace filesystem, for tests
func WithFileSystem(fs FileSystem) Option {
	return func(idx *Indexer) {
		idx.fs = fs
	}
}

// WithProgress sets the progress reporter
func WithProgress(p ProgressReporter) Option {
	return func(idx *Indexer) {
		idx.progress = p
	}
}

// WithNotifier sets the operator notification sink
func WithNotifier(n Notifier) Option {
	return func(idx *Indexer) {
		idx.notifier = n
	}
}

// New creates an Indexer. embedder may be nil for text-only operation.
func New(st *store.Store, ch *chunker.Chunker, embedder Embedder, opts ...Option) *Indexer {
	idx := &Indexer{
		store:    st,
		chunker:  ch,
		embedder: embedder,
		fs:       OSFileSystem{},
		progress: NopProgress{},
		notifier: NopNotifier{},
		workers:  runtime.NumCPU(),
	}
	idx.state.Store(StateIdle)

	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// State returns the current lifecycle phase
func (idx *Indexer) State() State {
	return idx.state.Load().(State)
}

func (idx *Indexer) setState(s State) {
	idx.state.Store(s)
	idx.progress.StateChanged(s)
}

// fileResult is one worker's verdict on a single file
type fileResult struct {
	path    string
	hash    string
	docs    []types.Document
	skipped bool
	err     error
}

// Run indexes the workspace rooted at root. Only one run may be active at a
// time; a concurrent call fails immediately with ErrIndexingInProgress.
//
// Cancellation is honored at file granularity: the file being committed when
// ctx is cancelled completes, later files are discarded, and everything
// committed so far stays in the store. A cancelled run reports Cancelled on
// its result rather than an error.
func (idx *Indexer) Run(ctx context.Context, root string) (*types.IndexResult, error) {
	if !idx.lock.TryAcquire() {
		return nil, types.ErrIndexingInProgress
	}
	defer idx.lock.Release()

	start := time.Now()
	result := &types.IndexResult{RunID: uuid.NewString()}

	idx.setState(StateScanning)
	files, err := idx.fs.ListFiles(ctx, root)
	if err != nil {
		if ctx.Err() != nil {
			idx.setState(StateCancelled)
			result.Cancelled = true
			result.Duration = time.Since(start)
			return result, nil
		}
		idx.setState(StateFailed)
		idx.notifier.Notify("error", "Indexing failed",
			fmt.Sprintf("cannot scan workspace: %v", err), root)
		return nil, fmt.Errorf("failed to scan workspace %s: %w", root, err)
	}

	idx.setState(StatePreflight)
	embeddings := false
	if idx.embedder != nil {
		embeddings = idx.embedder.CheckAvailability(ctx)
	}
	result.EmbeddingsAvailable = embeddings

	idx.setState(StateIndexing)

	// Workers compare against an immutable hash snapshot; only the
	// coordinator below touches the store.
	knownHashes := idx.store.FileHashes()

	results := make(chan fileResult, idx.workers)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.workers)

	go func() {
		for _, path := range files {
			path := path
			g.Go(func() error {
				if gctx.Err() != nil {
					return nil
				}
				results <- idx.processFile(path, knownHashes)
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	progress := Progress{TotalFiles: len(files)}
	cancelled := false

	for res := range results {
		if cancelled || ctx.Err() != nil {
			// Drain without counting: cancelled runs report only the
			// work that actually committed
			cancelled = true
			continue
		}

		progress.Processed++
		progress.CurrentFile = res.path
		switch {
		case res.err != nil:
			progress.Errors++
			result.ErrorMessages = append(result.ErrorMessages,
				fmt.Sprintf("%s: %v", res.path, res.err))
			idx.notifier.Notify("warning", "File not indexed",
				res.err.Error(), res.path)
		case res.skipped:
			progress.Skipped++
		default:
			if err := idx.commitFile(ctx, res, embeddings); err != nil {
				if ctx.Err() != nil {
					cancelled = true
					continue
				}
				progress.Errors++
				result.ErrorMessages = append(result.ErrorMessages,
					fmt.Sprintf("%s: %v", res.path, err))
				idx.notifier.Notify("warning", "File not indexed",
					err.Error(), res.path)
			} else {
				progress.Indexed++
			}
		}
		idx.progress.FileProcessed(progress)
	}

	if ctx.Err() != nil {
		cancelled = true
	}

	result.Indexed = progress.Indexed
	result.Skipped = progress.Skipped
	result.Errors = progress.Errors
	result.Cancelled = cancelled
	result.Duration = time.Since(start)

	if cancelled {
		idx.setState(StateCancelled)
	} else {
		idx.setState(StateCompleted)
	}
	return result, nil
}

// processFile runs on a worker: read, fingerprint, chunk. No store access.
func (idx *Indexer) processFile(path string, knownHashes map[string]string) fileResult {
	content, err := idx.fs.ReadFile(path)
	if err != nil {
		return fileResult{path: path, err: err}
	}

	hash := Fingerprint(content)
	if known, ok := knownHashes[path]; ok && known == hash {
		return fileResult{path: path, hash: hash, skipped: true}
	}

	return fileResult{
		path: path,
		hash: hash,
		docs: idx.chunker.Chunk(string(content), path),
	}
}

// commitFile embeds a changed file's chunks and replaces its documents in
// the store. Removal precedes upsert so a shrunken file leaves no stale
// chunks behind.
func (idx *Indexer) commitFile(ctx context.Context, res fileResult, embeddings bool) error {
	if embeddings && idx.embedder != nil && len(res.docs) > 0 {
		texts := make([]string, len(res.docs))
		for i := range res.docs {
			texts[i] = res.docs[i].Text
		}

		vectors, err := idx.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embedding failed: %w", err)
		}
		for i := range res.docs {
			if i < len(vectors) && len(vectors[i]) > 0 {
				res.docs[i].Vector = vectors[i]
			}
		}
	}

	idx.store.RemoveFile(res.path)
	idx.store.Upsert(res.docs)
	idx.store.UpdateFileMetadata(res.path, res.hash, len(res.docs))
	return nil
}
