package store

import (
	"context"
	"log"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/quarrydev/quarry/pkg/types"
)

const (
	// DefaultDebounce is the quiet period before a persist is written
	DefaultDebounce = 5 * time.Second

	// scanSliceSize bounds how many documents are scored between
	// cooperative yields during a search scan
	scanSliceSize = 1000

	// minTermLen is the minimum keyword term length; shorter terms are
	// ignored on both the query and document side
	minTermLen = 3
)

// Store is the durable collection of indexed documents. It owns the
// in-memory document map and the per-file metadata table, and persists both
// to an embedded SQLite database on a debounce timer.
//
// The store expects exactly one logical writer (the indexing coordinator);
// readers may run concurrently with writes and observe a best-effort
// snapshot.
type Store struct {
	mu    sync.RWMutex
	docs  map[string]*types.Document
	files map[string]*types.FileRecord

	// Pending persistence work, keyed by id / file path
	dirtyDocs    map[string]struct{}
	deletedDocs  map[string]struct{}
	dirtyFiles   map[string]struct{}
	deletedFiles map[string]struct{}
	cleared      bool

	db *persistence

	debounce time.Duration
	timerMu  sync.Mutex
	timer    *time.Timer
	closed   bool
}

// Option configures a Store
type Option func(*Store)

// WithDebounce sets the persist debounce window
func WithDebounce(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// Open creates a store backed by the SQLite database at dbPath and hydrates
// the in-memory maps from it. An empty dbPath opens a memory-only store. A
// corrupt or unreadable database is logged and replaced with an empty one;
// Open never fails because of prior on-disk state.
func Open(dbPath string, opts ...Option) (*Store, error) {
	s := &Store{
		docs:         make(map[string]*types.Document),
		files:        make(map[string]*types.FileRecord),
		dirtyDocs:    make(map[string]struct{}),
		deletedDocs:  make(map[string]struct{}),
		dirtyFiles:   make(map[string]struct{}),
		deletedFiles: make(map[string]struct{}),
		debounce:     DefaultDebounce,
	}

	for _, opt := range opts {
		opt(s)
	}

	if dbPath == "" {
		return s, nil
	}

	db, err := openPersistence(dbPath)
	if err != nil {
		log.Printf("store: cannot open %s (%v); continuing with empty in-memory store", dbPath, err)
		return s, nil
	}
	s.db = db

	docs, files, err := db.loadAll(context.Background())
	if err != nil {
		log.Printf("store: cannot load persisted state from %s (%v); starting empty", dbPath, err)
		return s, nil
	}

	for i := range docs {
		s.docs[docs[i].ID] = &docs[i]
	}
	for i := range files {
		s.files[files[i].FilePath] = &files[i]
	}

	return s, nil
}

// Upsert inserts or overwrites documents by id and schedules a debounced
// persist. Upserting an identical document set is idempotent. Documents that
// fail validation are logged and dropped rather than poisoning the index.
func (s *Store) Upsert(docs []types.Document) {
	if len(docs) == 0 {
		return
	}

	s.mu.Lock()
	stored := 0
	for i := range docs {
		doc := docs[i]
		if err := doc.Validate(); err != nil {
			log.Printf("store: rejecting document %q: %v", doc.ID, err)
			continue
		}
		s.docs[doc.ID] = &doc
		s.dirtyDocs[doc.ID] = struct{}{}
		delete(s.deletedDocs, doc.ID)
		stored++
	}
	s.mu.Unlock()

	if stored > 0 {
		s.schedulePersist()
	}
}

// RemoveFile deletes every document belonging to filePath along with its
// file record. Called immediately before re-indexing a changed file so stale
// chunks never coexist with their replacements.
func (s *Store) RemoveFile(filePath string) {
	s.mu.Lock()
	for id, doc := range s.docs {
		if doc.FilePath == filePath {
			delete(s.docs, id)
			delete(s.dirtyDocs, id)
			s.deletedDocs[id] = struct{}{}
		}
	}
	if _, ok := s.files[filePath]; ok {
		delete(s.files, filePath)
		delete(s.dirtyFiles, filePath)
		s.deletedFiles[filePath] = struct{}{}
	}
	s.mu.Unlock()

	s.schedulePersist()
}

// Get returns the document with the given id
func (s *Store) Get(id string) (*types.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	return doc, ok
}

// DocumentsForFile returns the documents currently indexed for filePath
func (s *Store) DocumentsForFile(filePath string) []*types.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*types.Document
	for _, doc := range s.docs {
		if doc.FilePath == filePath {
			out = append(out, doc)
		}
	}
	return out
}

// IsFileChanged reports whether filePath must be re-indexed: true when the
// file is unknown or its stored content hash differs from newHash.
func (s *Store) IsFileChanged(filePath, newHash string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.files[filePath]
	if !ok {
		return true
	}
	return rec.ContentHash != newHash
}

// FileHashes returns a snapshot of known content hashes keyed by file path.
// The coordinator hands this immutable snapshot to its parse workers so they
// never touch the store directly.
func (s *Store) FileHashes() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hashes := make(map[string]string, len(s.files))
	for path, rec := range s.files {
		hashes[path] = rec.ContentHash
	}
	return hashes
}

// UpdateFileMetadata records the incremental-indexing gate for filePath.
// Called by the coordinator immediately after the file's documents were
// successfully upserted.
func (s *Store) UpdateFileMetadata(filePath, contentHash string, chunkCount int) {
	s.mu.Lock()
	s.files[filePath] = &types.FileRecord{
		FilePath:      filePath,
		ContentHash:   contentHash,
		ChunkCount:    chunkCount,
		LastIndexedAt: time.Now(),
	}
	s.dirtyFiles[filePath] = struct{}{}
	delete(s.deletedFiles, filePath)
	s.mu.Unlock()

	s.schedulePersist()
}

// FileRecord returns the metadata record for filePath
func (s *Store) FileRecord(filePath string) (*types.FileRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.files[filePath]
	return rec, ok
}

// Search scores every resident document against queryVector by cosine
// similarity and returns the top k, sorted descending. Documents with empty
// vectors or a mismatched dimension are skipped. The scan walks the corpus
// in fixed-size slices with a cooperative yield between slices so large
// stores do not starve the process.
func (s *Store) Search(ctx context.Context, queryVector []float32, k int) []types.ScoredDocument {
	if k <= 0 || len(queryVector) == 0 {
		return nil
	}

	snapshot := s.snapshot()

	results := make([]types.ScoredDocument, 0, k)
	for start := 0; start < len(snapshot); start += scanSliceSize {
		if ctx.Err() != nil {
			break
		}

		end := start + scanSliceSize
		if end > len(snapshot) {
			end = len(snapshot)
		}

		for _, doc := range snapshot[start:end] {
			if !doc.HasVector() || len(doc.Vector) != len(queryVector) {
				continue
			}
			results = append(results, types.ScoredDocument{
				Document: doc,
				Score:    cosineSimilarity(queryVector, doc.Vector),
			})
		}

		runtime.Gosched()
	}

	sortScored(results)
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// KeywordSearch scores documents by the count of distinct query terms they
// contain. Terms shorter than three characters are ignored and matching is
// case-insensitive. Documents containing no query term are excluded. This is
// the fallback path used when embeddings are unavailable.
func (s *Store) KeywordSearch(ctx context.Context, query string, k int) []types.ScoredDocument {
	if k <= 0 {
		return nil
	}

	terms := tokenize(query)
	if len(terms) == 0 {
		return nil
	}

	snapshot := s.snapshot()

	results := make([]types.ScoredDocument, 0, k)
	for start := 0; start < len(snapshot); start += scanSliceSize {
		if ctx.Err() != nil {
			break
		}

		end := start + scanSliceSize
		if end > len(snapshot) {
			end = len(snapshot)
		}

		for _, doc := range snapshot[start:end] {
			text := strings.ToLower(doc.Text)
			score := 0
			for _, term := range terms {
				if strings.Contains(text, term) {
					score++
				}
			}
			if score > 0 {
				results = append(results, types.ScoredDocument{
					Document: doc,
					Score:    float64(score),
				})
			}
		}

		runtime.Gosched()
	}

	sortScored(results)
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// Count returns the number of resident documents
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// FileCount returns the number of tracked files
func (s *Store) FileCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

// VectorCount returns the number of documents with a populated vector
func (s *Store) VectorCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, doc := range s.docs {
		if doc.HasVector() {
			n++
		}
	}
	return n
}

// Clear removes every document and file record, in memory and on disk
func (s *Store) Clear() {
	s.mu.Lock()
	s.docs = make(map[string]*types.Document)
	s.files = make(map[string]*types.FileRecord)
	s.dirtyDocs = make(map[string]struct{})
	s.deletedDocs = make(map[string]struct{})
	s.dirtyFiles = make(map[string]struct{})
	s.deletedFiles = make(map[string]struct{})
	s.cleared = true
	s.mu.Unlock()

	s.schedulePersist()
}

// Save flushes pending changes to the database. It is a no-op when nothing
// is dirty or the store is memory-only. Dirty state is retained on failure
// so the next flush retries it.
func (s *Store) Save(ctx context.Context) error {
	s.stopTimer()

	if s.db == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cleared && len(s.dirtyDocs) == 0 && len(s.deletedDocs) == 0 &&
		len(s.dirtyFiles) == 0 && len(s.deletedFiles) == 0 {
		return nil
	}

	batch := persistBatch{clear: s.cleared}
	for id := range s.dirtyDocs {
		if doc, ok := s.docs[id]; ok {
			batch.upsertDocs = append(batch.upsertDocs, doc)
		}
	}
	for id := range s.deletedDocs {
		batch.deleteDocIDs = append(batch.deleteDocIDs, id)
	}
	for path := range s.dirtyFiles {
		if rec, ok := s.files[path]; ok {
			batch.upsertFiles = append(batch.upsertFiles, rec)
		}
	}
	for path := range s.deletedFiles {
		batch.deleteFilePaths = append(batch.deleteFilePaths, path)
	}

	if err := s.db.save(ctx, batch); err != nil {
		return err
	}

	s.cleared = false
	s.dirtyDocs = make(map[string]struct{})
	s.deletedDocs = make(map[string]struct{})
	s.dirtyFiles = make(map[string]struct{})
	s.deletedFiles = make(map[string]struct{})
	return nil
}

// Close flushes synchronously regardless of the debounce timer state and
// releases the database.
func (s *Store) Close() error {
	s.timerMu.Lock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerMu.Unlock()

	err := s.Save(context.Background())

	if s.db != nil {
		if cerr := s.db.close(); err == nil {
			err = cerr
		}
	}
	return err
}

// snapshot copies the current document pointer set for lock-free scanning
func (s *Store) snapshot() []*types.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]*types.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		docs = append(docs, doc)
	}
	return docs
}

// schedulePersist arms the debounce timer. Triggers while a timer is armed
// coalesce into the already-scheduled flush.
func (s *Store) schedulePersist() {
	if s.db == nil {
		return
	}

	s.timerMu.Lock()
	defer s.timerMu.Unlock()

	if s.closed || s.timer != nil {
		return
	}

	s.timer = time.AfterFunc(s.debounce, func() {
		if err := s.Save(context.Background()); err != nil {
			log.Printf("store: debounced persist failed: %v", err)
		}
	})
}

// stopTimer clears the armed debounce timer, if any
func (s *Store) stopTimer() {
	s.timerMu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerMu.Unlock()
}

// sortScored orders by score descending, breaking ties by document id so
// result order is deterministic.
func sortScored(results []types.ScoredDocument) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Document.ID < results[j].Document.ID
	})
}

// tokenize lower-cases the query and splits it into distinct terms of
// length >= minTermLen.
func tokenize(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '_')
	})

	seen := make(map[string]struct{}, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < minTermLen {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}
