package indexer

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrydev/quarry/internal/chunker"
	"github.com/quarrydev/quarry/internal/store"
	"github.com/quarrydev/quarry/pkg/types"
)

// fakeFS serves an in-memory workspace
type fakeFS struct {
	mu      sync.Mutex
	files   map[string]string
	listErr error
	readErr map[string]error
}

func newFakeFS(files map[string]string) *fakeFS {
	return &fakeFS{files: files, readErr: make(map[string]error)}
}

func (f *fakeFS) ListFiles(_ context.Context, _ string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.listErr != nil {
		return nil, f.listErr
	}

	paths := make([]string, 0, len(f.files))
	for p := range f.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

func (f *fakeFS) ReadFile(path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err, ok := f.readErr[path]; ok {
		return nil, err
	}
	content, ok := f.files[path]
	if !ok {
		return nil, errors.New("no such file")
	}
	return []byte(content), nil
}

// stubEmbedder returns a fixed unit vector per text, or nothing when down
type stubEmbedder struct {
	available bool
	mu        sync.Mutex
	calls     int
}

func (e *stubEmbedder) CheckAvailability(context.Context) bool { return e.available }

func (e *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, float32(len(texts[i]))}
	}
	return vectors, nil
}

func fileText(marker string) string {
	return strings.Repeat(marker+" line of source text\n", 10)
}

func newTestIndexer(t *testing.T, fs FileSystem, emb Embedder) (*Indexer, *store.Store) {
	t.Helper()

	st, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ch := chunker.New(chunker.WithChunkSize(100), chunker.WithOverlap(0))
	idx := New(st, ch, emb, WithFileSystem(fs), WithWorkers(2))
	return idx, st
}

func TestRunIndexesChangedFilesOnly(t *testing.T) {
	fs := newFakeFS(map[string]string{
		"a.go": fileText("alpha"),
		"b.go": fileText("beta"),
		"c.go": fileText("gamma"),
	})

	idx, st := newTestIndexer(t, fs, &stubEmbedder{available: true})

	first, err := idx.Run(context.Background(), "/ws")
	require.NoError(t, err)
	assert.Equal(t, 3, first.Indexed)
	assert.Equal(t, 0, first.Skipped)
	assert.True(t, first.EmbeddingsAvailable)
	assert.NotEmpty(t, first.RunID)

	// Touch one file, leave two unchanged
	fs.files["b.go"] = fileText("changed")

	second, err := idx.Run(context.Background(), "/ws")
	require.NoError(t, err)
	assert.Equal(t, 1, second.Indexed)
	assert.Equal(t, 2, second.Skipped)
	assert.Equal(t, 0, second.Errors)

	assert.Greater(t, st.Count(), 0)
	assert.Equal(t, 3, st.FileCount())
}

func TestRunIsIdempotent(t *testing.T) {
	fs := newFakeFS(map[string]string{"a.go": fileText("alpha")})
	idx, st := newTestIndexer(t, fs, nil)

	_, err := idx.Run(context.Background(), "/ws")
	require.NoError(t, err)
	countAfterFirst := st.Count()

	second, err := idx.Run(context.Background(), "/ws")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Indexed)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, countAfterFirst, st.Count())
}

func TestRunTextOnlyWhenProviderDown(t *testing.T) {
	fs := newFakeFS(map[string]string{"a.go": fileText("alpha")})
	emb := &stubEmbedder{available: false}
	idx, st := newTestIndexer(t, fs, emb)

	result, err := idx.Run(context.Background(), "/ws")
	require.NoError(t, err)
	assert.False(t, result.EmbeddingsAvailable)
	assert.Equal(t, 1, result.Indexed)
	assert.Equal(t, 0, emb.calls, "no embedding calls after a failed preflight")

	// Documents land without vectors but remain keyword-searchable
	assert.Greater(t, st.Count(), 0)
	assert.Equal(t, 0, st.VectorCount())

	hits := st.KeywordSearch(context.Background(), "alpha source", 5)
	assert.NotEmpty(t, hits)
}

func TestRunTextOnlyWithoutEmbedder(t *testing.T) {
	fs := newFakeFS(map[string]string{"a.go": fileText("alpha")})
	idx, st := newTestIndexer(t, fs, nil)

	result, err := idx.Run(context.Background(), "/ws")
	require.NoError(t, err)
	assert.False(t, result.EmbeddingsAvailable)
	assert.Equal(t, 0, st.VectorCount())
}

func TestRunAttachesVectors(t *testing.T) {
	fs := newFakeFS(map[string]string{"a.go": fileText("alpha")})
	idx, st := newTestIndexer(t, fs, &stubEmbedder{available: true})

	_, err := idx.Run(context.Background(), "/ws")
	require.NoError(t, err)

	assert.Equal(t, st.Count(), st.VectorCount(), "every chunk should carry a vector")
}

func TestRunCountsReadErrors(t *testing.T) {
	fs := newFakeFS(map[string]string{
		"ok.go":  fileText("fine"),
		"bad.go": fileText("unreadable"),
	})
	fs.readErr["bad.go"] = errors.New("permission denied")

	idx, _ := newTestIndexer(t, fs, nil)

	result, err := idx.Run(context.Background(), "/ws")
	require.NoError(t, err, "per-file errors must not fail the run")
	assert.Equal(t, 1, result.Indexed)
	assert.Equal(t, 1, result.Errors)
	require.Len(t, result.ErrorMessages, 1)
	assert.Contains(t, result.ErrorMessages[0], "bad.go")
}

func TestRunFailsOnScanError(t *testing.T) {
	fs := newFakeFS(nil)
	fs.listErr = errors.New("workspace missing")

	idx, _ := newTestIndexer(t, fs, nil)

	_, err := idx.Run(context.Background(), "/ws")
	require.Error(t, err)
	assert.Equal(t, StateFailed, idx.State())
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	fs := newFakeFS(map[string]string{"a.go": fileText("alpha")})
	idx, _ := newTestIndexer(t, fs, nil)

	require.True(t, idx.lock.TryAcquire())
	defer idx.lock.Release()

	_, err := idx.Run(context.Background(), "/ws")
	assert.ErrorIs(t, err, types.ErrIndexingInProgress)
}

func TestRunCancellation(t *testing.T) {
	fs := newFakeFS(map[string]string{
		"a.go": fileText("alpha"),
		"b.go": fileText("beta"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	idx, _ := newTestIndexer(t, fs, nil)

	result, err := idx.Run(ctx, "/ws")
	require.NoError(t, err, "cancellation is not an error")
	assert.True(t, result.Cancelled)
	assert.Equal(t, StateCancelled, idx.State())
	assert.Equal(t, 0, result.Indexed, "pre-cancelled run commits nothing")
}

func TestRunRemovesStaleChunksOnShrink(t *testing.T) {
	long := strings.Repeat("the original long body of this file\n", 30)
	fs := newFakeFS(map[string]string{"a.go": long})

	idx, st := newTestIndexer(t, fs, nil)

	_, err := idx.Run(context.Background(), "/ws")
	require.NoError(t, err)
	before := st.Count()
	require.Greater(t, before, 1)

	fs.files["a.go"] = strings.Repeat("a much shorter replacement body\n", 4)

	_, err = idx.Run(context.Background(), "/ws")
	require.NoError(t, err)
	assert.Less(t, st.Count(), before, "shrunken file must shed its stale chunks")

	for _, doc := range st.DocumentsForFile("a.go") {
		assert.Contains(t, doc.Text, "replacement")
	}
}

type notice struct {
	level, title, message, source string
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notice
}

func (n *recordingNotifier) Notify(level, title, message, source string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice{level, title, message, source})
}

func TestRunNotifiesOnFileErrors(t *testing.T) {
	fs := newFakeFS(map[string]string{"bad.go": fileText("x")})
	fs.readErr["bad.go"] = errors.New("disk error")

	st, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	notifier := &recordingNotifier{}
	idx := New(st, chunker.New(), nil,
		WithFileSystem(fs), WithWorkers(1), WithNotifier(notifier))

	_, err = idx.Run(context.Background(), "/ws")
	require.NoError(t, err)

	require.Len(t, notifier.notices, 1)
	got := notifier.notices[0]
	assert.Equal(t, "warning", got.level)
	assert.Equal(t, "bad.go", got.source, "the notice carries the failing file as its source")
	assert.Contains(t, got.message, "disk error")
}

func TestRunReportsProgressPerFile(t *testing.T) {
	fs := newFakeFS(map[string]string{
		"a.go": fileText("alpha"),
		"b.go": fileText("beta"),
	})

	st, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	var mu sync.Mutex
	var snapshots []Progress
	reporter := progressFunc(func(p Progress) {
		mu.Lock()
		snapshots = append(snapshots, p)
		mu.Unlock()
	})

	idx := New(st, chunker.New(), nil,
		WithFileSystem(fs), WithWorkers(1), WithProgress(reporter))

	_, err = idx.Run(context.Background(), "/ws")
	require.NoError(t, err)

	require.Len(t, snapshots, 2)
	last := snapshots[len(snapshots)-1]
	assert.Equal(t, 2, last.TotalFiles)
	assert.Equal(t, 2, last.Processed)
	assert.NotEmpty(t, last.CurrentFile)
}

// progressFunc adapts a func to ProgressReporter
type progressFunc func(Progress)

func (progressFunc) StateChanged(State)         {}
func (f progressFunc) FileProcessed(p Progress) { f(p) }

func TestFingerprintDeterministic(t *testing.T) {
	assert.Equal(t, Fingerprint([]byte("same")), Fingerprint([]byte("same")))
	assert.NotEqual(t, Fingerprint([]byte("same")), Fingerprint([]byte("different")))
	assert.Len(t, Fingerprint(nil), 64)
}

func TestRunLock(t *testing.T) {
	var l runLock
	assert.True(t, l.TryAcquire())
	assert.False(t, l.TryAcquire())
	l.Release()
	assert.True(t, l.TryAcquire())
}
