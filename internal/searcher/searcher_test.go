package searcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrydev/quarry/internal/store"
	"github.com/quarrydev/quarry/pkg/types"
)

type stubEmbedder struct {
	vector []float32
	err    error
}

func (e *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = e.vector
	}
	return out, nil
}

func seededStore(t *testing.T) *store.Store {
	t.Helper()

	st, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	st.Upsert([]types.Document{
		{ID: "handler::0", Text: "the request handler parses headers", Vector: []float32{1, 0}, FilePath: "handler.go", StartLine: 1, EndLine: 3, ChunkType: types.ChunkWindow},
		{ID: "parser::0", Text: "a tokenizer for query strings", Vector: []float32{0, 1}, FilePath: "parser.go", StartLine: 1, EndLine: 3, ChunkType: types.ChunkWindow},
		{ID: "plain::0", Text: "plain text only chunk about handlers", FilePath: "plain.txt", StartLine: 1, EndLine: 1, ChunkType: types.ChunkWindow},
	})
	return st
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	s := New(seededStore(t), nil)

	_, err := s.Search(context.Background(), "   ", ModeAuto, 5)
	assert.ErrorIs(t, err, types.ErrEmptyQuery)
}

func TestSearchVectorMode(t *testing.T) {
	s := New(seededStore(t), &stubEmbedder{vector: []float32{1, 0}})

	results, err := s.Search(context.Background(), "parse request headers", ModeVector, 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "handler::0", results[0].Document.ID)
}

func TestSearchVectorModeWithoutEmbedder(t *testing.T) {
	s := New(seededStore(t), nil)

	_, err := s.Search(context.Background(), "anything", ModeVector, 5)
	assert.ErrorIs(t, err, ErrVectorUnavailable)
}

func TestSearchKeywordMode(t *testing.T) {
	s := New(seededStore(t), &stubEmbedder{vector: []float32{1, 0}})

	results, err := s.Search(context.Background(), "tokenizer query", ModeKeyword, 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "parser::0", results[0].Document.ID)
}

func TestSearchAutoPrefersVectors(t *testing.T) {
	s := New(seededStore(t), &stubEmbedder{vector: []float32{0, 1}})

	results, err := s.Search(context.Background(), "tokenizer", ModeAuto, 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "parser::0", results[0].Document.ID)
}

func TestSearchAutoFallsBackWithoutEmbedder(t *testing.T) {
	s := New(seededStore(t), nil)

	results, err := s.Search(context.Background(), "handler", ModeAuto, 5)
	require.NoError(t, err)
	require.NotEmpty(t, results, "keyword fallback should still find text matches")
}

func TestSearchAutoFallsBackOnEmbedFailure(t *testing.T) {
	s := New(seededStore(t), &stubEmbedder{err: errors.New("provider down")})

	results, err := s.Search(context.Background(), "handler", ModeAuto, 5)
	require.NoError(t, err, "provider trouble must degrade, not fail")
	assert.NotEmpty(t, results)
}

func TestSearchAutoFallsBackOnEmptyVector(t *testing.T) {
	s := New(seededStore(t), &stubEmbedder{vector: nil})

	results, err := s.Search(context.Background(), "handler", ModeAuto, 5)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestSearchUnknownMode(t *testing.T) {
	s := New(seededStore(t), nil)

	_, err := s.Search(context.Background(), "query", Mode("fuzzy"), 5)
	assert.Error(t, err)
}

func TestSearchLimitClamping(t *testing.T) {
	st, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	var docs []types.Document
	for i := 0; i < MaxLimit+20; i++ {
		docs = append(docs, types.Document{
			ID:        types.DocumentID("big.go", i),
			Text:      "every chunk mentions quarry here",
			FilePath:  "big.go",
			StartLine: 1,
			EndLine:   1,
			ChunkType: types.ChunkWindow,
		})
	}
	st.Upsert(docs)

	s := New(st, nil)

	results, err := s.Search(context.Background(), "quarry", ModeKeyword, 1000)
	require.NoError(t, err)
	assert.Len(t, results, MaxLimit)

	results, err = s.Search(context.Background(), "quarry", ModeKeyword, 0)
	require.NoError(t, err)
	assert.Len(t, results, DefaultLimit)
}
