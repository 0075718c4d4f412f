package index

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/marshnicholas123/nlq-demo/internal/domain/retrieval"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/config"
)

func writeJSON(t *testing.T, dir, name string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func newLoader(dir, model string) *Loader {
	return NewLoader(&config.IndexConfig{Dir: dir}, &config.EmbeddingConfig{Model: model})
}

var docs = []domain.Document{
	{Content: "countries table", Source: "schema", Table: "countries"},
	{Content: "nuclear_power_plants table", Source: "schema", Table: "nuclear_power_plants"},
}

func TestLoadCollection_EmbeddingsAndTokens(t *testing.T) {
	dir := t.TempDir()
	writeJSON(t, dir, "emb.json", embeddingFile{
		Model:      "text-embedding-3-small",
		Dimension:  2,
		Documents:  docs,
		Embeddings: [][]float32{{1, 0}, {0, 1}},
	})
	writeJSON(t, dir, "bm25.json", keywordIndexFile{Tokens: [][]string{{"countries", "table"}, {"nuclear_power_plants", "table"}}})

	coll, err := newLoader(dir, "text-embedding-3-small").LoadCollection("schema", config.CollectionFiles{
		KeywordIndex: "bm25.json",
		Embeddings:   "emb.json",
	})
	require.NoError(t, err)
	assert.Len(t, coll.Documents, 2)
	assert.Len(t, coll.Tokens, 2)
	assert.True(t, coll.HasEmbeddings())
	assert.Equal(t, 2, coll.Dimension)
	assert.Equal(t, []string{"countries", "nuclear_power_plants"}, coll.Tables())
}

func TestLoadCollection_FailFast(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(dir string)
		files   config.CollectionFiles
		wantErr error
	}{
		{
			name:    "missing file",
			setup:   func(string) {},
			files:   config.CollectionFiles{Documents: "missing.json"},
			wantErr: ErrIndexNotFound,
		},
		{
			name: "tokens count mismatch",
			setup: func(dir string) {
				writeJSON(t, dir, "docs.json", docs)
				writeJSON(t, dir, "bm25.json", keywordIndexFile{Tokens: [][]string{{"only", "one"}}})
			},
			files:   config.CollectionFiles{Documents: "docs.json", KeywordIndex: "bm25.json"},
			wantErr: ErrCountMismatch,
		},
		{
			name: "embedding count mismatch",
			setup: func(dir string) {
				writeJSON(t, dir, "emb.json", embeddingFile{Dimension: 2, Documents: docs, Embeddings: [][]float32{{1, 0}}})
			},
			files:   config.CollectionFiles{Embeddings: "emb.json"},
			wantErr: ErrCountMismatch,
		},
		{
			name: "documents vs embedded documents mismatch",
			setup: func(dir string) {
				writeJSON(t, dir, "docs.json", docs[:1])
				writeJSON(t, dir, "emb.json", embeddingFile{Dimension: 2, Documents: docs, Embeddings: [][]float32{{1, 0}, {0, 1}}})
			},
			files:   config.CollectionFiles{Documents: "docs.json", Embeddings: "emb.json"},
			wantErr: ErrCountMismatch,
		},
		{
			name: "dimension mismatch",
			setup: func(dir string) {
				writeJSON(t, dir, "emb.json", embeddingFile{Dimension: 2, Documents: docs, Embeddings: [][]float32{{1, 0}, {0, 1, 0}}})
			},
			files:   config.CollectionFiles{Embeddings: "emb.json"},
			wantErr: ErrDimensionMismatch,
		},
		{
			name: "model mismatch",
			setup: func(dir string) {
				writeJSON(t, dir, "emb.json", embeddingFile{Model: "other-model", Dimension: 2, Documents: docs, Embeddings: [][]float32{{1, 0}, {0, 1}}})
			},
			files:   config.CollectionFiles{Embeddings: "emb.json"},
			wantErr: ErrModelMismatch,
		},
		{
			name: "empty collection",
			setup: func(dir string) {
				writeJSON(t, dir, "docs.json", []domain.Document{})
			},
			files:   config.CollectionFiles{Documents: "docs.json"},
			wantErr: ErrEmptyCollection,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			tt.setup(dir)
			_, err := newLoader(dir, "text-embedding-3-small").LoadCollection("c", tt.files)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestLoad_AllCollections(t *testing.T) {
	dir := t.TempDir()
	writeJSON(t, dir, "schema_embeddings.json", embeddingFile{Dimension: 2, Documents: docs, Embeddings: [][]float32{{1, 0}, {0, 1}}})
	writeJSON(t, dir, "rules_embeddings.json", embeddingFile{Dimension: 2, Documents: docs[:1], Embeddings: [][]float32{{1, 1}}})
	writeJSON(t, dir, "samples.json", docs)

	l := NewLoader(&config.IndexConfig{
		Dir:           dir,
		Schema:        config.CollectionFiles{Embeddings: "schema_embeddings.json"},
		BusinessRules: config.CollectionFiles{Embeddings: "rules_embeddings.json"},
		SampleData:    config.CollectionFiles{Documents: "samples.json"},
	}, &config.EmbeddingConfig{})

	bundle, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, CollectionSchema, bundle.Schema.Name)
	assert.Len(t, bundle.BusinessRules.Documents, 1)
	assert.False(t, bundle.SampleData.HasEmbeddings())
}
