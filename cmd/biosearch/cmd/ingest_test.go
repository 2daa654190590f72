package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbiomed/biosearch/internal/docstore"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDocuments_JSONL(t *testing.T) {
	path := writeTempFile(t, "docs.jsonl", `{"id":"pmid:1","title":"Metformin outcomes","source_type":"literature","year":2021}

{"id":"nct:2","title":"Statin trial","source_type":"trial"}
`)

	docs, err := loadDocuments(path)

	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "pmid:1", docs[0].ID)
	assert.Equal(t, docstore.SourceLiterature, docs[0].SourceType)
	require.NotNil(t, docs[0].Year)
	assert.Equal(t, 2021, *docs[0].Year)
	assert.Equal(t, docstore.SourceTrial, docs[1].SourceType)
}

func TestLoadDocuments_JSONArray(t *testing.T) {
	path := writeTempFile(t, "docs.json", `[
		{"id":"pmid:1","title":"A","source_type":"literature"},
		{"id":"pmid:2","title":"B","source_type":"literature"}
	]`)

	docs, err := loadDocuments(path)

	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestLoadDocuments_MalformedLine(t *testing.T) {
	path := writeTempFile(t, "docs.jsonl", `{"id":"pmid:1","title":"A","source_type":"literature"}
not json
`)

	_, err := loadDocuments(path)

	require.Error(t, err)
	assert.Contains(t, err.Error(), ":2")
}

func TestLoadDocuments_MissingFile(t *testing.T) {
	_, err := loadDocuments(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.Error(t, err)
}
