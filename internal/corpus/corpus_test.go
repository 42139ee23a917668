package corpus

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, d Document) string {
	t.Helper()
	rc, err := d.Open()
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestFile_OpensLazily(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file1.txt")
	doc := File(path)
	assert.Equal(t, path, doc.Name())

	_, err := doc.Open()
	require.Error(t, err, "file does not exist yet")

	require.NoError(t, os.WriteFile(path, []byte("milk water"), 0o644))
	assert.Equal(t, "milk water", readAll(t, doc))
}

func TestText(t *testing.T) {
	doc := Text("inline", "americano cappuccino")
	assert.Equal(t, "inline", doc.Name())
	assert.Equal(t, "americano cappuccino", readAll(t, doc))
	assert.Equal(t, "americano cappuccino", readAll(t, doc), "can be opened again")
}

func TestFromPaths_PreservesOrder(t *testing.T) {
	docs := FromPaths([]string{"b.txt", "a.txt", "c.txt"})
	require.Len(t, docs, 3)
	assert.Equal(t, "b.txt", docs[0].Name())
	assert.Equal(t, "a.txt", docs[1].Name())
	assert.Equal(t, "c.txt", docs[2].Name())
}

func TestFromStrings(t *testing.T) {
	docs := FromStrings([]string{"one", "two"})
	require.Len(t, docs, 2)
	assert.Equal(t, "doc-1", docs[1].Name())
	assert.Equal(t, "two", readAll(t, docs[1]))
}
