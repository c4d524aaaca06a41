package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	s, err := New(filepath.Join(root, "uploads"), filepath.Join(root, "DATASET"), filepath.Join(root, "samples"))
	require.NoError(t, err)
	return s, root
}

func TestSaveUploadAndResult(t *testing.T) {
	s, _ := newStore(t)

	id, filename, err := s.SaveUpload([]byte("png bytes"), ".PNG")
	require.NoError(t, err)
	assert.Equal(t, id+".png", filename)

	path, err := s.UploadPath(filename)
	require.NoError(t, err)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "png bytes", string(raw))

	_, err = s.LoadResult(id)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SaveResult(id, []byte(`{"label":"Normal"}`)))
	result, err := s.LoadResult(id)
	require.NoError(t, err)
	assert.JSONEq(t, `{"label":"Normal"}`, string(result))
}

func TestRejectsTraversal(t *testing.T) {
	s, _ := newStore(t)

	for _, name := range []string{"", "../secret", "results/x.json", ".tmp-1", "..", "missing.png"} {
		_, err := s.UploadPath(name)
		assert.ErrorIs(t, err, ErrNotFound, name)
	}

	_, err := s.LoadResult("../../etc/passwd")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Error(t, s.SaveResult("not-a-uuid", []byte("{}")))
}

func TestSanitizeExt(t *testing.T) {
	assert.Equal(t, ".jpg", sanitizeExt(".JPG"))
	assert.Equal(t, ".webp", sanitizeExt("webp"))
	assert.Equal(t, "", sanitizeExt(""))
	assert.Equal(t, "", sanitizeExt("./../x"))
	assert.Equal(t, "", sanitizeExt(".toolongext"))
	assert.Equal(t, "", sanitizeExt(".html"))
	assert.Equal(t, "", sanitizeExt(".svg"))
	assert.Equal(t, "", sanitizeExt("htm"))
}

func TestListings(t *testing.T) {
	s, root := newStore(t)

	train, test, err := s.ListDataset()
	require.NoError(t, err)
	assert.Empty(t, train)
	assert.Empty(t, test)
	assert.NotNil(t, train)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "DATASET", "train"), 0o755))
	for _, name := range []string{"b.png", "a.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, "DATASET", "train", name), nil, 0o644))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(root, "samples"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "samples", "ct.jpg"), nil, 0o644))

	train, test, err = s.ListDataset()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.png", "b.png"}, train)
	assert.Empty(t, test)

	samples, err := s.ListSamples()
	require.NoError(t, err)
	assert.Equal(t, []string{"ct.jpg"}, samples)
}
