package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nvr-ai/go-densecap/images"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
root: images
images:
  - id: 7
    path: 7.jpg
    boxes:
      - [10, 10, 50, 50]
      - [0, 0, 99, 99]
      - [20, 30, 40, 60]
    gt_classes: [0, 12, 0]
  - id: 8
    path: /abs/8.jpg
    boxes:
      - [1, 2, 3, 4]
`), 0o600))

	m, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, "test", m.Name())
	assert.Equal(t, 2, m.Len())

	e, err := m.Entry(0)
	require.NoError(t, err)
	assert.Equal(t, 7, e.ID)
	assert.Equal(t, filepath.Join(dir, "images", "7.jpg"), e.Path)
	assert.Equal(t, []images.Box{
		{X1: 10, Y1: 10, X2: 50, Y2: 50},
		{X1: 20, Y1: 30, X2: 40, Y2: 60},
	}, e.Proposals, "ground truth boxes are excluded")

	e, err = m.Entry(1)
	require.NoError(t, err)
	assert.Equal(t, "/abs/8.jpg", e.Path)
	assert.Len(t, e.Proposals, 1)

	_, err = m.Entry(2)
	assert.Error(t, err)
}

func TestManifest_MismatchedClasses(t *testing.T) {
	m := &Manifest{Images: []ManifestImage{{ID: 1, Path: "a.jpg", Boxes: [][4]float32{{0, 0, 1, 1}}, GTClasses: []int{0, 0}}}}
	_, err := m.Entry(0)
	assert.Error(t, err)
}

func TestLoadManifest_Errors(t *testing.T) {
	_, err := LoadManifest(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("images: {not a list"), 0o600))
	_, err = LoadManifest(path)
	assert.Error(t, err)
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"frame-10.jpg", "2.png", "b.webp", "a.jpeg", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	m, err := LoadDirectory(dir)
	require.NoError(t, err)
	require.Equal(t, 4, m.Len())

	var ids []int
	var paths []string
	for i := 0; i < m.Len(); i++ {
		e, err := m.Entry(i)
		require.NoError(t, err)
		assert.Empty(t, e.Proposals)
		ids = append(ids, e.ID)
		paths = append(paths, filepath.Base(e.Path))
	}
	assert.Equal(t, []int{2, 10, 11, 12}, ids)
	assert.Equal(t, []string{"2.png", "frame-10.jpg", "a.jpeg", "b.webp"}, paths)

	_, err = LoadDirectory(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
