package trim

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeDataset(t *testing.T, classes map[string]int) string {
	t.Helper()
	src := t.TempDir()
	for class, n := range classes {
		dir := filepath.Join(src, class)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		for i := 0; i < n; i++ {
			ext := []string{".jpg", ".PNG", ".jpeg"}[i%3]
			require.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf("%s%d%s", class, i, ext)), []byte(class), 0o644))
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(src, "README"), []byte("top-level file"), 0o644))
	return src
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestTrim(t *testing.T) {
	src := makeDataset(t, map[string]int{"A": 10, "B": 2})
	dst := filepath.Join(t.TempDir(), "trimmed")

	results, err := Trim(context.Background(), src, dst, 4, 42)
	require.NoError(t, err)

	assert.Equal(t, []Result{
		{Class: "A", Available: 10, Copied: 4},
		{Class: "B", Available: 2, Copied: 2},
	}, results)

	assert.Len(t, listDir(t, filepath.Join(dst, "A")), 4)
	assert.Len(t, listDir(t, filepath.Join(dst, "B")), 2)
	assert.Equal(t, []string{"A", "B"}, listDir(t, dst), "top-level files are ignored")
	for _, name := range listDir(t, filepath.Join(dst, "A")) {
		assert.True(t, IsImage(name), name)
	}
}

func TestTrim_Deterministic(t *testing.T) {
	src := makeDataset(t, map[string]int{"A": 20})

	dst1 := filepath.Join(t.TempDir(), "one")
	dst2 := filepath.Join(t.TempDir(), "two")
	_, err := Trim(context.Background(), src, dst1, 5, 7)
	require.NoError(t, err)
	_, err = Trim(context.Background(), src, dst2, 5, 7)
	require.NoError(t, err)

	assert.Equal(t, listDir(t, filepath.Join(dst1, "A")), listDir(t, filepath.Join(dst2, "A")))

	dst3 := filepath.Join(t.TempDir(), "three")
	_, err = Trim(context.Background(), src, dst3, 5, 8)
	require.NoError(t, err)
	assert.False(t, slices.Equal(listDir(t, filepath.Join(dst1, "A")), listDir(t, filepath.Join(dst3, "A"))),
		"a different seed should pick a different sample")
}

func TestTrim_PreservesModTime(t *testing.T) {
	src := makeDataset(t, map[string]int{"A": 1})
	old := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, os.Chtimes(filepath.Join(src, "A", "A0.jpg"), old, old))

	dst := filepath.Join(t.TempDir(), "out")
	_, err := Trim(context.Background(), src, dst, 1, 1)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dst, "A", "A0.jpg"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(old), "mtime %v, want %v", info.ModTime(), old)
}

func TestTrim_Errors(t *testing.T) {
	src := makeDataset(t, map[string]int{"A": 1})

	_, err := Trim(context.Background(), src, t.TempDir(), 0, 1)
	assert.Error(t, err, "zero per class")

	_, err = Trim(context.Background(), src, src, 1, 1)
	assert.Error(t, err, "same directory")

	_, err = Trim(context.Background(), filepath.Join(src, "missing"), t.TempDir(), 1, 1)
	assert.Error(t, err, "missing source")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Trim(ctx, src, t.TempDir(), 1, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsImage(t *testing.T) {
	for name, want := range map[string]bool{
		"a.png": true, "b.JPG": true, "c.Jpeg": true,
		"d.gif": false, "e": false, "f.png.txt": false,
	} {
		assert.Equal(t, want, IsImage(name), name)
	}
}
