// Package trim copies a bounded random sample of every class folder of an
// image dataset.
package trim

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
)

var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// Result is the outcome for one class folder.
type Result struct {
	Class     string `json:"class"`
	Available int    `json:"available"`
	Copied    int    `json:"copied"`
}

// IsImage reports whether name has an image extension (case-insensitive).
func IsImage(name string) bool {
	return imageExts[strings.ToLower(filepath.Ext(name))]
}

// Trim copies at most n images from every sub-directory of src into the
// same-named sub-directory of dst. The sample is a seeded shuffle per class,
// so the same seed picks the same files. Modification times are kept.
func Trim(ctx context.Context, src, dst string, n int, seed uint64) ([]Result, error) {
	if n <= 0 {
		return nil, fmt.Errorf("samples per class must be positive, got %d", n)
	}
	if filepath.Clean(src) == filepath.Clean(dst) {
		return nil, errors.New("source and destination are the same directory")
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return nil, fmt.Errorf("create destination: %w", err)
	}

	var results []Result
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}

		res, err := trimClass(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name()), n, seed)
		if err != nil {
			return results, fmt.Errorf("class %s: %w", entry.Name(), err)
		}
		res.Class = entry.Name()
		results = append(results, res)
	}
	return results, nil
}

func trimClass(srcDir, dstDir string, n int, seed uint64) (Result, error) {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return Result{}, err
	}

	var images []string
	for _, e := range entries {
		if e.Type().IsRegular() && IsImage(e.Name()) {
			images = append(images, e.Name())
		}
	}

	h := fnv.New64a()
	h.Write([]byte(filepath.Base(srcDir)))
	rng := rand.New(rand.NewPCG(seed, h.Sum64()))
	rng.Shuffle(len(images), func(i, j int) {
		images[i], images[j] = images[j], images[i]
	})

	picked := images[:min(n, len(images))]
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return Result{}, err
	}
	for _, name := range picked {
		if err := copyFile(filepath.Join(srcDir, name), filepath.Join(dstDir, name)); err != nil {
			return Result{}, err
		}
	}
	return Result{Available: len(images), Copied: len(picked)}, nil
}

// copyFile copies src to dst keeping the permission bits and modification time.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
