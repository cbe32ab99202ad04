// Package bundle packs a trained classifier, its label list and decision
// threshold into a single zip archive for the recognition runtime.
package bundle

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/ayusman/handsign/internal/dataset"
)

// Entry names inside a bundle.
const (
	ModelTFLite    = "model.tflite"
	ModelTemplates = "templates.json"
	LabelsEntry    = "labels.txt"
	MetadataEntry  = "metadata.json"
)

// DefaultScoreThreshold is the minimum score for a prediction to be reported.
const DefaultScoreThreshold = 0.5

// Kind is the model format stored in a bundle.
type Kind string

const (
	KindTFLite   Kind = "tflite"
	KindCentroid Kind = "centroid"
)

func (k Kind) entry() (string, error) {
	switch k {
	case KindTFLite:
		return ModelTFLite, nil
	case KindCentroid:
		return ModelTemplates, nil
	}
	return "", fmt.Errorf("unknown model kind %q", k)
}

// Metadata describes the packaged model.
type Metadata struct {
	Kind           Kind      `json:"kind"`
	ScoreThreshold float64   `json:"score_threshold"`
	FeatureDim     int       `json:"feature_dim"`
	Normalize      bool      `json:"normalize"`
	Fields         []string  `json:"fields"`
	Labels         []string  `json:"labels"`
	CreatedAt      time.Time `json:"created_at"`
}

// Validate checks the metadata is usable.
func (m Metadata) Validate() error {
	if _, err := m.Kind.entry(); err != nil {
		return err
	}
	if m.ScoreThreshold < 0 || m.ScoreThreshold > 1 {
		return fmt.Errorf("score threshold %v outside [0,1]", m.ScoreThreshold)
	}
	if m.FeatureDim <= 0 {
		return fmt.Errorf("feature dimension must be positive, got %d", m.FeatureDim)
	}
	if len(m.Labels) == 0 {
		return errors.New("bundle has no labels")
	}
	return nil
}

// Bundle is an opened classifier bundle.
type Bundle struct {
	Meta  Metadata
	Model []byte
}

// Pack writes model and meta as a bundle archive to w.
func Pack(w io.Writer, model []byte, meta Metadata) error {
	if err := meta.Validate(); err != nil {
		return fmt.Errorf("invalid metadata: %w", err)
	}
	if len(model) == 0 {
		return errors.New("empty model")
	}
	modelEntry, _ := meta.Kind.entry()

	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	var labels bytes.Buffer
	if err := dataset.WriteLabels(&labels, meta.Labels); err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	entries := []struct {
		name string
		data []byte
	}{
		{modelEntry, model},
		{LabelsEntry, labels.Bytes()},
		{MetadataEntry, metaJSON},
	}
	for _, e := range entries {
		f, err := zw.CreateHeader(&zip.FileHeader{
			Name:     e.name,
			Method:   zip.Deflate,
			Modified: meta.CreatedAt,
		})
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", e.name, err)
		}
		if _, err := f.Write(e.data); err != nil {
			return fmt.Errorf("failed to write %s: %w", e.name, err)
		}
	}
	return zw.Close()
}

// PackFile writes a bundle to path.
func PackFile(path string, model []byte, meta Metadata) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Pack(f, model, meta); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// Open reads a bundle from disk.
func Open(path string) (*Bundle, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle: %w", err)
	}
	defer zr.Close()
	return read(&zr.Reader)
}

// Read reads a bundle from an in-memory archive.
func Read(r io.ReaderAt, size int64) (*Bundle, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle: %w", err)
	}
	return read(zr)
}

func read(zr *zip.Reader) (*Bundle, error) {
	metaJSON, err := readEntry(zr, MetadataEntry)
	if err != nil {
		return nil, err
	}
	var meta Metadata
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if err := meta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid metadata: %w", err)
	}

	labelsData, err := readEntry(zr, LabelsEntry)
	if err != nil {
		return nil, err
	}
	labels, err := dataset.ReadLabels(bytes.NewReader(labelsData))
	if err != nil {
		return nil, err
	}
	if !slices.Equal(labels, meta.Labels) {
		return nil, fmt.Errorf("%s does not match metadata labels", LabelsEntry)
	}

	modelEntry, _ := meta.Kind.entry()
	model, err := readEntry(zr, modelEntry)
	if err != nil {
		return nil, err
	}
	return &Bundle{Meta: meta, Model: model}, nil
}

func readEntry(zr *zip.Reader, name string) ([]byte, error) {
	f, err := zr.Open(name)
	if err != nil {
		return nil, fmt.Errorf("bundle entry %s: %w", name, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}
