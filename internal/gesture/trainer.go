package gesture

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/ayusman/handsign/internal/dataset"
)

// Trainer averages extracted samples into per-label templates.
type Trainer struct {
	// Tolerance is copied into every template. Zero means DefaultTolerance.
	Tolerance float64
}

// NewTrainer creates a Trainer with the default tolerance.
func NewTrainer() *Trainer {
	return &Trainer{Tolerance: DefaultTolerance}
}

// Train builds one centroid template per label that has at least one
// complete sample. Rows containing NaN are ignored.
func (t *Trainer) Train(ds *dataset.Dataset) (*Matcher, error) {
	if ds == nil {
		return nil, errors.New("no dataset provided")
	}
	x, err := ds.Matrix()
	if err != nil {
		return nil, err
	}

	_, dim := x.Dims()
	sums := make([][]float64, len(ds.Labels))
	counts := make([]int, len(ds.Labels))

	for i, target := range ds.Targets {
		row := mat.Row(nil, i, x)
		if floats.HasNaN(row) {
			continue
		}
		if sums[target] == nil {
			sums[target] = make([]float64, dim)
		}
		floats.Add(sums[target], row)
		counts[target]++
	}

	m := NewMatcher(dim)
	for idx, label := range ds.Labels {
		if counts[idx] == 0 {
			continue
		}
		floats.Scale(1/float64(counts[idx]), sums[idx])
		if err := m.AddTemplate(&Template{
			Label:     label,
			Index:     idx,
			Centroid:  sums[idx],
			Samples:   counts[idx],
			Tolerance: t.Tolerance,
		}); err != nil {
			return nil, err
		}
	}

	if len(m.templates) == 0 {
		return nil, errors.New("no complete samples to train on")
	}
	return m, nil
}

// WriteTemplates encodes a matcher's templates as JSON.
func WriteTemplates(w io.Writer, m *Matcher) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m.templates)
}

// ReadTemplates decodes templates written by WriteTemplates into a Matcher.
func ReadTemplates(r io.Reader) (*Matcher, error) {
	var templates []*Template
	if err := json.NewDecoder(r).Decode(&templates); err != nil {
		return nil, fmt.Errorf("failed to decode templates: %w", err)
	}
	if len(templates) == 0 {
		return nil, errors.New("no templates")
	}

	m := NewMatcher(len(templates[0].Centroid))
	for _, t := range templates {
		if err := m.AddTemplate(t); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// LoadTemplates reads a templates file from disk.
func LoadTemplates(path string) (*Matcher, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadTemplates(f)
}

// SaveTemplates writes a matcher's templates to disk.
func SaveTemplates(path string, m *Matcher) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteTemplates(f, m); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
