// Package dataset holds the extracted feature matrix, its aligned label
// vector and label list, and reads and writes them as training artifacts.
package dataset

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrEmpty is returned by Matrix for a dataset without samples.
var ErrEmpty = errors.New("dataset has no samples")

// Dataset is the extractor's output: Features[i] is labelled Targets[i],
// an index into Labels.
type Dataset struct {
	Labels   []string
	Features [][]float64
	Targets  []int
	dim      int
}

// New creates an empty dataset for the given sorted label list and feature dimension.
func New(labels []string, dim int) *Dataset {
	return &Dataset{
		Labels: labels,
		dim:    dim,
	}
}

// Append adds one sample. The vector must have the dataset's dimension and
// the target must index Labels.
func (d *Dataset) Append(vec []float64, target int) error {
	if len(vec) != d.dim {
		return fmt.Errorf("feature vector has %d values, want %d", len(vec), d.dim)
	}
	if target < 0 || target >= len(d.Labels) {
		return fmt.Errorf("target %d outside label range [0,%d)", target, len(d.Labels))
	}
	d.Features = append(d.Features, vec)
	d.Targets = append(d.Targets, target)
	return nil
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return len(d.Features)
}

// Dim returns the feature dimension.
func (d *Dataset) Dim() int {
	return d.dim
}

// Counts returns the number of samples per label index.
func (d *Dataset) Counts() []int {
	counts := make([]int, len(d.Labels))
	for _, t := range d.Targets {
		counts[t]++
	}
	return counts
}

// Validate checks the alignment invariants.
func (d *Dataset) Validate() error {
	if len(d.Features) != len(d.Targets) {
		return fmt.Errorf("%d feature rows but %d targets", len(d.Features), len(d.Targets))
	}
	for i, row := range d.Features {
		if len(row) != d.dim {
			return fmt.Errorf("row %d has %d values, want %d", i, len(row), d.dim)
		}
	}
	for i, t := range d.Targets {
		if t < 0 || t >= len(d.Labels) {
			return fmt.Errorf("target %d at row %d outside label range [0,%d)", t, i, len(d.Labels))
		}
	}
	return nil
}

// Matrix returns the features as a (samples x dim) dense matrix.
func (d *Dataset) Matrix() (*mat.Dense, error) {
	if len(d.Features) == 0 || d.dim == 0 {
		return nil, ErrEmpty
	}
	m := mat.NewDense(len(d.Features), d.dim, nil)
	for i, row := range d.Features {
		m.SetRow(i, row)
	}
	return m, nil
}
