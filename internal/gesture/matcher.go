// Package gesture provides a nearest-centroid sign classifier over extracted
// feature vectors.
package gesture

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// DefaultTolerance is the maximum distance for a match when a template does
// not set its own.
const DefaultTolerance = 2.0

// ErrDimension is returned when an input vector does not match the templates.
var ErrDimension = errors.New("feature vector dimension mismatch")

// Template is the averaged feature vector of one label.
type Template struct {
	Label     string    `json:"label"`
	Index     int       `json:"index"`
	Centroid  []float64 `json:"centroid"`
	Samples   int       `json:"samples"`
	Tolerance float64   `json:"tolerance"`
}

// Match is a template within tolerance of an input vector.
type Match struct {
	Template *Template
	Score    float64 // 1/(1+distance), higher is better
	Distance float64 // Euclidean distance between input and centroid
}

// Matcher matches feature vectors against label templates.
type Matcher struct {
	templates []*Template
	dim       int
}

// NewMatcher creates a Matcher for vectors of the given dimension.
func NewMatcher(dim int) *Matcher {
	return &Matcher{dim: dim}
}

// Dim returns the expected input dimension.
func (m *Matcher) Dim() int {
	return m.dim
}

// Templates returns the registered templates in label order.
func (m *Matcher) Templates() []*Template {
	return m.templates
}

// AddTemplate registers a template. Templates of the wrong dimension are rejected.
func (m *Matcher) AddTemplate(t *Template) error {
	if t == nil {
		return errors.New("nil template")
	}
	if len(t.Centroid) != m.dim {
		return fmt.Errorf("template %q: %w: got %d, want %d", t.Label, ErrDimension, len(t.Centroid), m.dim)
	}
	m.templates = append(m.templates, t)
	return nil
}

// Match returns the templates within tolerance of vec, best first.
func (m *Matcher) Match(vec []float64) ([]Match, error) {
	if len(vec) != m.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimension, len(vec), m.dim)
	}

	var matches []Match
	for _, t := range m.templates {
		distance := floats.Distance(vec, t.Centroid, 2)
		if math.IsNaN(distance) {
			continue
		}

		tolerance := t.Tolerance
		if tolerance <= 0 {
			tolerance = DefaultTolerance
		}
		if distance <= tolerance {
			matches = append(matches, Match{
				Template: t,
				Score:    1.0 / (1.0 + distance),
				Distance: distance,
			})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches, nil
}

// Classify returns the best matching label and its score. An empty label
// means no template was within tolerance.
func (m *Matcher) Classify(vec []float64) (string, float64, error) {
	matches, err := m.Match(vec)
	if err != nil {
		return "", 0, err
	}
	if len(matches) == 0 {
		return "", 0, nil
	}

	best := matches[0]
	return best.Template.Label, best.Score, nil
}
