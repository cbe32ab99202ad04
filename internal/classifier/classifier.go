package classifier

import (
	"bytes"
	"fmt"

	"go.uber.org/zap"

	"github.com/ayusman/handsign/internal/bundle"
	"github.com/ayusman/handsign/internal/gesture"
)

// Classifier maps a feature vector to a label. An empty label with a nil
// error means no class was confident enough.
type Classifier interface {
	Classify(vec []float64) (label string, score float64, err error)
}

// Centroid applies a bundle's score threshold to a nearest-centroid matcher.
type Centroid struct {
	Matcher   *gesture.Matcher
	Threshold float64
}

// Classify implements Classifier.
func (c *Centroid) Classify(vec []float64) (string, float64, error) {
	label, score, err := c.Matcher.Classify(vec)
	if err != nil || label == "" {
		return "", score, err
	}
	if score < c.Threshold {
		return "", score, nil
	}
	return label, score, nil
}

// FromBundle builds the classifier stored in b.
func FromBundle(b *bundle.Bundle, log *zap.Logger) (Classifier, error) {
	switch b.Meta.Kind {
	case bundle.KindTFLite:
		return NewTFLite(b, log)
	case bundle.KindCentroid:
		m, err := gesture.ReadTemplates(bytes.NewReader(b.Model))
		if err != nil {
			return nil, err
		}
		if m.Dim() != b.Meta.FeatureDim {
			return nil, fmt.Errorf("templates have dimension %d, bundle declares %d", m.Dim(), b.Meta.FeatureDim)
		}
		return &Centroid{Matcher: m, Threshold: b.Meta.ScoreThreshold}, nil
	}
	return nil, fmt.Errorf("unsupported model kind %q", b.Meta.Kind)
}

// Load opens a bundle file and builds its classifier.
func Load(path string, log *zap.Logger) (Classifier, *bundle.Metadata, error) {
	b, err := bundle.Open(path)
	if err != nil {
		return nil, nil, err
	}
	c, err := FromBundle(b, log)
	if err != nil {
		return nil, nil, err
	}
	return c, &b.Meta, nil
}
