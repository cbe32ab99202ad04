// Package recognize turns a decoded image into a sign label.
package recognize

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/handsign/internal/classifier"
	"github.com/ayusman/handsign/internal/detector"
	"github.com/ayusman/handsign/internal/extract"
	"github.com/ayusman/handsign/internal/logger"
	"github.com/ayusman/handsign/internal/metrics"
)

var (
	// ErrNoHand is returned when no hand is visible in the image.
	ErrNoHand = errors.New("no hand detected")
	// ErrNoMatch is returned when a hand was found but no sign scored above
	// the threshold.
	ErrNoMatch = errors.New("no sign recognized")
)

// Result is one recognition.
type Result struct {
	Label      string  `json:"label"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
	Handedness string  `json:"handedness,omitempty"`
}

// Recognizer recognizes a sign in a BGR image.
type Recognizer interface {
	Recognize(ctx context.Context, img *gocv.Mat) (Result, error)
}

// Landmark detects a hand, flattens it the way extraction does and classifies it.
type Landmark struct {
	detector   detector.Detector
	classifier classifier.Classifier
	features   extract.Options
	log        *zap.Logger
}

// NewLandmark creates a landmark-based recognizer. features must match the
// extraction options the classifier was trained on.
func NewLandmark(det detector.Detector, cls classifier.Classifier, features extract.Options, log *zap.Logger) *Landmark {
	return &Landmark{
		detector:   det,
		classifier: cls,
		features:   features,
		log:        logger.OrNop(log),
	}
}

// Recognize implements Recognizer.
func (l *Landmark) Recognize(ctx context.Context, img *gocv.Mat) (Result, error) {
	start := time.Now()
	defer func() {
		metrics.RecognitionDuration.Observe(time.Since(start).Seconds())
	}()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	hands, err := l.detector.Detect(img)
	if err != nil {
		metrics.RecognitionsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return Result{}, fmt.Errorf("detect hands: %w", err)
	}
	if len(hands) == 0 {
		metrics.RecognitionsTotal.WithLabelValues(metrics.OutcomeNoHand).Inc()
		return Result{}, ErrNoHand
	}

	hand := hands[0]
	vec := extract.HandVector(hand, l.features)
	label, score, err := l.classifier.Classify(vec)
	if err != nil {
		metrics.RecognitionsTotal.WithLabelValues(metrics.OutcomeError).Inc()
		return Result{}, fmt.Errorf("classify: %w", err)
	}

	res := Result{Label: label, Text: label, Score: score, Handedness: hand.Handedness}
	if label == "" {
		metrics.RecognitionsTotal.WithLabelValues(metrics.OutcomeNoMatch).Inc()
		return res, ErrNoMatch
	}

	metrics.RecognitionsTotal.WithLabelValues(metrics.OutcomeRecognized).Inc()
	l.log.Debug("sign recognized",
		zap.String("label", label),
		zap.Float64("score", score),
		zap.String("handedness", hand.Handedness),
	)
	return res, nil
}

// DominantColor reports which BGR channel has the highest mean. It needs no
// model and serves as the fallback recognizer.
type DominantColor struct{}

// Recognize implements Recognizer. Ties resolve to Blue.
func (DominantColor) Recognize(ctx context.Context, img *gocv.Mat) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if img == nil || img.Empty() {
		return Result{}, errors.New("empty image")
	}

	mean := img.Mean()
	b, g, r := mean.Val1, mean.Val2, mean.Val3

	color := "Blue"
	switch {
	case r > g && r > b:
		color = "Red"
	case g > r && g > b:
		color = "Green"
	}

	metrics.RecognitionsTotal.WithLabelValues(metrics.OutcomeRecognized).Inc()
	return Result{Label: color, Text: "The image is mostly " + color, Score: 1}, nil
}
