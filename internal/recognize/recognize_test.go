package recognize

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/handsign/internal/detector"
	"github.com/ayusman/handsign/internal/extract"
	"github.com/ayusman/handsign/internal/landmark"
)

type fakeClassifier struct {
	label string
	score float64
	err   error
	got   []float64
}

func (f *fakeClassifier) Classify(vec []float64) (string, float64, error) {
	f.got = vec
	return f.label, f.score, f.err
}

func openHand() landmark.Hand {
	h := landmark.Hand{Handedness: "Left", Score: 0.9}
	for i := range h.Points {
		h.Points[i] = landmark.Point3D{X: 0.5 + float64(i)*0.01, Y: 0.8 - float64(i)*0.02, Z: 0.01}
	}
	return h
}

func TestLandmark_Recognize(t *testing.T) {
	det := detector.NewMockDetector()
	det.SetHands([]landmark.Hand{openHand()})
	cls := &fakeClassifier{label: "hello", score: 0.93}

	r := NewLandmark(det, cls, extract.DefaultOptions(), nil)
	res, err := r.Recognize(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, "hello", res.Label)
	assert.Equal(t, "hello", res.Text)
	assert.Equal(t, 0.93, res.Score)
	assert.Equal(t, "Left", res.Handedness)
	assert.Len(t, cls.got, 42)
	assert.Equal(t, extract.HandVector(openHand(), extract.DefaultOptions()), cls.got)
}

func TestLandmark_FeatureLayoutFollowsOptions(t *testing.T) {
	det := detector.NewMockDetector()
	det.SetHands([]landmark.Hand{openHand()})
	cls := &fakeClassifier{label: "hello", score: 1}

	opts := extract.DefaultOptions()
	opts.Fields = []landmark.Field{landmark.FieldX, landmark.FieldY, landmark.FieldZ}
	opts.Normalize = true

	_, err := NewLandmark(det, cls, opts, nil).Recognize(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, cls.got, 63)
	assert.InDelta(t, 0, cls.got[0], 1e-12, "wrist at origin")
}

func TestLandmark_Errors(t *testing.T) {
	t.Run("no hand", func(t *testing.T) {
		r := NewLandmark(detector.NewMockDetector(), &fakeClassifier{}, extract.DefaultOptions(), nil)
		_, err := r.Recognize(context.Background(), nil)
		assert.ErrorIs(t, err, ErrNoHand)
	})

	t.Run("below threshold", func(t *testing.T) {
		det := detector.NewMockDetector()
		det.SetHands([]landmark.Hand{openHand()})
		r := NewLandmark(det, &fakeClassifier{score: 0.2}, extract.DefaultOptions(), nil)

		res, err := r.Recognize(context.Background(), nil)
		assert.ErrorIs(t, err, ErrNoMatch)
		assert.Equal(t, 0.2, res.Score)
	})

	t.Run("detector failure", func(t *testing.T) {
		det := detector.NewMockDetector()
		det.SetError(errors.New("pipe closed"))
		r := NewLandmark(det, &fakeClassifier{}, extract.DefaultOptions(), nil)

		_, err := r.Recognize(context.Background(), nil)
		assert.ErrorContains(t, err, "pipe closed")
	})

	t.Run("classifier failure", func(t *testing.T) {
		det := detector.NewMockDetector()
		det.SetHands([]landmark.Hand{openHand()})
		r := NewLandmark(det, &fakeClassifier{err: errors.New("bad model")}, extract.DefaultOptions(), nil)

		_, err := r.Recognize(context.Background(), nil)
		assert.ErrorContains(t, err, "bad model")
	})

	t.Run("cancelled", func(t *testing.T) {
		det := detector.NewMockDetector()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := NewLandmark(det, &fakeClassifier{}, extract.DefaultOptions(), nil).Recognize(ctx, nil)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, det.Calls())
	})
}

func TestDominantColor(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping OpenCV test in short mode")
	}

	tests := []struct {
		name    string
		b, g, r float64
		want    string
	}{
		{"red", 10, 20, 200, "The image is mostly Red"},
		{"green", 10, 200, 20, "The image is mostly Green"},
		{"blue", 200, 20, 10, "The image is mostly Blue"},
		{"tie resolves to blue", 100, 100, 100, "The image is mostly Blue"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(tt.b, tt.g, tt.r, 0), 4, 4, gocv.MatTypeCV8UC3)
			defer img.Close()

			res, err := DominantColor{}.Recognize(context.Background(), &img)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Text)
		})
	}
}
