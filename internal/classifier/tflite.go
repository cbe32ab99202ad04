// Package classifier runs a packaged TensorFlow Lite sign classifier.
package classifier

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/mattn/go-tflite"
	"go.uber.org/zap"

	"github.com/ayusman/handsign/internal/bundle"
	"github.com/ayusman/handsign/internal/logger"
)

// ErrClosed is returned by Classify after Close.
var ErrClosed = errors.New("classifier closed")

// TFLite classifies feature vectors with an embedded TFLite interpreter.
// The interpreter is not safe for concurrent use, so calls are serialized.
type TFLite struct {
	mu        sync.Mutex
	model     *tflite.Model
	options   *tflite.InterpreterOptions
	interp    *tflite.Interpreter
	labels    []string
	threshold float64
	dim       int
	log       *zap.Logger
}

// NewTFLite builds an interpreter from a tflite bundle.
func NewTFLite(b *bundle.Bundle, log *zap.Logger) (*TFLite, error) {
	if b.Meta.Kind != bundle.KindTFLite {
		return nil, fmt.Errorf("bundle holds a %s model, not tflite", b.Meta.Kind)
	}
	log = logger.OrNop(log)

	model := tflite.NewModel(b.Model)
	if model == nil {
		return nil, errors.New("cannot load tflite model")
	}

	options := tflite.NewInterpreterOptions()
	options.SetNumThread(runtime.NumCPU())
	options.SetErrorReporter(func(msg string, _ interface{}) {
		log.Warn("tflite", zap.String("msg", msg))
	}, nil)

	interp := tflite.NewInterpreter(model, options)
	if interp == nil {
		options.Delete()
		model.Delete()
		return nil, errors.New("cannot create tflite interpreter")
	}

	c := &TFLite{
		model:     model,
		options:   options,
		interp:    interp,
		labels:    b.Meta.Labels,
		threshold: b.Meta.ScoreThreshold,
		dim:       b.Meta.FeatureDim,
		log:       log,
	}

	if status := interp.AllocateTensors(); status != tflite.OK {
		c.Close()
		return nil, fmt.Errorf("allocate tensors: status %v", status)
	}

	input := interp.GetInputTensor(0)
	if input.Type() != tflite.Float32 {
		c.Close()
		return nil, fmt.Errorf("input tensor type %v, want float32", input.Type())
	}
	if n := len(input.Float32s()); n != c.dim {
		c.Close()
		return nil, fmt.Errorf("input tensor holds %d values, bundle declares %d", n, c.dim)
	}

	output := interp.GetOutputTensor(0)
	if n := len(output.Float32s()); n != len(c.labels) {
		c.Close()
		return nil, fmt.Errorf("output tensor holds %d scores for %d labels", n, len(c.labels))
	}

	log.Info("tflite classifier ready",
		zap.Int("labels", len(c.labels)),
		zap.Int("dim", c.dim),
		zap.Float64("threshold", c.threshold),
	)
	return c, nil
}

// Open loads a bundle file and builds the classifier it holds.
func Open(path string, log *zap.Logger) (*TFLite, error) {
	b, err := bundle.Open(path)
	if err != nil {
		return nil, err
	}
	return NewTFLite(b, log)
}

// Labels returns the class labels in output order.
func (c *TFLite) Labels() []string {
	return c.labels
}

// Classify runs one feature vector through the model and returns the best
// label and its score. An empty label means the best score was below the
// bundle's threshold.
func (c *TFLite) Classify(vec []float64) (string, float64, error) {
	if len(vec) != c.dim {
		return "", 0, fmt.Errorf("feature vector has %d values, want %d", len(vec), c.dim)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.interp == nil {
		return "", 0, ErrClosed
	}

	in := c.interp.GetInputTensor(0).Float32s()
	for i, v := range vec {
		in[i] = float32(v)
	}

	if status := c.interp.Invoke(); status != tflite.OK {
		return "", 0, fmt.Errorf("invoke: status %v", status)
	}

	scores := c.interp.GetOutputTensor(0).Float32s()
	idx, best := argmax(scores)
	if idx < 0 || float64(best) < c.threshold {
		return "", float64(best), nil
	}
	return c.labels[idx], float64(best), nil
}

// Close releases the interpreter.
func (c *TFLite) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.interp != nil {
		c.interp.Delete()
		c.interp = nil
	}
	if c.options != nil {
		c.options.Delete()
		c.options = nil
	}
	if c.model != nil {
		c.model.Delete()
		c.model = nil
	}
	return nil
}

func argmax(scores []float32) (int, float32) {
	idx := -1
	var best float32
	for i, s := range scores {
		if idx < 0 || s > best {
			idx, best = i, s
		}
	}
	return idx, best
}
