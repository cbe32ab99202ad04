// Package detector finds hand landmarks in still images.
package detector

import (
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/handsign/internal/landmark"
)

// Detector finds hands in an image.
type Detector interface {
	// Detect returns the hands found in img, best first. An empty slice
	// means no hand was seen.
	Detect(img *gocv.Mat) ([]landmark.Hand, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds the hand landmarker settings.
type Config struct {
	// ScriptPath is the hand landmarker service script. Empty means search
	// the default locations.
	ScriptPath string `yaml:"script_path" env:"SCRIPT_PATH"`

	// PythonPath is the interpreter used to run the script. Empty means a
	// virtual environment python if one is found, else python3.
	PythonPath string `yaml:"python_path" env:"PYTHON_PATH"`

	// MaxHands is the maximum number of hands to report.
	MaxHands int `yaml:"max_hands" env:"MAX_HANDS"`

	// MinConfidence is the minimum detection confidence (0.0-1.0).
	MinConfidence float64 `yaml:"min_confidence" env:"MIN_CONFIDENCE"`

	// IdleTimeout stops the subprocess after this long without requests.
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
}

// DefaultConfig returns a single-hand configuration.
func DefaultConfig() Config {
	return Config{
		MaxHands:      1,
		MinConfidence: 0.5,
		IdleTimeout:   30 * time.Second,
	}
}
