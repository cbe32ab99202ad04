package extract

import (
	"errors"
	"fmt"

	"github.com/ayusman/handsign/internal/landmark"
)

// Sampling selects the order in which a label's manifest rows are tried.
type Sampling string

const (
	// SamplingShuffle tries rows in a seeded pseudo-random order.
	SamplingShuffle Sampling = "shuffle"
	// SamplingFirst tries rows in manifest order.
	SamplingFirst Sampling = "first"
)

// FramePolicy selects which frames of a sequence are searched for a hand.
type FramePolicy string

const (
	// FrameMiddleThenScan tries the middle frame, then every other frame in order.
	FrameMiddleThenScan FramePolicy = "middle-then-scan"
	// FrameMiddleOnly tries the middle frame only.
	FrameMiddleOnly FramePolicy = "middle-only"
)

// Options configures one extraction run.
type Options struct {
	// Fields are the coordinate columns per landmark, in output order.
	Fields []landmark.Field
	// Sampling is the candidate ordering policy.
	Sampling Sampling
	// FramePolicy is the frame search policy.
	FramePolicy FramePolicy
	// SamplesPerLabel is the per-label quota K.
	SamplesPerLabel int
	// Seed drives the shuffle when Sampling is SamplingShuffle.
	Seed uint64
	// Normalize makes hands wrist-relative and unit scaled before flattening.
	Normalize bool
	// Progress shows a per-label progress bar on stderr.
	Progress bool
}

// DefaultOptions returns the 42-value (x,y) configuration.
func DefaultOptions() Options {
	return Options{
		Fields:          []landmark.Field{landmark.FieldX, landmark.FieldY},
		Sampling:        SamplingShuffle,
		FramePolicy:     FrameMiddleThenScan,
		SamplesPerLabel: 100,
		Seed:            42,
	}
}

// Dim returns the feature vector length: 21 landmarks times the field count.
func (o Options) Dim() int {
	return landmark.NumLandmarks * len(o.Fields)
}

// Validate reports the first invalid option.
func (o Options) Validate() error {
	if len(o.Fields) == 0 {
		return errors.New("at least one coordinate field is required")
	}
	seen := make(map[landmark.Field]bool)
	for _, f := range o.Fields {
		if _, err := landmark.ParseField(string(f)); err != nil {
			return err
		}
		if seen[f] {
			return fmt.Errorf("duplicate coordinate field %q", f)
		}
		seen[f] = true
	}

	switch o.Sampling {
	case SamplingShuffle, SamplingFirst:
	default:
		return fmt.Errorf("unknown sampling policy %q", o.Sampling)
	}

	switch o.FramePolicy {
	case FrameMiddleThenScan, FrameMiddleOnly:
	default:
		return fmt.Errorf("unknown frame policy %q", o.FramePolicy)
	}

	if o.SamplesPerLabel <= 0 {
		return fmt.Errorf("samples per label must be positive, got %d", o.SamplesPerLabel)
	}
	return nil
}
