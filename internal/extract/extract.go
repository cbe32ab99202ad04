// Package extract turns a manifest of labelled landmark sequences into a
// fixed-size feature matrix for training.
package extract

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"os"
	"slices"

	"github.com/cheggaaa/pb/v3"
	"go.uber.org/zap"

	"github.com/ayusman/handsign/internal/dataset"
	"github.com/ayusman/handsign/internal/landmark"
	"github.com/ayusman/handsign/internal/logger"
	"github.com/ayusman/handsign/internal/manifest"
	"github.com/ayusman/handsign/internal/metrics"
)

// Loader reads the landmark table behind a manifest path.
type Loader func(path string) (*landmark.Table, error)

// LabelReport is the per-label accounting of a run.
type LabelReport struct {
	Sign      string `json:"sign"`
	Label     int    `json:"label"`
	Available int    `json:"available"`
	Tried     int    `json:"tried"`
	Collected int    `json:"collected"`
	Skipped   int    `json:"skipped"`
}

// Short reports whether the label ended under quota.
func (l LabelReport) Short(quota int) bool {
	return l.Collected < quota
}

// Report summarizes an extraction run.
type Report struct {
	Quota  int           `json:"quota"`
	Labels []LabelReport `json:"labels"`
}

// Shortfalls returns the labels that collected fewer than the quota.
func (r *Report) Shortfalls() []LabelReport {
	var out []LabelReport
	for _, l := range r.Labels {
		if l.Short(r.Quota) {
			out = append(out, l)
		}
	}
	return out
}

// Total returns the number of collected samples.
func (r *Report) Total() int {
	n := 0
	for _, l := range r.Labels {
		n += l.Collected
	}
	return n
}

// Extractor runs the sampling and feature-extraction procedure.
type Extractor struct {
	opts Options
	load Loader
	log  *zap.Logger
}

// New creates an Extractor. Landmark tables are read with landmark.ReadFile.
func New(opts Options, log *zap.Logger) (*Extractor, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid extract options: %w", err)
	}
	return &Extractor{
		opts: opts,
		load: landmark.ReadFile,
		log:  logger.OrNop(log),
	}, nil
}

// SetLoader replaces the landmark table loader.
func (e *Extractor) SetLoader(l Loader) {
	e.load = l
}

// Options returns the run configuration.
func (e *Extractor) Options() Options {
	return e.opts
}

// Run extracts up to SamplesPerLabel feature vectors for every sign in rows.
// Unusable candidates are skipped and only a cancelled context fails the run.
// An empty manifest yields an empty dataset.
func (e *Extractor) Run(ctx context.Context, rows []manifest.Row) (*dataset.Dataset, *Report, error) {
	labels := manifest.Labels(rows)
	groups := manifest.GroupBySign(rows)
	ds := dataset.New(labels, e.opts.Dim())
	report := &Report{Quota: e.opts.SamplesPerLabel}

	var bar *pb.ProgressBar
	if e.opts.Progress {
		bar = pb.StartNew(len(labels))
		defer bar.Finish()
	}

	for idx, sign := range labels {
		lr := LabelReport{Sign: sign, Label: idx, Available: len(groups[sign])}

		for _, row := range e.candidates(sign, groups[sign]) {
			if lr.Collected >= e.opts.SamplesPerLabel {
				break
			}
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}

			lr.Tried++
			vec, reason := e.sample(row)
			if vec == nil {
				lr.Skipped++
				metrics.CandidatesSkippedTotal.WithLabelValues(reason).Inc()
				continue
			}
			if err := ds.Append(vec, idx); err != nil {
				return nil, nil, err
			}
			lr.Collected++
			metrics.SamplesExtractedTotal.WithLabelValues(sign).Inc()
		}

		if lr.Short(e.opts.SamplesPerLabel) {
			metrics.LabelShortfallTotal.Inc()
			e.log.Warn("label under quota",
				zap.String("sign", sign),
				zap.Int("found", lr.Collected),
				zap.Int("want", e.opts.SamplesPerLabel),
			)
		}
		report.Labels = append(report.Labels, lr)

		if bar != nil {
			bar.Increment()
		}
	}

	e.log.Info("extraction complete",
		zap.Int("samples", ds.Len()),
		zap.Int("labels", len(labels)),
		zap.Int("dim", ds.Dim()),
	)
	return ds, report, nil
}

// candidates orders a label's rows by the sampling policy. Each sign gets its
// own generator derived from the seed, so a label's order does not depend on
// which other labels are present.
func (e *Extractor) candidates(sign string, rows []manifest.Row) []manifest.Row {
	out := slices.Clone(rows)
	if e.opts.Sampling != SamplingShuffle {
		return out
	}

	h := fnv.New64a()
	h.Write([]byte(sign))
	rng := rand.New(rand.NewPCG(e.opts.Seed, h.Sum64()))
	rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

// sample extracts one feature vector from a candidate, or returns the skip reason.
func (e *Extractor) sample(row manifest.Row) ([]float64, string) {
	if _, err := os.Stat(row.Path); err != nil {
		e.log.Warn("landmark file missing, skipping",
			zap.String("sign", row.Sign),
			zap.String("path", row.Path),
			zap.Error(err),
		)
		return nil, metrics.SkipMissingFile
	}

	tbl, err := e.load(row.Path)
	if err != nil {
		e.log.Warn("landmark table unreadable, skipping",
			zap.String("sign", row.Sign),
			zap.String("path", row.Path),
			zap.Error(err),
		)
		return nil, metrics.SkipUnreadable
	}

	sawHand := false
	for frame := range candidateFrames(tbl.Frames(), e.opts.FramePolicy) {
		hand := selectHand(tbl, frame)
		if hand == nil {
			continue
		}
		sawHand = true
		if vec, ok := e.assemble(hand); ok {
			return vec, ""
		}
	}

	if sawHand {
		e.log.Debug("no complete hand in sequence",
			zap.String("sign", row.Sign),
			zap.String("path", row.Path),
		)
		return nil, metrics.SkipBadVector
	}
	e.log.Debug("no hand in sequence",
		zap.String("sign", row.Sign),
		zap.String("path", row.Path),
	)
	return nil, metrics.SkipNoHand
}

// HandVector flattens a detected hand with the same field layout and
// normalization the extractor applies to training samples.
func HandVector(h landmark.Hand, opts Options) []float64 {
	if opts.Normalize {
		if !slices.Contains(opts.Fields, landmark.FieldZ) {
			for i := range h.Points {
				h.Points[i].Z = 0
			}
		}
		h = *h.Normalize()
	}

	vec := make([]float64, 0, opts.Dim())
	for _, p := range h.Points {
		for _, f := range opts.Fields {
			switch f {
			case landmark.FieldX:
				vec = append(vec, p.X)
			case landmark.FieldY:
				vec = append(vec, p.Y)
			case landmark.FieldZ:
				vec = append(vec, p.Z)
			}
		}
	}
	return vec
}
