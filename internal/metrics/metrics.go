// Package metrics declares the Prometheus collectors for extraction runs and
// the recognition server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Skip reasons for extraction candidates.
const (
	SkipMissingFile = "missing_file"
	SkipUnreadable  = "unreadable"
	SkipNoHand      = "no_hand"
	SkipBadVector   = "bad_vector"
)

// Recognition outcomes.
const (
	OutcomeRecognized = "recognized"
	OutcomeNoHand     = "no_hand"
	OutcomeNoMatch    = "no_match"
	OutcomeInvalid    = "invalid"
	OutcomeError      = "error"
)

var (
	SamplesExtractedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "handsign_samples_extracted_total",
		Help: "Usable feature vectors collected, by sign",
	}, []string{"sign"})

	CandidatesSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "handsign_candidates_skipped_total",
		Help: "Manifest candidates that produced no sample, by reason",
	}, []string{"reason"})

	LabelShortfallTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "handsign_label_shortfall_total",
		Help: "Labels that ended an extraction run under quota",
	})

	RecognitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "handsign_recognitions_total",
		Help: "Recognition requests, by outcome",
	}, []string{"outcome"})

	RecognitionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "handsign_recognition_duration_seconds",
		Help:    "Time spent decoding and recognizing one image",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})

	PluginRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "handsign_plugin_runs_total",
		Help: "Plugin executions after a recognized sign, by plugin and status",
	}, []string{"plugin", "status"})
)
