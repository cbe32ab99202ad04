package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/handsign/internal/bundle"
	"github.com/ayusman/handsign/internal/dataset"
	"github.com/ayusman/handsign/internal/gesture"
	"github.com/ayusman/handsign/internal/landmark"
	"github.com/ayusman/handsign/internal/store"
)

type packageOptions struct {
	Kind      bundle.Kind `json:"kind"`
	Model     string      `json:"model,omitempty"`
	Threshold float64     `json:"threshold"`
	Tolerance float64     `json:"tolerance,omitempty"`
	Fields    string      `json:"fields"`
	Normalize bool        `json:"normalize"`
}

func runPackage(ctx context.Context, e *env, args []string) error {
	cfgOpts, err := e.cfg.ExtractOptions()
	if err != nil {
		return err
	}
	opts := packageOptions{
		Threshold: bundle.DefaultScoreThreshold,
		Tolerance: gesture.DefaultTolerance,
		Fields:    joinFields(cfgOpts.Fields),
		Normalize: cfgOpts.Normalize,
	}

	fs := e.newFlagSet("package", "-dataset DIR -out signs.task [-model model.tflite]")
	dataDir := fs.String("dataset", ".", "directory holding X_data.npy, y_data.npy and labels.txt")
	out := fs.String("out", "signs.task", "bundle file to write")
	fs.StringVar(&opts.Model, "model", "", "exported TFLite model; without it a centroid classifier is trained from the dataset")
	fs.Float64Var(&opts.Threshold, "threshold", opts.Threshold, "minimum score for a sign to be reported")
	fs.Float64Var(&opts.Tolerance, "tolerance", opts.Tolerance, "centroid match distance limit")
	fs.StringVar(&opts.Fields, "fields", opts.Fields, "coordinate columns the dataset was extracted with")
	fs.BoolVar(&opts.Normalize, "normalize", opts.Normalize, "whether the dataset was extracted with -normalize")
	if err := parse(fs, args); err != nil {
		return err
	}

	fields, err := parseFields(opts.Fields)
	if err != nil {
		return usageErrorf("%v", err)
	}

	run := &store.Run{Kind: store.RunKindPackage, Source: *dataDir, Output: *out}
	meta, err := packageBundle(*dataDir, *out, fields, &opts)
	if meta != nil {
		run.Labels = len(meta.Labels)
	}
	e.recordRun(run, nil, opts, err)
	if err != nil {
		return err
	}

	e.log.Info("bundle written",
		zap.String("path", *out),
		zap.String("kind", string(meta.Kind)),
		zap.Int("labels", len(meta.Labels)),
		zap.Int("feature_dim", meta.FeatureDim),
		zap.Float64("score_threshold", meta.ScoreThreshold),
	)
	fmt.Fprintf(e.stdout, "%s bundle with %d labels -> %s\n", meta.Kind, len(meta.Labels), *out)
	return nil
}

func packageBundle(dataDir, out string, fields []landmark.Field, opts *packageOptions) (*bundle.Metadata, error) {
	ds, err := dataset.Load(dataDir)
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	if want := landmark.NumLandmarks * len(fields); ds.Dim() != want {
		return nil, fmt.Errorf("dataset has %d values per sample, fields %q give %d", ds.Dim(), opts.Fields, want)
	}

	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	meta := &bundle.Metadata{
		ScoreThreshold: opts.Threshold,
		FeatureDim:     ds.Dim(),
		Normalize:      opts.Normalize,
		Fields:         names,
		Labels:         ds.Labels,
		CreatedAt:      time.Now().UTC(),
	}

	var model []byte
	if opts.Model != "" {
		meta.Kind = bundle.KindTFLite
		if model, err = os.ReadFile(opts.Model); err != nil {
			return meta, fmt.Errorf("read model: %w", err)
		}
	} else {
		meta.Kind = bundle.KindCentroid
		trainer := gesture.NewTrainer()
		trainer.Tolerance = opts.Tolerance
		m, err := trainer.Train(ds)
		if err != nil {
			return meta, fmt.Errorf("train centroids: %w", err)
		}
		var buf bytes.Buffer
		if err := gesture.WriteTemplates(&buf, m); err != nil {
			return meta, err
		}
		model = buf.Bytes()
	}
	opts.Kind = meta.Kind

	if err := bundle.PackFile(out, model, *meta); err != nil {
		return meta, err
	}
	return meta, nil
}
