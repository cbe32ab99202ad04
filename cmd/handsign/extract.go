package main

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ayusman/handsign/internal/dataset"
	"github.com/ayusman/handsign/internal/extract"
	"github.com/ayusman/handsign/internal/landmark"
	"github.com/ayusman/handsign/internal/manifest"
	"github.com/ayusman/handsign/internal/store"
)

func runExtract(ctx context.Context, e *env, args []string) error {
	opts, err := e.cfg.ExtractOptions()
	if err != nil {
		return err
	}

	fs := e.newFlagSet("extract", "-manifest train.csv -out DIR")
	manifestPath := fs.String("manifest", "train.csv", "manifest CSV with sign, path and sequence_id columns")
	root := fs.String("root", "", "directory manifest paths are relative to (default: the manifest's directory)")
	out := fs.String("out", ".", "output directory for X_data.npy, y_data.npy and labels.txt")
	fields := fs.String("fields", joinFields(opts.Fields), "comma-separated coordinate columns per landmark")
	sampling := fs.String("sampling", string(opts.Sampling), "candidate order: shuffle or first")
	frames := fs.String("frames", string(opts.FramePolicy), "frame search: middle-then-scan or middle-only")
	fs.IntVar(&opts.SamplesPerLabel, "samples", opts.SamplesPerLabel, "samples to collect per label")
	fs.Uint64Var(&opts.Seed, "seed", opts.Seed, "shuffle seed")
	fs.BoolVar(&opts.Normalize, "normalize", opts.Normalize, "make hands wrist-relative and unit scaled")
	fs.BoolVar(&opts.Progress, "progress", opts.Progress, "show a progress bar")
	if err := parse(fs, args); err != nil {
		return err
	}

	opts.Sampling = extract.Sampling(*sampling)
	opts.FramePolicy = extract.FramePolicy(*frames)
	if opts.Fields, err = parseFields(*fields); err != nil {
		return usageErrorf("%v", err)
	}

	ex, err := extract.New(opts, e.log)
	if err != nil {
		return usageErrorf("%v", err)
	}

	run := &store.Run{Kind: store.RunKindExtract, Source: *manifestPath, Output: *out}
	ds, report, err := extractDataset(ctx, ex, *manifestPath, *root, *out)

	var labels []store.RunLabel
	if report != nil {
		for _, l := range report.Labels {
			labels = append(labels, store.RunLabel{
				Index:     l.Label,
				Sign:      l.Sign,
				Available: l.Available,
				Tried:     l.Tried,
				Collected: l.Collected,
				Skipped:   l.Skipped,
			})
		}
		run.Labels = len(report.Labels)
		run.Samples = report.Total()
	}
	e.recordRun(run, labels, opts, err)
	if err != nil {
		return err
	}

	short := report.Shortfalls()
	e.log.Info("dataset written",
		zap.String("dir", *out),
		zap.Int("samples", ds.Len()),
		zap.Int("labels", len(ds.Labels)),
		zap.Int("dim", ds.Dim()),
		zap.Int("labels_under_quota", len(short)),
	)
	fmt.Fprintf(e.stdout, "%d samples, %d labels, %d values per sample -> %s\n", ds.Len(), len(ds.Labels), ds.Dim(), *out)
	for _, l := range short {
		fmt.Fprintf(e.stdout, "  %s: %d/%d\n", l.Sign, l.Collected, report.Quota)
	}
	return nil
}

func extractDataset(ctx context.Context, ex *extract.Extractor, manifestPath, root, out string) (*dataset.Dataset, *extract.Report, error) {
	rows, err := manifest.ReadFile(manifestPath, root)
	if err != nil {
		return nil, nil, err
	}

	ds, report, err := ex.Run(ctx, rows)
	if err != nil {
		return nil, report, err
	}
	if err := dataset.Save(out, ds); err != nil {
		return nil, report, err
	}
	return ds, report, nil
}

func parseFields(s string) ([]landmark.Field, error) {
	var fields []landmark.Field
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		f, err := landmark.ParseField(part)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func joinFields(fields []landmark.Field) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = string(f)
	}
	return strings.Join(parts, ",")
}
