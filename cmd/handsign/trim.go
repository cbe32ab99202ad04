package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ayusman/handsign/internal/store"
	"github.com/ayusman/handsign/internal/trim"
)

type trimOptions struct {
	PerClass int    `json:"per_class"`
	Seed     uint64 `json:"seed"`
}

func runTrim(ctx context.Context, e *env, args []string) error {
	opts := trimOptions{PerClass: e.cfg.Trim.PerClass, Seed: e.cfg.Trim.Seed}

	fs := e.newFlagSet("trim", "-src DIR -dst DIR")
	src := fs.String("src", "", "image dataset with one sub-directory per class")
	dst := fs.String("dst", "", "destination directory")
	fs.IntVar(&opts.PerClass, "n", opts.PerClass, "images to copy per class")
	fs.Uint64Var(&opts.Seed, "seed", opts.Seed, "sampling seed")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *src == "" || *dst == "" {
		return usageErrorf("-src and -dst are required")
	}

	results, err := trim.Trim(ctx, *src, *dst, opts.PerClass, opts.Seed)

	run := &store.Run{Kind: store.RunKindTrim, Source: *src, Output: *dst, Labels: len(results)}
	labels := make([]store.RunLabel, len(results))
	for i, r := range results {
		labels[i] = store.RunLabel{Index: i, Sign: r.Class, Available: r.Available, Collected: r.Copied}
		run.Samples += r.Copied
	}
	e.recordRun(run, labels, opts, err)
	if err != nil {
		return err
	}

	for _, r := range results {
		if r.Copied < opts.PerClass {
			e.log.Warn("class under quota", zap.String("class", r.Class), zap.Int("found", r.Copied), zap.Int("want", opts.PerClass))
		}
		fmt.Fprintf(e.stdout, "%s: copied %d of %d\n", r.Class, r.Copied, r.Available)
	}
	e.log.Info("trim complete", zap.Int("classes", len(results)), zap.Int("copied", run.Samples))
	return nil
}
