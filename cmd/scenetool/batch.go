package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/scenery/pkg/assetimport"
	"github.com/Faultbox/scenery/pkg/scene"
)

// batchResult is the outcome of one import. Scenes are not kept.
type batchResult struct {
	File     string
	Stats    scene.Stats
	Duration time.Duration
	Err      error
}

func cmdBatch(args []string, out io.Writer) error {
	e, files, err := setup("batch", args)
	if err != nil {
		return err
	}
	defer e.close()
	if len(files) == 0 {
		return usageError("batch [options] <file>...")
	}

	results, err := runBatch(context.Background(), e, files)
	failed := 0
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
			fmt.Fprintf(out, "FAIL  %-40s %s: %v\n", r.File, assetimport.StageOf(r.Err), r.Err)
		case r.File != "":
			fmt.Fprintf(out, "ok    %-40s %d meshes %d vertices %s\n", r.File, r.Stats.Meshes, r.Stats.Vertices, r.Duration.Round(time.Millisecond))
		}
	}
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	return nil
}

// runBatch imports files with at most cfg.Batch.Workers imports in flight.
// Results keep the order of files; entries never started after a fail-fast
// abort have an empty File. The returned error is set only when fail-fast
// stopped the batch.
func runBatch(ctx context.Context, e *env, files []string) ([]batchResult, error) {
	results := make([]batchResult, len(files))
	steps := e.cfg.StepIDs()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Batch.Workers)
	for i, name := range files {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			start := time.Now()
			sc, err := e.imp.ReadFile(name, steps, e.props)
			r := batchResult{File: name, Duration: time.Since(start), Err: err}
			if err == nil {
				r.Stats = sc.Stats()
				sc.Release()
			} else {
				e.log.Warn("import failed", zap.String("file", name), zap.Error(err))
			}
			results[i] = r
			if err != nil && e.cfg.Batch.FailFast {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		})
	}
	err := g.Wait()

	e.log.Info("batch finished", zap.Int("files", len(files)), zap.Int("workers", e.cfg.Batch.Workers))
	return results, err
}
