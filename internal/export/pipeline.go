// Package export writes the merged view of an archive and its pending edits
// into a new archive.
package export

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"dpack/internal/archive"
	"dpack/internal/errors"
	"dpack/internal/overlay"
	"dpack/internal/pathtree"
	"dpack/internal/progress"
	"dpack/internal/rename"

	"go.uber.org/zap"
)

// Original is the archive being re-exported.
type Original interface {
	PathEntries() []pathtree.Entry
	ReadFile(ctx context.Context, path string) ([]byte, error)
}

type Options struct {
	// YieldEvery is how many gathered items pass between cancellation checks.
	YieldEvery int
	Writer     archive.WriterOptions
}

func DefaultOptions() Options {
	return Options{
		YieldEvery: 20,
		Writer:     archive.DefaultWriterOptions(),
	}
}

type Pipeline struct {
	original Original
	overlay  overlay.Store
	rewriter *rename.Rewriter
	opts     Options
	logger   *zap.Logger
}

func New(original Original, store overlay.Store, rw *rename.Rewriter, opts Options, logger *zap.Logger) *Pipeline {
	if opts.YieldEvery <= 0 {
		opts.YieldEvery = DefaultOptions().YieldEvery
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		original: original,
		overlay:  store,
		rewriter: rw,
		opts:     opts,
		logger:   logger,
	}
}

// Plan computes the entries the export would write.
func (p *Pipeline) Plan() Plan {
	return BuildPlan(p.original.PathEntries(), p.overlay.Paths(), p.rewriter)
}

// Export gathers every planned entry and serializes the result. Progress is
// reported per phase through onProgress, which may be nil. On any failure the
// returned blob is nil and the error is tagged EXPORT_FAILED.
func (p *Pipeline) Export(ctx context.Context, onProgress progress.Func) ([]byte, error) {
	start := time.Now()
	report := progress.Monotonic(onProgress)

	plan := p.Plan()
	builder, err := p.gather(ctx, plan, report)
	if err != nil {
		p.logger.Warn("export aborted while gathering", zap.Error(err))
		return nil, errors.ExportFailed(err)
	}

	data, err := builder.Bytes(ctx, func(done, total int, name string) {
		report(progress.Update{
			Phase:   progress.PhaseCompress,
			Percent: progress.Percent(done, total),
			Label:   "compressing " + name,
		})
	})
	if err != nil {
		p.logger.Warn("export aborted while compressing", zap.Error(err))
		return nil, errors.ExportFailed(err)
	}
	if builder.Len() == 0 {
		report(progress.Update{Phase: progress.PhaseCompress, Percent: 100, Label: "compressed"})
	}

	p.logger.Info("export complete",
		zap.Int("entries", plan.Len()),
		zap.Int("bytes", len(data)),
		zap.Duration("elapsed", time.Since(start)))
	return data, nil
}

func (p *Pipeline) gather(ctx context.Context, plan Plan, report progress.Func) (*archive.Builder, error) {
	builder := archive.NewBuilder(p.opts.Writer)
	total := plan.Len()

	for i, item := range plan.Items {
		if i%p.opts.YieldEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			runtime.Gosched()
		}

		report(progress.Update{
			Phase:   progress.PhaseGather,
			Percent: progress.Percent(i, total),
			Label:   "gathering " + item.Target,
		})

		if item.IsDir {
			builder.AddDir(item.Target)
			continue
		}

		data, err := p.bytesFor(ctx, item.Source)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", item.Source, err)
		}
		builder.AddFile(item.Target, data)
	}

	report(progress.Update{
		Phase:   progress.PhaseGather,
		Percent: 100,
		Label:   fmt.Sprintf("gathered %d entries", total),
	})
	return builder, nil
}

func (p *Pipeline) bytesFor(ctx context.Context, source string) ([]byte, error) {
	if c, ok := p.overlay.Read(source); ok {
		return c.Bytes(), nil
	}
	return p.original.ReadFile(ctx, source)
}
