// Package pipeline runs the trigger, poll and download cycle for batches of
// searches and records each run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/FranksOps/serpdump/internal/dataset"
	"github.com/FranksOps/serpdump/internal/metrics"
	"github.com/FranksOps/serpdump/internal/output"
	"github.com/FranksOps/serpdump/internal/poller"
	"github.com/FranksOps/serpdump/internal/serp"
	"github.com/FranksOps/serpdump/internal/storage"
)

// Triggerer starts a job. *dataset.Client satisfies it.
type Triggerer interface {
	Trigger(ctx context.Context, specs []serp.SearchSpec) (dataset.JobHandle, error)
}

// JobWaiter waits for a job and downloads its snapshot. *poller.Poller
// satisfies it.
type JobWaiter interface {
	Wait(ctx context.Context, handle dataset.JobHandle) (poller.Result, error)
}

// Config wires the pipeline. Writer and Archive are optional.
type Config struct {
	Client  Triggerer
	Poller  JobWaiter
	Writer  *output.Writer
	Archive storage.Backend
	// Concurrency caps how many batches RunBatches runs at once.
	Concurrency int
	Logger      *zap.Logger
}

// Pipeline is safe for concurrent use; runs share only Config.
type Pipeline struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// New validates cfg.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Client == nil {
		return nil, errors.New("pipeline: client is nil")
	}
	if cfg.Poller == nil {
		return nil, errors.New("pipeline: poller is nil")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Pipeline{cfg: cfg, logger: cfg.Logger, now: time.Now}, nil
}

// Batch is one independent orchestration.
type Batch struct {
	Name  string
	Specs []serp.SearchSpec
	// Output is the result file name; empty means a timestamped name.
	Output string
}

// BatchResult reports how a batch ended.
type BatchResult struct {
	Batch      Batch
	JobID      dataset.JobHandle
	Snapshot   dataset.Snapshot
	OutputPath string
	Err        error
}

// Run triggers a job for specs, waits for it and returns the snapshot.
// Every failure is returned; nothing is written to disk.
func (p *Pipeline) Run(ctx context.Context, specs []serp.SearchSpec) (dataset.Snapshot, error) {
	rec := p.start(specs)
	snap, err := p.run(ctx, rec)
	p.finish(ctx, rec, snap, err)
	return snap, err
}

// RunBatch runs one batch and saves its snapshot through the Writer.
func (p *Pipeline) RunBatch(ctx context.Context, b Batch) BatchResult {
	logger := p.logger.With(zap.String("batch", b.Name))
	rec := p.start(b.Specs)

	snap, err := p.run(ctx, rec)
	res := BatchResult{Batch: b, JobID: dataset.JobHandle(rec.JobID), Snapshot: snap, Err: err}
	if err == nil && p.cfg.Writer != nil {
		res.OutputPath = p.cfg.Writer.Save(snap, b.Output)
		rec.OutputPath = res.OutputPath
	}
	if err != nil {
		logger.Error("batch failed", zap.String("job_id", rec.JobID), zap.Error(err))
	}

	p.finish(ctx, rec, snap, err)
	return res
}

// RunBatches runs batches concurrently, at most Concurrency at a time. A
// failing batch does not stop the others; their errors are joined.
func (p *Pipeline) RunBatches(ctx context.Context, batches []Batch) ([]BatchResult, error) {
	results := make([]BatchResult, len(batches))

	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for i, b := range batches {
		g.Go(func() error {
			results[i] = p.RunBatch(ctx, b)
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("batch %s: %w", r.Batch.Name, r.Err))
		}
	}
	return results, errors.Join(errs...)
}

func (p *Pipeline) start(specs []serp.SearchSpec) *storage.RunRecord {
	return &storage.RunRecord{
		ID:        uuid.NewString(),
		Specs:     specs,
		CreatedAt: p.now().UTC(),
	}
}

func (p *Pipeline) run(ctx context.Context, rec *storage.RunRecord) (dataset.Snapshot, error) {
	handle, err := p.cfg.Client.Trigger(ctx, rec.Specs)
	if err != nil {
		return nil, fmt.Errorf("trigger: %w", err)
	}
	rec.JobID = string(handle)

	res, err := p.cfg.Poller.Wait(ctx, handle)
	rec.Polls = res.Polls
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", handle, err)
	}
	return res.Snapshot, nil
}

// finish archives the run and updates metrics. Archive failures are logged
// only; the run result stands.
func (p *Pipeline) finish(ctx context.Context, rec *storage.RunRecord, snap dataset.Snapshot, err error) {
	rec.Duration = p.now().UTC().Sub(rec.CreatedAt)
	rec.Outcome = Outcome(err)
	rec.Payload = snap
	if err != nil {
		rec.Error = err.Error()
	}

	metrics.RecordRun(rec.Outcome, rec.Duration, len(snap))

	fields := []zap.Field{
		zap.String("run_id", rec.ID),
		zap.String("job_id", rec.JobID),
		zap.String("outcome", rec.Outcome),
		zap.Int("polls", rec.Polls),
		zap.Duration("duration", rec.Duration),
	}
	if err != nil {
		p.logger.Warn("run finished", fields...)
	} else {
		p.logger.Info("run finished", fields...)
	}

	if p.cfg.Archive == nil {
		return
	}
	if err := p.cfg.Archive.Save(context.WithoutCancel(ctx), rec); err != nil {
		p.logger.Error("failed to archive run", zap.String("run_id", rec.ID), zap.Error(err))
	}
}

// Outcome classifies a run error for the archive and metrics.
func Outcome(err error) string {
	if err == nil {
		return storage.OutcomeSuccess
	}
	kind := dataset.KindOf(err)
	if kind != dataset.KindTimeout && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return storage.OutcomeCanceled
	}
	if kind != "" {
		return string(kind)
	}
	return storage.OutcomeError
}
