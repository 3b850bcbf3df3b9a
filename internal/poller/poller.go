// Package poller waits for a dataset job to reach a terminal status and
// downloads its snapshot.
package poller

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/FranksOps/serpdump/internal/dataset"
	"github.com/FranksOps/serpdump/internal/metrics"
	"github.com/FranksOps/serpdump/pkg/ratelimit"
)

const (
	DefaultInterval = 10 * time.Second
	DefaultMaxWait  = 300 * time.Second
)

// Client is the part of dataset.Client the poll loop needs.
type Client interface {
	Status(ctx context.Context, handle dataset.JobHandle) (*dataset.Progress, error)
	Download(ctx context.Context, handle dataset.JobHandle) (dataset.Snapshot, error)
}

// Waiter blocks for one poll interval. *ratelimit.Limiter satisfies it.
type Waiter interface {
	Wait(ctx context.Context) error
}

// Poller holds the poll settings. The zero value polls every 10s for at
// most 300s. It is safe to share between goroutines as long as Waiter is
// nil or itself safe for concurrent use.
type Poller struct {
	Client   Client
	Interval time.Duration
	MaxWait  time.Duration
	// Jitter is forwarded to the default limiter.
	Jitter float64
	// Waiter overrides the default per-call ratelimit limiter.
	Waiter Waiter
	// Now overrides the clock used for the budget check.
	Now    func() time.Time
	Logger *zap.Logger
}

// Result describes a finished poll.
type Result struct {
	Snapshot dataset.Snapshot
	Status   dataset.Status
	Polls    int
}

// Wait checks the job status once per interval until it completes, fails or
// the budget runs out. On success it downloads the snapshot. The returned
// Result carries the poll count even when err is non-nil.
func (p *Poller) Wait(ctx context.Context, handle dataset.JobHandle) (Result, error) {
	var res Result
	if p.Client == nil {
		return res, errors.New("poller: client is nil")
	}

	interval, maxWait := p.Interval, p.MaxWait
	if interval <= 0 {
		interval = DefaultInterval
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("job_id", string(handle)))

	waiter := p.Waiter
	if waiter == nil {
		lim := ratelimit.NewIntervalLimiter(interval, p.Jitter)
		defer lim.Stop()
		waiter = lim
	}

	budgetCtx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	start := now()
	for {
		res.Polls++
		metrics.PollsTotal.Inc()

		progress, err := p.Client.Status(budgetCtx, handle)
		if err != nil {
			if budgetExpired(ctx, budgetCtx) {
				return res, dataset.Timeout(handle, err)
			}
			return res, err
		}
		res.Status = progress.Status

		switch {
		case progress.Status.Succeeded():
			logger.Info("job finished, downloading snapshot",
				zap.String("status", string(progress.Status)),
				zap.Int("polls", res.Polls))
			snap, err := p.Client.Download(ctx, handle)
			if err != nil {
				return res, err
			}
			res.Snapshot = snap
			return res, nil
		case progress.Status == dataset.StatusFailed:
			logger.Warn("job reported failure", zap.Int("polls", res.Polls))
			return res, dataset.JobFailed(handle)
		}

		logger.Info("waiting for results",
			zap.String("status", string(progress.Status)),
			zap.Duration("elapsed", now().Sub(start)))

		if err := waiter.Wait(budgetCtx); err != nil {
			if budgetExpired(ctx, budgetCtx) {
				return res, dataset.Timeout(handle, err)
			}
			return res, err
		}

		if now().Sub(start) >= maxWait {
			return res, dataset.Timeout(handle, nil)
		}
	}
}

// budgetExpired reports whether budget hit its deadline while parent is
// still live.
func budgetExpired(parent, budget context.Context) bool {
	return parent.Err() == nil && errors.Is(budget.Err(), context.DeadlineExceeded)
}
