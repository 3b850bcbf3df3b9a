package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/FranksOps/serpdump/internal/config"
	"github.com/FranksOps/serpdump/internal/dataset"
	"github.com/FranksOps/serpdump/internal/fingerprint"
	"github.com/FranksOps/serpdump/internal/logger"
	"github.com/FranksOps/serpdump/internal/metrics"
	"github.com/FranksOps/serpdump/internal/output"
	"github.com/FranksOps/serpdump/internal/pipeline"
	"github.com/FranksOps/serpdump/internal/poller"
	"github.com/FranksOps/serpdump/internal/storage"
	"github.com/FranksOps/serpdump/internal/storage/open"
	"github.com/FranksOps/serpdump/pkg/proxy"
)

// app holds what a command needs. Close releases it.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	archive  storage.Backend
	metrics  *metrics.Server
	writer   *output.Writer
	pipeline *pipeline.Pipeline
}

// setup loads configuration and wires components. With withAPI false only
// logging and the archive are prepared.
func setup(cmd *cobra.Command, withAPI bool) (*app, error) {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if withAPI {
		err = cfg.Validate()
	} else {
		err = cfg.ValidateArchive()
	}
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: log}

	a.archive, err = open.Open(cmd.Context(), cfg.Archive.Backend, cfg.Archive.DSN)
	if err != nil {
		a.Close()
		return nil, err
	}
	if !withAPI {
		return a, nil
	}

	if err := a.wirePipeline(); err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Metrics.Port > 0 {
		a.metrics = metrics.Start(cfg.Metrics.Port, func(err error) {
			log.Error("metrics server failed", zap.Error(err))
		})
		log.Info("serving metrics", zap.Int("port", cfg.Metrics.Port))
	}
	return a, nil
}

func (a *app) wirePipeline() error {
	cfg := a.cfg

	var pool *proxy.Pool
	if cfg.HTTP.ProxyFile != "" {
		pool = proxy.NewPool(proxy.Config{})
		if err := pool.LoadFile(cfg.HTTP.ProxyFile); err != nil {
			return err
		}
		a.logger.Info("loaded egress proxies", zap.Int("count", pool.Len()))
	}

	profile, err := fingerprint.ParseProfile(cfg.HTTP.TLSProfile)
	if err != nil {
		return err
	}
	opts := fingerprint.Options{Profile: profile}
	if pool != nil {
		opts.Proxy = dataset.ProxyFromContext
	}
	transport, err := fingerprint.Transport(opts)
	if err != nil {
		return err
	}

	client, err := dataset.New(dataset.Config{
		BaseURL:      cfg.BaseURL,
		APIKey:       cfg.APIKey,
		DatasetID:    cfg.DatasetID,
		Timeout:      cfg.HTTP.Timeout,
		MaxRedirects: cfg.HTTP.MaxRedirects,
		Transport:    transport,
		ProxyPool:    pool,
		Logger:       a.logger,
	})
	if err != nil {
		return err
	}

	a.writer = &output.Writer{Dir: cfg.Output.Dir, Logger: a.logger}
	a.pipeline, err = pipeline.New(pipeline.Config{
		Client: client,
		Poller: &poller.Poller{
			Client:   client,
			Interval: cfg.Poll.Interval,
			MaxWait:  cfg.Poll.MaxWait,
			Jitter:   cfg.Poll.Jitter,
			Logger:   a.logger,
		},
		Writer:      a.writer,
		Archive:     a.archive,
		Concurrency: cfg.Concurrency,
		Logger:      a.logger,
	})
	return err
}

func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.metrics.Stop(ctx); err != nil {
		a.logger.Warn("metrics server shutdown", zap.Error(err))
	}
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			a.logger.Warn("closing archive", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

// runBatches runs batches, reports where results went and returns a joined
// error if any batch failed.
func (a *app) runBatches(cmd *cobra.Command, batches []pipeline.Batch) error {
	a.logger.Info("starting Google/Bing search run", zap.Int("batches", len(batches)))

	results, err := a.pipeline.RunBatches(cmd.Context(), batches)
	for _, r := range results {
		if r.Err == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", r.Batch.Name, r.JobID, r.OutputPath)
		}
	}
	if err != nil {
		return err
	}
	a.logger.Info("search completed successfully")
	return nil
}
