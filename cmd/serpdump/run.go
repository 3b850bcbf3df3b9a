package main

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/FranksOps/serpdump/internal/output"
	"github.com/FranksOps/serpdump/internal/pipeline"
	"github.com/FranksOps/serpdump/internal/serp"
)

func newRunCmd() *cobra.Command {
	var (
		files []string
		out   string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run batches of searches from files, or the sample searches",
		Long: `Run triggers one job per search file (JSON or YAML) and runs the jobs
concurrently. Without --file the built-in sample searches are run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out != "" && len(files) > 1 {
				return errors.New("--out needs a single batch")
			}
			a, err := setup(cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()

			batches, err := loadBatches(files, a.cfg.Output.Prefix, out, time.Now())
			if err != nil {
				return err
			}
			return a.runBatches(cmd, batches)
		},
	}

	f := cmd.Flags()
	f.StringSliceVarP(&files, "file", "f", nil, "search file, repeatable")
	f.StringVarP(&out, "out", "o", "", "result file for a single batch")
	return cmd
}

// loadBatches turns search files into batches. Result names are
// <prefix>[_<file>]_<timestamp>.json unless out is set.
func loadBatches(files []string, prefix, out string, now time.Time) ([]pipeline.Batch, error) {
	if len(files) == 0 {
		name := out
		if name == "" {
			name = output.TimestampedName(prefix, now)
		}
		return []pipeline.Batch{{Name: "samples", Specs: serp.SampleSearches(), Output: name}}, nil
	}

	batches := make([]pipeline.Batch, 0, len(files))
	for _, path := range files {
		specs, err := serp.LoadFile(path)
		if err != nil {
			return nil, err
		}
		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		name := out
		if name == "" {
			name = output.TimestampedName(prefix+"_"+base, now)
		}
		batches = append(batches, pipeline.Batch{Name: base, Specs: specs, Output: name})
	}
	return batches, nil
}
