package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/FranksOps/serpdump/internal/report"
	"github.com/FranksOps/serpdump/internal/storage"
)

func newRunsCmd() *cobra.Command {
	var (
		jobID   string
		outcome string
		since   time.Duration
		limit   int
		offset  int
		format  string
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Summarize archived runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.archive == nil {
				return fmt.Errorf("no run archive configured (set archive.backend and archive.dsn)")
			}

			filter := storage.Filter{JobID: jobID, Outcome: outcome, Limit: limit, Offset: offset}
			if since > 0 {
				t := time.Now().Add(-since)
				filter.Since = &t
			}

			records, err := a.archive.Query(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return report.Write(cmd.OutOrStdout(), format, report.GenerateSummary(records))
		},
	}

	f := cmd.Flags()
	f.StringVar(&jobID, "job", "", "only runs of this job ID")
	f.StringVar(&outcome, "status", "", "only runs with this outcome (success, timeout, job_failed, ...)")
	f.DurationVar(&since, "since", 0, "only runs started within this duration")
	f.IntVar(&limit, "limit", 50, "maximum runs to list")
	f.IntVar(&offset, "offset", 0, "skip this many newest runs")
	f.StringVar(&format, "format", "text", "text, json or html")
	return cmd
}
