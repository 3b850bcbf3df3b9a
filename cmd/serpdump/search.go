package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/FranksOps/serpdump/internal/pipeline"
	"github.com/FranksOps/serpdump/internal/serp"
)

func newSearchCmd() *cobra.Command {
	var (
		query     string
		engine    string
		site      string
		timeoutMs int
		out       string
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Run a single search and save the results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if query == "" {
				return errors.New("--query is required")
			}
			a, err := setup(cmd, true)
			if err != nil {
				return err
			}
			defer a.Close()

			spec := serp.NewSearch(query, engine, site, timeoutMs)
			return a.runBatches(cmd, []pipeline.Batch{{Name: "search", Specs: []serp.SearchSpec{spec}, Output: out}})
		},
	}

	f := cmd.Flags()
	f.StringVarP(&query, "query", "q", "", "search term")
	f.StringVarP(&engine, "engine", "e", string(serp.Google), "Google or Bing")
	f.StringVar(&site, "site", "", "restrict results to this site")
	f.IntVar(&timeoutMs, "timeout-ms", serp.DefaultTimeoutMs, "collection timeline in milliseconds")
	f.StringVarP(&out, "out", "o", "", "result file (default: search_results_<timestamp>.json)")
	return cmd
}
