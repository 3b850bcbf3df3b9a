// Command serpdump submits Google and Bing searches to the Bright Data
// datasets API, waits for the results and writes them to JSON files.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command line and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "serpdump: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "serpdump",
		Short:         "Collect Google and Bing search results through the Bright Data datasets API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "config file (default: ./serpdump.yaml or ~/.config/serpdump/serpdump.yaml)")
	pf.String("api-key", "", "Bright Data API key")
	pf.String("dataset-id", "", "dataset to trigger")
	pf.String("base-url", "", "datasets API base URL")
	pf.Duration("poll-interval", 0, "time between progress checks")
	pf.Duration("max-wait", 0, "give up on a job after this long")
	pf.Duration("http-timeout", 0, "per-request HTTP timeout")
	pf.String("tls-profile", "", "TLS fingerprint: go, chrome, firefox, safari, random")
	pf.String("proxy-file", "", "file with one egress proxy URL per line")
	pf.String("output-dir", "", "directory for result files")
	pf.String("archive-backend", "", "run archive: json, csv, sqlite, postgres")
	pf.String("archive-dsn", "", "archive file path or Postgres connection string")
	pf.Int("metrics-port", 0, "serve Prometheus metrics on this port (0 disables)")
	pf.String("log-level", "", "debug, info, warn, error")
	pf.String("log-format", "", "console or json")
	pf.Int("concurrency", 0, "batches run at once by the run command")

	root.AddCommand(newSearchCmd(), newRunCmd(), newRunsCmd())
	return root
}
