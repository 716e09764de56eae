package commands

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ccollicutt/trafficlog/pkg/config"
	"github.com/ccollicutt/trafficlog/pkg/ingest"
	"github.com/ccollicutt/trafficlog/pkg/source"
	"github.com/ccollicutt/trafficlog/pkg/store"
	"github.com/ccollicutt/trafficlog/pkg/telemetry"
)

// CheckOptions holds command-line options for the check command.
type CheckOptions struct {
	ConfigFile string
	Quiet      bool
}

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	opts := &CheckOptions{}

	cmd := &cobra.Command{
		Use:   "check <capture-file>...",
		Short: "Classify captured telemetry without storing it",
		Long: `Dry run: classify every line of the capture files and print a
diagnostic for each malformed line. Nothing is written to any sink.

Uses the default controller protocol unless --config is given.

Exit codes:
  0 - No malformed lines
  1 - Malformed lines found
  2 - Configuration or runtime error`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigFile, "config", "c", "", "Configuration file providing protocol overrides")
	cmd.Flags().BoolVarP(&opts.Quiet, "quiet", "q", false, "Summary only, no per-line diagnostics")

	return cmd
}

func runCheck(cmd *cobra.Command, args []string, opts *CheckOptions) error {
	ctx := commandContext(cmd)
	stdout := cmd.OutOrStdout()

	proto := telemetry.DefaultProtocol()
	if opts.ConfigFile != "" {
		cfg, err := config.Load(ctx, opts.ConfigFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		proto = cfg.Protocol.Telemetry()
	}

	files, err := source.ExpandGlobs(args)
	if err != nil {
		return fmt.Errorf("expanding capture files: %w", err)
	}

	src := source.NewFileSource(files)
	defer src.Close()

	ingestOpts := []ingest.Option{
		ingest.WithLogger(slog.New(slog.DiscardHandler)),
	}
	if !opts.Quiet {
		ingestOpts = append(ingestOpts, ingest.WithMalformedHandler(func(m *telemetry.MalformedError) {
			printMalformed(stdout, src, m)
		}))
	}

	ing := ingest.New(src, store.Discard{}, telemetry.NewParser(proto), ingestOpts...)
	stats, err := ing.Run(ctx)
	if err != nil {
		return fmt.Errorf("check failed: %w", err)
	}

	fmt.Fprintf(stdout, "Checked %d line(s) in %d file(s): %d speed, %d count, %d snapshot, %d ignored, %d malformed\n",
		stats.LinesRead, len(files),
		stats.SpeedEvents, stats.CountEvents, stats.Snapshots,
		stats.Ignored, stats.Malformed)
	if stats.PendingDiscarded {
		fmt.Fprintln(stdout, "Warning: capture ends with a count summary announcement and no data line")
	}

	if stats.Malformed > 0 {
		ExitCode = 1
	}
	return nil
}

func printMalformed(w io.Writer, pos source.Positioner, m *telemetry.MalformedError) {
	file, line := pos.Position()
	if m.Field != "" {
		fmt.Fprintf(w, "%s:%d: %s (field %s)\n", file, line, m.Reason, m.Field)
	} else {
		fmt.Fprintf(w, "%s:%d: %s\n", file, line, m.Reason)
	}
	fmt.Fprintf(w, "    %s\n", truncate(m.Line, 120))
}
