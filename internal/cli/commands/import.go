package commands

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ccollicutt/trafficlog/internal/logging"
	"github.com/ccollicutt/trafficlog/pkg/config"
	"github.com/ccollicutt/trafficlog/pkg/output"
	"github.com/ccollicutt/trafficlog/pkg/source"
)

// ImportOptions holds command-line options for the import command.
type ImportOptions struct {
	ReportOptions
}

// NewImportCommand creates the import command.
func NewImportCommand() *cobra.Command {
	opts := &ImportOptions{}

	cmd := &cobra.Command{
		Use:   "import <config-file> <capture-file>...",
		Short: "Replay captured telemetry into the configured sinks",
		Long: `Replay controller output captured to files (for example with
'cat /dev/ttyUSB0 > capture.log') through the same pipeline as 'run'.

Capture files are read in the order given; glob patterns are expanded.

Exit codes:
  0 - All lines processed cleanly
  1 - Malformed lines or sink failures were seen
  2 - Configuration or runtime error`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, args, opts)
		},
	}

	addReportFlags(cmd, &opts.ReportOptions)

	return cmd
}

func runImport(cmd *cobra.Command, args []string, opts *ImportOptions) error {
	configPath := args[0]
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	cfg, err := config.Load(commandContext(cmd), configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	files, err := source.ExpandGlobs(args[1:])
	if err != nil {
		return fmt.Errorf("expanding capture files: %w", err)
	}

	formatter, err := createFormatter(&opts.ReportOptions)
	if err != nil {
		return err
	}

	logger, err := logging.Setup(stderr, cfg.Logging)
	if err != nil {
		return fmt.Errorf("configuring logging: %w", err)
	}

	runID := uuid.NewString()
	ctx := logging.WithRunID(commandContext(cmd), runID)

	src := source.NewFileSource(files)
	defer src.Close()

	sink, err := openSinks(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening sinks: %w", err)
	}

	// Per-record lines only in verbose mode; a capture can hold days of traffic.
	recordOpts := opts.ReportOptions
	recordOpts.Quiet = opts.Quiet || !opts.Verbose

	ing := newIngestor(src, sink, cfg, logger, nil, formatter, &recordOpts, stdout)
	stats, runErr := ing.Run(ctx)

	if err := sink.Close(); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("closing sinks: %w", err))
	}

	report := output.NewReport(stats, runID, configPath, files)
	if err := finishReport(ctx, cfg, &opts.ReportOptions, report, formatter, stdout, stderr); err != nil {
		return err
	}

	if runErr != nil {
		return fmt.Errorf("import failed: %w", runErr)
	}
	return nil
}
