package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ccollicutt/trafficlog/internal/logging"
	"github.com/ccollicutt/trafficlog/pkg/config"
	"github.com/ccollicutt/trafficlog/pkg/ingest"
	"github.com/ccollicutt/trafficlog/pkg/metrics"
	"github.com/ccollicutt/trafficlog/pkg/output"
	"github.com/ccollicutt/trafficlog/pkg/source"
	"github.com/ccollicutt/trafficlog/pkg/store"
	"github.com/ccollicutt/trafficlog/pkg/telemetry"
)

// RunOptions holds command-line options for the run command.
type RunOptions struct {
	ReportOptions

	Port      string
	BaudRate  int
	Address   string
	Transport string
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run <config-file>",
		Short: "Log live telemetry from the roadside controller",
		Long: `Read the controller's telemetry stream and store every speed event,
count event and count summary snapshot in the configured sinks.

Runs until the stream ends or the process receives SIGINT/SIGTERM.

Exit codes:
  0 - All lines processed cleanly
  1 - Malformed lines or sink failures were seen
  2 - Configuration or runtime error`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Transport, "transport", "", "Override transport type (serial|tcp|stdin)")
	cmd.Flags().StringVarP(&opts.Port, "port", "p", "", "Override serial port")
	cmd.Flags().IntVarP(&opts.BaudRate, "baud", "b", 0, "Override baud rate")
	cmd.Flags().StringVar(&opts.Address, "address", "", "Override tcp bridge address (host:port)")
	addReportFlags(cmd, &opts.ReportOptions)

	return cmd
}

func runRun(cmd *cobra.Command, args []string, opts *RunOptions) error {
	configPath := args[0]
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

	cfg, err := config.Load(commandContext(cmd), configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := applyTransportFlags(cfg, opts); err != nil {
		return err
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
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := openTransport(ctx, cfg.Transport)
	if err != nil {
		return err
	}
	closeSource := sync.OnceValue(src.Close)
	defer closeSource()

	// A blocked read only returns once the transport is closed.
	stopClose := context.AfterFunc(ctx, func() { _ = closeSource() })
	defer stopClose()

	if cfg.Transport.Type == config.TransportSerial {
		fmt.Fprintf(stderr, "Connected to %s at %d baud\n", cfg.Transport.Port, cfg.Transport.BaudRate)
	} else {
		fmt.Fprintf(stderr, "Connected to %s\n", cfg.Transport.Describe())
	}

	sink, err := openSinks(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening sinks: %w", err)
	}

	m := metrics.New()
	ing := newIngestor(src, sink, cfg, logger, m, formatter, &opts.ReportOptions, stdout)

	fmt.Fprintln(stderr, "Logging started... Press Ctrl+C to stop.")
	logger.InfoContext(ctx, "ingestion started",
		"transport", cfg.Transport.Type,
		"source", cfg.Transport.Describe(),
		"store", cfg.Store.Path,
		"nats", cfg.Publish.NATSURL)

	stats, runErr := runWithMetrics(ctx, ing, m, cfg.Metrics.Listen)

	if errors.Is(runErr, context.Canceled) && ctx.Err() != nil {
		fmt.Fprintln(stderr, "Logging stopped by user.")
		runErr = nil
	}

	closeErr := errors.Join(closeSource(), sink.Close())
	if closeErr != nil {
		logger.WarnContext(ctx, "closing connections", "error", closeErr)
	} else {
		fmt.Fprintln(stderr, "Serial and DB connections closed.")
	}

	report := output.NewReport(stats, runID, configPath, []string{cfg.Transport.Describe()})
	if err := finishReport(ctx, cfg, &opts.ReportOptions, report, formatter, stdout, stderr); err != nil {
		return err
	}

	if runErr != nil {
		return fmt.Errorf("ingestion failed: %w", runErr)
	}
	return nil
}

// runWithMetrics runs the ingestor and, when listen is set, the metrics
// endpoint beside it. The endpoint stops when ingestion ends.
func runWithMetrics(ctx context.Context, ing *ingest.Ingestor, m *metrics.Metrics, listen string) (*ingest.Stats, error) {
	if listen == "" {
		return ing.Run(ctx)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		return m.Serve(gctx, listen)
	})

	var stats *ingest.Stats
	var runErr error
	g.Go(func() error {
		defer cancel()
		stats, runErr = ing.Run(gctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		// The metrics server failed and took ingestion down with it.
		return stats, err
	}
	return stats, runErr
}

func newIngestor(src source.Source, sink store.Sink, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics, formatter output.Formatter, opts *ReportOptions, stdout io.Writer) *ingest.Ingestor {
	ingestOpts := []ingest.Option{
		ingest.WithSinkPolicy(cfg.SinkPolicy.Ingest()),
		ingest.WithLogger(logger),
		ingest.WithMetrics(m),
	}

	if !opts.Quiet {
		ingestOpts = append(ingestOpts, ingest.WithRecordHandler(func(rec telemetry.Record) {
			if err := formatter.FormatRecord(rec, stdout); err != nil {
				logger.Warn("writing status line", "error", err)
			}
		}))
	}

	return ingest.New(src, sink, telemetry.NewParser(cfg.Protocol.Telemetry()), ingestOpts...)
}

func applyTransportFlags(cfg *config.Config, opts *RunOptions) error {
	if opts.Transport != "" {
		cfg.Transport.Type = config.TransportType(opts.Transport)
	}
	if opts.Port != "" {
		cfg.Transport.Port = opts.Port
	}
	if opts.BaudRate != 0 {
		cfg.Transport.BaudRate = opts.BaudRate
	}
	if opts.Address != "" {
		cfg.Transport.Address = opts.Address
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid transport flags: %w", err)
	}
	return nil
}

func openTransport(ctx context.Context, t config.TransportConfig) (*source.StreamSource, error) {
	switch t.Type {
	case config.TransportTCP:
		return source.DialTCP(ctx, t.Address, t.ReadTimeout)
	case config.TransportStdin:
		return source.Stdin(), nil
	default:
		return source.OpenSerial(t.Port, t.BaudRate, t.ReadTimeout)
	}
}
