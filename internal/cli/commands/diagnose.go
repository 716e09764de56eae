package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.bug.st/serial"

	"github.com/ccollicutt/trafficlog/pkg/config"
	"github.com/ccollicutt/trafficlog/pkg/ingest"
	"github.com/ccollicutt/trafficlog/pkg/source"
	"github.com/ccollicutt/trafficlog/pkg/store"
	"github.com/ccollicutt/trafficlog/pkg/telemetry"
)

const (
	probeTimeout = 2 * time.Second
	sampleLines  = 200
)

// DiagnoseOptions holds options for the diagnose command
type DiagnoseOptions struct {
	Verbose bool

	// Capture is an optional capture file classified with the configured protocol.
	Capture string
}

// DiagnosticResult represents the result of a single diagnostic check
type DiagnosticResult struct {
	Check    string
	Status   string // "ok", "warning", "error"
	Message  string
	Details  []string
	Suggests []string
}

// NewDiagnoseCommand creates the diagnose command
func NewDiagnoseCommand() *cobra.Command {
	opts := &DiagnoseOptions{}

	cmd := &cobra.Command{
		Use:   "diagnose <config-file>",
		Short: "Diagnose common configuration issues",
		Long: `Diagnose common configuration issues.

This command checks your configuration file for common problems:
- Config file syntax and structure
- Serial port presence or tcp bridge reachability
- Store location and NATS connectivity
- Metrics listen address availability
- Protocol settings against a captured sample (--capture)
- Webhook definitions

Example:
  trafficlog diagnose config.yaml
  trafficlog diagnose -v --capture capture.log config.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiagnose(commandContext(cmd), cmd.OutOrStdout(), args[0], opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Show detailed diagnostic output")
	cmd.Flags().StringVar(&opts.Capture, "capture", "", "Capture file to classify with the configured protocol")

	return cmd
}

func runDiagnose(ctx context.Context, w io.Writer, configPath string, opts *DiagnoseOptions) error {
	results := []DiagnosticResult{}

	// 1. Check config file existence
	result := checkConfigExists(configPath)
	results = append(results, result)
	if result.Status == "error" {
		printDiagnostics(w, results, opts)
		return nil
	}

	// 2. Parse config file
	cfg, result := checkConfigParseable(ctx, configPath)
	results = append(results, result)
	if result.Status == "error" {
		printDiagnostics(w, results, opts)
		return nil
	}

	// 3. Transport
	results = append(results, checkTransport(ctx, cfg, opts))

	// 4. Sinks
	results = append(results, checkStore(cfg))
	if r, ok := checkNATS(cfg, opts); ok {
		results = append(results, r)
	}

	// 5. Metrics endpoint
	if cfg.Metrics.Listen != "" {
		results = append(results, checkMetricsListen(cfg.Metrics.Listen))
	}

	// 6. Protocol against a captured sample
	if opts.Capture != "" {
		results = append(results, checkCapture(ctx, cfg, opts.Capture))
	}

	// 7. Webhooks
	results = append(results, checkWebhooks(cfg, opts)...)

	printDiagnostics(w, results, opts)
	return nil
}

func checkConfigExists(path string) DiagnosticResult {
	result := DiagnosticResult{
		Check: "Config File",
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		result.Status = "error"
		result.Message = fmt.Sprintf("Config file not found: %s", path)
		result.Suggests = []string{
			"Check the file path is correct",
			"See examples/config.yaml for a starter config",
		}
		return result
	}
	if err != nil {
		result.Status = "error"
		result.Message = fmt.Sprintf("Cannot access config file: %v", err)
		result.Suggests = []string{"Check file permissions"}
		return result
	}
	if info.IsDir() {
		result.Status = "error"
		result.Message = "Path is a directory, not a file"
		return result
	}
	if info.Size() == 0 {
		result.Status = "error"
		result.Message = "Config file is empty"
		result.Suggests = []string{
			"See examples/config.yaml for a starter config",
		}
		return result
	}

	result.Status = "ok"
	result.Message = fmt.Sprintf("Found: %s (%d bytes)", path, info.Size())
	return result
}

func checkConfigParseable(ctx context.Context, path string) (*config.Config, DiagnosticResult) {
	result := DiagnosticResult{
		Check: "Config Syntax",
	}

	cfg, err := config.Load(ctx, path)
	if err != nil {
		result.Status = "error"
		result.Message = fmt.Sprintf("Failed to parse config: %v", err)
		if strings.Contains(err.Error(), "yaml") {
			result.Suggests = []string{
				"Check YAML syntax - ensure proper indentation (use spaces, not tabs)",
			}
		}
		return nil, result
	}

	result.Status = "ok"
	result.Message = "Config file parsed successfully"
	result.Details = []string{
		fmt.Sprintf("Transport: %s (%s)", cfg.Transport.Type, cfg.Transport.Describe()),
		fmt.Sprintf("Store: %s", valueOr(cfg.Store.Path, "disabled")),
		fmt.Sprintf("NATS: %s", valueOr(cfg.Publish.NATSURL, "disabled")),
	}
	return cfg, result
}

func checkTransport(ctx context.Context, cfg *config.Config, opts *DiagnoseOptions) DiagnosticResult {
	t := cfg.Transport
	result := DiagnosticResult{
		Check: fmt.Sprintf("Transport: %s", t.Describe()),
	}

	switch t.Type {
	case config.TransportStdin:
		result.Status = "ok"
		result.Message = "Reads telemetry from standard input"

	case config.TransportTCP:
		d := net.Dialer{Timeout: probeTimeout}
		conn, err := d.DialContext(ctx, "tcp", t.Address)
		if err != nil {
			result.Status = "warning"
			result.Message = fmt.Sprintf("Cannot connect: %v", err)
			result.Suggests = []string{
				"Check the bridge is powered and listening",
				"Verify network connectivity to " + t.Address,
			}
			return result
		}
		_ = conn.Close()
		result.Status = "ok"
		result.Message = "Bridge is reachable"

	default:
		ports, listErr := serial.GetPortsList()

		if _, err := os.Stat(t.Port); err != nil && !containsString(ports, t.Port) {
			result.Status = "error"
			result.Message = fmt.Sprintf("Serial port %s not found", t.Port)
			result.Suggests = []string{
				"Check the controller is plugged in",
				"Override the port with --port or " + config.EnvSerialPort,
			}
			if len(ports) > 0 {
				result.Details = append([]string{"Available ports:"}, ports...)
			}
			return result
		}

		result.Status = "ok"
		result.Message = fmt.Sprintf("Serial port present, %d baud", t.BaudRate)
		if opts.Verbose {
			if listErr != nil {
				result.Details = []string{fmt.Sprintf("Cannot list ports: %v", listErr)}
			} else if len(ports) > 0 {
				result.Details = append([]string{"Available ports:"}, ports...)
			}
		}
	}

	return result
}

func checkStore(cfg *config.Config) DiagnosticResult {
	result := DiagnosticResult{
		Check: "Store",
	}

	path := cfg.Store.Path
	if path == "" {
		result.Status = "ok"
		result.Message = "SQLite store disabled"
		return result
	}
	result.Check = fmt.Sprintf("Store: %s", path)

	info, err := os.Stat(path)
	switch {
	case err == nil && info.IsDir():
		result.Status = "error"
		result.Message = "Path is a directory, not a file"
		return result
	case err == nil:
		result.Status = "ok"
		result.Message = fmt.Sprintf("Existing database (%d bytes)", info.Size())
		return result
	case !os.IsNotExist(err):
		result.Status = "error"
		result.Message = fmt.Sprintf("Cannot access store: %v", err)
		result.Suggests = []string{"Check file permissions"}
		return result
	}

	dir := filepath.Dir(path)
	dirInfo, err := os.Stat(dir)
	if err != nil || !dirInfo.IsDir() {
		result.Status = "error"
		result.Message = fmt.Sprintf("Directory %s does not exist", dir)
		result.Suggests = []string{"Create the directory or change store.path"}
		return result
	}

	result.Status = "ok"
	result.Message = "Database will be created on first run"
	return result
}

func checkNATS(cfg *config.Config, opts *DiagnoseOptions) (DiagnosticResult, bool) {
	if cfg.Publish.NATSURL == "" {
		if !opts.Verbose {
			return DiagnosticResult{}, false
		}
		return DiagnosticResult{
			Check:   "NATS",
			Status:  "ok",
			Message: "Publishing disabled (optional)",
		}, true
	}

	result := DiagnosticResult{
		Check: fmt.Sprintf("NATS: %s", cfg.Publish.NATSURL),
	}

	sink, err := store.ConnectNATS(cfg.Publish.NATSURL, cfg.Publish.SubjectPrefix,
		nats.Timeout(probeTimeout), nats.NoReconnect())
	if err != nil {
		result.Status = "warning"
		result.Message = fmt.Sprintf("Cannot connect: %v", err)
		result.Suggests = []string{
			"Check the NATS server is running",
			"Records will not be stored while the server is unreachable",
		}
		return result, true
	}
	_ = sink.Close()

	result.Status = "ok"
	result.Message = "Connected"
	if opts.Verbose {
		result.Details = []string{
			fmt.Sprintf("Speed subject: %s", sink.Subject(telemetry.KindSpeed)),
			fmt.Sprintf("Count subject: %s", sink.Subject(telemetry.KindCount)),
			fmt.Sprintf("Snapshot subject: %s", sink.Subject(telemetry.KindSnapshot)),
		}
	}
	return result, true
}

func checkMetricsListen(addr string) DiagnosticResult {
	result := DiagnosticResult{
		Check: fmt.Sprintf("Metrics: %s", addr),
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		result.Status = "warning"
		result.Message = fmt.Sprintf("Cannot listen: %v", err)
		result.Suggests = []string{"Another process may already use this port"}
		return result
	}
	_ = ln.Close()

	result.Status = "ok"
	result.Message = "Address is available"
	return result
}

func checkCapture(ctx context.Context, cfg *config.Config, path string) DiagnosticResult {
	result := DiagnosticResult{
		Check: fmt.Sprintf("Protocol Test: %s", filepath.Base(path)),
	}

	src := source.NewFileSource([]string{path})
	defer src.Close()

	var firstBad *telemetry.MalformedError
	ing := ingest.New(&limitSource{Source: src, remaining: sampleLines}, store.Discard{},
		telemetry.NewParser(cfg.Protocol.Telemetry()),
		ingest.WithLogger(slog.New(slog.DiscardHandler)),
		ingest.WithMalformedHandler(func(m *telemetry.MalformedError) {
			if firstBad == nil {
				firstBad = m
			}
		}))

	stats, err := ing.Run(ctx)
	if err != nil {
		result.Status = "warning"
		result.Message = fmt.Sprintf("Cannot read capture: %v", err)
		return result
	}

	records := stats.Records()
	switch {
	case stats.LinesRead == 0:
		result.Status = "warning"
		result.Message = "Capture is empty"
	case records == 0 && stats.Malformed == 0:
		result.Status = "error"
		result.Message = fmt.Sprintf("No records in %d sample lines", stats.LinesRead)
		result.Suggests = []string{
			"Check protocol.record_marker and protocol.announcement match the controller output",
		}
	case stats.Malformed > records:
		result.Status = "error"
		result.Message = fmt.Sprintf("%d malformed vs %d records in %d sample lines", stats.Malformed, records, stats.LinesRead)
		result.Suggests = []string{
			"Check protocol.roads matches the number of roads the controller reports",
		}
	case stats.Malformed > 0:
		result.Status = "warning"
		result.Message = fmt.Sprintf("%d records, %d malformed in %d sample lines", records, stats.Malformed, stats.LinesRead)
	default:
		result.Status = "ok"
		result.Message = fmt.Sprintf("%d records in %d sample lines", records, stats.LinesRead)
	}

	if firstBad != nil {
		result.Details = []string{
			fmt.Sprintf("First malformed line (%s):", firstBad.Reason),
			truncate(firstBad.Line, 80),
		}
	}
	return result
}

// limitSource ends the stream after a fixed number of lines.
type limitSource struct {
	source.Source
	remaining int
}

func (s *limitSource) Next(ctx context.Context) (string, error) {
	if s.remaining <= 0 {
		return "", io.EOF
	}
	s.remaining--
	return s.Source.Next(ctx)
}

func printDiagnostics(w io.Writer, results []DiagnosticResult, opts *DiagnoseOptions) {
	fmt.Fprintln(w, "=== TrafficLog Configuration Diagnostics ===")
	fmt.Fprintln(w)

	okCount := 0
	warnCount := 0
	errCount := 0

	for _, r := range results {
		var icon string
		switch r.Status {
		case "ok":
			icon = "PASS"
			okCount++
		case "warning":
			icon = "WARN"
			warnCount++
		case "error":
			icon = "FAIL"
			errCount++
		}

		fmt.Fprintf(w, "[%s] %s\n", icon, r.Check)
		fmt.Fprintf(w, "    %s\n", r.Message)

		if opts.Verbose || r.Status != "ok" {
			for _, d := range r.Details {
				fmt.Fprintf(w, "      - %s\n", d)
			}
		}

		for _, s := range r.Suggests {
			fmt.Fprintf(w, "      Hint: %s\n", s)
		}

		fmt.Fprintln(w)
	}

	// Summary
	fmt.Fprintln(w, "---")
	fmt.Fprintf(w, "Summary: %d passed, %d warnings, %d errors\n", okCount, warnCount, errCount)

	if errCount > 0 {
		fmt.Fprintln(w, "\nFix the errors above before logging.")
	} else if warnCount > 0 {
		fmt.Fprintln(w, "\nConfiguration is usable but has warnings.")
	} else {
		fmt.Fprintln(w, "\nConfiguration looks good!")
	}
}

func checkWebhooks(cfg *config.Config, opts *DiagnoseOptions) []DiagnosticResult {
	results := []DiagnosticResult{}

	if len(cfg.Webhooks) == 0 {
		// Webhooks are optional, just note they're not configured
		if opts.Verbose {
			results = append(results, DiagnosticResult{
				Check:   "Webhooks",
				Status:  "ok",
				Message: "No webhooks configured (optional)",
			})
		}
		return results
	}

	for _, wh := range cfg.Webhooks {
		name := wh.Name
		if name == "" {
			name = wh.URL
		}

		result := DiagnosticResult{
			Check: fmt.Sprintf("Webhook: %s", name),
		}

		issues := []string{}
		warnings := []string{}

		if wh.URL == "" {
			issues = append(issues, "Missing url")
		} else {
			u, err := url.Parse(wh.URL)
			if err != nil {
				issues = append(issues, fmt.Sprintf("Invalid URL: %v", err))
			} else if u.Scheme != "http" && u.Scheme != "https" {
				issues = append(issues, fmt.Sprintf("URL scheme must be http or https, got %q", u.Scheme))
			} else if u.Host == "" {
				issues = append(issues, "URL must have a host")
			}
		}

		if wh.Trigger != "" {
			switch wh.Trigger {
			case config.WebhookTriggerOnIssues, config.WebhookTriggerAlways, config.WebhookTriggerNever:
			default:
				issues = append(issues, fmt.Sprintf("Invalid trigger %q (use on_issues, always, or never)", wh.Trigger))
			}
		}

		// An expanded token that is empty usually means the env var is unset.
		if wh.Token == "" {
			warnings = append(warnings, "Token is empty (unset env var?)")
		}

		if len(issues) > 0 {
			result.Status = "error"
			result.Message = fmt.Sprintf("%d configuration issue(s)", len(issues))
			result.Details = issues
		} else if len(warnings) > 0 && opts.Verbose {
			result.Status = "warning"
			result.Message = fmt.Sprintf("%d warning(s)", len(warnings))
			result.Details = warnings
		} else {
			result.Status = "ok"
			result.Message = fmt.Sprintf("Trigger: %s", wh.Trigger)
			if opts.Verbose {
				result.Details = []string{
					fmt.Sprintf("URL: %s", wh.URL),
					fmt.Sprintf("Timeout: %s", wh.Timeout),
					fmt.Sprintf("Retries: %d", wh.Retries),
				}
				if wh.Token != "" {
					result.Details = append(result.Details, "Token: configured")
				}
			}
		}

		results = append(results, result)
	}

	// Optionally test webhook connectivity
	if opts.Verbose {
		for _, wh := range cfg.Webhooks {
			if wh.URL == "" {
				continue
			}

			name := wh.Name
			if name == "" {
				name = wh.URL
			}

			result := checkWebhookConnectivity(wh)
			result.Check = fmt.Sprintf("Webhook Connectivity: %s", name)
			results = append(results, result)
		}
	}

	return results
}

func checkWebhookConnectivity(wh config.WebhookConfig) DiagnosticResult {
	result := DiagnosticResult{}

	// Just do a HEAD request to check if the endpoint is reachable
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(http.MethodHead, wh.URL, nil)
	if err != nil {
		result.Status = "warning"
		result.Message = fmt.Sprintf("Cannot create request: %v", err)
		return result
	}

	if wh.Token != "" {
		req.Header.Set("Authorization", "Bearer "+wh.Token)
	}

	resp, err := client.Do(req)
	if err != nil {
		result.Status = "warning"
		result.Message = fmt.Sprintf("Cannot connect: %v", err)
		result.Suggests = []string{
			"Check if the webhook URL is correct",
			"Verify network connectivity",
		}
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		result.Status = "ok"
		result.Message = fmt.Sprintf("Reachable (status %d)", resp.StatusCode)
	} else {
		result.Status = "warning"
		result.Message = fmt.Sprintf("Reachable but returned status %d", resp.StatusCode)
		result.Suggests = []string{
			"The endpoint may require POST method (will work during actual webhook send)",
			"Check authentication if using a token",
		}
	}

	return result
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
