package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ccollicutt/trafficlog/pkg/config"
	"github.com/ccollicutt/trafficlog/pkg/output"
	"github.com/ccollicutt/trafficlog/pkg/store"
	"github.com/ccollicutt/trafficlog/pkg/webhook"
)

// ExitCode is set by commands to indicate the result
var ExitCode = 0

// ReportOptions holds the output and webhook flags shared by run and import.
type ReportOptions struct {
	Output  string
	Verbose bool
	Quiet   bool

	// Webhook options
	WebhookURL     string
	WebhookToken   string
	WebhookTrigger string
}

func addReportFlags(cmd *cobra.Command, opts *ReportOptions) {
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "text", "Output format (text|json)")
	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Show run metadata and every malformed sample")
	cmd.Flags().BoolVarP(&opts.Quiet, "quiet", "q", false, "Summary only, no per-record status lines")

	cmd.Flags().StringVar(&opts.WebhookURL, "webhook-url", "", "Webhook endpoint URL")
	cmd.Flags().StringVar(&opts.WebhookToken, "webhook-token", "", "Bearer token for webhook auth")
	cmd.Flags().StringVar(&opts.WebhookTrigger, "webhook-trigger", "on_issues", "When to fire webhook (on_issues|always|never)")
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func createFormatter(opts *ReportOptions) (output.Formatter, error) {
	return output.New(opts.Output, output.FormatOptions{
		Verbose: opts.Verbose,
		Quiet:   opts.Quiet,
	})
}

// openSinks opens every configured sink. The caller closes the result.
func openSinks(ctx context.Context, cfg *config.Config) (store.Sink, error) {
	var sinks []store.Sink

	if cfg.Store.Path != "" {
		db, err := store.OpenSQLite(ctx, cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, db)
	}

	if cfg.Publish.NATSURL != "" {
		nc, err := store.ConnectNATS(cfg.Publish.NATSURL, cfg.Publish.SubjectPrefix)
		if err != nil {
			for _, s := range sinks {
				_ = s.Close()
			}
			return nil, err
		}
		sinks = append(sinks, nc)
	}

	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return store.NewMultiSink(sinks...), nil
}

// finishReport prints the report, fires webhooks and sets ExitCode.
func finishReport(ctx context.Context, cfg *config.Config, opts *ReportOptions, report *output.Report, formatter output.Formatter, stdout, stderr io.Writer) error {
	if err := formatter.Format(ctx, report, stdout); err != nil {
		return fmt.Errorf("formatting output: %w", err)
	}

	// Send webhooks (errors logged but don't fail the run)
	sendWebhooks(ctx, cfg, opts, report, stderr)

	if report.HasIssues() {
		ExitCode = 1
	}
	return nil
}

// sendWebhooks sends the report to all configured webhooks.
// Errors are written to stderr but don't fail the run.
func sendWebhooks(ctx context.Context, cfg *config.Config, opts *ReportOptions, report *output.Report, stderr io.Writer) {
	webhooks := collectWebhooks(cfg, opts)

	if len(webhooks) == 0 {
		return
	}

	client := webhook.NewClient()

	for _, wh := range webhooks {
		if !shouldFireWebhook(wh.Trigger, report.HasIssues()) {
			continue
		}

		resp := client.Send(ctx, report, webhook.SendOptions{
			URL:     wh.URL,
			Token:   wh.Token,
			Timeout: wh.Timeout,
			Retries: wh.Retries,
		})

		name := wh.Name
		if name == "" {
			name = wh.URL
		}

		if resp.Success() {
			fmt.Fprintf(stderr, "Webhook %s: sent (%d, %s)\n", name, resp.StatusCode, resp.Duration)
		} else {
			fmt.Fprintf(stderr, "Webhook %s: failed after %d attempt(s) (%v)\n", name, resp.Attempts, resp.Error)
		}
	}
}

// collectWebhooks merges config file webhooks with CLI webhook.
func collectWebhooks(cfg *config.Config, opts *ReportOptions) []config.WebhookConfig {
	webhooks := make([]config.WebhookConfig, 0, len(cfg.Webhooks)+1)

	webhooks = append(webhooks, cfg.Webhooks...)

	if opts.WebhookURL != "" {
		trigger := config.WebhookTrigger(opts.WebhookTrigger)
		if trigger == "" {
			trigger = config.WebhookTriggerOnIssues
		}

		webhooks = append(webhooks, config.WebhookConfig{
			Name:    "cli",
			URL:     opts.WebhookURL,
			Token:   opts.WebhookToken,
			Trigger: trigger,
			Timeout: config.DefaultWebhookTimeout,
		})
	}

	return webhooks
}

// shouldFireWebhook determines if a webhook should fire based on trigger and issues.
func shouldFireWebhook(trigger config.WebhookTrigger, hasIssues bool) bool {
	switch trigger {
	case config.WebhookTriggerAlways:
		return true
	case config.WebhookTriggerNever:
		return false
	default:
		return hasIssues
	}
}
