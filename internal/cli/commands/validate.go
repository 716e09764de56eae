package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ccollicutt/trafficlog/pkg/config"
	"github.com/ccollicutt/trafficlog/pkg/telemetry"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a configuration file",
		Long: `Validate a TrafficLog configuration file without connecting to anything.

Checks:
  - YAML syntax
  - Transport settings (serial port, baud rate, tcp address)
  - Protocol overrides and road ordering
  - Sink, sink policy, metrics and logging settings
  - Webhook definitions`,
		Args: cobra.ExactArgs(1),
		RunE: runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	configPath := args[0]
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Validating %s...\n", configPath)

	cfg, err := config.Load(commandContext(cmd), configPath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	proto := telemetry.NewParser(cfg.Protocol.Telemetry()).Protocol()

	fmt.Fprintf(w, "\nConfiguration valid!\n")
	fmt.Fprintf(w, "  Transport:   %s (%s)\n", cfg.Transport.Type, cfg.Transport.Describe())
	if cfg.Transport.Type == config.TransportSerial {
		fmt.Fprintf(w, "  Baud rate:   %d\n", cfg.Transport.BaudRate)
	}
	fmt.Fprintf(w, "  Roads:       %s\n", strings.Join(proto.Roads, ", "))
	fmt.Fprintf(w, "  Sink policy: %s\n", cfg.SinkPolicy.OnError)

	fmt.Fprintf(w, "\nSinks:\n")
	if cfg.Store.Path != "" {
		fmt.Fprintf(w, "  - sqlite: %s\n", cfg.Store.Path)
	}
	if cfg.Publish.NATSURL != "" {
		fmt.Fprintf(w, "  - nats:   %s (subjects %s.*)\n", cfg.Publish.NATSURL, cfg.Publish.SubjectPrefix)
	}

	if cfg.Metrics.Listen != "" {
		fmt.Fprintf(w, "\nMetrics: http://%s/metrics\n", cfg.Metrics.Listen)
	}

	if len(cfg.Webhooks) > 0 {
		fmt.Fprintf(w, "\nWebhooks: %d\n", len(cfg.Webhooks))
		for i, wh := range cfg.Webhooks {
			name := wh.Name
			if name == "" {
				name = wh.URL
			}
			fmt.Fprintf(w, "  %d. %s (%s)\n", i+1, name, wh.Trigger)
		}
	}

	return nil
}
