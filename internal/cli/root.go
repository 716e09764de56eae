// Package cli provides the command-line interface for TrafficLog.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ccollicutt/trafficlog/internal/cli/commands"
	"github.com/ccollicutt/trafficlog/internal/cli/plugins"
)

// Execute runs the root command with os.Args and returns the exit code.
func Execute(ctx context.Context) int {
	return run(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd := NewRootCommand()
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	potential := pluginCandidate(rootCmd, args)
	if potential != "" {
		if pluginPath, err := plugins.FindPlugin(potential); err == nil {
			return plugins.Execute(ctx, pluginPath, args[1:])
		}
	}

	commands.ExitCode = 0
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if potential != "" {
			_, _ = fmt.Fprintln(stderr, plugins.FormatNotFoundError(potential))
			return 2
		}
		// SilenceErrors keeps cobra from printing this itself
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	return commands.ExitCode
}

// pluginCandidate returns the first argument when it names no built-in command.
func pluginCandidate(rootCmd *cobra.Command, args []string) string {
	if len(args) == 0 || args[0] == "" || args[0][0] == '-' {
		return ""
	}
	if isBuiltinCommand(rootCmd, args[0]) {
		return ""
	}
	return args[0]
}

// isBuiltinCommand checks if a command name is a built-in cobra command.
func isBuiltinCommand(rootCmd *cobra.Command, name string) bool {
	for _, cmd := range rootCmd.Commands() {
		if cmd.Name() == name || cmd.HasAlias(name) {
			return true
		}
	}
	return name == "help" || name == "completion"
}

// NewRootCommand creates the root cobra command.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "trafficlog",
		Short: "Log roadside traffic controller telemetry",
		Long: `TrafficLog reads the telemetry stream of a roadside traffic controller
and stores what it reports:

  - Speed events (one vehicle passing a road sensor)
  - Count events (a running vehicle count for one road)
  - Count summary snapshots (one count per junction road)

Records go to a SQLite database and, optionally, a NATS server.
Malformed lines are reported and never stored.

PLUGINS:
  Commands that are not built in run a trafficlog-<command> binary.

  Plugin locations (searched in order):
    1. Same directory as the trafficlog binary
    2. ~/.trafficlog/plugins/ (or $TRAFFICLOG_PLUGIN_DIR)
    3. Anywhere in PATH`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewImportCommand())
	rootCmd.AddCommand(commands.NewCheckCommand())
	rootCmd.AddCommand(commands.NewDiagnoseCommand())
	rootCmd.AddCommand(commands.NewValidateCommand())
	rootCmd.AddCommand(commands.NewVersionCommand())

	return rootCmd
}
