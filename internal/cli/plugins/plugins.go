// Package plugins runs external trafficlog-<command> binaries for commands
// the CLI does not build in, the way kubectl and git discover plugins.
package plugins

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const (
	// Prefix is prepended to a command name to form the plugin binary name.
	Prefix = "trafficlog-"

	// EnvPluginDir overrides the per-user plugin directory.
	EnvPluginDir = "TRAFFICLOG_PLUGIN_DIR"

	// EnvParent is set for the plugin to the path of the invoking binary.
	EnvParent = "TRAFFICLOG_BIN"
)

// KnownPlugins lists companion tools that are distributed separately.
var KnownPlugins = map[string]string{
	"export": "Export stored speed events and count snapshots to CSV.",
	"replay": "Serve a capture file over TCP at controller pace, for testing the tcp transport.",
}

// ErrPluginNotFound is returned when no plugin binary can be located.
var ErrPluginNotFound = errors.New("plugin not found")

// SearchDirs returns the directories searched before PATH, in order.
func SearchDirs() []string {
	var dirs []string

	if execPath, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(execPath))
	}

	if dir := os.Getenv(EnvPluginDir); dir != "" {
		dirs = append(dirs, dir)
	} else if homeDir, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(homeDir, ".trafficlog", "plugins"))
	}

	return dirs
}

// FindPlugin returns the path of the trafficlog-<command> binary, looking in
// SearchDirs and then PATH.
func FindPlugin(command string) (string, error) {
	pluginName := Prefix + command

	for _, dir := range SearchDirs() {
		candidate := filepath.Join(dir, pluginName)
		if isExecutable(candidate) {
			return candidate, nil
		}
	}

	if path, err := exec.LookPath(pluginName); err == nil {
		return path, nil
	}

	return "", ErrPluginNotFound
}

// Execute runs a plugin with the given arguments on the process's stdio
// and returns the plugin's exit code.
func Execute(ctx context.Context, pluginPath string, args []string) int {
	cmd := exec.CommandContext(ctx, pluginPath, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	if self, err := os.Executable(); err == nil {
		cmd.Env = append(cmd.Env, EnvParent+"="+self)
	}

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode()
		}
		fmt.Fprintf(os.Stderr, "Error executing plugin: %v\n", err)
		return 2
	}

	return 0
}

// FormatNotFoundError explains where a plugin binary for command would be looked up.
func FormatNotFoundError(command string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "unknown command %q for \"trafficlog\"\n", command)

	if info, ok := KnownPlugins[command]; ok {
		fmt.Fprintf(&sb, "\n%q is available as a plugin.\n", command)
		sb.WriteString(info)
		sb.WriteString("\n\nInstall the plugin binary as one of:\n")
	} else {
		sb.WriteString("\nIf this is a plugin, install the binary as one of:\n")
	}

	fmt.Fprintf(&sb, "  - %s%s in the same directory as trafficlog\n", Prefix, command)
	fmt.Fprintf(&sb, "  - ~/.trafficlog/plugins/%s%s (or $%s)\n", Prefix, command, EnvPluginDir)
	fmt.Fprintf(&sb, "  - %s%s anywhere in your PATH\n", Prefix, command)

	sb.WriteString("\nRun 'trafficlog --help' for usage.")

	return sb.String()
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Mode()&0111 != 0
}
