package plugins

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFindPlugin_NotFound(t *testing.T) {
	t.Setenv(EnvPluginDir, t.TempDir())

	_, err := FindPlugin("nonexistent-plugin-xyz")
	if err != ErrPluginNotFound {
		t.Errorf("expected ErrPluginNotFound, got %v", err)
	}
}

func TestFindPlugin_InPluginsDir(t *testing.T) {
	pluginsDir := t.TempDir()
	t.Setenv(EnvPluginDir, pluginsDir)

	pluginPath := filepath.Join(pluginsDir, "trafficlog-testplugin")
	if err := os.WriteFile(pluginPath, []byte("#!/bin/sh\necho test"), 0755); err != nil {
		t.Fatalf("failed to create test plugin: %v", err)
	}

	found, err := FindPlugin("testplugin")
	if err != nil {
		t.Errorf("expected to find plugin, got error: %v", err)
	}
	if found != pluginPath {
		t.Errorf("expected %s, got %s", pluginPath, found)
	}
}

func TestSearchDirs_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvPluginDir, dir)

	dirs := SearchDirs()
	if len(dirs) == 0 || dirs[len(dirs)-1] != dir {
		t.Errorf("SearchDirs() = %v, want %s last", dirs, dir)
	}
}

func TestExecute_ExitCode(t *testing.T) {
	dir := t.TempDir()
	pluginPath := filepath.Join(dir, "trafficlog-fail")
	if err := os.WriteFile(pluginPath, []byte("#!/bin/sh\n[ -n \"$"+EnvParent+"\" ] || exit 9\nexit 3\n"), 0755); err != nil {
		t.Fatalf("failed to create test plugin: %v", err)
	}

	if code := Execute(context.Background(), pluginPath, nil); code != 3 {
		t.Errorf("Execute() = %d, want 3", code)
	}
}

func TestFormatNotFoundError_KnownPlugin(t *testing.T) {
	err := FormatNotFoundError("export")

	if !strings.Contains(err, "available as a plugin") {
		t.Error("expected error to mention plugin availability")
	}
	if !strings.Contains(err, "trafficlog-export") {
		t.Error("expected error to mention trafficlog-export")
	}
}

func TestFormatNotFoundError_UnknownPlugin(t *testing.T) {
	err := FormatNotFoundError("unknown")

	if !strings.Contains(err, "trafficlog-unknown") {
		t.Error("expected error to mention trafficlog-unknown")
	}
	if strings.Contains(err, "available as a plugin") {
		t.Error("should not mention plugin availability for unknown plugins")
	}
}

func TestIsExecutable(t *testing.T) {
	tmpDir := t.TempDir()

	nonExec := filepath.Join(tmpDir, "nonexec")
	if err := os.WriteFile(nonExec, []byte("test"), 0644); err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
	if isExecutable(nonExec) {
		t.Error("non-executable file should not be detected as executable")
	}

	execPath := filepath.Join(tmpDir, "exec")
	if err := os.WriteFile(execPath, []byte("test"), 0755); err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
	if !isExecutable(execPath) {
		t.Error("executable file should be detected as executable")
	}

	if isExecutable(tmpDir) {
		t.Error("directory should not be detected as executable")
	}
	if isExecutable(filepath.Join(tmpDir, "nonexistent")) {
		t.Error("non-existent file should not be detected as executable")
	}
}
