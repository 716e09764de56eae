package source

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExpandGlobs_GlobPattern(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []string{"a.log", "b.log", "c.txt"} {
		writeCapture(t, dir, f, "x")
	}

	result, err := ExpandGlobs([]string{filepath.Join(dir, "*.log")})
	if err != nil {
		t.Fatalf("ExpandGlobs() error = %v", err)
	}
	if len(result) != 2 {
		t.Errorf("ExpandGlobs() returned %d files, want 2", len(result))
	}
}

func TestExpandGlobs_NoMatch(t *testing.T) {
	pattern := filepath.Join(t.TempDir(), "*.nonexistent")

	result, err := ExpandGlobs([]string{pattern})
	if err != nil {
		t.Fatalf("ExpandGlobs() error = %v", err)
	}
	if len(result) != 1 || result[0] != pattern {
		t.Errorf("ExpandGlobs() = %v, want [%s]", result, pattern)
	}
}

func TestExpandGlobs_SkipsDirectories(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "old.log"), 0755); err != nil {
		t.Fatal(err)
	}
	file := writeCapture(t, dir, "new.log", "x")

	result, err := ExpandGlobs([]string{filepath.Join(dir, "*.log")})
	if err != nil {
		t.Fatalf("ExpandGlobs() error = %v", err)
	}
	if len(result) != 1 || result[0] != file {
		t.Errorf("ExpandGlobs() = %v, want [%s]", result, file)
	}
}

func TestExpandGlobs_DeduplicatedAndSorted(t *testing.T) {
	dir := t.TempDir()
	c := writeCapture(t, dir, "c.log", "x")
	a := writeCapture(t, dir, "a.log", "x")

	result, err := ExpandGlobs([]string{c, filepath.Join(dir, "*.log"), a})
	if err != nil {
		t.Fatalf("ExpandGlobs() error = %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("ExpandGlobs() returned %d files, want 2", len(result))
	}
	if result[0] != a || result[1] != c {
		t.Errorf("ExpandGlobs() = %v, want [%s %s]", result, a, c)
	}
}

func TestExpandGlobs_InvalidPattern(t *testing.T) {
	if _, err := ExpandGlobs([]string{"[invalid"}); err == nil {
		t.Error("ExpandGlobs() expected error for invalid pattern")
	}
}
