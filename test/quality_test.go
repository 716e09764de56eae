package test

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// getProjectRoot returns the project root directory based on this test file's location.
func getProjectRoot() string {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "."
	}
	return filepath.Dir(filepath.Dir(filename))
}

// walkGoFiles calls fn for every .go file in the module, skipping hidden,
// underscore-prefixed, vendor and testdata directories the go tool ignores.
func walkGoFiles(t *testing.T, fn func(path string)) {
	t.Helper()

	err := filepath.WalkDir(getProjectRoot(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != getProjectRoot() && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "vendor" || name == "testdata") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(path, ".go") {
			fn(path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to walk directory: %v", err)
	}
}

// TestNoSkippedTests ensures no test files contain t.Skip() calls.
// Skipped tests hide failures - tests should either pass or fail, never skip.
func TestNoSkippedTests(t *testing.T) {
	forbiddenPatterns := []string{
		"t.Skip(",
		"t.SkipNow(",
		"testing.Short()",
	}

	var testFiles []string
	walkGoFiles(t, func(path string) {
		if !strings.HasSuffix(path, "_test.go") {
			return
		}
		// Integration tests legitimately skip without their external service
		if strings.Contains(path, "quality_test.go") || strings.Contains(path, "integration_test.go") {
			return
		}
		testFiles = append(testFiles, path)
	})

	var violations []string

	for _, testFile := range testFiles {
		f, err := os.Open(testFile)
		if err != nil {
			t.Fatalf("Failed to open %s: %v", testFile, err)
		}

		scanner := bufio.NewScanner(f)
		lineNum := 0
		for scanner.Scan() {
			lineNum++
			line := scanner.Text()

			if strings.HasPrefix(strings.TrimSpace(line), "//") {
				continue
			}

			for _, pattern := range forbiddenPatterns {
				if strings.Contains(line, pattern) {
					violations = append(violations,
						fmt.Sprintf("%s:%d: contains forbidden pattern '%s'", testFile, lineNum, pattern))
				}
			}
		}
		f.Close()

		if err := scanner.Err(); err != nil {
			t.Fatalf("Error scanning %s: %v", testFile, err)
		}
	}

	if len(violations) > 0 {
		t.Errorf("Found %d test skip violation(s):", len(violations))
		for _, v := range violations {
			t.Errorf("  %s", v)
		}
		t.Error("Tests should not be skipped: fix the cause, or use t.Fatalf() if a required resource is missing")
	}
}

// TestEveryPackageTested ensures each package with Go sources has a test file.
func TestEveryPackageTested(t *testing.T) {
	sources := map[string]bool{}
	tested := map[string]bool{}

	walkGoFiles(t, func(path string) {
		dir := filepath.Dir(path)
		if strings.HasSuffix(path, "_test.go") {
			tested[dir] = true
		} else {
			sources[dir] = true
		}
	})

	if len(sources) == 0 {
		t.Fatal("No Go packages found - something is wrong with package discovery")
	}

	root := getProjectRoot()
	for dir := range sources {
		// main only wires cli.Execute
		if filepath.Base(dir) == "cli" && filepath.Base(filepath.Dir(dir)) == "cmd" {
			continue
		}
		if !tested[dir] {
			rel, _ := filepath.Rel(root, dir)
			t.Errorf("package %s has no tests", rel)
		}
	}
}
