package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
)

// FileSource replays captured telemetry from log files, one file after another.
type FileSource struct {
	files []string

	currentFile    *os.File
	currentScanner *bufio.Scanner
	currentSource  string
	currentLine    int
	fileIndex      int
	segmentStart   bool
}

// NewFileSource creates a Source that reads the given files in order.
func NewFileSource(files []string) *FileSource {
	return &FileSource{
		files:     files,
		fileIndex: -1,
	}
}

// Next returns the next line across all files.
// Returns io.EOF when all files have been exhausted.
func (s *FileSource) Next(ctx context.Context) (string, error) {
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		if s.currentScanner == nil {
			if err := s.openNextFile(); err != nil {
				return "", err
			}
		}

		if s.currentScanner.Scan() {
			s.currentLine++
			s.segmentStart = s.currentLine == 1 && s.fileIndex > 0
			return cleanLine(s.currentScanner.Bytes()), nil
		}

		if err := s.currentScanner.Err(); err != nil {
			return "", fmt.Errorf("reading %s: %w", s.currentSource, err)
		}

		// Current file exhausted, try next
		if err := s.closeCurrentFile(); err != nil {
			return "", err
		}
	}
}

// Position returns the file and 1-based line number of the last line returned.
func (s *FileSource) Position() (string, int) {
	return s.currentSource, s.currentLine
}

// SegmentStart reports whether the last line returned opened a file after the first.
// A count summary announcement never spans two capture files.
func (s *FileSource) SegmentStart() bool {
	return s.segmentStart
}

// Close releases resources.
func (s *FileSource) Close() error {
	return s.closeCurrentFile()
}

func (s *FileSource) openNextFile() error {
	s.fileIndex++
	if s.fileIndex >= len(s.files) {
		return io.EOF
	}

	path := s.files[s.fileIndex]
	f, err := os.Open(path) // #nosec G304 -- user-provided capture paths are expected
	if err != nil {
		return fmt.Errorf("opening capture file %s: %w", path, err)
	}

	s.currentFile = f
	s.currentScanner = bufio.NewScanner(f)
	s.currentScanner.Buffer(make([]byte, 0, 4096), MaxLineSize)
	s.currentSource = path
	s.currentLine = 0
	return nil
}

func (s *FileSource) closeCurrentFile() error {
	if s.currentFile != nil {
		err := s.currentFile.Close()
		s.currentFile = nil
		s.currentScanner = nil
		return err
	}
	return nil
}
