// Package source provides line sources for the telemetry stream: serial ports,
// network bridges, standard input and captured log files.
package source

import "context"

// Source yields raw telemetry lines in arrival order.
// Implementations are meant for a single consumer (not concurrent).
type Source interface {
	// Next returns the next line with transport framing removed.
	// It may block until a line arrives or ctx is cancelled.
	// Returns io.EOF, unwrapped, when the stream is exhausted.
	Next(ctx context.Context) (string, error)

	// Close releases the underlying transport.
	Close() error
}

// Positioner is implemented by sources that can locate the last line returned.
type Positioner interface {
	Position() (name string, line int)
}

// Segmented is implemented by sources that concatenate independent streams,
// such as several capture files. SegmentStart reports whether the last line
// returned was the first line of a segment after the first.
type Segmented interface {
	SegmentStart() bool
}
