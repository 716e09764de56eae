package output

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ccollicutt/trafficlog/pkg/telemetry"
)

// TextFormatter formats reports and records as human-readable text.
type TextFormatter struct {
	opts FormatOptions
}

// NewTextFormatter creates a new text formatter with the given options.
func NewTextFormatter(opts FormatOptions) *TextFormatter {
	return &TextFormatter{opts: opts}
}

// Name returns the format name.
func (f *TextFormatter) Name() string {
	return "text"
}

// FormatRecord writes the controller-style status line for rec.
func (f *TextFormatter) FormatRecord(rec telemetry.Record, w io.Writer) error {
	var err error
	switch r := rec.(type) {
	case telemetry.SpeedEvent:
		_, err = fmt.Fprintf(w, "SPEED Logged: %s | %.2f km/h | %s\n", r.Road, r.Speed, r.Status)
	case telemetry.CountEvent:
		_, err = fmt.Fprintf(w, "COUNT Logged: Road %s | Vehicles: %d\n", r.Road, r.Count)
	case telemetry.CountSnapshot:
		pairs := make([]string, len(r.Counts))
		for i, n := range r.Counts {
			label := fmt.Sprintf("#%d", i+1)
			if i < len(r.Roads) {
				label = r.Roads[i]
			}
			pairs[i] = fmt.Sprintf("%s=%d", label, n)
		}
		_, err = fmt.Fprintf(w, "SNAPSHOT Logged: %s\n", strings.Join(pairs, " "))
	default:
		_, err = fmt.Fprintf(w, "%s Logged\n", strings.ToUpper(string(rec.Kind())))
	}
	return err
}

// Format renders the report as text.
func (f *TextFormatter) Format(ctx context.Context, report *Report, w io.Writer) error {
	if f.opts.Quiet {
		return f.formatQuiet(report, w)
	}
	return f.formatFull(report, w)
}

func (f *TextFormatter) formatQuiet(report *Report, w io.Writer) error {
	fmt.Fprintf(w, "TrafficLog: %d lines read, %d records stored, %d malformed, %d sink failures\n",
		report.Summary.LinesRead,
		report.Summary.Records,
		report.Summary.Malformed,
		report.Summary.SinkFailures)
	return nil
}

func (f *TextFormatter) formatFull(report *Report, w io.Writer) error {
	s := report.Summary

	fmt.Fprintln(w, "=== TrafficLog Run Report ===")
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Speed events:  %d\n", s.SpeedEvents)
	fmt.Fprintf(w, "Count events:  %d\n", s.CountEvents)
	fmt.Fprintf(w, "Snapshots:     %d\n", s.Snapshots)
	fmt.Fprintf(w, "Ignored lines: %d\n", s.Ignored)
	if s.PendingDiscarded {
		fmt.Fprintln(w, "Pending count summary discarded (end of stream or capture file)")
	}
	fmt.Fprintln(w)

	if len(report.Malformed) > 0 {
		f.formatMalformed(report, w)
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "---")
	fmt.Fprintf(w, "Summary: %d lines read, %d records stored, %d malformed, %d sink failures\n",
		s.LinesRead, s.Records, s.Malformed, s.SinkFailures)

	if f.opts.Verbose {
		fmt.Fprintf(w, "Run ID: %s\n", report.Metadata.RunID)
		if len(report.Metadata.Sources) > 0 {
			fmt.Fprintf(w, "Sources: %s\n", strings.Join(report.Metadata.Sources, ", "))
		}
		fmt.Fprintf(w, "Duration: %s\n", report.Metadata.Duration.Round(1e6))
	}

	return nil
}

func (f *TextFormatter) formatMalformed(report *Report, w io.Writer) {
	samples := report.Malformed
	if !f.opts.Verbose && len(samples) > 3 {
		samples = samples[:3]
	}

	fmt.Fprintf(w, "Malformed: %d line(s)\n", report.Summary.Malformed)
	for _, m := range samples {
		if m.Field != "" {
			fmt.Fprintf(w, "  - %s (field %s)\n", m.Reason, m.Field)
		} else {
			fmt.Fprintf(w, "  - %s\n", m.Reason)
		}
		fmt.Fprintf(w, "    %q\n", m.Line)
	}
	if hidden := report.Summary.Malformed - len(samples); hidden > 0 {
		fmt.Fprintf(w, "  ... and %d more\n", hidden)
	}
}
