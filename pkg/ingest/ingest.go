// Package ingest drives a line source through the telemetry reducer into a record sink.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ccollicutt/trafficlog/pkg/metrics"
	"github.com/ccollicutt/trafficlog/pkg/source"
	"github.com/ccollicutt/trafficlog/pkg/store"
	"github.com/ccollicutt/trafficlog/pkg/telemetry"
)

var (
	// ErrTransport marks a line source failure. It ends the stream.
	ErrTransport = errors.New("transport error")

	// ErrSink marks a sink failure escalated by the sink policy.
	ErrSink = errors.New("sink error")
)

// DefaultSampleSize is the number of malformed lines kept in Stats.
const DefaultSampleSize = 10

// Ingestor consumes one Source strictly in arrival order.
type Ingestor struct {
	src     source.Source
	sink    store.Sink
	reducer *telemetry.Reducer

	policy      SinkPolicy
	metrics     *metrics.Metrics
	logger      *slog.Logger
	sampleSize  int
	onRecord    func(telemetry.Record)
	onMalformed func(*telemetry.MalformedError)
}

// Option configures the Ingestor.
type Option func(*Ingestor)

// WithSinkPolicy sets the sink failure policy.
func WithSinkPolicy(p SinkPolicy) Option {
	return func(i *Ingestor) {
		i.policy = p
	}
}

// WithMetrics records ingestion counters on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Ingestor) {
		i.metrics = m
	}
}

// WithLogger sets the logger used for malformed lines and sink failures.
func WithLogger(l *slog.Logger) Option {
	return func(i *Ingestor) {
		if l != nil {
			i.logger = l
		}
	}
}

// WithSampleSize sets how many malformed lines are kept in Stats.
func WithSampleSize(n int) Option {
	return func(i *Ingestor) {
		if n >= 0 {
			i.sampleSize = n
		}
	}
}

// WithRecordHandler is called for every record the sink accepted.
func WithRecordHandler(fn func(telemetry.Record)) Option {
	return func(i *Ingestor) {
		i.onRecord = fn
	}
}

// WithMalformedHandler is called for every malformed line.
func WithMalformedHandler(fn func(*telemetry.MalformedError)) Option {
	return func(i *Ingestor) {
		i.onMalformed = fn
	}
}

// New creates an Ingestor. The caller keeps ownership of src and sink.
func New(src source.Source, sink store.Sink, parser *telemetry.Parser, opts ...Option) *Ingestor {
	i := &Ingestor{
		src:        src,
		sink:       sink,
		reducer:    telemetry.NewReducer(parser),
		policy:     DefaultSinkPolicy(),
		logger:     slog.Default(),
		sampleSize: DefaultSampleSize,
	}

	for _, opt := range opts {
		opt(i)
	}

	return i
}

// Stats summarizes one Run.
type Stats struct {
	LinesRead        int
	SpeedEvents      int
	CountEvents      int
	Snapshots        int
	Ignored          int
	Malformed        int
	SinkFailures     int
	// PendingDiscarded is set when an announcement was dropped at the end of
	// the stream or at a segment boundary.
	PendingDiscarded bool

	// MalformedSamples holds the first malformed lines, up to the sample size.
	MalformedSamples []*telemetry.MalformedError

	StartTime time.Time
	EndTime   time.Time
}

// Records returns the number of records the sink accepted.
func (s *Stats) Records() int {
	return s.SpeedEvents + s.CountEvents + s.Snapshots
}

// HasIssues reports whether malformed lines or sink failures were seen.
func (s *Stats) HasIssues() bool {
	return s.Malformed > 0 || s.SinkFailures > 0
}

// Duration returns the wall-clock run time.
func (s *Stats) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// Run reads lines until the source is exhausted, ctx is cancelled, or an
// error ends the stream. Stats are returned in every case.
//
// Cancellation returns ctx.Err(). A source failure is wrapped with ErrTransport
// and an escalated sink failure with ErrSink. A pending count summary
// announcement is discarded whenever the stream ends, and at every segment
// boundary of a source implementing source.Segmented.
func (i *Ingestor) Run(ctx context.Context) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	defer func() {
		if i.reducer.Reset() {
			stats.PendingDiscarded = true
		}
		stats.EndTime = time.Now()
	}()

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		line, err := i.src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return stats, ctxErr
			}
			return stats, fmt.Errorf("%w: reading line source: %w", ErrTransport, err)
		}

		stats.LinesRead++
		i.metrics.LineRead()

		if seg, ok := i.src.(source.Segmented); ok && seg.SegmentStart() {
			i.endSegment(ctx, stats)
		}

		if err := i.handle(ctx, stats, i.reducer.Step(line)); err != nil {
			return stats, err
		}
	}
}

// endSegment drops an announcement left pending by the previous segment, so it
// is never paired with the first line of the next one.
func (i *Ingestor) endSegment(ctx context.Context, stats *Stats) {
	if !i.reducer.Reset() {
		return
	}
	stats.PendingDiscarded = true
	attrs := []any{}
	if p, ok := i.src.(source.Positioner); ok {
		file, _ := p.Position()
		attrs = append(attrs, "next_source", file)
	}
	i.logger.WarnContext(ctx, "discarding count summary announcement at end of segment", attrs...)
}

func (i *Ingestor) handle(ctx context.Context, stats *Stats, out telemetry.Outcome) error {
	switch {
	case out.Completed():
		return i.deliver(ctx, stats, out.Record)
	case out.Kind == telemetry.OutcomeMalformed:
		i.reportMalformed(ctx, stats, out.Err)
	case out.Kind == telemetry.OutcomeIgnored:
		stats.Ignored++
	}
	return nil
}

func (i *Ingestor) deliver(ctx context.Context, stats *Stats, rec telemetry.Record) error {
	accepted, err := appendRecord(ctx, i.sink, rec, i.policy)
	if err == nil || accepted > 0 {
		i.stored(stats, rec)
	}
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	stats.SinkFailures++
	i.metrics.SinkFailure()

	if i.policy.OnError == PolicySkip {
		if accepted > 0 {
			i.logger.WarnContext(ctx, "record not delivered to every sink",
				"kind", rec.Kind(),
				"accepted", accepted,
				"error", err)
			return nil
		}
		i.logger.WarnContext(ctx, "dropping record after sink failure",
			"kind", rec.Kind(),
			"error", err)
		return nil
	}
	return fmt.Errorf("%w: appending %s record: %w", ErrSink, rec.Kind(), err)
}

func (i *Ingestor) stored(stats *Stats, rec telemetry.Record) {
	switch rec.Kind() {
	case telemetry.KindSpeed:
		stats.SpeedEvents++
	case telemetry.KindCount:
		stats.CountEvents++
	case telemetry.KindSnapshot:
		stats.Snapshots++
	}
	i.metrics.RecordStored(rec.Kind())

	if i.onRecord != nil {
		i.onRecord(rec)
	}
}

func (i *Ingestor) reportMalformed(ctx context.Context, stats *Stats, merr *telemetry.MalformedError) {
	stats.Malformed++
	if len(stats.MalformedSamples) < i.sampleSize {
		stats.MalformedSamples = append(stats.MalformedSamples, merr)
	}
	i.metrics.Malformed()

	attrs := []any{"line", merr.Line, "reason", merr.Reason}
	if merr.Field != "" {
		attrs = append(attrs, "field", merr.Field)
	}
	if p, ok := i.src.(source.Positioner); ok {
		file, n := p.Position()
		attrs = append(attrs, "source", file, "line_number", n)
	}
	i.logger.WarnContext(ctx, "malformed record", attrs...)

	if i.onMalformed != nil {
		i.onMalformed(merr)
	}
}
