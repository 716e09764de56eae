// Package store persists completed telemetry records.
package store

import (
	"context"
	"errors"

	"github.com/ccollicutt/trafficlog/pkg/telemetry"
)

// Sink durably appends completed records.
//
// Append must not return before the record is durable (or handed off with
// back-pressure); a returned error leaves the retry/skip/abort decision to the caller.
type Sink interface {
	Append(ctx context.Context, rec telemetry.Record) error
	Close() error
}

// ErrUnsupportedRecord is returned for record kinds a sink cannot store.
var ErrUnsupportedRecord = errors.New("unsupported record kind")

// MultiSink appends every record to each sink in order.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink fans records out to sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Sinks returns the child sinks in delivery order.
//
// Callers that retry failed appends deliver to each child on its own,
// so a child that already accepted a record is not handed it again.
func (m *MultiSink) Sinks() []Sink {
	return m.sinks
}

// Append appends rec to each sink in order. The first failing sink stops the append.
func (m *MultiSink) Append(ctx context.Context, rec telemetry.Record) error {
	for _, s := range m.sinks {
		if err := s.Append(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// Close closes all sinks and joins their errors.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard accepts and drops every record.
type Discard struct{}

// Append drops rec.
func (Discard) Append(context.Context, telemetry.Record) error { return nil }

// Close does nothing.
func (Discard) Close() error { return nil }
