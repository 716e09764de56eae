package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ccollicutt/trafficlog/pkg/store"
	"github.com/ccollicutt/trafficlog/pkg/telemetry"
)

// ErrorPolicy decides what happens when the sink rejects a record.
type ErrorPolicy string

const (
	// PolicyAbort stops ingestion and returns the sink error (default).
	PolicyAbort ErrorPolicy = "abort"
	// PolicySkip counts and logs the failure, drops the record and continues.
	PolicySkip ErrorPolicy = "skip"
	// PolicyRetry retries with exponential backoff, then aborts.
	PolicyRetry ErrorPolicy = "retry"
)

// Defaults for PolicyRetry.
const (
	DefaultMaxRetries    = 3
	DefaultRetryInterval = 500 * time.Millisecond
	maxRetryInterval     = 10 * time.Second
)

// SinkPolicy configures sink failure handling.
type SinkPolicy struct {
	OnError       ErrorPolicy
	MaxRetries    int
	RetryInterval time.Duration
}

// DefaultSinkPolicy aborts on the first sink failure.
func DefaultSinkPolicy() SinkPolicy {
	return SinkPolicy{
		OnError:       PolicyAbort,
		MaxRetries:    DefaultMaxRetries,
		RetryInterval: DefaultRetryInterval,
	}
}

// ParseErrorPolicy validates a policy name. Empty means PolicyAbort.
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch ErrorPolicy(s) {
	case "":
		return PolicyAbort, nil
	case PolicyAbort, PolicySkip, PolicyRetry:
		return ErrorPolicy(s), nil
	default:
		return "", fmt.Errorf("invalid sink error policy %q (must be abort, skip, or retry)", s)
	}
}

// fanout is implemented by sinks that deliver each record to several children.
type fanout interface {
	Sinks() []store.Sink
}

// appendRecord hands rec to every child of sink exactly once, applying the
// policy to each child. It returns how many children accepted rec.
//
// Under PolicySkip a failing child does not stop delivery to the rest.
// Otherwise the first child that still fails ends delivery.
func appendRecord(ctx context.Context, sink store.Sink, rec telemetry.Record, policy SinkPolicy) (int, error) {
	sinks := []store.Sink{sink}
	if f, ok := sink.(fanout); ok {
		sinks = f.Sinks()
	}

	accepted := 0
	var errs []error
	for _, s := range sinks {
		if err := appendWithPolicy(ctx, s, rec, policy); err != nil {
			if policy.OnError != PolicySkip || ctx.Err() != nil {
				return accepted, err
			}
			errs = append(errs, err)
			continue
		}
		accepted++
	}
	return accepted, errors.Join(errs...)
}

// appendWithPolicy appends rec, retrying when the policy asks for it.
func appendWithPolicy(ctx context.Context, sink store.Sink, rec telemetry.Record, policy SinkPolicy) error {
	if policy.OnError != PolicyRetry {
		return sink.Append(ctx, rec)
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = policy.RetryInterval
	if exp.InitialInterval <= 0 {
		exp.InitialInterval = DefaultRetryInterval
	}
	exp.MaxInterval = maxRetryInterval
	exp.MaxElapsedTime = 0

	retries := policy.MaxRetries
	if retries < 0 {
		retries = 0
	}

	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)
	return backoff.Retry(func() error {
		return sink.Append(ctx, rec)
	}, b)
}
