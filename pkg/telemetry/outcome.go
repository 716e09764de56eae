package telemetry

import "fmt"

// OutcomeKind tags the result of classifying a line.
type OutcomeKind int

const (
	OutcomeIgnored OutcomeKind = iota
	OutcomeSpeedEvent
	OutcomeCountEvent
	OutcomeAwaitingContinuation
	OutcomeCountSnapshot
	OutcomeMalformed
)

// String returns the outcome name used in logs and reports.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeSpeedEvent:
		return "speed_event"
	case OutcomeCountEvent:
		return "count_event"
	case OutcomeAwaitingContinuation:
		return "awaiting_continuation"
	case OutcomeCountSnapshot:
		return "count_snapshot"
	case OutcomeMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Outcome is the result of classifying one line (or one announcement/data pair).
//
// Record is set only for completed outcomes; Err only for OutcomeMalformed.
type Outcome struct {
	Kind   OutcomeKind
	Record Record
	Err    *MalformedError
}

// Completed reports whether the outcome carries a finished record.
func (o Outcome) Completed() bool {
	return o.Record != nil
}

// MalformedError describes a line that looked like a record but could not be parsed.
type MalformedError struct {
	// Line is the raw line content.
	Line string `json:"line"`

	// Field names the offending field, if one could be identified.
	Field string `json:"field,omitempty"`

	// Reason is a short human-readable explanation.
	Reason string `json:"reason"`
}

// Error implements the error interface.
func (e *MalformedError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("malformed record: %s (field %s): %q", e.Reason, e.Field, e.Line)
	}
	return fmt.Sprintf("malformed record: %s: %q", e.Reason, e.Line)
}

func ignored() Outcome {
	return Outcome{Kind: OutcomeIgnored}
}

func awaiting() Outcome {
	return Outcome{Kind: OutcomeAwaitingContinuation}
}

func malformed(line, field, reason string) Outcome {
	return Outcome{
		Kind: OutcomeMalformed,
		Err:  &MalformedError{Line: line, Field: field, Reason: reason},
	}
}

func completed(kind OutcomeKind, rec Record) Outcome {
	return Outcome{Kind: kind, Record: rec}
}
