package telemetry

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// One fixed decimal-point convention: no exponents, hex, NaN or Inf.
	decimalPattern  = regexp.MustCompile(`^[+-]?(?:\d+(?:\.\d*)?|\.\d+)$`)
	unsignedPattern = regexp.MustCompile(`^\d+$`)
)

// Parser classifies single lines. It holds no state besides its Protocol,
// so classifying the same line twice always yields the same Outcome.
type Parser struct {
	proto Protocol
}

// NewParser creates a Parser. Empty Protocol tokens fall back to DefaultProtocol.
func NewParser(proto Protocol) *Parser {
	return &Parser{proto: proto.withDefaults()}
}

// Protocol returns the effective protocol.
func (p *Parser) Protocol() Protocol {
	proto := p.proto
	proto.Roads = append([]string(nil), p.proto.Roads...)
	return proto
}

// Classify inspects a line outside of any continuation context.
//
// Lines whose first comma-separated field is the record marker are LOG records:
// they either complete a record or are Malformed, never Ignored. A line containing
// the announcement substring yields OutcomeAwaitingContinuation. Anything else is Ignored.
func (p *Parser) Classify(line string) Outcome {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return ignored()
	}

	fields := strings.Split(trimmed, FieldDelimiter)
	if strings.TrimSpace(fields[fieldMarker]) == p.proto.RecordMarker {
		return p.classifyRecord(line, fields)
	}

	if strings.Contains(trimmed, p.proto.Announcement) {
		return awaiting()
	}

	return ignored()
}

// IsAnnouncement reports whether line announces a count summary.
func (p *Parser) IsAnnouncement(line string) bool {
	return p.Classify(line).Kind == OutcomeAwaitingContinuation
}

func (p *Parser) classifyRecord(line string, fields []string) Outcome {
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	if len(fields) <= fieldTag {
		return malformed(line, "tag", fmt.Sprintf("record has %d fields, no type tag", len(fields)))
	}

	switch tag := fields[fieldTag]; tag {
	case p.proto.SpeedTag:
		if len(fields) != SpeedFieldCount {
			return malformed(line, "", fmt.Sprintf("%s record has %d fields, want %d", tag, len(fields), SpeedFieldCount))
		}
		return p.parseSpeed(line, fields)
	case p.proto.CountTag:
		if len(fields) != CountFieldCount {
			return malformed(line, "", fmt.Sprintf("%s record has %d fields, want %d", tag, len(fields), CountFieldCount))
		}
		return p.parseCount(line, fields)
	default:
		return malformed(line, "tag", fmt.Sprintf("unrecognized record tag %q", tag))
	}
}

func (p *Parser) parseSpeed(line string, fields []string) Outcome {
	ts, err := parseTimestamp(fields[fieldTimestamp])
	if err != nil {
		return malformed(line, "timestamp", err.Error())
	}

	road := fields[fieldRoad]
	if road == "" {
		return malformed(line, "road", "empty road identifier")
	}

	speed, err := parseDecimal(fields[fieldValue])
	if err != nil {
		return malformed(line, "speed", err.Error())
	}

	status := fields[fieldStatus]
	if status == "" {
		return malformed(line, "status", "empty status flag")
	}

	return completed(OutcomeSpeedEvent, SpeedEvent{
		TimestampMillis: ts,
		Road:            road,
		Speed:           speed,
		Status:          status,
	})
}

func (p *Parser) parseCount(line string, fields []string) Outcome {
	ts, err := parseTimestamp(fields[fieldTimestamp])
	if err != nil {
		return malformed(line, "timestamp", err.Error())
	}

	road := fields[fieldRoad]
	if road == "" {
		return malformed(line, "road", "empty road identifier")
	}

	count, err := parseUnsigned(fields[fieldValue])
	if err != nil {
		return malformed(line, "count", err.Error())
	}

	return completed(OutcomeCountEvent, CountEvent{
		TimestampMillis: ts,
		Road:            road,
		Count:           count,
	})
}

// ParseContinuation parses the data line that follows an announcement.
//
// Every pipe-separated segment containing the road label must read
// "<label>: <count>"; other segments are ignored. The snapshot completes only
// when exactly len(Roads) counts were extracted.
func (p *Parser) ParseContinuation(line string) Outcome {
	want := len(p.proto.Roads)
	counts := make([]int, 0, want)

	for _, segment := range strings.Split(line, SegmentDelimiter) {
		if !strings.Contains(segment, p.proto.RoadLabel) {
			continue
		}

		label, value, ok := strings.Cut(segment, LabelSeparator)
		label = strings.TrimSpace(label)
		if !ok {
			return malformed(line, label, "road segment has no count")
		}

		n, err := parseUnsigned(strings.TrimSpace(value))
		if err != nil {
			return malformed(line, label, err.Error())
		}
		counts = append(counts, n)
	}

	if len(counts) != want {
		return malformed(line, "", fmt.Sprintf("expected %d road counts, got %d", want, len(counts)))
	}

	return completed(OutcomeCountSnapshot, CountSnapshot{
		Roads:  append([]string(nil), p.proto.Roads...),
		Counts: counts,
	})
}

func parseTimestamp(s string) (int64, error) {
	if !unsignedPattern.MatchString(s) {
		return 0, fmt.Errorf("%q is not a non-negative integer", s)
	}
	ts, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q out of range", s)
	}
	return ts, nil
}

func parseUnsigned(s string) (int, error) {
	if !unsignedPattern.MatchString(s) {
		return 0, fmt.Errorf("%q is not a non-negative integer", s)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q out of range", s)
	}
	return n, nil
}

func parseDecimal(s string) (float64, error) {
	if !decimalPattern.MatchString(s) {
		return 0, fmt.Errorf("%q is not a decimal number", s)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return 0, fmt.Errorf("%q out of range", s)
		}
		return 0, fmt.Errorf("parsing %q: %w", s, err)
	}
	return v, nil
}
