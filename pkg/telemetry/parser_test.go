package telemetry

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func TestClassify_SpeedEvent(t *testing.T) {
	p := NewParser(DefaultProtocol())

	out := p.Classify("LOG,1200,A,SPEED,42.50,OK")
	if out.Kind != OutcomeSpeedEvent {
		t.Fatalf("Classify() kind = %v, want %v (err = %v)", out.Kind, OutcomeSpeedEvent, out.Err)
	}

	want := SpeedEvent{TimestampMillis: 1200, Road: "A", Speed: 42.5, Status: "OK"}
	if got := out.Record.(SpeedEvent); got != want {
		t.Errorf("Classify() record = %+v, want %+v", got, want)
	}
}

func TestClassify_SpeedRoundTrip(t *testing.T) {
	p := NewParser(DefaultProtocol())

	events := []SpeedEvent{
		{TimestampMillis: 0, Road: "A", Speed: 0, Status: "OK"},
		{TimestampMillis: 987654321, Road: "B", Speed: 120.25, Status: "OVER"},
		{TimestampMillis: 42, Road: "North-1", Speed: 7.5, Status: "OK"},
		{TimestampMillis: 9223372036854775807, Road: "D", Speed: 60, Status: "OVER"},
	}

	for _, want := range events {
		line := fmt.Sprintf("LOG,%d,%s,SPEED,%.2f,%s", want.TimestampMillis, want.Road, want.Speed, want.Status)
		out := p.Classify(line)
		if out.Kind != OutcomeSpeedEvent {
			t.Errorf("Classify(%q) kind = %v, want speed_event (err = %v)", line, out.Kind, out.Err)
			continue
		}
		if got := out.Record.(SpeedEvent); got != want {
			t.Errorf("Classify(%q) = %+v, want %+v", line, got, want)
		}
	}
}

func TestClassify_SpeedMalformed(t *testing.T) {
	p := NewParser(DefaultProtocol())

	tests := []struct {
		name  string
		line  string
		field string
	}{
		{"too few fields", "LOG,1200,A,SPEED,42.50", ""},
		{"too many fields", "LOG,1200,A,SPEED,42.50,OK,extra", ""},
		{"non-numeric timestamp", "LOG,12a0,A,SPEED,42.50,OK", "timestamp"},
		{"negative timestamp", "LOG,-5,A,SPEED,42.50,OK", "timestamp"},
		{"fractional timestamp", "LOG,12.5,A,SPEED,42.50,OK", "timestamp"},
		{"timestamp overflow", "LOG,99999999999999999999,A,SPEED,42.50,OK", "timestamp"},
		{"non-numeric speed", "LOG,1200,A,SPEED,fast,OK", "speed"},
		{"comma decimal", "LOG,1200,A,SPEED,42;50,OK", "speed"},
		{"exponent", "LOG,1200,A,SPEED,4e2,OK", "speed"},
		{"NaN", "LOG,1200,A,SPEED,NaN,OK", "speed"},
		{"Inf", "LOG,1200,A,SPEED,Inf,OK", "speed"},
		{"hex", "LOG,1200,A,SPEED,0x1p3,OK", "speed"},
		{"empty speed", "LOG,1200,A,SPEED,,OK", "speed"},
		{"empty road", "LOG,1200,,SPEED,42.50,OK", "road"},
		{"empty status", "LOG,1200,A,SPEED,42.50,", "status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := p.Classify(tt.line)
			if out.Kind != OutcomeMalformed {
				t.Fatalf("Classify(%q) kind = %v, want malformed", tt.line, out.Kind)
			}
			if out.Record != nil {
				t.Errorf("Classify(%q) returned partial record %+v", tt.line, out.Record)
			}
			if out.Err == nil {
				t.Fatal("Malformed outcome has nil Err")
			}
			if out.Err.Field != tt.field {
				t.Errorf("Err.Field = %q, want %q", out.Err.Field, tt.field)
			}
			if out.Err.Line != tt.line {
				t.Errorf("Err.Line = %q, want %q", out.Err.Line, tt.line)
			}
		})
	}
}

func TestClassify_CountEvent(t *testing.T) {
	p := NewParser(DefaultProtocol())

	out := p.Classify("LOG,5000,C,COUNT,17")
	if out.Kind != OutcomeCountEvent {
		t.Fatalf("Classify() kind = %v, want count_event (err = %v)", out.Kind, out.Err)
	}
	want := CountEvent{TimestampMillis: 5000, Road: "C", Count: 17}
	if got := out.Record.(CountEvent); got != want {
		t.Errorf("Classify() = %+v, want %+v", got, want)
	}
}

func TestClassify_CountMalformed(t *testing.T) {
	p := NewParser(DefaultProtocol())

	lines := []string{
		"LOG,5000,C,COUNT",
		"LOG,5000,C,COUNT,17,extra",
		"LOG,5000,C,COUNT,-1",
		"LOG,5000,C,COUNT,1.5",
		"LOG,x,C,COUNT,1",
	}
	for _, line := range lines {
		out := p.Classify(line)
		if out.Kind != OutcomeMalformed || out.Record != nil {
			t.Errorf("Classify(%q) = %v, want malformed without record", line, out.Kind)
		}
	}
}

func TestClassify_UnrecognizedTagIsMalformed(t *testing.T) {
	p := NewParser(DefaultProtocol())

	lines := []string{
		"LOG,1200,A,TEMP,21.5,OK",
		"LOG,1200,A",
		"LOG",
		" LOG ,1200,A,HEARTBEAT",
	}
	for _, line := range lines {
		out := p.Classify(line)
		if out.Kind != OutcomeMalformed {
			t.Errorf("Classify(%q) kind = %v, want malformed", line, out.Kind)
			continue
		}
		if out.Err.Field != "tag" {
			t.Errorf("Classify(%q) Err.Field = %q, want tag", line, out.Err.Field)
		}
	}
}

func TestClassify_Ignored(t *testing.T) {
	p := NewParser(DefaultProtocol())

	lines := []string{
		"",
		"   ",
		"noise",
		"Traffic controller v2.1 ready",
		"LOGGER booting",
		"Road A: 3 | Road B: 5",
	}
	for _, line := range lines {
		if out := p.Classify(line); out.Kind != OutcomeIgnored {
			t.Errorf("Classify(%q) kind = %v, want ignored", line, out.Kind)
		}
	}
}

func TestClassify_Announcement(t *testing.T) {
	p := NewParser(DefaultProtocol())

	lines := []string{
		"Vehicle Count Summary",
		"==== Vehicle Count Summary ====",
		"  [t=3000] Vehicle Count Summary:",
	}
	for _, line := range lines {
		if out := p.Classify(line); out.Kind != OutcomeAwaitingContinuation {
			t.Errorf("Classify(%q) kind = %v, want awaiting_continuation", line, out.Kind)
		}
	}
}

func TestClassify_Idempotent(t *testing.T) {
	p := NewParser(DefaultProtocol())

	lines := []string{
		"LOG,1200,A,SPEED,42.50,OK",
		"LOG,1200,A,SPEED,bad,OK",
		"Vehicle Count Summary",
		"noise",
		"",
	}
	for _, line := range lines {
		first := p.Classify(line)
		second := p.Classify(line)
		if !reflect.DeepEqual(first, second) {
			t.Errorf("Classify(%q) not idempotent: %+v vs %+v", line, first, second)
		}
	}
}

func TestParseContinuation(t *testing.T) {
	p := NewParser(DefaultProtocol())

	out := p.ParseContinuation("Road A: 3 | Road B: 5 | Road C: 0 | Road D: 2")
	if out.Kind != OutcomeCountSnapshot {
		t.Fatalf("ParseContinuation() kind = %v, want count_snapshot (err = %v)", out.Kind, out.Err)
	}

	snap := out.Record.(CountSnapshot)
	if !reflect.DeepEqual(snap.Counts, []int{3, 5, 0, 2}) {
		t.Errorf("Counts = %v, want [3 5 0 2]", snap.Counts)
	}
	if !reflect.DeepEqual(snap.Roads, []string{"A", "B", "C", "D"}) {
		t.Errorf("Roads = %v, want [A B C D]", snap.Roads)
	}
}

func TestParseContinuation_IgnoresOtherSegments(t *testing.T) {
	p := NewParser(DefaultProtocol())

	out := p.ParseContinuation("t=3000 | Road A:1|Road B:  2 | total: 6 |Road C:3 | Road D:0")
	if out.Kind != OutcomeCountSnapshot {
		t.Fatalf("ParseContinuation() kind = %v, want count_snapshot (err = %v)", out.Kind, out.Err)
	}
	if got := out.Record.(CountSnapshot).Counts; !reflect.DeepEqual(got, []int{1, 2, 3, 0}) {
		t.Errorf("Counts = %v, want [1 2 3 0]", got)
	}
}

func TestParseContinuation_Malformed(t *testing.T) {
	p := NewParser(DefaultProtocol())

	tests := []struct {
		name string
		line string
	}{
		{"too few", "Road A: 3 | Road B: 5 | Road C: 0"},
		{"too many", "Road A: 3 | Road B: 5 | Road C: 0 | Road D: 2 | Road E: 1"},
		{"none", "noise"},
		{"empty", ""},
		{"non-numeric", "Road A: 3 | Road B: x | Road C: 0 | Road D: 2"},
		{"negative", "Road A: 3 | Road B: -5 | Road C: 0 | Road D: 2"},
		{"missing colon", "Road A 3 | Road B: 5 | Road C: 0 | Road D: 2"},
		{"speed line", "LOG,1200,A,SPEED,42.50,OK"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := p.ParseContinuation(tt.line)
			if out.Kind != OutcomeMalformed {
				t.Fatalf("ParseContinuation(%q) kind = %v, want malformed", tt.line, out.Kind)
			}
			if out.Record != nil {
				t.Errorf("ParseContinuation(%q) returned record %+v", tt.line, out.Record)
			}
		})
	}
}

func TestParseContinuation_CustomRoads(t *testing.T) {
	p := NewParser(Protocol{Roads: []string{"North", "South"}})

	out := p.ParseContinuation("Road North: 4 | Road South: 9")
	if out.Kind != OutcomeCountSnapshot {
		t.Fatalf("ParseContinuation() kind = %v, want count_snapshot (err = %v)", out.Kind, out.Err)
	}

	out = p.ParseContinuation("Road A: 3 | Road B: 5 | Road C: 0 | Road D: 2")
	if out.Kind != OutcomeMalformed {
		t.Errorf("ParseContinuation() with 4 counts for 2 roads kind = %v, want malformed", out.Kind)
	}
	if !strings.Contains(out.Err.Reason, "expected 2") {
		t.Errorf("Reason = %q, want mention of expected arity", out.Err.Reason)
	}
}

func TestNewParser_Defaults(t *testing.T) {
	p := NewParser(Protocol{})
	proto := p.Protocol()

	if proto.RecordMarker != DefaultRecordMarker {
		t.Errorf("RecordMarker = %q, want %q", proto.RecordMarker, DefaultRecordMarker)
	}
	if proto.Announcement != DefaultAnnouncement {
		t.Errorf("Announcement = %q, want %q", proto.Announcement, DefaultAnnouncement)
	}
	if len(proto.Roads) != len(DefaultRoads) {
		t.Errorf("Roads = %v, want %v", proto.Roads, DefaultRoads)
	}
}

func TestMalformedError_Error(t *testing.T) {
	err := &MalformedError{Line: "LOG,x", Field: "timestamp", Reason: "bad"}
	if !strings.Contains(err.Error(), "timestamp") || !strings.Contains(err.Error(), "LOG,x") {
		t.Errorf("Error() = %q, want field and line", err.Error())
	}

	err = &MalformedError{Line: "LOG", Reason: "short"}
	if strings.Contains(err.Error(), "field") {
		t.Errorf("Error() = %q, should omit empty field", err.Error())
	}
}
