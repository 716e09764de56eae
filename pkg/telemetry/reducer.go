package telemetry

// State is the Reducer's position in the count summary protocol.
type State int

const (
	// StateIdle means no announcement is pending.
	StateIdle State = iota
	// StateAwaitingData means an announcement was seen and the next line is its data line.
	StateAwaitingData
)

// String returns the state name.
func (s State) String() string {
	if s == StateAwaitingData {
		return "awaiting_data"
	}
	return "idle"
}

// ReasonSuperseded is reported when a second announcement arrives before
// the first one's data line.
const ReasonSuperseded = "announcement superseded before data line"

// Reducer feeds lines to a Parser in arrival order and holds the single
// pending announcement needed to complete a count summary.
//
// A Reducer is not safe for concurrent use; it expects exactly one consumer.
type Reducer struct {
	parser  *Parser
	state   State
	pending string
}

// NewReducer creates a Reducer in StateIdle.
func NewReducer(parser *Parser) *Reducer {
	return &Reducer{parser: parser}
}

// State returns the current state.
func (r *Reducer) State() State {
	return r.state
}

// Step consumes one line.
//
// In StateIdle the line is classified; an announcement moves the Reducer to
// StateAwaitingData. In StateAwaitingData the line is parsed as the data line and
// the Reducer returns to StateIdle whatever the result, except when the line is
// itself an announcement: the stale announcement is then reported as Malformed
// and the newer one becomes pending.
func (r *Reducer) Step(line string) Outcome {
	if r.state == StateAwaitingData {
		if r.parser.IsAnnouncement(line) {
			stale := r.pending
			r.pending = line
			return malformed(stale, "", ReasonSuperseded)
		}

		r.state = StateIdle
		r.pending = ""
		return r.parser.ParseContinuation(line)
	}

	out := r.parser.Classify(line)
	if out.Kind == OutcomeAwaitingContinuation {
		r.state = StateAwaitingData
		r.pending = line
	}
	return out
}

// Reset discards any pending announcement and returns to StateIdle.
// It reports whether an announcement was discarded.
func (r *Reducer) Reset() bool {
	discarded := r.state == StateAwaitingData
	r.state = StateIdle
	r.pending = ""
	return discarded
}
