// Package telemetry classifies roadside controller log lines into typed traffic records.
//
// A Parser turns one line into an Outcome. A Reducer drives the Parser over a line
// stream and bridges the one line of look-ahead needed by the count summary protocol,
// where an announcement line is followed by the line carrying the per-road counts.
package telemetry

// Kind identifies the type of a completed record.
type Kind string

const (
	KindSpeed    Kind = "speed"
	KindCount    Kind = "count"
	KindSnapshot Kind = "snapshot"
)

// Record is a completed, storage-ready record.
type Record interface {
	Kind() Kind
}

// SpeedEvent is a single vehicle speed measurement.
type SpeedEvent struct {
	// TimestampMillis is the controller clock in milliseconds.
	TimestampMillis int64 `json:"timestamp_ms"`

	// Road identifies the monitored road.
	Road string `json:"road"`

	// Speed is the measured value in km/h.
	Speed float64 `json:"speed"`

	// Status is the flag reported by the controller (e.g. OK, OVER).
	Status string `json:"status"`
}

// Kind returns KindSpeed.
func (SpeedEvent) Kind() Kind { return KindSpeed }

// CountEvent is a running vehicle count for one road.
type CountEvent struct {
	TimestampMillis int64  `json:"timestamp_ms"`
	Road            string `json:"road"`
	Count           int    `json:"count"`
}

// Kind returns KindCount.
func (CountEvent) Kind() Kind { return KindCount }

// CountSnapshot holds one count per monitored road, captured from a count summary.
type CountSnapshot struct {
	// Roads labels Counts positionally, in the configured road ordering.
	Roads []string `json:"roads"`

	// Counts are in the order the segments appeared on the data line.
	Counts []int `json:"counts"`
}

// Kind returns KindSnapshot.
func (CountSnapshot) Kind() Kind { return KindSnapshot }

// Envelope tags a record with its kind for serialization.
type Envelope struct {
	Kind   Kind   `json:"kind"`
	Record Record `json:"record"`
}

// Wrap builds the Envelope for rec.
func Wrap(rec Record) Envelope {
	return Envelope{Kind: rec.Kind(), Record: rec}
}
