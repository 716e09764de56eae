package telemetry

// Wire-level defaults matching the controller firmware.
const (
	DefaultRecordMarker = "LOG"
	DefaultSpeedTag     = "SPEED"
	DefaultCountTag     = "COUNT"
	DefaultAnnouncement = "Vehicle Count Summary"
	DefaultRoadLabel    = "Road"

	FieldDelimiter   = ","
	SegmentDelimiter = "|"
	LabelSeparator   = ":"
)

// Field layout of LOG records.
const (
	SpeedFieldCount = 6
	CountFieldCount = 5

	fieldMarker    = 0
	fieldTimestamp = 1
	fieldRoad      = 2
	fieldTag       = 3
	fieldValue     = 4
	fieldStatus    = 5
)

// DefaultRoads is the road ordering used by the four-way junction controller.
var DefaultRoads = []string{"A", "B", "C", "D"}

// Protocol describes the tokens the controller uses on the wire.
type Protocol struct {
	// RecordMarker is the first comma-separated field of every LOG record.
	RecordMarker string

	// SpeedTag and CountTag are the type tags at field index 3.
	SpeedTag string
	CountTag string

	// Announcement is the substring that announces a count summary on the next line.
	Announcement string

	// RoadLabel is the substring that marks a per-road segment on the data line.
	RoadLabel string

	// Roads is the agreed road ordering; len(Roads) is the expected count arity.
	Roads []string
}

// DefaultProtocol returns the protocol spoken by the stock controller firmware.
func DefaultProtocol() Protocol {
	return Protocol{
		RecordMarker: DefaultRecordMarker,
		SpeedTag:     DefaultSpeedTag,
		CountTag:     DefaultCountTag,
		Announcement: DefaultAnnouncement,
		RoadLabel:    DefaultRoadLabel,
		Roads:        append([]string(nil), DefaultRoads...),
	}
}

// withDefaults fills empty tokens from DefaultProtocol.
func (p Protocol) withDefaults() Protocol {
	def := DefaultProtocol()
	if p.RecordMarker == "" {
		p.RecordMarker = def.RecordMarker
	}
	if p.SpeedTag == "" {
		p.SpeedTag = def.SpeedTag
	}
	if p.CountTag == "" {
		p.CountTag = def.CountTag
	}
	if p.Announcement == "" {
		p.Announcement = def.Announcement
	}
	if p.RoadLabel == "" {
		p.RoadLabel = def.RoadLabel
	}
	if len(p.Roads) == 0 {
		p.Roads = def.Roads
	} else {
		p.Roads = append([]string(nil), p.Roads...)
	}
	return p
}
