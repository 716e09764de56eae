// Package config provides configuration loading and validation for TrafficLog.
package config

import (
	"time"

	"github.com/ccollicutt/trafficlog/pkg/ingest"
	"github.com/ccollicutt/trafficlog/pkg/telemetry"
)

// Config is the root configuration structure loaded from YAML.
type Config struct {
	Transport  TransportConfig  `yaml:"transport"`
	Protocol   ProtocolConfig   `yaml:"protocol"`
	Store      StoreConfig      `yaml:"store"`
	Publish    PublishConfig    `yaml:"publish,omitempty"`
	SinkPolicy SinkPolicyConfig `yaml:"sink_policy"`
	Metrics    MetricsConfig    `yaml:"metrics,omitempty"`
	Logging    LoggingConfig    `yaml:"logging"`
	Webhooks   []WebhookConfig  `yaml:"webhooks,omitempty"`
}

// TransportType selects the line source used by the run command.
type TransportType string

const (
	TransportSerial TransportType = "serial"
	TransportTCP    TransportType = "tcp"
	TransportStdin  TransportType = "stdin"
)

// TransportConfig describes the link to the roadside controller.
type TransportConfig struct {
	Type TransportType `yaml:"type"`

	// Port and BaudRate are used by the serial transport.
	Port     string `yaml:"port,omitempty"`
	BaudRate int    `yaml:"baud_rate,omitempty"`

	// Address is host:port of a serial-to-network bridge for the tcp transport.
	Address string `yaml:"address,omitempty"`

	// ReadTimeout bounds a single read so shutdown is noticed on an idle link.
	ReadTimeout time.Duration `yaml:"read_timeout,omitempty"`
}

// Describe names the transport endpoint for status messages.
func (t TransportConfig) Describe() string {
	switch t.Type {
	case TransportTCP:
		return t.Address
	case TransportStdin:
		return "stdin"
	default:
		return t.Port
	}
}

// ProtocolConfig overrides the controller's wire tokens. Empty fields keep the defaults.
type ProtocolConfig struct {
	RecordMarker string   `yaml:"record_marker,omitempty"`
	SpeedTag     string   `yaml:"speed_tag,omitempty"`
	CountTag     string   `yaml:"count_tag,omitempty"`
	Announcement string   `yaml:"announcement,omitempty"`
	RoadLabel    string   `yaml:"road_label,omitempty"`
	Roads        []string `yaml:"roads,omitempty"`
}

// Telemetry returns the parser protocol.
func (p ProtocolConfig) Telemetry() telemetry.Protocol {
	return telemetry.Protocol{
		RecordMarker: p.RecordMarker,
		SpeedTag:     p.SpeedTag,
		CountTag:     p.CountTag,
		Announcement: p.Announcement,
		RoadLabel:    p.RoadLabel,
		Roads:        append([]string(nil), p.Roads...),
	}
}

// StoreConfig configures the SQLite store. An empty Path disables it.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// PublishConfig configures NATS publishing. An empty URL disables it.
type PublishConfig struct {
	NATSURL       string `yaml:"nats_url,omitempty"`
	SubjectPrefix string `yaml:"subject_prefix,omitempty"`
}

// SinkPolicyConfig configures what happens when a sink rejects a record.
type SinkPolicyConfig struct {
	OnError       string        `yaml:"on_error"` // abort, skip, retry
	MaxRetries    int           `yaml:"max_retries,omitempty"`
	RetryInterval time.Duration `yaml:"retry_interval,omitempty"`
}

// Ingest returns the policy in the form the ingestor expects.
// Call after Validate.
func (s SinkPolicyConfig) Ingest() ingest.SinkPolicy {
	return ingest.SinkPolicy{
		OnError:       ingest.ErrorPolicy(s.OnError),
		MaxRetries:    s.MaxRetries,
		RetryInterval: s.RetryInterval,
	}
}

// MetricsConfig configures the Prometheus endpoint. An empty Listen disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen,omitempty"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// WebhookTrigger determines when a webhook fires.
type WebhookTrigger string

const (
	// WebhookTriggerOnIssues fires only when malformed lines or sink failures were seen (default).
	WebhookTriggerOnIssues WebhookTrigger = "on_issues"
	// WebhookTriggerAlways fires after every run.
	WebhookTriggerAlways WebhookTrigger = "always"
	// WebhookTriggerNever disables the webhook.
	WebhookTriggerNever WebhookTrigger = "never"
)

// WebhookConfig defines a webhook endpoint for sending run reports.
type WebhookConfig struct {
	// Name is an optional identifier for the webhook.
	Name string `yaml:"name,omitempty"`

	// URL is the webhook endpoint (required).
	URL string `yaml:"url"`

	// Token is an optional bearer token for authentication.
	Token string `yaml:"token,omitempty"`

	// Trigger determines when the webhook fires.
	// Defaults to "on_issues" if not specified.
	Trigger WebhookTrigger `yaml:"trigger,omitempty"`

	// Timeout is the HTTP request timeout.
	// Defaults to 10s if not specified.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// Retries is the number of extra attempts after a network error or 5xx response.
	Retries int `yaml:"retries,omitempty"`
}
