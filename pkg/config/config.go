package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ccollicutt/trafficlog/pkg/ingest"
	"github.com/ccollicutt/trafficlog/pkg/telemetry"
)

// Load reads and validates a configuration file.
func Load(_ context.Context, path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- user-provided config path is expected
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.applyEnvironmentOverrides(); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks a configuration for errors and fills unset defaults.
func Validate(cfg *Config) error {
	if err := validateTransport(&cfg.Transport); err != nil {
		return fmt.Errorf("transport: %w", err)
	}

	if err := validateProtocol(&cfg.Protocol); err != nil {
		return fmt.Errorf("protocol: %w", err)
	}

	if cfg.Store.Path == "" && cfg.Publish.NATSURL == "" {
		return errors.New("store: at least one sink is required (store.path or publish.nats_url)")
	}

	if err := validatePublish(&cfg.Publish); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	if err := validateSinkPolicy(&cfg.SinkPolicy); err != nil {
		return fmt.Errorf("sink_policy: %w", err)
	}

	if cfg.Metrics.Listen != "" {
		if _, _, err := net.SplitHostPort(cfg.Metrics.Listen); err != nil {
			return fmt.Errorf("metrics: invalid listen address %q: %w", cfg.Metrics.Listen, err)
		}
	}

	if err := validateLogging(&cfg.Logging); err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	// Webhooks are optional, but validate if present
	for i := range cfg.Webhooks {
		if err := validateWebhook(&cfg.Webhooks[i]); err != nil {
			name := cfg.Webhooks[i].Name
			if name == "" {
				name = cfg.Webhooks[i].URL
			}
			return fmt.Errorf("webhooks[%d] (%s): %w", i, name, err)
		}
	}

	return nil
}

func validateTransport(t *TransportConfig) error {
	if t.Type == "" {
		t.Type = TransportSerial
	}

	switch t.Type {
	case TransportSerial:
		if t.Port == "" {
			return errors.New("port is required for serial transport")
		}
		if t.BaudRate <= 0 {
			return fmt.Errorf("baud_rate must be positive, got %d", t.BaudRate)
		}
	case TransportTCP:
		if t.Address == "" {
			return errors.New("address is required for tcp transport")
		}
		if _, _, err := net.SplitHostPort(t.Address); err != nil {
			return fmt.Errorf("invalid address %q: %w", t.Address, err)
		}
	case TransportStdin:
		// Nothing to configure
	default:
		return fmt.Errorf("invalid type %q (must be serial, tcp, or stdin)", t.Type)
	}

	if t.ReadTimeout <= 0 {
		t.ReadTimeout = DefaultReadTimeout
	}

	return nil
}

func validateProtocol(p *ProtocolConfig) error {
	if strings.Contains(p.RecordMarker, telemetry.FieldDelimiter) {
		return fmt.Errorf("record_marker %q must not contain %q", p.RecordMarker, telemetry.FieldDelimiter)
	}
	for name, tag := range map[string]string{"speed_tag": p.SpeedTag, "count_tag": p.CountTag} {
		if strings.Contains(tag, telemetry.FieldDelimiter) {
			return fmt.Errorf("%s %q must not contain %q", name, tag, telemetry.FieldDelimiter)
		}
	}
	if p.SpeedTag != "" && p.SpeedTag == p.CountTag {
		return fmt.Errorf("speed_tag and count_tag must differ, both are %q", p.SpeedTag)
	}
	if strings.ContainsAny(p.RoadLabel, telemetry.SegmentDelimiter+telemetry.LabelSeparator) {
		return fmt.Errorf("road_label %q must not contain %q or %q",
			p.RoadLabel, telemetry.SegmentDelimiter, telemetry.LabelSeparator)
	}

	seen := make(map[string]bool, len(p.Roads))
	for i, road := range p.Roads {
		if strings.TrimSpace(road) == "" {
			return fmt.Errorf("roads[%d]: road name is empty", i)
		}
		if seen[road] {
			return fmt.Errorf("roads[%d]: duplicate road %q", i, road)
		}
		seen[road] = true
	}

	return nil
}

func validatePublish(p *PublishConfig) error {
	if p.NATSURL == "" {
		return nil
	}

	for _, server := range strings.Split(p.NATSURL, ",") {
		u, err := url.Parse(strings.TrimSpace(server))
		if err != nil {
			return fmt.Errorf("invalid nats_url: %w", err)
		}
		switch u.Scheme {
		case "nats", "tls", "ws", "wss":
		default:
			return fmt.Errorf("nats_url scheme must be nats, tls, ws, or wss, got %q", u.Scheme)
		}
		if u.Host == "" {
			return errors.New("nats_url must have a host")
		}
	}

	if p.SubjectPrefix == "" {
		return errors.New("subject_prefix is required when nats_url is set")
	}
	if strings.ContainsAny(p.SubjectPrefix, " \t*>") || strings.HasPrefix(p.SubjectPrefix, ".") || strings.HasSuffix(p.SubjectPrefix, ".") {
		return fmt.Errorf("invalid subject_prefix %q", p.SubjectPrefix)
	}

	return nil
}

func validateSinkPolicy(s *SinkPolicyConfig) error {
	policy, err := ingest.ParseErrorPolicy(s.OnError)
	if err != nil {
		return err
	}
	s.OnError = string(policy)

	if s.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", s.MaxRetries)
	}
	if s.RetryInterval <= 0 {
		s.RetryInterval = ingest.DefaultRetryInterval
	}

	return nil
}

func validateLogging(l *LoggingConfig) error {
	if l.Level == "" {
		l.Level = DefaultLogLevel
	}
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid level %q (must be debug, info, warn, or error)", l.Level)
	}

	if l.Format == "" {
		l.Format = DefaultLogFormat
	}
	switch l.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid format %q (must be text or json)", l.Format)
	}

	return nil
}

func validateWebhook(wh *WebhookConfig) error {
	if wh.URL == "" {
		return errors.New("url is required")
	}

	// Validate URL format
	u, err := url.Parse(wh.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("url must have a host")
	}

	// Expand environment variables in token
	wh.Token = expandEnvVar(wh.Token)

	if wh.Trigger != "" {
		switch wh.Trigger {
		case WebhookTriggerOnIssues, WebhookTriggerAlways, WebhookTriggerNever:
		default:
			return fmt.Errorf("invalid trigger %q (must be on_issues, always, or never)", wh.Trigger)
		}
	} else {
		wh.Trigger = WebhookTriggerOnIssues
	}

	if wh.Timeout <= 0 {
		wh.Timeout = DefaultWebhookTimeout
	}

	if wh.Retries < 0 {
		return fmt.Errorf("retries must not be negative, got %d", wh.Retries)
	}

	return nil
}

// expandEnvVar expands environment variables in the format ${VAR} or $VAR.
func expandEnvVar(s string) string {
	if s == "" {
		return s
	}

	// Handle ${VAR} format
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		varName := s[2 : len(s)-1]
		return os.Getenv(varName)
	}

	// Handle $VAR format (no braces)
	if strings.HasPrefix(s, "$") && !strings.HasPrefix(s, "${") {
		varName := s[1:]
		return os.Getenv(varName)
	}

	return s
}
