package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ccollicutt/trafficlog/pkg/ingest"
	"github.com/ccollicutt/trafficlog/pkg/store"
)

// Default values for configuration.
const (
	DefaultSerialPort     = "/dev/ttyUSB0"
	DefaultBaudRate       = 9600
	DefaultReadTimeout    = time.Second
	DefaultStorePath      = "traffic_data.db"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultWebhookTimeout = 10 * time.Second
)

// Environment variable names.
const (
	EnvSerialPort = "TRAFFICLOG_SERIAL_PORT"
	EnvBaudRate   = "TRAFFICLOG_BAUD_RATE"
	EnvStorePath  = "TRAFFICLOG_STORE_PATH"
	EnvNATSURL    = "TRAFFICLOG_NATS_URL"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Transport: TransportConfig{
			Type:        TransportSerial,
			Port:        DefaultSerialPort,
			BaudRate:    DefaultBaudRate,
			ReadTimeout: DefaultReadTimeout,
		},
		Store: StoreConfig{
			Path: DefaultStorePath,
		},
		Publish: PublishConfig{
			SubjectPrefix: store.DefaultSubjectPrefix,
		},
		SinkPolicy: SinkPolicyConfig{
			OnError:       string(ingest.PolicyAbort),
			MaxRetries:    ingest.DefaultMaxRetries,
			RetryInterval: ingest.DefaultRetryInterval,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// applyEnvironmentOverrides applies environment variable overrides to the config.
func (c *Config) applyEnvironmentOverrides() error {
	if port := os.Getenv(EnvSerialPort); port != "" {
		c.Transport.Port = port
	}

	if baud := os.Getenv(EnvBaudRate); baud != "" {
		n, err := strconv.Atoi(baud)
		if err != nil {
			return fmt.Errorf("%s: invalid baud rate %q", EnvBaudRate, baud)
		}
		c.Transport.BaudRate = n
	}

	if path := os.Getenv(EnvStorePath); path != "" {
		c.Store.Path = path
	}

	if natsURL := os.Getenv(EnvNATSURL); natsURL != "" {
		c.Publish.NATSURL = natsURL
	}

	return nil
}
