package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ccollicutt/trafficlog/pkg/telemetry"
)

// DefaultSubjectPrefix prefixes record subjects, e.g. traffic.speed.
const DefaultSubjectPrefix = "traffic"

// flushTimeout bounds the server round trip when ctx carries no deadline.
const flushTimeout = 5 * time.Second

// publisher is the subset of *nats.Conn used by NATSSink.
type publisher interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// NATSSink publishes each record as a JSON envelope on <prefix>.<kind>.
type NATSSink struct {
	conn   publisher
	prefix string
}

// ConnectNATS connects to a NATS server and returns a publishing sink.
func ConnectNATS(url, prefix string, opts ...nats.Option) (*NATSSink, error) {
	opts = append([]nats.Option{nats.Name("trafficlog")}, opts...)
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return newNATSSink(nc, prefix), nil
}

func newNATSSink(conn publisher, prefix string) *NATSSink {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSSink{conn: conn, prefix: prefix}
}

// Subject returns the subject records of kind are published on.
func (s *NATSSink) Subject(kind telemetry.Kind) string {
	return s.prefix + "." + string(kind)
}

// Append publishes rec and waits for the server to acknowledge the flush.
func (s *NATSSink) Append(ctx context.Context, rec telemetry.Record) error {
	data, err := json.Marshal(telemetry.Wrap(rec))
	if err != nil {
		return fmt.Errorf("encoding %s record: %w", rec.Kind(), err)
	}

	subject := s.Subject(rec.Kind())
	if err := s.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}

	if err := s.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flushing %s: %w", subject, err)
	}
	return nil
}

// Close drains the connection.
func (s *NATSSink) Close() error {
	return s.conn.Drain()
}
