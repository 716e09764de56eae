package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccollicutt/trafficlog/pkg/telemetry"
)

type published struct {
	subject string
	data    []byte
}

type fakeConn struct {
	msgs        []published
	publishErr  error
	flushErr    error
	flushes     int
	drained     bool
	hadDeadline bool
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	if c.publishErr != nil {
		return c.publishErr
	}
	c.msgs = append(c.msgs, published{subject: subject, data: data})
	return nil
}

func (c *fakeConn) FlushWithContext(ctx context.Context) error {
	c.flushes++
	_, c.hadDeadline = ctx.Deadline()
	return c.flushErr
}

func (c *fakeConn) Drain() error {
	c.drained = true
	return nil
}

func TestNATSSink_Append(t *testing.T) {
	conn := &fakeConn{}
	sink := newNATSSink(conn, "")

	rec := telemetry.SpeedEvent{TimestampMillis: 1200, Road: "A", Speed: 42.5, Status: "OK"}
	require.NoError(t, sink.Append(context.Background(), rec))

	require.Len(t, conn.msgs, 1)
	assert.Equal(t, "traffic.speed", conn.msgs[0].subject)
	assert.Equal(t, 1, conn.flushes)
	assert.True(t, conn.hadDeadline, "flush must carry a deadline")

	var env struct {
		Kind   string               `json:"kind"`
		Record telemetry.SpeedEvent `json:"record"`
	}
	require.NoError(t, json.Unmarshal(conn.msgs[0].data, &env))
	assert.Equal(t, "speed", env.Kind)
	assert.Equal(t, rec, env.Record)
}

func TestNATSSink_Subjects(t *testing.T) {
	sink := newNATSSink(&fakeConn{}, "junction7")

	assert.Equal(t, "junction7.speed", sink.Subject(telemetry.KindSpeed))
	assert.Equal(t, "junction7.count", sink.Subject(telemetry.KindCount))
	assert.Equal(t, "junction7.snapshot", sink.Subject(telemetry.KindSnapshot))
}

func TestNATSSink_Errors(t *testing.T) {
	boom := errors.New("no responders")

	sink := newNATSSink(&fakeConn{publishErr: boom}, "")
	assert.ErrorIs(t, sink.Append(context.Background(), telemetry.CountEvent{Road: "A"}), boom)

	sink = newNATSSink(&fakeConn{flushErr: boom}, "")
	assert.ErrorIs(t, sink.Append(context.Background(), telemetry.CountEvent{Road: "A"}), boom)
}

func TestNATSSink_Close(t *testing.T) {
	conn := &fakeConn{}
	require.NoError(t, newNATSSink(conn, "").Close())
	assert.True(t, conn.drained)
}
