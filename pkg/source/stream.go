package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"go.bug.st/serial"
)

const readChunkSize = 4096

// StreamSource reads lines from a byte stream such as a serial port or a TCP bridge.
//
// The underlying reader should return (0, nil) when its read timeout elapses
// so that cancellation is observed between reads.
type StreamSource struct {
	name  string
	rc    io.ReadCloser
	buf   lineBuffer
	chunk []byte
	eof   bool
}

// NewStreamSource wraps rc. Name is used in error messages.
func NewStreamSource(name string, rc io.ReadCloser) *StreamSource {
	return &StreamSource{
		name:  name,
		rc:    rc,
		buf:   lineBuffer{max: MaxLineSize},
		chunk: make([]byte, readChunkSize),
	}
}

// OpenSerial opens a serial port at the given baud rate, 8N1.
func OpenSerial(port string, baud int, readTimeout time.Duration) (*StreamSource, error) {
	p, err := serial.Open(port, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", port, err)
	}

	if err := p.SetReadTimeout(readTimeout); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("setting read timeout on %s: %w", port, err)
	}

	return NewStreamSource(port, p), nil
}

// DialTCP connects to a serial-to-network bridge.
func DialTCP(ctx context.Context, addr string, readTimeout time.Duration) (*StreamSource, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return NewStreamSource(addr, &deadlineConn{Conn: conn, timeout: readTimeout}), nil
}

// Stdin reads lines from standard input. Closing it closes os.Stdin,
// which unblocks a pending read.
func Stdin() *StreamSource {
	return NewStreamSource("stdin", os.Stdin)
}

// Name returns the transport name.
func (s *StreamSource) Name() string {
	return s.name
}

// Next returns the next line, blocking across read timeouts until one is complete.
func (s *StreamSource) Next(ctx context.Context) (string, error) {
	for {
		if line, ok := s.buf.pop(); ok {
			return line, nil
		}

		if s.eof {
			if line, ok := s.buf.flush(); ok {
				return line, nil
			}
			return "", io.EOF
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		n, err := s.rc.Read(s.chunk)
		if n > 0 {
			if perr := s.buf.push(s.chunk[:n]); perr != nil {
				return "", fmt.Errorf("reading %s: %w", s.name, perr)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.eof = true
				continue
			}
			return "", fmt.Errorf("reading %s: %w", s.name, err)
		}
	}
}

// Close closes the underlying reader.
func (s *StreamSource) Close() error {
	return s.rc.Close()
}

// deadlineConn turns read deadline expiry into empty reads.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if c.timeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
	}

	n, err := c.Conn.Read(p)
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return n, nil
	}
	return n, err
}
