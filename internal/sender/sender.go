package sender

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"syscall"

	"github.com/RomanSlack/rsfx/internal/protocol"
)

// ErrConnection indicates the renderer endpoint is absent or refused the
// connection. Fatal: nothing has been streamed yet.
var ErrConnection = errors.New("renderer connection failed")

// ErrPeerDisconnected indicates a write failed because the renderer went
// away mid-session. The caller terminates the send loop and reports partial
// progress.
var ErrPeerDisconnected = errors.New("renderer disconnected")

// Client owns the outbound byte stream to the renderer and serializes wire
// messages onto it. Single-writer: callers must not interleave sends.
type Client struct {
	conn      net.Conn
	log       *slog.Logger
	audioSent bool
	closed    bool
}

// Connect dials the renderer's unix socket.
func Connect(socketPath string, log *slog.Logger) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrConnection, socketPath, err)
	}
	log.Info("connected to renderer", slog.String("socket", socketPath))
	return New(conn, log), nil
}

// New wraps an already-connected stream. Used by tests to substitute an
// in-process pipe for the unix socket.
func New(conn net.Conn, log *slog.Logger) *Client {
	return &Client{conn: conn, log: log.With(slog.String("component", "sender"))}
}

// SendControl writes a 3-byte RC message.
func (c *Client) SendControl(code byte) error {
	buf, err := protocol.EncodeControl(code)
	if err != nil {
		return err
	}
	return c.write(buf)
}

// SendAudio writes the full PCM track as one RA message. Called exactly once
// per session, before any frame traffic.
func (c *Client) SendAudio(pcm []byte) error {
	if c.audioSent {
		return errors.New("audio track already sent this session")
	}
	buf, err := protocol.EncodeAudio(pcm)
	if err != nil {
		return err
	}
	if err := c.write(buf); err != nil {
		return err
	}
	c.audioSent = true
	return nil
}

// SendFrame writes one RF message. timestampMicros is the producer's
// monotonic elapsed time since the session's first frame.
func (c *Client) SendFrame(width, height int, timestampMicros uint64, rgb []byte) error {
	buf, err := protocol.EncodeFrame(width, height, timestampMicros, rgb)
	if err != nil {
		return err
	}
	return c.write(buf)
}

// Close sends a best-effort stop control message and releases the stream.
// Failures during the stop notification are swallowed: the stream is being
// torn down regardless. Safe to call more than once.
func (c *Client) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if buf, err := protocol.EncodeControl(protocol.ControlStop); err == nil {
		_, _ = c.conn.Write(buf)
	}
	return c.conn.Close()
}

// write pushes one complete message to the stream in a single call so a
// reader never observes a partial message.
func (c *Client) write(buf []byte) error {
	if c.closed {
		return ErrPeerDisconnected
	}
	if _, err := c.conn.Write(buf); err != nil {
		if isDisconnect(err) {
			return fmt.Errorf("%w: %v", ErrPeerDisconnected, err)
		}
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

func isDisconnect(err error) bool {
	return errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe)
}
