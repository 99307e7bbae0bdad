// Package bus publishes session lifecycle events to NATS so external
// monitors can observe running avatar sessions. The frame stream itself
// never touches the bus.
package bus

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/RomanSlack/rsfx/internal/config"
	"github.com/RomanSlack/rsfx/internal/protocol"
)

// Client wraps a NATS connection with helpers for session events.
type Client struct {
	conn *nats.Conn
	log  *slog.Logger
}

func Connect(_ context.Context, cfg config.BusConfig, log *slog.Logger) (*Client, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("no NATS servers configured")
	}

	options := []nats.Option{
		nats.Name("rsfx-avatar"),
		nats.Timeout(time.Duration(cfg.ConnectTimeout) * time.Millisecond),
	}
	if cfg.Username != "" || cfg.Password != "" {
		options = append(options, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		options = append(options, nats.Token(cfg.Token))
	}
	if cfg.TLSInsecure {
		options = append(options, nats.Secure(&tls.Config{InsecureSkipVerify: true}))
	}

	url := strings.Join(cfg.Servers, ",")
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	log.Info("connected to NATS", slog.String("servers", url))
	return &Client{conn: conn, log: log.With(slog.String("component", "bus"))}, nil
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	c.log.Info("closing NATS connection")
	_ = c.conn.Drain()
	c.conn.Close()
}

func (c *Client) Healthy() bool {
	return c != nil && c.conn != nil && c.conn.Status() == nats.CONNECTED
}

// PublishSessionStarted announces a new session. Publish failures are
// logged, not fatal: the stream does not depend on the bus.
func (c *Client) PublishSessionStarted(evt protocol.SessionStarted) {
	c.publish(protocol.SubjectSessionStarted, evt)
}

// PublishSessionFinished reports a session outcome.
func (c *Client) PublishSessionFinished(evt protocol.SessionFinished) {
	c.publish(protocol.SubjectSessionFinished, evt)
}

func (c *Client) publish(subject string, evt any) {
	if c == nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		c.log.Warn("failed to marshal bus event", slog.String("error", err.Error()))
		return
	}
	if err := c.conn.Publish(subject, data); err != nil {
		c.log.Warn("failed to publish bus event",
			slog.String("subject", subject), slog.String("error", err.Error()))
	}
}
