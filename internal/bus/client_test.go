package bus

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/RomanSlack/rsfx/internal/config"
	"github.com/RomanSlack/rsfx/internal/protocol"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestStartEmbeddedDisabled(t *testing.T) {
	srv, err := StartEmbedded(config.BusConfig{Embedded: false}, newLogger())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if srv != nil {
		t.Fatal("expected nil server when embedded mode is off")
	}
	srv.Shutdown() // nil-safe
}

func TestPublishSessionEvents(t *testing.T) {
	srv, err := StartEmbedded(config.BusConfig{Embedded: true, Port: -1}, newLogger())
	if err != nil {
		t.Fatalf("start embedded server: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	cfg := config.BusConfig{
		Enabled:        true,
		Servers:        []string{srv.URL()},
		ConnectTimeout: 2000,
	}
	client, err := Connect(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)

	if !client.Healthy() {
		t.Fatal("expected healthy connection")
	}

	sub, err := nats.Connect(srv.URL())
	if err != nil {
		t.Fatalf("subscriber connect: %v", err)
	}
	t.Cleanup(sub.Close)
	inbox, err := sub.SubscribeSync(protocol.SubjectSessionFinished)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := sub.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	client.PublishSessionFinished(protocol.SessionFinished{
		SessionID:   "session-1",
		FramesSent:  40,
		Termination: "completed",
		Timestamp:   time.Now().UTC(),
	})

	msg, err := inbox.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("no event received: %v", err)
	}
	if len(msg.Data) == 0 {
		t.Fatal("empty event payload")
	}
}

func TestConnectRequiresServers(t *testing.T) {
	_, err := Connect(context.Background(), config.BusConfig{Enabled: true}, newLogger())
	if err == nil {
		t.Fatal("expected error with no servers configured")
	}
}
