package sessionlog

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/RomanSlack/rsfx/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenDisabledIsNoOp(t *testing.T) {
	store, err := Open(context.Background(), config.SessionLogConfig{Enabled: false}, newLogger())
	if err != nil {
		t.Fatalf("open disabled: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.Record(context.Background(), Session{ID: "x"}); err != nil {
		t.Fatalf("record on disabled store: %v", err)
	}
	sessions, err := store.ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("list on disabled store: %v", err)
	}
	if sessions != nil {
		t.Fatalf("expected no sessions, got %v", sessions)
	}
}

func TestRecordAndListRoundTrip(t *testing.T) {
	cfg := config.SessionLogConfig{
		Enabled: true,
		Path:    filepath.Join(t.TempDir(), "sessions.db"),
	}
	store, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	sess := Session{
		ID:          "session-1",
		Reference:   "face.png",
		Audio:       "speech.wav",
		Width:       120,
		Height:      80,
		FPS:         25,
		FramesSent:  40,
		Termination: "completed",
		StartedAt:   started,
		FinishedAt:  started.Add(2 * time.Second),
	}
	if err := store.Record(context.Background(), sess); err != nil {
		t.Fatalf("record: %v", err)
	}

	sessions, err := store.ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	got := sessions[0]
	if got.ID != sess.ID || got.FramesSent != 40 || got.Termination != "completed" {
		t.Fatalf("unexpected session: %+v", got)
	}
	if got.Width != 120 || got.Height != 80 || got.FPS != 25 {
		t.Fatalf("unexpected geometry: %+v", got)
	}
}

func TestListRecentOrdering(t *testing.T) {
	cfg := config.SessionLogConfig{
		Enabled: true,
		Path:    filepath.Join(t.TempDir(), "sessions.db"),
	}
	store, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		err := store.Record(context.Background(), Session{
			ID:        string(rune('a' + i)),
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	sessions, err := store.ListRecent(context.Background(), 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != "c" || sessions[1].ID != "b" {
		t.Fatalf("expected newest first, got %+v", sessions)
	}
}
