package engine

import (
	"context"
	"testing"

	"github.com/RomanSlack/rsfx/internal/config"
	"github.com/RomanSlack/rsfx/internal/features"
)

func TestMockEngineBatchShape(t *testing.T) {
	eng := NewMockEngine("face.png", 32)
	t.Cleanup(func() { _ = eng.Close() })

	batch := make([]features.Window, 5)
	for i := range batch {
		batch[i] = features.Window{Data: []float32{float32(i)}, Rows: 1, Cols: 1}
	}
	images, err := eng.Synthesize(context.Background(), batch)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(images) != len(batch) {
		t.Fatalf("expected %d images, got %d", len(batch), len(images))
	}
	for i, img := range images {
		if !validImage(img) {
			t.Fatalf("image %d malformed: %+v", i, img)
		}
		if img.Width != 32 || img.Height != 32 {
			t.Fatalf("image %d size: %dx%d", i, img.Width, img.Height)
		}
		if img.Pix[0] != byte(i) {
			t.Fatalf("image %d marker: expected %d, got %d", i, i, img.Pix[0])
		}
	}
}

func TestMockEngineRespectsCancellation(t *testing.T) {
	eng := NewMockEngine("face.png", 8)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := eng.Synthesize(ctx, nil); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestNewUnknownMode(t *testing.T) {
	cfg := config.EngineConfig{Mode: "hardware"}
	if _, err := New(cfg, "face.png", nil); err == nil {
		t.Fatal("expected error for unknown engine mode")
	}
}
