package producer

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/RomanSlack/rsfx/internal/engine"
	"github.com/RomanSlack/rsfx/internal/features"
)

// countingEngine wraps the mock engine and records batch sizes.
type countingEngine struct {
	engine.Engine
	batches []int
	failAt  int // fail on the nth call (1-based), 0 = never
	calls   int
}

func (c *countingEngine) Synthesize(ctx context.Context, batch []features.Window) ([]engine.Image, error) {
	c.calls++
	if c.failAt > 0 && c.calls == c.failAt {
		return nil, engine.ErrSynthesis
	}
	c.batches = append(c.batches, len(batch))
	return c.Engine.Synthesize(ctx, batch)
}

func makeSource(t *testing.T, frames int) *features.Source {
	t.Helper()
	windows := make([]features.Window, frames)
	for i := range windows {
		windows[i] = features.Window{Data: []float32{float32(i)}, Rows: 1, Cols: 1}
	}
	return features.NewSource(windows)
}

func drain(t *testing.T, p *Producer) []Frame {
	t.Helper()
	var out []Frame
	for {
		frame, err := p.Next(context.Background())
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("unexpected error after %d frames: %v", len(out), err)
		}
		out = append(out, frame)
	}
}

func TestBatchGrouping(t *testing.T) {
	eng := &countingEngine{Engine: engine.NewMockEngine("ref.png", 16)}
	p, err := New(makeSource(t, 40), eng, 8, 12, 8)
	if err != nil {
		t.Fatalf("new producer: %v", err)
	}

	frames := drain(t, p)
	if len(frames) != 40 {
		t.Fatalf("expected 40 frames, got %d", len(frames))
	}
	if len(eng.batches) != 5 {
		t.Fatalf("expected 5 engine calls, got %d", len(eng.batches))
	}
	for i, n := range eng.batches {
		if n != 8 {
			t.Fatalf("batch %d size: expected 8, got %d", i, n)
		}
	}
}

func TestShortLastBatch(t *testing.T) {
	eng := &countingEngine{Engine: engine.NewMockEngine("ref.png", 16)}
	p, _ := New(makeSource(t, 10), eng, 4, 8, 8)

	frames := drain(t, p)
	if len(frames) != 10 {
		t.Fatalf("expected 10 frames, got %d", len(frames))
	}
	want := []int{4, 4, 2}
	if len(eng.batches) != len(want) {
		t.Fatalf("expected %d engine calls, got %d", len(want), len(eng.batches))
	}
	for i := range want {
		if eng.batches[i] != want[i] {
			t.Fatalf("batch %d size: expected %d, got %d", i, want[i], eng.batches[i])
		}
	}
}

func TestOrderingPreserved(t *testing.T) {
	eng := &countingEngine{Engine: engine.NewMockEngine("ref.png", 16)}
	p, _ := New(makeSource(t, 20), eng, 8, 16, 16)

	frames := drain(t, p)
	for i, frame := range frames {
		// The mock engine fills every pixel with the window's index marker
		// and convert preserves values at identical resolution.
		if frame.RGB[0] != byte(i) {
			t.Fatalf("frame %d carries marker %d", i, frame.RGB[0])
		}
	}
}

func TestAllOrNothingBatch(t *testing.T) {
	eng := &countingEngine{Engine: engine.NewMockEngine("ref.png", 16), failAt: 2}
	p, _ := New(makeSource(t, 16), eng, 8, 8, 8)

	var got int
	var err error
	for {
		_, err = p.Next(context.Background())
		if err != nil {
			break
		}
		got++
	}
	if !errors.Is(err, engine.ErrSynthesis) {
		t.Fatalf("expected ErrSynthesis, got %v", err)
	}
	// First batch yielded fully, second yielded nothing.
	if got != 8 {
		t.Fatalf("expected exactly 8 frames before failure, got %d", got)
	}
	// The failure is sticky.
	if _, err2 := p.Next(context.Background()); !errors.Is(err2, engine.ErrSynthesis) {
		t.Fatalf("expected sticky ErrSynthesis, got %v", err2)
	}
}

type malformedEngine struct{ images []engine.Image }

func (m *malformedEngine) Synthesize(context.Context, []features.Window) ([]engine.Image, error) {
	return m.images, nil
}
func (m *malformedEngine) Close() error { return nil }

func TestMalformedBatchCount(t *testing.T) {
	eng := &malformedEngine{images: []engine.Image{{Width: 4, Height: 4, Pix: make([]byte, 48)}}}
	p, _ := New(makeSource(t, 4), eng, 4, 4, 4)
	if _, err := p.Next(context.Background()); !errors.Is(err, engine.ErrSynthesis) {
		t.Fatalf("expected ErrSynthesis for wrong count, got %v", err)
	}
}

func TestMalformedImageShape(t *testing.T) {
	images := make([]engine.Image, 4)
	for i := range images {
		images[i] = engine.Image{Width: 4, Height: 4, Pix: make([]byte, 48)}
	}
	images[2].Pix = images[2].Pix[:10]
	eng := &malformedEngine{images: images}
	p, _ := New(makeSource(t, 4), eng, 4, 4, 4)
	if _, err := p.Next(context.Background()); !errors.Is(err, engine.ErrSynthesis) {
		t.Fatalf("expected ErrSynthesis for bad shape, got %v", err)
	}
}

func TestResizeToTarget(t *testing.T) {
	eng := &countingEngine{Engine: engine.NewMockEngine("ref.png", 64)}
	p, _ := New(makeSource(t, 3), eng, 2, 120, 80)

	frames := drain(t, p)
	for i, frame := range frames {
		if frame.Width != 120 || frame.Height != 80 {
			t.Fatalf("frame %d size: %dx%d", i, frame.Width, frame.Height)
		}
		if len(frame.RGB) != 120*80*3 {
			t.Fatalf("frame %d payload: %d bytes", i, len(frame.RGB))
		}
	}
}

func TestBGRToRGBConversion(t *testing.T) {
	// One red pixel in BGR order is (0, 0, 255).
	eng := &malformedEngine{images: []engine.Image{{Width: 1, Height: 1, Pix: []byte{0, 0, 255}}}}
	p, _ := New(makeSource(t, 1), eng, 1, 1, 1)
	frame, err := p.Next(context.Background())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if frame.RGB[0] != 255 || frame.RGB[1] != 0 || frame.RGB[2] != 0 {
		t.Fatalf("expected RGB red pixel, got %v", frame.RGB)
	}
}

func TestNewRejectsBadParameters(t *testing.T) {
	src := makeSource(t, 1)
	eng := engine.NewMockEngine("ref.png", 8)
	if _, err := New(src, eng, 0, 8, 8); err == nil {
		t.Fatal("expected error for zero batch size")
	}
	if _, err := New(src, eng, 1, 0, 8); err == nil {
		t.Fatal("expected error for zero width")
	}
}
