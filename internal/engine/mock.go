package engine

import (
	"context"

	"github.com/RomanSlack/rsfx/internal/features"
)

type mockEngine struct {
	reference string
	size      int
}

// NewMockEngine returns an engine producing deterministic images: every
// pixel of a frame encodes the first value of its feature window, so tests
// can verify ordering end to end.
func NewMockEngine(reference string, size int) Engine {
	if size <= 0 {
		size = 256
	}
	return &mockEngine{reference: reference, size: size}
}

func (m *mockEngine) Synthesize(ctx context.Context, batch []features.Window) ([]Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	images := make([]Image, len(batch))
	for i, w := range batch {
		pix := make([]byte, m.size*m.size*3)
		var marker byte
		if len(w.Data) > 0 {
			marker = byte(int(w.Data[0]) % 251)
		}
		for j := range pix {
			pix[j] = marker
		}
		images[i] = Image{Width: m.size, Height: m.size, Pix: pix}
	}
	return images, nil
}

func (m *mockEngine) Close() error { return nil }
