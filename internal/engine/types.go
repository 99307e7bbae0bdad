// Package engine wraps the external face-synthesis capability: a batch of
// feature windows plus a fixed reference identity in, a batch of synthesized
// face images out. The engine handle is constructed once per run with the
// reference identity and passed in explicitly, never held as global state.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/RomanSlack/rsfx/internal/config"
	"github.com/RomanSlack/rsfx/internal/features"
)

// ErrSynthesis indicates the engine failed or returned a malformed batch.
// Fatal for the run: there is no meaningful recovery without re-running the
// whole pipeline.
var ErrSynthesis = errors.New("synthesis failed")

// Image is one synthesized face image in the engine's native resolution,
// row-major BGR (the conventional order of vision toolkits; the producer
// converts to wire RGB).
type Image struct {
	Width  int
	Height int
	Pix    []byte
}

// Engine is the synthesis capability contract: batch-in, batch-out,
// order-preserving, same batch length in and out.
type Engine interface {
	Synthesize(ctx context.Context, batch []features.Window) ([]Image, error)
	Close() error
}

// New builds an engine from config, preparing the reference identity.
func New(cfg config.EngineConfig, reference string, log *slog.Logger) (Engine, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockEngine(reference, 256), nil
	case "exec":
		return newExecEngine(cfg, reference, log)
	default:
		return nil, fmt.Errorf("unknown engine mode: %q", cfg.Mode)
	}
}

// validImage reports a basic shape check on an engine output image.
func validImage(img Image) bool {
	return img.Width > 0 && img.Height > 0 && len(img.Pix) == img.Width*img.Height*3
}
