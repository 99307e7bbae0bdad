// Package features exposes the per-frame audio feature windows that drive
// synthesis. One window per output video frame; ordering is significant and
// the whole sequence is materialized before streaming begins.
package features

import (
	"context"
	"fmt"

	"github.com/RomanSlack/rsfx/internal/config"
)

// Window is the feature tensor for one output frame. The pipeline treats it
// as opaque: only the extractor and the engine interpret its contents. Any
// temporal padding the engine needs is already baked in by the extractor.
type Window struct {
	Data []float32
	Rows int
	Cols int
}

// Extractor turns decoded mono audio into the ordered window sequence.
type Extractor interface {
	ExtractWindows(ctx context.Context, samples []float32, sampleRate, fps int) ([]Window, error)
}

// Source is a stable, indexable view over an extracted window sequence.
type Source struct {
	windows []Window
}

func NewSource(windows []Window) *Source {
	return &Source{windows: windows}
}

func (s *Source) Len() int { return len(s.windows) }

func (s *Source) At(i int) Window { return s.windows[i] }

// NewExtractor builds an extractor from config.
func NewExtractor(cfg config.FeaturesConfig) (Extractor, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockExtractor(cfg.WindowRows, cfg.WindowCols), nil
	case "exec":
		return newExecExtractor(cfg)
	default:
		return nil, fmt.Errorf("unknown feature extractor mode: %q", cfg.Mode)
	}
}

// WindowCount is the number of output frames for a track: ceil(duration*fps).
func WindowCount(sampleCount, sampleRate, fps int) int {
	if sampleCount <= 0 {
		return 0
	}
	// ceil(samples * fps / rate) in integer arithmetic.
	return int((int64(sampleCount)*int64(fps) + int64(sampleRate) - 1) / int64(sampleRate))
}
