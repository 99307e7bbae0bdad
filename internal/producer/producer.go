// Package producer turns the feature window sequence into a lazy sequence
// of wire-ready frames, one engine call per batch.
package producer

import (
	"context"
	"fmt"
	"image"
	"io"

	xdraw "golang.org/x/image/draw"

	"github.com/RomanSlack/rsfx/internal/engine"
	"github.com/RomanSlack/rsfx/internal/features"
)

// Frame is one output image at the target resolution, row-major RGB, ready
// for the wire.
type Frame struct {
	Width  int
	Height int
	RGB    []byte
}

type state int

const (
	stateAwaitingBatch state = iota
	stateDraining
	stateExhausted
	stateFailed
)

// Producer pulls feature windows in fixed-size groups, invokes the engine
// once per group, and yields the group's images one at a time, in order.
// Single-pass pull model: no prefetch of a future batch while the current
// one is draining. Restart by constructing a new Producer.
type Producer struct {
	source    *features.Source
	eng       engine.Engine
	batchSize int
	targetW   int
	targetH   int

	st      state
	pending []engine.Image
	next    int
	err     error
}

func New(source *features.Source, eng engine.Engine, batchSize, targetWidth, targetHeight int) (*Producer, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if targetWidth <= 0 || targetHeight <= 0 {
		return nil, fmt.Errorf("target resolution must be positive, got %dx%d", targetWidth, targetHeight)
	}
	return &Producer{
		source:    source,
		eng:       eng,
		batchSize: batchSize,
		targetW:   targetWidth,
		targetH:   targetHeight,
	}, nil
}

// Next returns the next frame in sequence. io.EOF signals normal exhaustion.
// After an engine failure the producer stays failed and keeps returning the
// same error: either a batch fully succeeds and all its images are yielded,
// or none are.
func (p *Producer) Next(ctx context.Context) (Frame, error) {
	switch p.st {
	case stateExhausted:
		return Frame{}, io.EOF
	case stateFailed:
		return Frame{}, p.err
	case stateDraining:
		return p.pop(), nil
	}

	// AwaitingBatch: pull the next group of windows.
	if p.next >= p.source.Len() {
		p.st = stateExhausted
		return Frame{}, io.EOF
	}

	end := p.next + p.batchSize
	if end > p.source.Len() {
		end = p.source.Len()
	}
	batch := make([]features.Window, 0, end-p.next)
	for i := p.next; i < end; i++ {
		batch = append(batch, p.source.At(i))
	}

	images, err := p.eng.Synthesize(ctx, batch)
	if err != nil {
		p.st = stateFailed
		p.err = err
		return Frame{}, err
	}
	if err := validateBatch(images, len(batch)); err != nil {
		p.st = stateFailed
		p.err = err
		return Frame{}, err
	}

	p.next = end
	p.pending = images
	p.st = stateDraining
	return p.pop(), nil
}

func (p *Producer) pop() Frame {
	img := p.pending[0]
	p.pending = p.pending[1:]
	if len(p.pending) == 0 {
		p.st = stateAwaitingBatch
	}
	return p.convert(img)
}

func validateBatch(images []engine.Image, want int) error {
	if len(images) != want {
		return fmt.Errorf("%w: engine returned %d images for a batch of %d",
			engine.ErrSynthesis, len(images), want)
	}
	for i, img := range images {
		if img.Width <= 0 || img.Height <= 0 || len(img.Pix) != img.Width*img.Height*3 {
			return fmt.Errorf("%w: image %d has shape %dx%d with %d bytes",
				engine.ErrSynthesis, i, img.Width, img.Height, len(img.Pix))
		}
	}
	return nil
}

// convert resizes an engine image to the target resolution and swaps the
// engine's native BGR order to the RGB order the wire protocol requires.
func (p *Producer) convert(img engine.Image) Frame {
	src := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	for i := 0; i < img.Width*img.Height; i++ {
		src.Pix[i*4+0] = img.Pix[i*3+2]
		src.Pix[i*4+1] = img.Pix[i*3+1]
		src.Pix[i*4+2] = img.Pix[i*3+0]
		src.Pix[i*4+3] = 255
	}

	dst := src
	if img.Width != p.targetW || img.Height != p.targetH {
		dst = image.NewRGBA(image.Rect(0, 0, p.targetW, p.targetH))
		xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	}

	rgb := make([]byte, p.targetW*p.targetH*3)
	for i := 0; i < p.targetW*p.targetH; i++ {
		rgb[i*3+0] = dst.Pix[i*4+0]
		rgb[i*3+1] = dst.Pix[i*4+1]
		rgb[i*3+2] = dst.Pix[i*4+2]
	}
	return Frame{Width: p.targetW, Height: p.targetH, RGB: rgb}
}
