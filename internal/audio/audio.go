// Package audio decodes the input track into mono float samples at the
// pipeline sample rate and converts them to the s16le PCM block sent over
// the wire.
package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/wav"

	"github.com/RomanSlack/rsfx/internal/config"
)

// ErrInvalidTrack indicates the audio track cannot be decoded. Fatal: the
// run aborts before any socket connection is made.
var ErrInvalidTrack = errors.New("invalid audio track")

// Decoder turns an audio file into mono float32 samples in [-1, 1] at the
// requested sample rate.
type Decoder interface {
	Decode(ctx context.Context, path string, sampleRate int) ([]float32, error)
}

// NewDecoder builds a decoder from config.
func NewDecoder(cfg config.AudioConfig) (Decoder, error) {
	switch cfg.Mode {
	case "wav":
		return &wavDecoder{}, nil
	case "exec":
		return newExecDecoder(cfg)
	default:
		return nil, fmt.Errorf("unknown audio decoder mode: %q", cfg.Mode)
	}
}

type wavDecoder struct{}

func (d *wavDecoder) Decode(ctx context.Context, path string, sampleRate int) ([]float32, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTrack, err)
	}
	defer file.Close()

	dec := wav.NewDecoder(file)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: decode wav: %v", ErrInvalidTrack, err)
	}
	if buf.Format == nil || buf.Format.SampleRate <= 0 || buf.Format.NumChannels <= 0 {
		return nil, fmt.Errorf("%w: missing format information", ErrInvalidTrack)
	}
	if len(buf.Data) == 0 {
		return nil, fmt.Errorf("%w: no samples", ErrInvalidTrack)
	}

	scale := float32(int64(1) << (dec.BitDepth - 1))
	channels := buf.Format.NumChannels
	mono := make([]float32, len(buf.Data)/channels)
	for i := range mono {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += float32(buf.Data[i*channels+ch]) / scale
		}
		mono[i] = sum / float32(channels)
	}

	if buf.Format.SampleRate == sampleRate {
		return mono, nil
	}
	return resampleLinear(mono, buf.Format.SampleRate, sampleRate), nil
}

// resampleLinear converts between sample rates by linear interpolation.
// Good enough for feature extraction input; the wire PCM is produced from
// the resampled track so playback stays consistent.
func resampleLinear(in []float32, from, to int) []float32 {
	if from == to || len(in) == 0 {
		return in
	}
	outLen := int(int64(len(in)) * int64(to) / int64(from))
	if outLen == 0 {
		outLen = 1
	}
	out := make([]float32, outLen)
	ratio := float64(from) / float64(to)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = in[idx]*(1-frac) + in[idx+1]*frac
	}
	return out
}

// FloatToPCM16 converts mono float samples to s16le bytes, clipping to the
// int16 range.
func FloatToPCM16(samples []float32) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := s * 32767
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(v)))
	}
	return pcm
}
