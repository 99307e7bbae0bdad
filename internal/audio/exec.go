package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/mattn/go-shellwords"

	"github.com/RomanSlack/rsfx/internal/config"
)

// execDecoder shells out to an external decoder (typically ffmpeg) that
// writes raw mono s16le samples at the requested rate to stdout. Covers
// formats the built-in wav decoder does not.
type execDecoder struct {
	cmd []string
}

func newExecDecoder(cfg config.AudioConfig) (Decoder, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse audio decoder command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("audio decoder command empty")
	}
	return &execDecoder{cmd: args}, nil
}

func (d *execDecoder) Decode(ctx context.Context, path string, sampleRate int) ([]float32, error) {
	args := append([]string{}, d.cmd[1:]...)
	args = append(args, "--input", path, "--rate", strconv.Itoa(sampleRate))

	command := exec.CommandContext(ctx, d.cmd[0], args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return nil, fmt.Errorf("%w: decoder command failed: %v: %s", ErrInvalidTrack, err, stderr.String())
	}

	raw := stdout.Bytes()
	if len(raw) == 0 || len(raw)%2 != 0 {
		return nil, fmt.Errorf("%w: decoder produced %d bytes", ErrInvalidTrack, len(raw))
	}

	samples := make([]float32, len(raw)/2)
	for i := range samples {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(raw[i*2:]))) / 32768
	}
	return samples, nil
}
