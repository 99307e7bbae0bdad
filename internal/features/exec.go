package features

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"

	"github.com/mattn/go-shellwords"

	"github.com/RomanSlack/rsfx/internal/config"
)

// execExtractor shells out to the external feature extractor once per run.
// Request and response are single JSON documents with base64-encoded f32le
// tensors, on stdin and stdout respectively.
type execExtractor struct {
	cmd  []string
	rows int
	cols int
}

type execExtractRequest struct {
	SamplesBase64 string `json:"samples_base64"`
	SampleRate    int    `json:"sample_rate"`
	FPS           int    `json:"fps"`
	Rows          int    `json:"rows"`
	Cols          int    `json:"cols"`
}

type execExtractResponse struct {
	WindowsBase64 []string `json:"windows_base64"`
	Rows          int      `json:"rows"`
	Cols          int      `json:"cols"`
	Error         string   `json:"error,omitempty"`
}

func newExecExtractor(cfg config.FeaturesConfig) (Extractor, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse extractor command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("extractor command empty")
	}
	return &execExtractor{cmd: args, rows: cfg.WindowRows, cols: cfg.WindowCols}, nil
}

func (e *execExtractor) ExtractWindows(ctx context.Context, samples []float32, sampleRate, fps int) ([]Window, error) {
	req := execExtractRequest{
		SamplesBase64: base64.StdEncoding.EncodeToString(floatsToBytes(samples)),
		SampleRate:    sampleRate,
		FPS:           fps,
		Rows:          e.rows,
		Cols:          e.cols,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	command := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	command.Stdin = bytes.NewReader(payload)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return nil, fmt.Errorf("extractor command failed: %w: %s", err, stderr.String())
	}

	var resp execExtractResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("decode extractor response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("extractor error: %s", resp.Error)
	}
	if resp.Rows <= 0 || resp.Cols <= 0 {
		return nil, fmt.Errorf("extractor returned invalid window shape %dx%d", resp.Rows, resp.Cols)
	}

	want := WindowCount(len(samples), sampleRate, fps)
	if len(resp.WindowsBase64) != want {
		return nil, fmt.Errorf("extractor returned %d windows, expected %d", len(resp.WindowsBase64), want)
	}

	windows := make([]Window, len(resp.WindowsBase64))
	for i, enc := range resp.WindowsBase64 {
		raw, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return nil, fmt.Errorf("decode window %d: %w", i, err)
		}
		data := bytesToFloats(raw)
		if len(data) != resp.Rows*resp.Cols {
			return nil, fmt.Errorf("window %d has %d values, expected %d", i, len(data), resp.Rows*resp.Cols)
		}
		windows[i] = Window{Data: data, Rows: resp.Rows, Cols: resp.Cols}
	}
	return windows, nil
}

func floatsToBytes(in []float32) []byte {
	out := make([]byte, len(in)*4)
	for i, f := range in {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

func bytesToFloats(in []byte) []float32 {
	out := make([]float32, len(in)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(in[i*4:]))
	}
	return out
}
