package engine

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/RomanSlack/rsfx/internal/config"
	"github.com/RomanSlack/rsfx/internal/features"
)

// execEngine drives a persistent worker subprocess. Model load is expensive,
// so the process is spawned once and kept alive for the whole run; requests
// and responses are line-delimited JSON with base64 payloads over
// stdin/stdout.
type execEngine struct {
	cfg       config.EngineConfig
	reference string
	log       *slog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	scanner *bufio.Scanner
}

type execPrepareRequest struct {
	Op        string `json:"op"`
	Reference string `json:"reference"`
	Device    string `json:"device,omitempty"`
	Float16   bool   `json:"float16"`
}

type execSynthRequest struct {
	Op            string   `json:"op"`
	WindowsBase64 []string `json:"windows_base64"`
	Rows          int      `json:"rows"`
	Cols          int      `json:"cols"`
}

type execResponse struct {
	OK           bool     `json:"ok"`
	ImagesBase64 []string `json:"images_base64,omitempty"`
	Width        int      `json:"width,omitempty"`
	Height       int      `json:"height,omitempty"`
	Error        string   `json:"error,omitempty"`
}

func newExecEngine(cfg config.EngineConfig, reference string, log *slog.Logger) (Engine, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse engine command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("engine command empty")
	}

	e := &execEngine{
		cfg:       cfg,
		reference: reference,
		log:       log.With(slog.String("component", "engine")),
	}
	if err := e.start(args); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *execEngine) start(args []string) error {
	cmd := exec.Command(args[0], args[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("engine stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("engine stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start engine worker: %w", err)
	}

	e.cmd = cmd
	e.stdin = stdin
	e.scanner = bufio.NewScanner(stdout)
	// Batches of raw images can be large.
	e.scanner.Buffer(make([]byte, 1<<20), 1<<28)

	prep := execPrepareRequest{
		Op:        "prepare",
		Reference: e.reference,
		Device:    e.cfg.Device,
		Float16:   e.cfg.Float16,
	}
	resp, err := e.roundTrip(prep)
	if err != nil {
		e.stop()
		return fmt.Errorf("prepare reference: %w", err)
	}
	if !resp.OK {
		e.stop()
		return fmt.Errorf("prepare reference: %s", resp.Error)
	}
	e.log.Info("engine worker ready", slog.String("reference", e.reference))
	return nil
}

func (e *execEngine) Synthesize(ctx context.Context, batch []features.Window) ([]Image, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.cmd == nil {
		return nil, fmt.Errorf("%w: engine worker not running", ErrSynthesis)
	}

	req := execSynthRequest{Op: "synthesize"}
	for _, w := range batch {
		req.WindowsBase64 = append(req.WindowsBase64, base64.StdEncoding.EncodeToString(windowBytes(w)))
		req.Rows, req.Cols = w.Rows, w.Cols
	}

	resp, err := e.roundTrip(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesis, err)
	}
	if !resp.OK {
		return nil, fmt.Errorf("%w: %s", ErrSynthesis, resp.Error)
	}
	if len(resp.ImagesBase64) != len(batch) {
		return nil, fmt.Errorf("%w: batch count mismatch: sent %d windows, got %d images",
			ErrSynthesis, len(batch), len(resp.ImagesBase64))
	}

	images := make([]Image, len(resp.ImagesBase64))
	for i, enc := range resp.ImagesBase64 {
		pix, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return nil, fmt.Errorf("%w: decode image %d: %v", ErrSynthesis, i, err)
		}
		img := Image{Width: resp.Width, Height: resp.Height, Pix: pix}
		if !validImage(img) {
			return nil, fmt.Errorf("%w: image %d malformed: %dx%d with %d bytes",
				ErrSynthesis, i, img.Width, img.Height, len(pix))
		}
		images[i] = img
	}
	return images, nil
}

func (e *execEngine) roundTrip(req any) (*execResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	payload = append(payload, '\n')
	if _, err := e.stdin.Write(payload); err != nil {
		return nil, fmt.Errorf("write to engine worker: %w", err)
	}
	for e.scanner.Scan() {
		line := e.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp execResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			return nil, fmt.Errorf("decode engine response: %w", err)
		}
		return &resp, nil
	}
	if err := e.scanner.Err(); err != nil {
		return nil, fmt.Errorf("read engine response: %w", err)
	}
	return nil, fmt.Errorf("engine worker closed its output")
}

func (e *execEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stop()
}

func (e *execEngine) stop() error {
	if e.cmd == nil {
		return nil
	}
	_ = e.stdin.Close()
	err := e.cmd.Wait()
	e.cmd = nil
	return err
}

func windowBytes(w features.Window) []byte {
	out := make([]byte, len(w.Data)*4)
	for i, f := range w.Data {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}
