// Package runtime wires the pipeline together for one streaming run:
// decode audio, extract feature windows, prepare the engine, connect to the
// renderer, and drive the paced session.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/RomanSlack/rsfx/internal/audio"
	"github.com/RomanSlack/rsfx/internal/bus"
	"github.com/RomanSlack/rsfx/internal/config"
	"github.com/RomanSlack/rsfx/internal/engine"
	"github.com/RomanSlack/rsfx/internal/features"
	"github.com/RomanSlack/rsfx/internal/producer"
	"github.com/RomanSlack/rsfx/internal/protocol"
	"github.com/RomanSlack/rsfx/internal/sender"
	"github.com/RomanSlack/rsfx/internal/sessionlog"
	"github.com/RomanSlack/rsfx/internal/stream"
)

type Runtime struct {
	cfg config.Config
	log *slog.Logger
}

func New(cfg config.Config, log *slog.Logger) *Runtime {
	return &Runtime{cfg: cfg, log: log}
}

// Run executes one streaming session. The returned result carries the frame
// count on every termination path, including errors.
func (r *Runtime) Run(ctx context.Context) (stream.Result, error) {
	if r.cfg.Avatar.Reference == "" {
		return stream.Result{Termination: stream.TerminationFailed}, errors.New("reference image path is required")
	}
	if r.cfg.Avatar.Audio == "" {
		return stream.Result{Termination: stream.TerminationFailed}, errors.New("audio path is required")
	}

	shutdownTelemetry, metricHandler, err := setupTelemetry(r.cfg.Telemetry, r.log)
	if err != nil {
		return stream.Result{Termination: stream.TerminationFailed}, fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			r.log.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}()

	var metricsServer *http.Server
	if bind := r.cfg.Telemetry.PrometheusBind; bind != "" && metricHandler != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricHandler)
		metricsServer = &http.Server{Addr: bind, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				r.log.Error("metrics server failed", slog.String("error", err.Error()))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	journal, err := sessionlog.Open(ctx, r.cfg.SessionLog, r.log)
	if err != nil {
		return stream.Result{Termination: stream.TerminationFailed}, fmt.Errorf("open session journal: %w", err)
	}
	defer journal.Close()

	busClient, embedded, err := r.connectBus(ctx)
	if err != nil {
		return stream.Result{Termination: stream.TerminationFailed}, err
	}
	defer embedded.Shutdown()
	defer busClient.Close()

	// Everything up to the socket connection is precondition work: a bad
	// track or engine aborts before the renderer ever sees us.
	decoder, err := audio.NewDecoder(r.cfg.Audio)
	if err != nil {
		return stream.Result{Termination: stream.TerminationFailed}, err
	}
	samples, err := decoder.Decode(ctx, r.cfg.Avatar.Audio, r.cfg.Avatar.SampleRate)
	if err != nil {
		return stream.Result{Termination: stream.TerminationFailed}, err
	}
	r.log.Info("audio decoded",
		slog.Int("samples", len(samples)),
		slog.Float64("seconds", float64(len(samples))/float64(r.cfg.Avatar.SampleRate)))

	extractor, err := features.NewExtractor(r.cfg.Features)
	if err != nil {
		return stream.Result{Termination: stream.TerminationFailed}, err
	}
	windows, err := extractor.ExtractWindows(ctx, samples, r.cfg.Avatar.SampleRate, r.cfg.Avatar.FPS)
	if err != nil {
		return stream.Result{Termination: stream.TerminationFailed}, fmt.Errorf("extract feature windows: %w", err)
	}
	if len(windows) == 0 {
		return stream.Result{Termination: stream.TerminationFailed}, fmt.Errorf("%w: track produced no frames", audio.ErrInvalidTrack)
	}
	source := features.NewSource(windows)
	r.log.Info("feature windows ready",
		slog.Int("frames", source.Len()),
		slog.Float64("seconds", float64(source.Len())/float64(r.cfg.Avatar.FPS)))

	eng, err := engine.New(r.cfg.Engine, r.cfg.Avatar.Reference, r.log)
	if err != nil {
		return stream.Result{Termination: stream.TerminationFailed}, fmt.Errorf("initialize engine: %w", err)
	}
	defer func() {
		if err := eng.Close(); err != nil {
			r.log.Warn("engine shutdown error", slog.String("error", err.Error()))
		}
	}()

	prod, err := producer.New(source, eng, r.cfg.Avatar.BatchSize, r.cfg.Avatar.Width, r.cfg.Avatar.Height)
	if err != nil {
		return stream.Result{Termination: stream.TerminationFailed}, err
	}

	client, err := sender.Connect(r.cfg.Avatar.Socket, r.log)
	if err != nil {
		return stream.Result{Termination: stream.TerminationFailed}, err
	}

	metrics, err := stream.NewMetrics(otel.Meter("rsfx-avatar"))
	if err != nil {
		r.log.Warn("stream metrics unavailable", slog.String("error", err.Error()))
		metrics = nil
	}

	sessionID := uuid.NewString()
	startedAt := time.Now().UTC()
	busClient.PublishSessionStarted(protocol.SessionStarted{
		SessionID: sessionID,
		Reference: r.cfg.Avatar.Reference,
		Audio:     r.cfg.Avatar.Audio,
		Width:     r.cfg.Avatar.Width,
		Height:    r.cfg.Avatar.Height,
		FPS:       r.cfg.Avatar.FPS,
		Timestamp: startedAt,
	})

	session := stream.NewSession(client, prod, r.cfg.Avatar.FPS, r.log, metrics)
	res, runErr := session.Run(ctx, audio.FloatToPCM16(samples))

	finishedAt := time.Now().UTC()
	if err := journal.Record(ctx, sessionlog.Session{
		ID:          sessionID,
		Reference:   r.cfg.Avatar.Reference,
		Audio:       r.cfg.Avatar.Audio,
		Width:       r.cfg.Avatar.Width,
		Height:      r.cfg.Avatar.Height,
		FPS:         r.cfg.Avatar.FPS,
		FramesSent:  res.FramesSent,
		Termination: res.Termination,
		StartedAt:   startedAt,
		FinishedAt:  finishedAt,
	}); err != nil {
		r.log.Warn("failed to record session", slog.String("error", err.Error()))
	}
	busClient.PublishSessionFinished(protocol.SessionFinished{
		SessionID:   sessionID,
		FramesSent:  res.FramesSent,
		Termination: res.Termination,
		Timestamp:   finishedAt,
	})

	r.log.Info("session finished",
		slog.String("session_id", sessionID),
		slog.Int("frames_sent", res.FramesSent),
		slog.String("termination", res.Termination))
	return res, runErr
}

// connectBus brings up the optional session event bus. Both return values
// are nil-safe: a disabled bus yields no-op handles.
func (r *Runtime) connectBus(ctx context.Context) (*bus.Client, *bus.EmbeddedServer, error) {
	if !r.cfg.Bus.Enabled {
		return nil, nil, nil
	}

	cfg := r.cfg.Bus
	embedded, err := bus.StartEmbedded(cfg, r.log)
	if err != nil {
		return nil, nil, fmt.Errorf("start embedded bus: %w", err)
	}
	if embedded != nil {
		cfg.Servers = []string{embedded.URL()}
	}

	client, err := bus.Connect(ctx, cfg, r.log)
	if err != nil {
		embedded.Shutdown()
		return nil, nil, fmt.Errorf("connect bus: %w", err)
	}
	return client, embedded, nil
}
