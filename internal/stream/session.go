// Package stream drives the streaming session: handshake, audio upload, and
// the real-time pacing of frame emission.
package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/RomanSlack/rsfx/internal/producer"
	"github.com/RomanSlack/rsfx/internal/protocol"
	"github.com/RomanSlack/rsfx/internal/sender"
)

// Termination reasons reported in the session result.
const (
	TerminationCompleted    = "completed"
	TerminationDisconnected = "peer_disconnected"
	TerminationCancelled    = "cancelled"
	TerminationFailed       = "failed"
)

// Result reports the outcome of a session. FramesSent is valid on every
// termination path, including errors.
type Result struct {
	FramesSent  int
	Termination string
}

// settleDelay is the pause between the ready control message and the audio
// upload, giving the renderer time to arm its playback path.
const settleDelay = 100 * time.Millisecond

// Session owns one connect-to-disconnect lifetime of the wire client.
// Everything runs on the caller's goroutine: generate, pace, send, repeat.
// Cancellation is cooperative and takes effect between frames.
type Session struct {
	client  *sender.Client
	prod    *producer.Producer
	fps     int
	log     *slog.Logger
	metrics *Metrics

	// Injected for deterministic pacing tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewSession(client *sender.Client, prod *producer.Producer, fps int, log *slog.Logger, metrics *Metrics) *Session {
	return &Session{
		client:  client,
		prod:    prod,
		fps:     fps,
		log:     log.With(slog.String("component", "session")),
		metrics: metrics,
		now:     time.Now,
		sleep:   sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run performs the handshake, uploads the full PCM track, then streams
// frames at the target cadence until the sequence is exhausted, the peer
// disconnects, or ctx is cancelled. The transport is released on every exit
// path. Peer disconnect and cancellation are recovered locally: the result
// carries partial progress and err is nil.
func (s *Session) Run(ctx context.Context, pcm []byte) (res Result, err error) {
	defer func() {
		if cerr := s.client.Close(); cerr != nil {
			s.log.Warn("transport close failed", slog.String("error", cerr.Error()))
		}
	}()

	if err := s.client.SendControl(protocol.ControlReady); err != nil {
		return Result{Termination: TerminationFailed}, err
	}
	if err := s.sleep(ctx, settleDelay); err != nil {
		return Result{Termination: TerminationCancelled}, nil
	}
	if err := s.client.SendAudio(pcm); err != nil {
		if errors.Is(err, sender.ErrPeerDisconnected) {
			s.log.Warn("renderer disconnected during audio upload")
			return Result{Termination: TerminationDisconnected}, nil
		}
		return Result{Termination: TerminationFailed}, err
	}

	// The absolute schedule: every target instant is computed from this one
	// start, never from the previous frame's completion. Late frames stay
	// late; they never push the schedule back.
	start := s.now()
	interval := time.Duration(float64(time.Second) / float64(s.fps))

	var tsBase time.Time
	var lastTS uint64
	framesSent := 0

	for {
		if ctx.Err() != nil {
			s.log.Info("session cancelled", slog.Int("frames_sent", framesSent))
			return Result{FramesSent: framesSent, Termination: TerminationCancelled}, nil
		}

		genStart := s.now()
		frame, err := s.prod.Next(ctx)
		if err == io.EOF {
			return Result{FramesSent: framesSent, Termination: TerminationCompleted}, nil
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return Result{FramesSent: framesSent, Termination: TerminationCancelled}, nil
			}
			return Result{FramesSent: framesSent, Termination: TerminationFailed}, err
		}
		s.metrics.ObserveGenerate(ctx, s.now().Sub(genStart))

		// Timestamps count from the first frame's send instant so the
		// receiver replays on its own timeline.
		sendAt := s.now()
		if tsBase.IsZero() {
			tsBase = sendAt
		}
		ts := uint64(sendAt.Sub(tsBase).Microseconds())
		if framesSent > 0 && ts <= lastTS {
			ts = lastTS + 1
		}
		lastTS = ts

		if err := s.client.SendFrame(frame.Width, frame.Height, ts, frame.RGB); err != nil {
			if errors.Is(err, sender.ErrPeerDisconnected) {
				s.log.Warn("renderer disconnected", slog.Int("frames_sent", framesSent))
				return Result{FramesSent: framesSent, Termination: TerminationDisconnected}, nil
			}
			return Result{FramesSent: framesSent, Termination: TerminationFailed}, err
		}
		framesSent++
		s.metrics.ObserveSend(ctx, s.now().Sub(sendAt))
		s.metrics.AddFrame(ctx)

		target := start.Add(time.Duration(framesSent) * interval)
		if wait := target.Sub(s.now()); wait > 0 {
			if err := s.sleep(ctx, wait); err != nil {
				return Result{FramesSent: framesSent, Termination: TerminationCancelled}, nil
			}
		} else {
			s.metrics.AddLateFrame(ctx)
		}
	}
}
