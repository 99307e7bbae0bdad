package stream

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// Metrics instruments the streaming loop. A nil *Metrics is a no-op, so the
// session can run without telemetry wired up.
type Metrics struct {
	frames     metric.Int64Counter
	lateFrames metric.Int64Counter
	sendSec    metric.Float64Histogram
	genSec     metric.Float64Histogram
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	frames, err := meter.Int64Counter("rsfx.frames.sent",
		metric.WithDescription("Frames written to the renderer"))
	if err != nil {
		return nil, err
	}
	late, err := meter.Int64Counter("rsfx.frames.late",
		metric.WithDescription("Frames that missed their target instant"))
	if err != nil {
		return nil, err
	}
	sendSec, err := meter.Float64Histogram("rsfx.frame.send.duration",
		metric.WithDescription("Per-frame transport write duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	genSec, err := meter.Float64Histogram("rsfx.frame.generate.duration",
		metric.WithDescription("Per-frame generation wait, including batch synthesis"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &Metrics{frames: frames, lateFrames: late, sendSec: sendSec, genSec: genSec}, nil
}

func (m *Metrics) AddFrame(ctx context.Context) {
	if m == nil {
		return
	}
	m.frames.Add(ctx, 1)
}

func (m *Metrics) AddLateFrame(ctx context.Context) {
	if m == nil {
		return
	}
	m.lateFrames.Add(ctx, 1)
}

func (m *Metrics) ObserveSend(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.sendSec.Record(ctx, d.Seconds())
}

func (m *Metrics) ObserveGenerate(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.genSec.Record(ctx, d.Seconds())
}
