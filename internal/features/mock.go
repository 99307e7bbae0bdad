package features

import "context"

type mockExtractor struct {
	rows int
	cols int
}

// NewMockExtractor returns an extractor producing deterministic windows of
// the configured shape, one per frame. The values encode the frame index and
// the mean energy of the frame's sample span, so downstream fakes can assert
// on ordering.
func NewMockExtractor(rows, cols int) Extractor {
	return &mockExtractor{rows: rows, cols: cols}
}

func (m *mockExtractor) ExtractWindows(_ context.Context, samples []float32, sampleRate, fps int) ([]Window, error) {
	count := WindowCount(len(samples), sampleRate, fps)
	windows := make([]Window, count)
	samplesPerFrame := sampleRate / fps
	if samplesPerFrame <= 0 {
		samplesPerFrame = 1
	}

	for i := range windows {
		data := make([]float32, m.rows*m.cols)
		var energy float32
		start := i * samplesPerFrame
		for j := start; j < start+samplesPerFrame && j < len(samples); j++ {
			s := samples[j]
			energy += s * s
		}
		energy /= float32(samplesPerFrame)
		for j := range data {
			data[j] = energy
		}
		data[0] = float32(i)
		windows[i] = Window{Data: data, Rows: m.rows, Cols: m.cols}
	}
	return windows, nil
}
