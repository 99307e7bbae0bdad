package protocol

import "time"

// SessionStarted announces a streaming session on the bus.
type SessionStarted struct {
	SessionID string    `json:"session_id"`
	Reference string    `json:"reference"`
	Audio     string    `json:"audio"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	FPS       int       `json:"fps"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionFinished reports the outcome of a streaming session.
type SessionFinished struct {
	SessionID   string    `json:"session_id"`
	FramesSent  int       `json:"frames_sent"`
	Termination string    `json:"termination"`
	Timestamp   time.Time `json:"timestamp"`
}

const (
	SubjectSessionStarted  = "avatar.session.started"
	SubjectSessionFinished = "avatar.session.finished"
)
