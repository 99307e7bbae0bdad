package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Message tags, two ASCII bytes on the wire.
const (
	TagFrame   = "RF"
	TagAudio   = "RA"
	TagControl = "RC"
)

// Control command codes carried by RC messages.
const (
	ControlStop  byte = 0
	ControlStart byte = 1
	ControlReady byte = 2
)

const (
	tagSize = 2

	// FrameHeaderSize is the fixed RF header after the tag:
	// uint16 width + uint16 height + uint64 timestamp_us.
	FrameHeaderSize = 12

	// AudioHeaderSize is the fixed RA header after the tag: uint32 byte length.
	AudioHeaderSize = 4

	maxFrameDim = 1<<16 - 1
)

// Frame is a decoded RF message.
type Frame struct {
	Width           int
	Height          int
	TimestampMicros uint64
	RGB             []byte
}

// Message is a decoded wire message. Exactly one payload field is set,
// according to Tag.
type Message struct {
	Tag     string
	Frame   *Frame
	Audio   []byte
	Control byte
}

// EncodeFrame serializes an RF message: tag, little-endian header, then
// width*height*3 raw RGB bytes. The whole message is returned as one buffer
// so the caller can hand it to a single write.
func EncodeFrame(width, height int, timestampMicros uint64, rgb []byte) ([]byte, error) {
	if width <= 0 || height <= 0 || width > maxFrameDim || height > maxFrameDim {
		return nil, fmt.Errorf("frame dimensions out of range: %dx%d", width, height)
	}
	if want := width * height * 3; len(rgb) != want {
		return nil, fmt.Errorf("frame payload size mismatch: expected %d bytes for %dx%d, got %d",
			want, width, height, len(rgb))
	}

	buf := make([]byte, tagSize+FrameHeaderSize+len(rgb))
	copy(buf, TagFrame)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(width))
	binary.LittleEndian.PutUint16(buf[4:6], uint16(height))
	binary.LittleEndian.PutUint64(buf[6:14], timestampMicros)
	copy(buf[14:], rgb)
	return buf, nil
}

// EncodeAudio serializes an RA message: tag, uint32 length, then raw s16le
// PCM bytes.
func EncodeAudio(pcm []byte) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("audio payload not sample aligned: %d bytes", len(pcm))
	}
	if uint64(len(pcm)) > 1<<32-1 {
		return nil, fmt.Errorf("audio payload too large: %d bytes", len(pcm))
	}

	buf := make([]byte, tagSize+AudioHeaderSize+len(pcm))
	copy(buf, TagAudio)
	binary.LittleEndian.PutUint32(buf[2:6], uint32(len(pcm)))
	copy(buf[6:], pcm)
	return buf, nil
}

// EncodeControl serializes a 3-byte RC message.
func EncodeControl(code byte) ([]byte, error) {
	if !IsValidControl(code) {
		return nil, fmt.Errorf("invalid control code: %d", code)
	}
	return []byte{TagControl[0], TagControl[1], code}, nil
}

// IsValidControl reports whether code is a known RC command.
func IsValidControl(code byte) bool {
	return code == ControlStop || code == ControlStart || code == ControlReady
}

// ReadMessage reads and decodes the next message from r. It returns io.EOF
// when the stream ends cleanly on a message boundary.
func ReadMessage(r io.Reader) (*Message, error) {
	var tag [tagSize]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read message tag: %w", err)
	}

	switch string(tag[:]) {
	case TagFrame:
		return readFrame(r)
	case TagAudio:
		return readAudio(r)
	case TagControl:
		return readControl(r)
	default:
		return nil, fmt.Errorf("unknown message tag: %q", tag[:])
	}
}

func readFrame(r io.Reader) (*Message, error) {
	var header [FrameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read frame header: %w", err)
	}

	frame := &Frame{
		Width:           int(binary.LittleEndian.Uint16(header[0:2])),
		Height:          int(binary.LittleEndian.Uint16(header[2:4])),
		TimestampMicros: binary.LittleEndian.Uint64(header[4:12]),
	}
	if frame.Width == 0 || frame.Height == 0 {
		return nil, fmt.Errorf("invalid frame dimensions: %dx%d", frame.Width, frame.Height)
	}

	frame.RGB = make([]byte, frame.Width*frame.Height*3)
	if _, err := io.ReadFull(r, frame.RGB); err != nil {
		return nil, fmt.Errorf("read frame rgb data: %w", err)
	}
	return &Message{Tag: TagFrame, Frame: frame}, nil
}

func readAudio(r io.Reader) (*Message, error) {
	var header [AudioHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read audio length: %w", err)
	}

	pcm := make([]byte, binary.LittleEndian.Uint32(header[:]))
	if _, err := io.ReadFull(r, pcm); err != nil {
		return nil, fmt.Errorf("read audio pcm data: %w", err)
	}
	return &Message{Tag: TagAudio, Audio: pcm}, nil
}

func readControl(r io.Reader) (*Message, error) {
	var code [1]byte
	if _, err := io.ReadFull(r, code[:]); err != nil {
		return nil, fmt.Errorf("read control code: %w", err)
	}
	if !IsValidControl(code[0]) {
		return nil, fmt.Errorf("unknown control code: %d", code[0])
	}
	return &Message{Tag: TagControl, Control: code[0]}, nil
}
