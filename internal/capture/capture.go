// Package capture implements the frame acquisition pipeline: it supervises an
// external decode process, slices its raw output into fixed-size frames,
// buffers them with backpressure, and drives reconnect and hardware-fallback
// policy.
package capture

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

// AccelMode selects the decode path for a session.
type AccelMode string

const (
	// AccelHardware decodes on the GPU.
	AccelHardware AccelMode = "hardware"
	// AccelSoftware decodes on the CPU.
	AccelSoftware AccelMode = "software"
)

// bytesPerPixel is fixed by the packed BGR24 output format.
const bytesPerPixel = 3

// Common errors returned by the pipeline.
var (
	// ErrSessionEnded indicates the decode process stopped producing frames
	// (EOF, short read, or process exit). It is expected and recoverable.
	ErrSessionEnded = errors.New("decode session ended")
	// ErrTimeout is returned by Buffer.Get when no frame arrives in time.
	ErrTimeout = errors.New("no frame available within timeout")
	// ErrClosed is returned once shutdown is signaled and the buffer drained.
	ErrClosed = errors.New("frame buffer closed")
	// ErrQuit is returned by a Consumer to request a graceful shutdown.
	ErrQuit = errors.New("consumer requested quit")
)

// StreamDescriptor describes the video track selected for a session.
// It is re-resolved on every (re)connect since the source may change.
type StreamDescriptor struct {
	URL         string `json:"url"`
	StreamIndex int    `json:"stream_index"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

// FrameSize returns the byte length of one packed BGR24 frame.
func (d StreamDescriptor) FrameSize() int {
	return d.Width * d.Height * bytesPerPixel
}

// DefaultDescriptor is substituted when probing fails; probing failure must
// never block acquisition.
func DefaultDescriptor(url string) StreamDescriptor {
	return StreamDescriptor{URL: url, StreamIndex: 0, Width: 640, Height: 360}
}

// Frame is one decoded picture. The Data slice is owned by whoever holds the
// Frame; frames never alias each other.
type Frame struct {
	Data       []byte
	Width      int
	Height     int
	Seq        uint64
	CapturedAt time.Time
}

// Prober resolves stream geometry from a URL.
type Prober interface {
	Probe(ctx context.Context, url string) (StreamDescriptor, error)
}

// Process is a running decode process. Stdout is an unbounded raw byte stream
// of concatenated frames; Kill must be idempotent.
type Process interface {
	Stdout() io.Reader
	Kill() error
	Wait() error
}

// Launcher starts a decode process for a descriptor and accelerator mode.
type Launcher interface {
	Launch(ctx context.Context, desc StreamDescriptor, mode AccelMode) (Process, error)
}

// Consumer receives frames in order. Returning ErrQuit requests shutdown;
// any other error also tears the pipeline down.
type Consumer interface {
	Consume(Frame) error
}

// Signal is a set-once cooperative shutdown flag observed at loop heads.
// A fallback restart uses a fresh Signal rather than resetting this one.
type Signal struct {
	once sync.Once
	ch   chan struct{}
}

// NewSignal returns an unset Signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Set marks the signal. Safe to call multiple times.
func (s *Signal) Set() {
	s.once.Do(func() { close(s.ch) })
}

// IsSet reports whether the signal has been set.
func (s *Signal) IsSet() bool {
	select {
	case <-s.ch:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the signal is set.
func (s *Signal) Done() <-chan struct{} {
	return s.ch
}
