// Package sink provides frame consumers for the capture pipeline.
package sink

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/jmylchreest/framegrab/internal/capture"
)

// Headless consumes frames without rendering them. It optionally stops the
// pipeline after a fixed number of frames, which stands in for a user closing
// the display window.
type Headless struct {
	maxFrames uint64
	consumed  atomic.Uint64
}

// NewHeadless creates a headless sink. maxFrames of zero consumes forever.
func NewHeadless(maxFrames uint64) *Headless {
	return &Headless{maxFrames: maxFrames}
}

// Consume implements capture.Consumer.
func (h *Headless) Consume(frame capture.Frame) error {
	n := h.consumed.Add(1)
	if h.maxFrames > 0 && n >= h.maxFrames {
		return capture.ErrQuit
	}
	return nil
}

// Consumed returns the number of frames consumed so far.
func (h *Headless) Consumed() uint64 {
	return h.consumed.Load()
}

// Writer streams raw frame bytes to an io.Writer, e.g. a file or a pipe into
// another tool. Frames come out exactly as they arrived from the decoder:
// concatenated BGR24 planes.
type Writer struct {
	w         io.Writer
	maxFrames uint64
	consumed  atomic.Uint64
}

// NewWriter creates a writer sink. maxFrames of zero consumes forever.
func NewWriter(w io.Writer, maxFrames uint64) *Writer {
	return &Writer{w: w, maxFrames: maxFrames}
}

// Consume implements capture.Consumer.
func (s *Writer) Consume(frame capture.Frame) error {
	if _, err := s.w.Write(frame.Data); err != nil {
		return fmt.Errorf("writing frame %d: %w", frame.Seq, err)
	}
	n := s.consumed.Add(1)
	if s.maxFrames > 0 && n >= s.maxFrames {
		return capture.ErrQuit
	}
	return nil
}

// Consumed returns the number of frames written so far.
func (s *Writer) Consumed() uint64 {
	return s.consumed.Load()
}
