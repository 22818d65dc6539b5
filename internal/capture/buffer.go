package capture

import "time"

// DefaultBufferCapacity bounds the producer/consumer queue.
const DefaultBufferCapacity = 30

// Buffer is a bounded FIFO of frames decoupling the supervisor (producer)
// from the controller's consume loop. Put blocks when full rather than
// dropping; frames are delivered in exactly the order they were produced.
type Buffer struct {
	frames   chan Frame
	shutdown *Signal
}

// NewBuffer creates a buffer bound to a shutdown signal. A non-positive
// capacity falls back to DefaultBufferCapacity.
func NewBuffer(capacity int, shutdown *Signal) *Buffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &Buffer{
		frames:   make(chan Frame, capacity),
		shutdown: shutdown,
	}
}

// Put enqueues a frame, blocking while the buffer is full. Once shutdown is
// signaled it returns ErrClosed immediately without enqueuing.
func (b *Buffer) Put(f Frame) error {
	select {
	case <-b.shutdown.Done():
		return ErrClosed
	default:
	}

	select {
	case b.frames <- f:
		return nil
	case <-b.shutdown.Done():
		return ErrClosed
	}
}

// Get dequeues the next frame, waiting up to timeout. It returns ErrTimeout
// when nothing arrives in time (non-fatal; callers retry), and ErrClosed once
// shutdown is signaled and the buffer is drained. Frames already enqueued
// before shutdown are still delivered.
func (b *Buffer) Get(timeout time.Duration) (Frame, error) {
	select {
	case f := <-b.frames:
		return f, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case f := <-b.frames:
		return f, nil
	case <-timer.C:
		return Frame{}, ErrTimeout
	case <-b.shutdown.Done():
		// Drain anything enqueued before the signal fired.
		select {
		case f := <-b.frames:
			return f, nil
		default:
			return Frame{}, ErrClosed
		}
	}
}

// Len returns the number of frames currently enqueued.
func (b *Buffer) Len() int {
	return len(b.frames)
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	return cap(b.frames)
}
