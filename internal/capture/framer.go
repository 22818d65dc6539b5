package capture

import (
	"io"
	"time"
)

// Framer converts a decode process's raw byte stream into discrete frames.
// It emits a frame only once exactly FrameSize bytes have accumulated; a zero
// or short read means the session is over. There is no mid-stream re-sync:
// the raw stream carries no markers, so a truncated frame is unrecoverable
// for the current process and the supervisor relaunches instead.
type Framer struct {
	r        io.Reader
	desc     StreamDescriptor
	shutdown *Signal
	seq      uint64
}

// NewFramer wraps the process output for one session.
func NewFramer(r io.Reader, desc StreamDescriptor, shutdown *Signal) *Framer {
	return &Framer{r: r, desc: desc, shutdown: shutdown}
}

// Next blocks until a full frame is read. It returns ErrSessionEnded on EOF,
// short read, or once shutdown has been signaled. A blocked read is unstuck
// by killing the process, which closes the pipe and surfaces as EOF here.
func (f *Framer) Next() (Frame, error) {
	if f.shutdown.IsSet() {
		return Frame{}, ErrSessionEnded
	}
	// A descriptor without geometry can never produce a frame; reading zero
	// bytes would otherwise succeed forever.
	if f.desc.FrameSize() <= 0 {
		return Frame{}, ErrSessionEnded
	}

	data := make([]byte, f.desc.FrameSize())
	if _, err := io.ReadFull(f.r, data); err != nil {
		// io.EOF, io.ErrUnexpectedEOF, and pipe errors all mean the same
		// thing at this level: the session is over.
		return Frame{}, ErrSessionEnded
	}

	f.seq++
	return Frame{
		Data:       data,
		Width:      f.desc.Width,
		Height:     f.desc.Height,
		Seq:        f.seq,
		CapturedAt: time.Now(),
	}, nil
}

// Frames returns the number of frames emitted so far in this session.
func (f *Framer) Frames() uint64 {
	return f.seq
}
