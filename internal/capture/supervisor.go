package capture

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Supervisor defaults, in wall-clock time.
const (
	// DefaultRestartDelay is slept after a normal session end before
	// relaunching, to avoid hot-looping against a dead source.
	DefaultRestartDelay = 1 * time.Second
	// DefaultLaunchBackoff is slept after the decode process fails to start.
	DefaultLaunchBackoff = 2 * time.Second
)

// SupervisorConfig tunes the relaunch timing of a Supervisor.
type SupervisorConfig struct {
	RestartDelay  time.Duration
	LaunchBackoff time.Duration
}

// DefaultSupervisorConfig returns the standard relaunch timing.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		RestartDelay:  DefaultRestartDelay,
		LaunchBackoff: DefaultLaunchBackoff,
	}
}

// Supervisor owns one decode-process lifecycle at a time: it launches the
// process, frames its output into the buffer, and relaunches after each
// session end until shutdown is signaled. It never decides accelerator
// fallback; that is the controller's call.
type Supervisor struct {
	launcher Launcher
	desc     StreamDescriptor
	mode     AccelMode
	buffer   *Buffer
	shutdown *Signal
	config   SupervisorConfig
	logger   *slog.Logger
	stats    *Stats
}

// NewSupervisor creates a supervisor bound to one descriptor and accel mode.
func NewSupervisor(launcher Launcher, desc StreamDescriptor, mode AccelMode, buffer *Buffer, shutdown *Signal, config SupervisorConfig, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	if config.RestartDelay <= 0 {
		config.RestartDelay = DefaultRestartDelay
	}
	if config.LaunchBackoff <= 0 {
		config.LaunchBackoff = DefaultLaunchBackoff
	}
	return &Supervisor{
		launcher: launcher,
		desc:     desc,
		mode:     mode,
		buffer:   buffer,
		shutdown: shutdown,
		config:   config,
		logger:   logger.With(slog.String("component", "supervisor")),
	}
}

// WithStats attaches a stats collector updated as sessions come and go.
func (s *Supervisor) WithStats(stats *Stats) *Supervisor {
	s.stats = stats
	return s
}

// Run loops decode sessions until the shutdown signal is observed at the top
// of the loop. It is intended to run on its own goroutine.
func (s *Supervisor) Run(ctx context.Context) {
	for {
		if s.shutdown.IsSet() {
			s.logger.Debug("supervisor terminating")
			return
		}

		s.runSession(ctx)

		// Fixed backoff before reconnecting, interruptible by shutdown.
		select {
		case <-s.shutdown.Done():
			return
		case <-time.After(s.config.RestartDelay):
		}
	}
}

// runSession drives a single launch-stream-teardown cycle. The process is
// force-killed on every exit path; Kill is idempotent so abnormal paths and
// the shutdown watcher may both fire.
func (s *Supervisor) runSession(ctx context.Context) {
	sessionID := uuid.NewString()
	logger := s.logger.With(slog.String("session_id", sessionID))

	proc, err := s.launcher.Launch(ctx, s.desc, s.mode)
	if err != nil {
		logger.Warn("decoder launch failed",
			slog.String("accel_mode", string(s.mode)),
			slog.String("error", err.Error()),
		)
		select {
		case <-s.shutdown.Done():
		case <-time.After(s.config.LaunchBackoff):
		}
		return
	}

	if s.stats != nil {
		s.stats.SessionStarted(sessionID)
	}
	logger.Info("decode session started",
		slog.String("accel_mode", string(s.mode)),
		slog.Int("width", s.desc.Width),
		slog.Int("height", s.desc.Height),
		slog.Int("frame_size", s.desc.FrameSize()),
	)

	sessionDone := make(chan struct{})
	defer func() {
		close(sessionDone)
		_ = proc.Kill()
		_ = proc.Wait()
		if s.stats != nil {
			s.stats.SessionEnded()
		}
	}()

	// A framer blocked in a read is only unstuck by killing the process,
	// which closes the pipe and surfaces as EOF.
	go func() {
		select {
		case <-s.shutdown.Done():
			_ = proc.Kill()
		case <-sessionDone:
		}
	}()

	framer := NewFramer(proc.Stdout(), s.desc, s.shutdown)
	for {
		frame, err := framer.Next()
		if err != nil {
			logger.Info("decode session ended",
				slog.Uint64("frames", framer.Frames()),
			)
			return
		}
		if err := s.buffer.Put(frame); err != nil {
			// Shutdown fired while we were blocked on backpressure.
			return
		}
	}
}
