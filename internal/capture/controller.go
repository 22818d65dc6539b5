package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Consume-side defaults.
const (
	// DefaultGetTimeout bounds each wait for a frame; expiry is a liveness
	// warning, not a failure.
	DefaultGetTimeout = 5 * time.Second
	// DefaultReportInterval is how often the delivery rate is reported.
	DefaultReportInterval = 1 * time.Second
)

// ControllerConfig configures a pipeline run.
type ControllerConfig struct {
	// URL of the live stream to acquire.
	URL string
	// OutputWidth/OutputHeight override the probed geometry when non-zero.
	OutputWidth  int
	OutputHeight int
	// HardwareAvailable is the startup capability-check result.
	HardwareAvailable bool
	// ForceSoftware disables hardware decoding regardless of capability.
	ForceSoftware bool
	// BufferCapacity bounds the frame queue (default 30).
	BufferCapacity int
	// GetTimeout bounds each consume-side wait (default 5s).
	GetTimeout time.Duration
	// ReportInterval is the FPS reporting period (default 1s).
	ReportInterval time.Duration
	// Supervisor holds the relaunch timing.
	Supervisor SupervisorConfig
}

// Controller is the top-level pipeline driver: it resolves the stream, runs a
// supervisor per attempt, consumes frames, and applies the one-shot
// hardware-to-software fallback on teardown.
type Controller struct {
	config   ControllerConfig
	prober   Prober
	launcher Launcher
	consumer Consumer
	logger   *slog.Logger
	stats    *Stats
}

// NewController wires the pipeline collaborators together.
func NewController(config ControllerConfig, prober Prober, launcher Launcher, consumer Consumer) *Controller {
	if config.GetTimeout <= 0 {
		config.GetTimeout = DefaultGetTimeout
	}
	if config.ReportInterval <= 0 {
		config.ReportInterval = DefaultReportInterval
	}
	if config.BufferCapacity <= 0 {
		config.BufferCapacity = DefaultBufferCapacity
	}
	return &Controller{
		config:   config,
		prober:   prober,
		launcher: launcher,
		consumer: consumer,
		logger:   slog.Default().With(slog.String("component", "controller")),
		stats:    NewStats(),
	}
}

// WithLogger sets the logger.
func (c *Controller) WithLogger(logger *slog.Logger) *Controller {
	if logger != nil {
		c.logger = logger.With(slog.String("component", "controller"))
	}
	return c
}

// Stats returns the live pipeline counters.
func (c *Controller) Stats() *Stats {
	return c.stats
}

// Run drives the pipeline until the consumer quits, the context is canceled,
// or a teardown arrives with no fallback left to try. Exiting without error
// is the normal outcome for every one of those paths.
func (c *Controller) Run(ctx context.Context) error {
	mode := AccelSoftware
	if c.config.HardwareAvailable && !c.config.ForceSoftware {
		mode = AccelHardware
	}
	triedHardwareFallback := false

	for {
		c.stats.SetMode(mode)
		desc := c.resolveDescriptor(ctx)

		c.logger.Info("starting acquisition",
			slog.String("accel_mode", string(mode)),
			slog.Int("stream_index", desc.StreamIndex),
			slog.Int("width", desc.Width),
			slog.Int("height", desc.Height),
		)

		shutdown := NewSignal()
		stopAfter := context.AfterFunc(ctx, shutdown.Set)

		buffer := NewBuffer(c.config.BufferCapacity, shutdown)
		supervisor := NewSupervisor(c.launcher, desc, mode, buffer, shutdown, c.config.Supervisor, c.logger).
			WithStats(c.stats)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			supervisor.Run(ctx)
		}()

		c.consume(ctx, buffer, shutdown)

		// Teardown: stop the producer before deciding what happens next.
		// The supervisor kills its process on the way out, so no decode
		// process survives this point.
		shutdown.Set()
		wg.Wait()
		stopAfter()

		if ctx.Err() != nil {
			c.logger.Info("acquisition stopped", slog.String("reason", "interrupt"))
			return nil
		}

		// Any teardown while still in hardware mode counts as a hardware
		// failure: there is no more specific signal available, so the
		// trigger is deliberately broad. One fallback per run.
		if mode == AccelHardware && !triedHardwareFallback {
			c.logger.Warn("hardware decoding failed, falling back to software")
			mode = AccelSoftware
			triedHardwareFallback = true
			c.stats.FallbackRecorded()
			continue
		}

		c.logger.Info("acquisition stopped")
		return nil
	}
}

// resolveDescriptor probes the URL, applies configured output overrides, and
// substitutes the default descriptor when probing fails. A probe failure is
// never fatal.
func (c *Controller) resolveDescriptor(ctx context.Context) StreamDescriptor {
	desc, err := c.prober.Probe(ctx, c.config.URL)
	if err != nil {
		c.logger.Warn("stream probe failed, using default descriptor",
			slog.String("error", err.Error()),
		)
		desc = DefaultDescriptor(c.config.URL)
	}
	if c.config.OutputWidth > 0 && c.config.OutputHeight > 0 {
		desc.Width = c.config.OutputWidth
		desc.Height = c.config.OutputHeight
	}
	return desc
}

// consume pulls frames from the buffer and forwards them to the consumer,
// reporting the delivery rate once per report interval. It returns when the
// consumer quits or errors, or once shutdown is signaled and the buffer is
// drained.
func (c *Controller) consume(ctx context.Context, buffer *Buffer, shutdown *Signal) {
	lastReport := time.Now()
	windowFrames := 0

	for {
		if shutdown.IsSet() && buffer.Len() == 0 {
			return
		}

		frame, err := buffer.Get(c.config.GetTimeout)
		switch {
		case errors.Is(err, ErrTimeout):
			c.logger.Warn("no frames received, waiting",
				slog.Duration("timeout", c.config.GetTimeout),
			)
			continue
		case errors.Is(err, ErrClosed):
			return
		}

		c.stats.FrameDelivered()
		windowFrames++

		if err := c.consumer.Consume(frame); err != nil {
			if errors.Is(err, ErrQuit) {
				c.logger.Info("consumer requested quit")
			} else {
				c.logger.Error("consumer failed",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		if elapsed := time.Since(lastReport); elapsed >= c.config.ReportInterval {
			fps := float64(windowFrames) / elapsed.Seconds()
			c.stats.SetRate(fps)
			c.logger.Info("frame delivery rate",
				slog.Float64("fps", fps),
				slog.Int("buffered", buffer.Len()),
			)
			windowFrames = 0
			lastReport = time.Now()
		}
	}
}
