package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/jmylchreest/framegrab/internal/capture"
)

// maxStderrLines bounds the in-memory tail of decoder stderr kept per session.
const maxStderrLines = 100

// CommandBuilder builds FFmpeg commands with a fluent API.
type CommandBuilder struct {
	binary     string
	globalArgs []string
	inputArgs  []string
	input      string
	filterArgs []string
	outputArgs []string
	output     string
	logLevel   string
}

// NewCommandBuilder creates a new FFmpeg command builder.
func NewCommandBuilder(ffmpegPath string) *CommandBuilder {
	return &CommandBuilder{
		binary:   ffmpegPath,
		logLevel: "error",
	}
}

// LogLevel sets the FFmpeg log level.
func (b *CommandBuilder) LogLevel(level string) *CommandBuilder {
	b.logLevel = level
	return b
}

// HideBanner hides the FFmpeg banner.
func (b *CommandBuilder) HideBanner() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-hide_banner")
	return b
}

// GenPTS enables timestamp generation for streams with broken PTS.
func (b *CommandBuilder) GenPTS() *CommandBuilder {
	b.inputArgs = append(b.inputArgs, "-fflags", "+genpts")
	return b
}

// HWAccel sets the hardware acceleration method. Empty, "none", and "auto"
// are skipped; FFmpeg needs a concrete type like cuda or vaapi.
func (b *CommandBuilder) HWAccel(accel string) *CommandBuilder {
	if accel != "" && accel != "none" && accel != "auto" {
		b.inputArgs = append(b.inputArgs, "-hwaccel", accel)
	}
	return b
}

// HWAccelOutputFormat sets the hardware acceleration output format.
func (b *CommandBuilder) HWAccelOutputFormat(format string) *CommandBuilder {
	if format != "" {
		b.inputArgs = append(b.inputArgs, "-hwaccel_output_format", format)
	}
	return b
}

// Reconnect enables automatic reconnection for network streams.
func (b *CommandBuilder) Reconnect() *CommandBuilder {
	b.inputArgs = append(b.inputArgs,
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5")
	return b
}

// Input sets the input source.
func (b *CommandBuilder) Input(input string) *CommandBuilder {
	b.input = input
	return b
}

// MapStream selects a single input stream by index.
func (b *CommandBuilder) MapStream(index int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-map", fmt.Sprintf("0:%d", index))
	return b
}

// NoAudio disables audio processing.
func (b *CommandBuilder) NoAudio() *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-an")
	return b
}

// RawVideo sets raw video output in the given pixel format.
func (b *CommandBuilder) RawVideo(pixFmt string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-f", "rawvideo", "-pix_fmt", pixFmt)
	return b
}

// Scale adds a scale filter to the given geometry.
func (b *CommandBuilder) Scale(width, height int) *CommandBuilder {
	b.filterArgs = append(b.filterArgs, fmt.Sprintf("scale=%d:%d", width, height))
	return b
}

// VideoFilter adds a video filter.
func (b *CommandBuilder) VideoFilter(filter string) *CommandBuilder {
	b.filterArgs = append(b.filterArgs, filter)
	return b
}

// Output sets the output destination.
func (b *CommandBuilder) Output(output string) *CommandBuilder {
	b.output = output
	return b
}

// Args assembles the full argument vector.
func (b *CommandBuilder) Args() []string {
	var args []string

	args = append(args, "-loglevel", b.logLevel)
	args = append(args, b.globalArgs...)
	args = append(args, b.inputArgs...)
	args = append(args, "-i", b.input)

	if len(b.filterArgs) > 0 {
		args = append(args, "-vf", strings.Join(b.filterArgs, ","))
	}

	args = append(args, b.outputArgs...)
	args = append(args, b.output)

	return args
}

// LauncherConfig configures the decoder launcher.
type LauncherConfig struct {
	// FFmpegPath is the path to the ffmpeg binary.
	FFmpegPath string
	// HWAccel is the accelerator type used in hardware mode (e.g. "cuda").
	HWAccel string
	// HWAccelOutputFormat is the hwaccel output format (e.g. "cuda").
	HWAccelOutputFormat string
	// LogLevel is the ffmpeg log level (default "info").
	LogLevel string
	// MonitorProcess enables per-session CPU/memory sampling.
	MonitorProcess bool
}

// Launcher starts ffmpeg decode processes whose stdout is a raw stream of
// concatenated BGR24 frames. It implements capture.Launcher.
type Launcher struct {
	config LauncherConfig
	logger *slog.Logger

	mu   sync.RWMutex
	last *Process
}

// NewLauncher creates a decoder launcher.
func NewLauncher(config LauncherConfig, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	return &Launcher{
		config: config,
		logger: logger.With(slog.String("component", "launcher")),
	}
}

// BuildArgs assembles the decode argument vector for a descriptor and mode.
func (l *Launcher) BuildArgs(desc capture.StreamDescriptor, mode capture.AccelMode) []string {
	b := NewCommandBuilder(l.config.FFmpegPath).
		HideBanner().
		LogLevel(l.config.LogLevel)

	if mode == capture.AccelHardware {
		accel := l.config.HWAccel
		if accel == "" {
			accel = "cuda"
		}
		b.HWAccel(accel)
		b.HWAccelOutputFormat(l.config.HWAccelOutputFormat)
	} else {
		b.GenPTS()
	}

	if strings.HasPrefix(desc.URL, "http://") || strings.HasPrefix(desc.URL, "https://") {
		b.Reconnect()
	}

	b.Input(desc.URL).
		MapStream(desc.StreamIndex).
		NoAudio().
		RawVideo("bgr24")

	if desc.Width > 0 && desc.Height > 0 {
		b.Scale(desc.Width, desc.Height)
	}

	return b.Output("pipe:1").Args()
}

// Launch starts a decode process for the descriptor. The returned process's
// stdout carries raw frames; stderr is captured into a bounded tail for
// post-mortem logging.
func (l *Launcher) Launch(ctx context.Context, desc capture.StreamDescriptor, mode capture.AccelMode) (capture.Process, error) {
	args := l.BuildArgs(desc, mode)
	l.logger.Debug("launching decoder",
		slog.String("accel_mode", string(mode)),
		slog.String("args", strings.Join(args, " ")),
	)

	cmd := exec.CommandContext(ctx, l.config.FFmpegPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("getting stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("getting stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting ffmpeg: %w", err)
	}

	proc := &Process{
		cmd:    cmd,
		logger: l.logger,
	}

	if l.config.MonitorProcess {
		proc.monitor = NewProcessMonitor(int32(cmd.Process.Pid))
		proc.monitor.Start()
		proc.stdout = NewCountingReader(stdout, proc.monitor)
	} else {
		proc.stdout = stdout
	}

	proc.stderrDone = make(chan struct{})
	go proc.captureStderr(stderr)

	l.mu.Lock()
	l.last = proc
	l.mu.Unlock()

	return proc, nil
}

// LastProcess returns the most recently launched process, or nil.
// The status API uses this to report decoder resource usage.
func (l *Launcher) LastProcess() *Process {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.last
}

// Process wraps a running ffmpeg decode process. It implements
// capture.Process.
type Process struct {
	cmd     *exec.Cmd
	stdout  io.Reader
	monitor *ProcessMonitor
	logger  *slog.Logger

	stderrDone chan struct{}
	stderrMu   sync.RWMutex
	stderrTail []string

	killMu sync.Mutex
	killed bool
	waitMu sync.Mutex
	waited bool
	waitCh chan struct{}
	werr   error
}

// Stdout returns the raw frame byte stream.
func (p *Process) Stdout() io.Reader {
	return p.stdout
}

// Kill force-terminates the process. Idempotent; killing also closes the
// stdout pipe, which unblocks any pending frame read.
func (p *Process) Kill() error {
	p.killMu.Lock()
	defer p.killMu.Unlock()

	if p.killed {
		return nil
	}
	p.killed = true

	if p.monitor != nil {
		p.monitor.Stop()
	}
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

// Wait waits for the process to exit and reaps it. Safe to call from
// multiple goroutines; abnormal exits log the stderr tail.
func (p *Process) Wait() error {
	p.waitMu.Lock()
	if !p.waited {
		p.waited = true
		p.waitCh = make(chan struct{})
		p.waitMu.Unlock()

		err := p.cmd.Wait()
		<-p.stderrDone

		p.killMu.Lock()
		killed := p.killed
		p.killMu.Unlock()

		if err != nil && !killed {
			p.logger.Warn("decoder exited abnormally",
				slog.String("error", err.Error()),
				slog.String("stderr_tail", strings.Join(p.StderrTail(), "\n")),
			)
		}

		p.waitMu.Lock()
		p.werr = err
		close(p.waitCh)
		p.waitMu.Unlock()
		return err
	}
	ch := p.waitCh
	p.waitMu.Unlock()

	<-ch
	return p.werr
}

// PID returns the process ID, or 0 when not started.
func (p *Process) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Stats returns decoder resource usage, or nil when monitoring is disabled.
func (p *Process) Stats() *ProcessStats {
	if p.monitor == nil {
		return nil
	}
	stats := p.monitor.Stats()
	return &stats
}

// StderrTail returns the recent stderr lines captured from the decoder.
func (p *Process) StderrTail() []string {
	p.stderrMu.RLock()
	defer p.stderrMu.RUnlock()

	tail := make([]string, len(p.stderrTail))
	copy(tail, p.stderrTail)
	return tail
}

// captureStderr keeps a ring of the last stderr lines. The stream itself is
// informational only; the pipeline never parses it.
func (p *Process) captureStderr(stderr io.Reader) {
	defer close(p.stderrDone)

	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		p.stderrMu.Lock()
		if len(p.stderrTail) >= maxStderrLines {
			p.stderrTail = p.stderrTail[1:]
		}
		p.stderrTail = append(p.stderrTail, line)
		p.stderrMu.Unlock()
	}
}

// String renders the launch command for a descriptor, for diagnostics.
func (l *Launcher) String(desc capture.StreamDescriptor, mode capture.AccelMode) string {
	return l.config.FFmpegPath + " " + strings.Join(l.BuildArgs(desc, mode), " ")
}
