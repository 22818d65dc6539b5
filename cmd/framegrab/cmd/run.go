package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/framegrab/internal/capture"
	"github.com/jmylchreest/framegrab/internal/config"
	"github.com/jmylchreest/framegrab/internal/ffmpeg"
	"github.com/jmylchreest/framegrab/internal/hls"
	internalhttp "github.com/jmylchreest/framegrab/internal/http"
	"github.com/jmylchreest/framegrab/internal/http/handlers"
	"github.com/jmylchreest/framegrab/internal/observability"
	"github.com/jmylchreest/framegrab/internal/sink"
	"github.com/jmylchreest/framegrab/internal/version"
)

var runCmd = &cobra.Command{
	Use:   "run [url]",
	Short: "Acquire frames from a live stream",
	Long: `Start the frame acquisition pipeline against a live stream URL.

The pipeline probes the stream for its highest-resolution video track,
launches an FFmpeg decode process, and pulls raw BGR24 frames through a
bounded buffer into the configured sink. The decoder is relaunched when
the stream drops; hardware decode falls back to software once per run.

Examples:
  # Consume frames headlessly, report FPS once per second
  framegrab run https://example.com/live/channel.m3u8

  # Pipe 100 raw frames into a file
  framegrab run --output frames.bgr --max-frames 100 https://example.com/live.m3u8

  # Expose /health and /status while running
  framegrab run --status https://example.com/live.m3u8`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Int("width", 0, "Output frame width (0 = source width)")
	runCmd.Flags().Int("height", 0, "Output frame height (0 = source height)")
	runCmd.Flags().Bool("force-software", false, "Disable hardware decoding")
	runCmd.Flags().Uint64("max-frames", 0, "Stop after this many frames (0 = run until interrupted)")
	runCmd.Flags().String("output", "", "Write raw frames to this file ('-' for stdout)")
	runCmd.Flags().Bool("status", false, "Enable the status HTTP server")
	runCmd.Flags().Int("status-port", 8089, "Status server port")

	mustBindPFlag("stream.width", runCmd.Flags().Lookup("width"))
	mustBindPFlag("stream.height", runCmd.Flags().Lookup("height"))
	mustBindPFlag("capture.force_software", runCmd.Flags().Lookup("force-software"))
	mustBindPFlag("capture.max_frames", runCmd.Flags().Lookup("max-frames"))
	mustBindPFlag("status.enabled", runCmd.Flags().Lookup("status"))
	mustBindPFlag("status.port", runCmd.Flags().Lookup("status-port"))
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(args) > 0 {
		cfg.Stream.URL = args[0]
	}
	if cfg.Stream.URL == "" {
		return fmt.Errorf("no stream URL configured")
	}

	logger := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Locate the FFmpeg binaries.
	binInfo, err := resolveBinaries(ctx, cfg)
	if err != nil {
		return err
	}
	logger.Info("using ffmpeg",
		slog.String("path", binInfo.FFmpegPath),
		slog.String("version", binInfo.Version),
	)

	// Detect hardware decode capability unless software is forced.
	hwAccel := ""
	if !cfg.Capture.ForceSoftware {
		detector := ffmpeg.NewHWAccelDetector(binInfo.FFmpegPath)
		best, err := detector.Best(ctx, cfg.FFmpeg.HWAccelPriority)
		if err != nil {
			logger.Warn("hardware acceleration detection failed",
				slog.String("error", err.Error()),
			)
		} else if best != nil {
			hwAccel = best.Name
			logger.Info("hardware acceleration available",
				slog.String("type", best.Name),
				slog.String("device", best.DeviceName),
			)
		} else {
			logger.Info("no hardware acceleration available")
		}
	}

	// Build the prober, with HLS variant selection in front when enabled.
	prober := ffmpeg.NewProber(binInfo.FFprobePath).
		WithTimeout(cfg.FFmpeg.ProbeTimeout)
	if cfg.Stream.SelectVariant {
		prober = prober.WithResolver(hls.NewVariantSelector(nil, logger))
	}

	launcher := ffmpeg.NewLauncher(ffmpeg.LauncherConfig{
		FFmpegPath:     binInfo.FFmpegPath,
		HWAccel:        hwAccel,
		LogLevel:       cfg.FFmpeg.LogLevel,
		MonitorProcess: cfg.FFmpeg.MonitorProcess,
	}, logger)

	consumer, closeSink, err := buildSink(cmd, cfg)
	if err != nil {
		return err
	}
	defer closeSink()

	controller := capture.NewController(capture.ControllerConfig{
		URL:               cfg.Stream.URL,
		OutputWidth:       cfg.Stream.Width,
		OutputHeight:      cfg.Stream.Height,
		HardwareAvailable: hwAccel != "",
		ForceSoftware:     cfg.Capture.ForceSoftware,
		BufferCapacity:    cfg.Capture.BufferCapacity,
		GetTimeout:        cfg.Capture.GetTimeout,
		ReportInterval:    cfg.Capture.ReportInterval,
		Supervisor: capture.SupervisorConfig{
			RestartDelay:  cfg.Capture.RestartDelay,
			LaunchBackoff: cfg.Capture.LaunchBackoff,
		},
	}, prober, launcher, consumer).WithLogger(logger)

	// Optional status server alongside the pipeline.
	if cfg.Status.Enabled {
		server := internalhttp.NewServer(internalhttp.ServerConfig{
			Host:            cfg.Status.Host,
			Port:            cfg.Status.Port,
			ReadTimeout:     cfg.Status.ReadTimeout,
			WriteTimeout:    cfg.Status.WriteTimeout,
			ShutdownTimeout: cfg.Status.ShutdownTimeout,
		}, logger, version.Version)

		handlers.NewHealthHandler(version.Version).Register(server.API())
		handlers.NewStatusHandler(controller.Stats()).
			WithDecoderSource(launcher).
			Register(server.API())

		go func() {
			if err := server.ListenAndServe(ctx); err != nil {
				logger.Error("status server failed",
					slog.String("error", err.Error()),
				)
			}
		}()
	}

	logger.Info("starting framegrab",
		slog.String("version", version.Version),
		slog.String("url", observability.RedactURL(cfg.Stream.URL)),
	)

	return controller.Run(ctx)
}

// loadConfig unmarshals the global viper state, which carries defaults, the
// config file, environment variables, and any bound CLI flags.
func loadConfig() (*config.Config, error) {
	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// resolveBinaries uses configured binary paths when present and falls back to
// detection otherwise.
func resolveBinaries(ctx context.Context, cfg *config.Config) (*ffmpeg.BinaryInfo, error) {
	if cfg.FFmpeg.BinaryPath != "" {
		return &ffmpeg.BinaryInfo{
			FFmpegPath:  cfg.FFmpeg.BinaryPath,
			FFprobePath: cfg.FFmpeg.ProbePath,
			Version:     "configured",
		}, nil
	}

	info, err := ffmpeg.NewBinaryDetector().Detect(ctx)
	if err != nil {
		return nil, fmt.Errorf("detecting ffmpeg: %w", err)
	}
	if cfg.FFmpeg.ProbePath != "" {
		info.FFprobePath = cfg.FFmpeg.ProbePath
	}
	return info, nil
}

// buildSink creates the frame consumer from the --output flag, plus a cleanup
// function for any file it opened.
func buildSink(cmd *cobra.Command, cfg *config.Config) (capture.Consumer, func(), error) {
	output, _ := cmd.Flags().GetString("output")
	maxFrames := cfg.Capture.MaxFrames

	switch output {
	case "":
		return sink.NewHeadless(maxFrames), func() {}, nil
	case "-":
		return sink.NewWriter(os.Stdout, maxFrames), func() {}, nil
	default:
		f, err := os.Create(output)
		if err != nil {
			return nil, nil, fmt.Errorf("creating output file: %w", err)
		}
		var w io.Writer = f
		return sink.NewWriter(w, maxFrames), func() { _ = f.Close() }, nil
	}
}
