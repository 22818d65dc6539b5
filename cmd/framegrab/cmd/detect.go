package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/framegrab/internal/ffmpeg"
)

// detectCmd represents the detect command
var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect FFmpeg and hardware decode capabilities",
	Long: `Detect the FFmpeg installation and hardware decode acceleration.

This command runs capability detection and outputs the results as JSON.
Use this to verify which accelerators the run command would consider.

Examples:
  # Basic detection (JSON output)
  framegrab detect

  # Pretty-printed JSON
  framegrab detect --pretty`,
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)

	detectCmd.Flags().Bool("pretty", false, "pretty-print JSON output")
	detectCmd.Flags().Duration("timeout", 30*time.Second, "detection timeout")
}

// DetectionResult contains the full detection output.
type DetectionResult struct {
	FFmpeg         ffmpeg.BinaryInfo    `json:"ffmpeg"`
	HardwareAccels []ffmpeg.HWAccelInfo `json:"hardware_accels"`
	Recommended    *ffmpeg.HWAccelInfo  `json:"recommended,omitempty"`
}

func runDetect(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	pretty, _ := cmd.Flags().GetBool("pretty")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	binInfo, err := resolveBinaries(ctx, cfg)
	if err != nil {
		return err
	}

	detector := ffmpeg.NewHWAccelDetector(binInfo.FFmpegPath)
	accels, err := detector.Detect(ctx)
	if err != nil {
		return fmt.Errorf("detecting hardware acceleration: %w", err)
	}

	result := DetectionResult{
		FFmpeg:         *binInfo,
		HardwareAccels: accels,
		Recommended:    ffmpeg.RecommendedHWAccel(accels, cfg.FFmpeg.HWAccelPriority),
	}

	encoder := json.NewEncoder(os.Stdout)
	if pretty {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(result)
}
