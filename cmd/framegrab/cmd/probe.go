package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/framegrab/internal/ffmpeg"
	"github.com/jmylchreest/framegrab/internal/hls"
)

// probeCmd represents the probe command
var probeCmd = &cobra.Command{
	Use:   "probe <url>",
	Short: "Probe a stream and print its video tracks",
	Long: `Probe a stream URL with ffprobe and print its video tracks as JSON.

HLS multivariant playlists are resolved to their best variant first, the
same way the run command does before launching the decoder.

Examples:
  # Probe a stream
  framegrab probe https://example.com/live/channel.m3u8

  # Pretty-printed JSON
  framegrab probe --pretty https://example.com/live/channel.m3u8`,
	Args: cobra.ExactArgs(1),
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().Bool("pretty", false, "pretty-print JSON output")
	probeCmd.Flags().Bool("no-variant", false, "skip HLS variant selection")
}

// ProbeOutput is the probe command's JSON output.
type ProbeOutput struct {
	URL         string               `json:"url"`
	ProbedURL   string               `json:"probed_url,omitempty"`
	BestStream  *ffmpeg.ProbeStream  `json:"best_stream,omitempty"`
	Streams     []ffmpeg.ProbeStream `json:"streams"`
	HLSVariants []hls.Variant        `json:"hls_variants,omitempty"`
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	url := args[0]

	pretty, _ := cmd.Flags().GetBool("pretty")
	noVariant, _ := cmd.Flags().GetBool("no-variant")

	ctx := context.Background()

	binInfo, err := resolveBinaries(ctx, cfg)
	if err != nil {
		return err
	}
	if binInfo.FFprobePath == "" {
		return fmt.Errorf("ffprobe not found")
	}

	out := ProbeOutput{URL: url}
	probeURL := url

	if !noVariant {
		selector := hls.NewVariantSelector(nil, nil)
		variants, err := selector.Variants(ctx, url)
		if err == nil && len(variants) > 0 {
			out.HLSVariants = variants
			probeURL = variants[0].URI
			out.ProbedURL = probeURL
		}
	}

	prober := ffmpeg.NewProber(binInfo.FFprobePath).
		WithTimeout(cfg.FFmpeg.ProbeTimeout)
	result, err := prober.ProbeStreams(ctx, probeURL)
	if err != nil {
		return fmt.Errorf("probing stream: %w", err)
	}

	out.Streams = result.Streams
	out.BestStream = result.BestVideoStream()

	encoder := json.NewEncoder(os.Stdout)
	if pretty {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(out)
}
