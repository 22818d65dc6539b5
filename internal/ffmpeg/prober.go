package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/jmylchreest/framegrab/internal/capture"
)

// ProbeResult contains the ffprobe output for the streams we care about.
type ProbeResult struct {
	Streams []ProbeStream `json:"streams"`
}

// ProbeStream contains per-stream information from ffprobe.
type ProbeStream struct {
	Index        int    `json:"index"`
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"` // video, audio, subtitle, data
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	PixFmt       string `json:"pix_fmt,omitempty"`
	RFrameRate   string `json:"r_frame_rate,omitempty"`
	AvgFrameRate string `json:"avg_frame_rate,omitempty"`
	BitRate      string `json:"bit_rate,omitempty"`
}

// Framerate returns the stream framerate in frames per second.
func (s *ProbeStream) Framerate() float64 {
	if s.AvgFrameRate != "" {
		if f := parseFramerate(s.AvgFrameRate); f > 0 {
			return f
		}
	}
	return parseFramerate(s.RFrameRate)
}

// URLResolver optionally rewrites a source URL before probing, e.g. to pick a
// variant out of an HLS master playlist. Resolution errors are non-fatal.
type URLResolver interface {
	Resolve(ctx context.Context, url string) (string, error)
}

// Prober resolves stream geometry via ffprobe. It implements capture.Prober.
type Prober struct {
	ffprobePath string
	timeout     time.Duration
	resolver    URLResolver
}

// NewProber creates a new stream prober.
func NewProber(ffprobePath string) *Prober {
	return &Prober{
		ffprobePath: ffprobePath,
		timeout:     30 * time.Second,
	}
}

// WithTimeout sets the probe timeout.
func (p *Prober) WithTimeout(timeout time.Duration) *Prober {
	p.timeout = timeout
	return p
}

// WithResolver sets a URL resolver applied before probing.
func (p *Prober) WithResolver(r URLResolver) *Prober {
	p.resolver = r
	return p
}

// Probe resolves the URL, probes its video tracks, and returns a descriptor
// for the highest-resolution one. Implements capture.Prober; callers treat a
// returned error as non-fatal and substitute the default descriptor.
func (p *Prober) Probe(ctx context.Context, url string) (capture.StreamDescriptor, error) {
	if p.ffprobePath == "" {
		return capture.StreamDescriptor{}, fmt.Errorf("ffprobe not available")
	}

	probeURL := url
	if p.resolver != nil {
		resolved, err := p.resolver.Resolve(ctx, url)
		if err == nil && resolved != "" {
			probeURL = resolved
		}
	}

	result, err := p.ProbeStreams(ctx, probeURL)
	if err != nil {
		return capture.StreamDescriptor{}, err
	}

	best := result.BestVideoStream()
	if best == nil {
		return capture.StreamDescriptor{}, fmt.Errorf("no video stream found")
	}

	return capture.StreamDescriptor{
		URL:         probeURL,
		StreamIndex: best.Index,
		Width:       best.Width,
		Height:      best.Height,
	}, nil
}

// ProbeStreams runs ffprobe against the URL and returns the video streams.
func (p *Prober) ProbeStreams(ctx context.Context, url string) (*ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-select_streams", "v",
	}

	// Add URL-specific options for network streams
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
		)
	}

	args = append(args, url)

	cmd := exec.CommandContext(ctx, p.ffprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("probe timeout after %v", p.timeout)
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var result ProbeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return nil, fmt.Errorf("parsing ffprobe output: %w", err)
	}

	return &result, nil
}

// BestVideoStream returns the video stream with the largest pixel area, or
// nil when there is none. Ties keep the earlier stream. Streams without
// usable geometry are skipped; a descriptor with a zero dimension cannot
// frame the raw output.
func (r *ProbeResult) BestVideoStream() *ProbeStream {
	var best *ProbeStream
	bestArea := 0
	for i := range r.Streams {
		s := &r.Streams[i]
		if s.CodecType != "video" {
			continue
		}
		area := s.Width * s.Height
		if area <= 0 {
			continue
		}
		if best == nil || area > bestArea {
			best = s
			bestArea = area
		}
	}
	return best
}

// parseFramerate parses a framerate string like "30000/1001" or "25/1".
func parseFramerate(fr string) float64 {
	parts := strings.Split(fr, "/")
	if len(parts) != 2 {
		if f, err := strconv.ParseFloat(fr, 64); err == nil {
			return f
		}
		return 0
	}

	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}

	return num / den
}
