package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// HWAccelType represents a hardware acceleration type.
type HWAccelType string

const (
	HWAccelNone         HWAccelType = "none"
	HWAccelCUDA         HWAccelType = "cuda"         // NVIDIA NVDEC
	HWAccelQSV          HWAccelType = "qsv"          // Intel Quick Sync
	HWAccelVAAPI        HWAccelType = "vaapi"        // VA-API (Linux)
	HWAccelVideoToolbox HWAccelType = "videotoolbox" // macOS
)

// HWAccelInfo contains information about a hardware accelerator.
type HWAccelInfo struct {
	Type       HWAccelType `json:"type"`
	Name       string      `json:"name"`
	Available  bool        `json:"available"`
	DeviceName string      `json:"device_name,omitempty"`
}

// HWAccelDetector detects available hardware decode acceleration.
type HWAccelDetector struct {
	ffmpegPath string
}

// NewHWAccelDetector creates a new hardware acceleration detector.
func NewHWAccelDetector(ffmpegPath string) *HWAccelDetector {
	return &HWAccelDetector{
		ffmpegPath: ffmpegPath,
	}
}

// Detect detects all hardware accelerators the ffmpeg build advertises and
// verifies which of them actually work on this host.
func (d *HWAccelDetector) Detect(ctx context.Context) ([]HWAccelInfo, error) {
	cmd := exec.CommandContext(ctx, d.ffmpegPath, "-hwaccels", "-hide_banner")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("getting hwaccels: %w", err)
	}

	supported := parseHWAccels(string(output))
	var results []HWAccelInfo

	for _, accel := range supported {
		info := HWAccelInfo{
			Type: HWAccelType(accel),
			Name: accel,
		}
		info.Available, info.DeviceName = d.testAccel(ctx, accel)
		results = append(results, info)
	}

	return results, nil
}

// Best returns the best available accelerator in priority order, or nil when
// none works. An empty priority list uses the default order.
func (d *HWAccelDetector) Best(ctx context.Context, priority []string) (*HWAccelInfo, error) {
	accels, err := d.Detect(ctx)
	if err != nil {
		return nil, err
	}
	return RecommendedHWAccel(accels, priority), nil
}

// parseHWAccels parses the output of ffmpeg -hwaccels.
func parseHWAccels(output string) []string {
	var accels []string
	inList := false

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "Hardware acceleration methods:" {
			inList = true
			continue
		}
		if inList && line != "" {
			accels = append(accels, line)
		}
	}

	return accels
}

// testAccel tests whether an advertised accelerator actually works.
func (d *HWAccelDetector) testAccel(ctx context.Context, accel string) (bool, string) {
	switch accel {
	case "cuda", "nvdec":
		return d.testNVIDIA(ctx)
	case "vaapi":
		return d.testVAAPI(ctx)
	case "videotoolbox":
		return d.testVideoToolbox(ctx)
	case "qsv":
		return d.testQSV(ctx)
	default:
		// Unknown accelerator: advertised but unverified, treat as unusable
		// rather than risking a session on it.
		return false, ""
	}
}

// testNVIDIA tests NVIDIA CUDA/NVDEC availability.
func (d *HWAccelDetector) testNVIDIA(ctx context.Context) (bool, string) {
	cmd := exec.CommandContext(ctx, "nvidia-smi", "--query-gpu=name", "--format=csv,noheader")
	output, err := cmd.Output()
	if err != nil {
		return false, ""
	}

	deviceName := strings.TrimSpace(strings.Split(string(output), "\n")[0])
	if deviceName == "" {
		return false, ""
	}

	// Verify ffmpeg can actually decode through CUDA.
	testCmd := exec.CommandContext(ctx, d.ffmpegPath,
		"-hide_banner",
		"-hwaccel", "cuda",
		"-f", "lavfi", "-i", "nullsrc=s=320x240:d=0.1",
		"-t", "0.01",
		"-f", "null", "-")
	if err := testCmd.Run(); err != nil {
		return false, ""
	}

	return true, deviceName
}

// testVAAPI tests VA-API availability (Linux).
func (d *HWAccelDetector) testVAAPI(ctx context.Context) (bool, string) {
	if runtime.GOOS != "linux" {
		return false, ""
	}

	devices := []string{"/dev/dri/renderD128", "/dev/dri/renderD129"}
	for _, device := range devices {
		testCmd := exec.CommandContext(ctx, d.ffmpegPath,
			"-hide_banner",
			"-vaapi_device", device,
			"-f", "lavfi", "-i", "nullsrc=s=320x240:d=0.1",
			"-vf", "format=nv12,hwupload",
			"-t", "0.01",
			"-f", "null", "-")
		if err := testCmd.Run(); err == nil {
			return true, device
		}
	}

	return false, ""
}

// testVideoToolbox tests Apple VideoToolbox availability (macOS).
func (d *HWAccelDetector) testVideoToolbox(ctx context.Context) (bool, string) {
	if runtime.GOOS != "darwin" {
		return false, ""
	}

	testCmd := exec.CommandContext(ctx, d.ffmpegPath,
		"-hide_banner",
		"-hwaccel", "videotoolbox",
		"-f", "lavfi", "-i", "nullsrc=s=320x240:d=0.1",
		"-t", "0.01",
		"-f", "null", "-")
	if err := testCmd.Run(); err != nil {
		return false, ""
	}

	return true, "Apple VideoToolbox"
}

// testQSV tests Intel Quick Sync availability.
func (d *HWAccelDetector) testQSV(ctx context.Context) (bool, string) {
	testCmd := exec.CommandContext(ctx, d.ffmpegPath,
		"-hide_banner",
		"-init_hw_device", "qsv=hw",
		"-f", "lavfi", "-i", "nullsrc=s=320x240:d=0.1",
		"-t", "0.01",
		"-f", "null", "-")
	if err := testCmd.Run(); err != nil {
		return false, ""
	}

	return true, "Intel Quick Sync"
}

// defaultHWAccelPriority is the order used when none is configured.
var defaultHWAccelPriority = []HWAccelType{
	HWAccelCUDA,
	HWAccelQSV,
	HWAccelVideoToolbox,
	HWAccelVAAPI,
}

// RecommendedHWAccel returns the first available accelerator in priority
// order. The priority list accepts accel names; empty uses the default order.
func RecommendedHWAccel(accels []HWAccelInfo, priority []string) *HWAccelInfo {
	order := defaultHWAccelPriority
	if len(priority) > 0 {
		order = make([]HWAccelType, 0, len(priority))
		for _, p := range priority {
			order = append(order, HWAccelType(p))
		}
	}

	for _, prio := range order {
		for i := range accels {
			if accels[i].Type == prio && accels[i].Available {
				return &accels[i]
			}
		}
	}

	return nil
}
