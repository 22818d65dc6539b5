package ffmpeg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/framegrab/internal/capture"
)

func TestCommandBuilder_Args(t *testing.T) {
	args := NewCommandBuilder("/usr/bin/ffmpeg").
		HideBanner().
		LogLevel("warning").
		Reconnect().
		Input("https://example.com/live.m3u8").
		MapStream(2).
		NoAudio().
		RawVideo("bgr24").
		Scale(1280, 720).
		Output("pipe:1").
		Args()

	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-loglevel warning")
	assert.Contains(t, joined, "-hide_banner")
	assert.Contains(t, joined, "-reconnect 1")
	assert.Contains(t, joined, "-i https://example.com/live.m3u8")
	assert.Contains(t, joined, "-map 0:2")
	assert.Contains(t, joined, "-an")
	assert.Contains(t, joined, "-f rawvideo -pix_fmt bgr24")
	assert.Contains(t, joined, "-vf scale=1280:720")
	assert.Equal(t, "pipe:1", args[len(args)-1])

	// Input options must precede -i, output options must follow it.
	inputIdx := indexOf(args, "-i")
	require.GreaterOrEqual(t, inputIdx, 0)
	assert.Less(t, indexOf(args, "-reconnect"), inputIdx)
	assert.Greater(t, indexOf(args, "-map"), inputIdx)
}

func TestCommandBuilder_HWAccelSkipsPlaceholders(t *testing.T) {
	for _, accel := range []string{"", "none", "auto"} {
		args := NewCommandBuilder("ffmpeg").
			HWAccel(accel).
			Input("in").
			Output("out").
			Args()
		assert.NotContains(t, args, "-hwaccel", "accel %q must be skipped", accel)
	}

	args := NewCommandBuilder("ffmpeg").
		HWAccel("cuda").
		Input("in").
		Output("out").
		Args()
	assert.Contains(t, args, "-hwaccel")
	assert.Contains(t, args, "cuda")
}

func TestLauncher_BuildArgsHardwareMode(t *testing.T) {
	launcher := NewLauncher(LauncherConfig{
		FFmpegPath: "/usr/bin/ffmpeg",
		HWAccel:    "cuda",
	}, nil)

	desc := capture.StreamDescriptor{
		URL:         "https://example.com/live.m3u8",
		StreamIndex: 1,
		Width:       1920,
		Height:      1080,
	}

	joined := strings.Join(launcher.BuildArgs(desc, capture.AccelHardware), " ")
	assert.Contains(t, joined, "-hwaccel cuda")
	assert.Contains(t, joined, "-reconnect 1")
	assert.Contains(t, joined, "-map 0:1")
	assert.Contains(t, joined, "-pix_fmt bgr24")
	assert.Contains(t, joined, "scale=1920:1080")
	assert.NotContains(t, joined, "+genpts")
}

func TestLauncher_BuildArgsSoftwareMode(t *testing.T) {
	launcher := NewLauncher(LauncherConfig{
		FFmpegPath: "/usr/bin/ffmpeg",
		HWAccel:    "cuda",
	}, nil)

	desc := capture.StreamDescriptor{
		URL:         "rtsp://example.com/cam",
		StreamIndex: 0,
		Width:       640,
		Height:      360,
	}

	joined := strings.Join(launcher.BuildArgs(desc, capture.AccelSoftware), " ")
	assert.NotContains(t, joined, "-hwaccel")
	assert.Contains(t, joined, "+genpts")
	// Reconnect flags only apply to HTTP(S) sources.
	assert.NotContains(t, joined, "-reconnect")
}

func TestLauncher_BuildArgsNoScaleWithoutGeometry(t *testing.T) {
	launcher := NewLauncher(LauncherConfig{FFmpegPath: "ffmpeg"}, nil)

	desc := capture.StreamDescriptor{URL: "test://in", StreamIndex: 0}
	joined := strings.Join(launcher.BuildArgs(desc, capture.AccelSoftware), " ")
	assert.NotContains(t, joined, "scale=")
}

func indexOf(args []string, want string) int {
	for i, arg := range args {
		if arg == want {
			return i
		}
	}
	return -1
}
