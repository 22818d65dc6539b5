package ffmpeg

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const probeFixture = `{
  "streams": [
    {
      "index": 0,
      "codec_name": "h264",
      "codec_type": "video",
      "width": 1280,
      "height": 720,
      "pix_fmt": "yuv420p",
      "r_frame_rate": "25/1",
      "avg_frame_rate": "25/1"
    },
    {
      "index": 1,
      "codec_name": "h264",
      "codec_type": "video",
      "width": 1920,
      "height": 1080,
      "pix_fmt": "yuv420p",
      "r_frame_rate": "30000/1001",
      "avg_frame_rate": "30000/1001"
    },
    {
      "index": 2,
      "codec_name": "aac",
      "codec_type": "audio"
    }
  ]
}`

func TestProbeResult_BestVideoStream(t *testing.T) {
	var result ProbeResult
	require.NoError(t, json.Unmarshal([]byte(probeFixture), &result))
	require.Len(t, result.Streams, 3)

	best := result.BestVideoStream()
	require.NotNil(t, best)
	assert.Equal(t, 1, best.Index)
	assert.Equal(t, 1920, best.Width)
	assert.Equal(t, 1080, best.Height)
}

func TestProbeResult_BestVideoStreamIgnoresAudio(t *testing.T) {
	result := ProbeResult{Streams: []ProbeStream{
		{Index: 0, CodecType: "audio"},
		{Index: 1, CodecType: "data"},
	}}
	assert.Nil(t, result.BestVideoStream())
}

func TestProbeResult_BestVideoStreamTieKeepsFirst(t *testing.T) {
	result := ProbeResult{Streams: []ProbeStream{
		{Index: 0, CodecType: "video", Width: 1280, Height: 720},
		{Index: 1, CodecType: "video", Width: 1280, Height: 720},
	}}

	best := result.BestVideoStream()
	require.NotNil(t, best)
	assert.Equal(t, 0, best.Index)
}

func TestProbeResult_BestVideoStreamSkipsMissingGeometry(t *testing.T) {
	// Some sources report a video stream before geometry is known; selecting
	// it would yield a descriptor that cannot frame the raw output.
	result := ProbeResult{Streams: []ProbeStream{
		{Index: 0, CodecType: "video"},
		{Index: 1, CodecType: "video", Width: 640, Height: 360},
	}}

	best := result.BestVideoStream()
	require.NotNil(t, best)
	assert.Equal(t, 1, best.Index)
}

func TestProbeResult_BestVideoStreamNilWhenNoGeometry(t *testing.T) {
	result := ProbeResult{Streams: []ProbeStream{
		{Index: 0, CodecType: "video"},
		{Index: 1, CodecType: "video", Width: 1920},
	}}
	assert.Nil(t, result.BestVideoStream())
}

func TestProbeStream_Framerate(t *testing.T) {
	tests := []struct {
		name   string
		stream ProbeStream
		want   float64
	}{
		{
			name:   "integer rate",
			stream: ProbeStream{AvgFrameRate: "25/1"},
			want:   25,
		},
		{
			name:   "ntsc rate",
			stream: ProbeStream{AvgFrameRate: "30000/1001"},
			want:   29.97002997002997,
		},
		{
			name:   "falls back to r_frame_rate",
			stream: ProbeStream{AvgFrameRate: "0/0", RFrameRate: "50/1"},
			want:   50,
		},
		{
			name:   "plain number",
			stream: ProbeStream{AvgFrameRate: "24"},
			want:   24,
		},
		{
			name:   "garbage",
			stream: ProbeStream{AvgFrameRate: "abc", RFrameRate: "x/y"},
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.stream.Framerate(), 0.0001)
		})
	}
}

func TestProber_ProbeWithoutBinary(t *testing.T) {
	prober := NewProber("")
	_, err := prober.Probe(t.Context(), "https://example.com/live.m3u8")
	assert.Error(t, err)
}
