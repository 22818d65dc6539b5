package ffmpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHWAccels(t *testing.T) {
	output := `Hardware acceleration methods:
vdpau
cuda
vaapi
qsv
drm
opencl
vulkan
`

	accels := parseHWAccels(output)
	assert.Equal(t, []string{"vdpau", "cuda", "vaapi", "qsv", "drm", "opencl", "vulkan"}, accels)
}

func TestParseHWAccels_Empty(t *testing.T) {
	assert.Empty(t, parseHWAccels("Hardware acceleration methods:\n"))
	assert.Empty(t, parseHWAccels(""))
}

func TestRecommendedHWAccel_DefaultPriority(t *testing.T) {
	accels := []HWAccelInfo{
		{Type: HWAccelVAAPI, Name: "vaapi", Available: true},
		{Type: HWAccelCUDA, Name: "cuda", Available: true},
	}

	best := RecommendedHWAccel(accels, nil)
	require.NotNil(t, best)
	assert.Equal(t, HWAccelCUDA, best.Type)
}

func TestRecommendedHWAccel_CustomPriority(t *testing.T) {
	accels := []HWAccelInfo{
		{Type: HWAccelVAAPI, Name: "vaapi", Available: true},
		{Type: HWAccelCUDA, Name: "cuda", Available: true},
	}

	best := RecommendedHWAccel(accels, []string{"vaapi", "cuda"})
	require.NotNil(t, best)
	assert.Equal(t, HWAccelVAAPI, best.Type)
}

func TestRecommendedHWAccel_SkipsUnavailable(t *testing.T) {
	accels := []HWAccelInfo{
		{Type: HWAccelCUDA, Name: "cuda", Available: false},
		{Type: HWAccelQSV, Name: "qsv", Available: true},
	}

	best := RecommendedHWAccel(accels, nil)
	require.NotNil(t, best)
	assert.Equal(t, HWAccelQSV, best.Type)
}

func TestRecommendedHWAccel_NoneAvailable(t *testing.T) {
	accels := []HWAccelInfo{
		{Type: HWAccelCUDA, Name: "cuda", Available: false},
	}
	assert.Nil(t, RecommendedHWAccel(accels, nil))
	assert.Nil(t, RecommendedHWAccel(nil, nil))
}
