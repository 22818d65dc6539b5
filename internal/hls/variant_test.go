package hls

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const masterPlaylist = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=1280000,RESOLUTION=640x360,CODECS="avc1.4d401e,mp4a.40.2"
low/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=5160000,RESOLUTION=1920x1080,CODECS="avc1.640028,mp4a.40.2"
high/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2560000,RESOLUTION=1280x720,CODECS="avc1.4d401f,mp4a.40.2"
mid/index.m3u8
`

const mediaPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:6.0,
seg0.ts
#EXTINF:6.0,
seg1.ts
#EXT-X-ENDLIST
`

func playlistServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestVariantSelector_ResolvesBestVariant(t *testing.T) {
	server := playlistServer(t, masterPlaylist)
	url := server.URL + "/master.m3u8"

	selector := NewVariantSelector(server.Client(), nil)
	resolved, err := selector.Resolve(t.Context(), url)
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/high/index.m3u8", resolved)
}

func TestVariantSelector_VariantsSortedBestFirst(t *testing.T) {
	server := playlistServer(t, masterPlaylist)

	selector := NewVariantSelector(server.Client(), nil)
	variants, err := selector.Variants(t.Context(), server.URL+"/master.m3u8")
	require.NoError(t, err)
	require.Len(t, variants, 3)

	assert.Equal(t, "1920x1080", variants[0].Resolution)
	assert.Equal(t, 1920, variants[0].Width)
	assert.Equal(t, 1080, variants[0].Height)
	assert.Equal(t, "1280x720", variants[1].Resolution)
	assert.Equal(t, "640x360", variants[2].Resolution)
}

func TestVariantSelector_MediaPlaylistPassesThrough(t *testing.T) {
	server := playlistServer(t, mediaPlaylist)
	url := server.URL + "/media.m3u8"

	selector := NewVariantSelector(server.Client(), nil)
	resolved, err := selector.Resolve(t.Context(), url)
	require.NoError(t, err)
	assert.Equal(t, url, resolved)
}

func TestVariantSelector_NonHLSURLPassesThrough(t *testing.T) {
	selector := NewVariantSelector(nil, nil)

	for _, url := range []string{
		"rtsp://example.com/cam",
		"https://example.com/live.ts",
		"/dev/video0",
	} {
		resolved, err := selector.Resolve(t.Context(), url)
		require.NoError(t, err)
		assert.Equal(t, url, resolved)
	}
}

func TestVariantSelector_FetchErrorReturnsOriginalURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	t.Cleanup(server.Close)
	url := server.URL + "/gone.m3u8"

	selector := NewVariantSelector(server.Client(), nil)
	resolved, err := selector.Resolve(t.Context(), url)
	assert.Error(t, err)
	assert.Equal(t, url, resolved)
}

func TestParseResolution(t *testing.T) {
	w, h := parseResolution("1280x720")
	assert.Equal(t, 1280, w)
	assert.Equal(t, 720, h)

	w, h = parseResolution("")
	assert.Zero(t, w)
	assert.Zero(t, h)

	w, h = parseResolution("axb")
	assert.Zero(t, w)
	assert.Zero(t, h)
}

func TestAbsolutizeURL(t *testing.T) {
	tests := []struct {
		name     string
		playlist string
		variant  string
		want     string
	}{
		{
			name:     "relative path",
			playlist: "https://cdn.example.com/live/master.m3u8",
			variant:  "high/index.m3u8",
			want:     "https://cdn.example.com/live/high/index.m3u8",
		},
		{
			name:     "absolute path",
			playlist: "https://cdn.example.com/live/master.m3u8",
			variant:  "/other/index.m3u8",
			want:     "https://cdn.example.com/other/index.m3u8",
		},
		{
			name:     "already absolute",
			playlist: "https://cdn.example.com/live/master.m3u8",
			variant:  "https://edge.example.com/index.m3u8",
			want:     "https://edge.example.com/index.m3u8",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, absolutizeURL(tt.playlist, tt.variant))
		})
	}
}
