// Package hls selects a variant out of HLS multivariant playlists so the
// prober and decoder work against a concrete media playlist instead of the
// master URL.
package hls

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bluenviron/gohlslib/v2/pkg/playlist"
)

const (
	defaultFetchTimeout     = 10 * time.Second
	defaultMaxPlaylistBytes = 10 * 1024 * 1024
)

// Variant describes one entry of a multivariant playlist.
type Variant struct {
	URI        string `json:"uri"`
	Bandwidth  int    `json:"bandwidth"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	Resolution string `json:"resolution,omitempty"`
}

// VariantSelector resolves an HLS master playlist URL to the URL of its best
// variant. Non-HLS URLs and media playlists pass through unchanged, so the
// selector is safe to put in front of every probe. It implements
// ffmpeg.URLResolver.
type VariantSelector struct {
	client           *http.Client
	timeout          time.Duration
	maxPlaylistBytes int
	logger           *slog.Logger
}

// NewVariantSelector creates a variant selector. A nil client uses a default
// with sane timeouts.
func NewVariantSelector(client *http.Client, logger *slog.Logger) *VariantSelector {
	if client == nil {
		client = &http.Client{Timeout: defaultFetchTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VariantSelector{
		client:           client,
		timeout:          defaultFetchTimeout,
		maxPlaylistBytes: defaultMaxPlaylistBytes,
		logger:           logger.With(slog.String("component", "hls")),
	}
}

// WithTimeout sets the playlist fetch timeout.
func (s *VariantSelector) WithTimeout(timeout time.Duration) *VariantSelector {
	s.timeout = timeout
	return s
}

// Resolve returns the URL of the highest-quality variant when the URL points
// at an HLS multivariant playlist, and the URL unchanged otherwise.
func (s *VariantSelector) Resolve(ctx context.Context, rawURL string) (string, error) {
	if !isHLSURL(rawURL) {
		return rawURL, nil
	}

	variants, err := s.Variants(ctx, rawURL)
	if err != nil {
		return rawURL, err
	}
	if len(variants) == 0 {
		// Media playlist or empty master; probe the original URL.
		return rawURL, nil
	}

	best := variants[0]
	s.logger.Debug("selected variant",
		slog.String("uri", best.URI),
		slog.Int("bandwidth", best.Bandwidth),
		slog.String("resolution", best.Resolution),
	)
	return best.URI, nil
}

// Variants fetches and parses the playlist at the URL and returns its
// variants sorted best-first. A media playlist yields an empty slice.
func (s *VariantSelector) Variants(ctx context.Context, rawURL string) ([]Variant, error) {
	body, err := s.fetchPlaylist(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("fetching playlist: %w", err)
	}

	pl, err := playlist.Unmarshal(body)
	if err != nil {
		return nil, fmt.Errorf("parsing playlist: %w", err)
	}

	mv, ok := pl.(*playlist.Multivariant)
	if !ok {
		return nil, nil
	}

	variants := make([]Variant, 0, len(mv.Variants))
	for _, v := range mv.Variants {
		variant := Variant{
			URI:        absolutizeURL(rawURL, v.URI),
			Bandwidth:  v.Bandwidth,
			Resolution: v.Resolution,
		}
		variant.Width, variant.Height = parseResolution(v.Resolution)
		variants = append(variants, variant)
	}

	// Highest pixel area wins; bandwidth breaks ties and ranks variants
	// that carry no RESOLUTION attribute.
	sort.SliceStable(variants, func(i, j int) bool {
		ai := variants[i].Width * variants[i].Height
		aj := variants[j].Width * variants[j].Height
		if ai != aj {
			return ai > aj
		}
		return variants[i].Bandwidth > variants[j].Bandwidth
	})

	return variants, nil
}

// fetchPlaylist downloads a playlist with a size cap.
func (s *VariantSelector) fetchPlaylist(ctx context.Context, playlistURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, playlistURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	limited := io.LimitReader(resp.Body, int64(s.maxPlaylistBytes))
	return io.ReadAll(limited)
}

// isHLSURL reports whether the URL looks like an HTTP(S) HLS playlist.
func isHLSURL(rawURL string) bool {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return false
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)
	return strings.HasSuffix(path, ".m3u8") || strings.HasSuffix(path, ".m3u")
}

// parseResolution parses a RESOLUTION attribute like "1280x720".
func parseResolution(res string) (width, height int) {
	w, h, ok := strings.Cut(res, "x")
	if !ok {
		return 0, 0
	}
	width, err1 := strconv.Atoi(w)
	height, err2 := strconv.Atoi(h)
	if err1 != nil || err2 != nil {
		return 0, 0
	}
	return width, height
}

// absolutizeURL converts a possibly-relative variant URI to an absolute URL
// against its playlist URL.
func absolutizeURL(playlistURL, variantURL string) string {
	if strings.HasPrefix(variantURL, "http://") || strings.HasPrefix(variantURL, "https://") {
		return variantURL
	}

	base, err := url.Parse(playlistURL)
	if err != nil {
		if idx := strings.LastIndex(playlistURL, "/"); idx >= 0 {
			return playlistURL[:idx+1] + variantURL
		}
		return variantURL
	}

	ref, err := url.Parse(variantURL)
	if err != nil {
		return variantURL
	}

	return base.ResolveReference(ref).String()
}
