package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/framegrab/internal/capture"
)

func TestHealthHandler_GetHealth(t *testing.T) {
	handler := NewHealthHandler("1.0.0")

	output, err := handler.GetHealth(context.Background(), &HealthInput{})
	require.NoError(t, err)
	require.NotNil(t, output)

	assert.Equal(t, "healthy", output.Body.Status)
	assert.Equal(t, "1.0.0", output.Body.Version)
	assert.NotEmpty(t, output.Body.Timestamp)
	assert.Greater(t, output.Body.CPUInfo.Cores, 0)
}

// fakeStats returns a canned pipeline snapshot.
type fakeStats struct {
	snapshot capture.StatsSnapshot
}

func (f *fakeStats) Snapshot() capture.StatsSnapshot {
	return f.snapshot
}

func TestStatusHandler_GetStatus(t *testing.T) {
	stats := &fakeStats{snapshot: capture.StatsSnapshot{
		FramesDelivered: 42,
		FramesPerSecond: 25.0,
		AccelMode:       "software",
		Fallbacks:       1,
		Sessions:        3,
		SessionActive:   true,
	}}

	handler := NewStatusHandler(stats)

	output, err := handler.GetStatus(context.Background(), &StatusInput{})
	require.NoError(t, err)
	require.NotNil(t, output)

	assert.Equal(t, uint64(42), output.Body.Pipeline.FramesDelivered)
	assert.Equal(t, 25.0, output.Body.Pipeline.FramesPerSecond)
	assert.Equal(t, "software", output.Body.Pipeline.AccelMode)
	assert.Equal(t, 1, output.Body.Pipeline.Fallbacks)

	// No decoder source configured: decoder block omitted.
	assert.Nil(t, output.Body.Decoder)
}
