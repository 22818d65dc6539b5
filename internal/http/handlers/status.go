package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/framegrab/internal/capture"
	"github.com/jmylchreest/framegrab/internal/ffmpeg"
)

// StatsSource exposes a snapshot of the capture pipeline state.
type StatsSource interface {
	Snapshot() capture.StatsSnapshot
}

// DecoderSource exposes the most recent decoder process, or nil.
type DecoderSource interface {
	LastProcess() *ffmpeg.Process
}

// StatusResponse represents the pipeline status response.
type StatusResponse struct {
	Pipeline capture.StatsSnapshot `json:"pipeline"`
	Decoder  *DecoderStatus        `json:"decoder,omitempty"`
}

// DecoderStatus represents the running decoder process.
type DecoderStatus struct {
	PID        int                  `json:"pid"`
	Stats      *ffmpeg.ProcessStats `json:"stats,omitempty"`
	StderrTail []string             `json:"stderr_tail,omitempty"`
}

// StatusHandler reports live pipeline and decoder state.
type StatusHandler struct {
	stats   StatsSource
	decoder DecoderSource
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(stats StatsSource) *StatusHandler {
	return &StatusHandler{stats: stats}
}

// WithDecoderSource sets the decoder process source.
func (h *StatusHandler) WithDecoderSource(decoder DecoderSource) *StatusHandler {
	h.decoder = decoder
	return h
}

// StatusInput is the input for the status endpoint.
type StatusInput struct{}

// StatusOutput is the output for the status endpoint.
type StatusOutput struct {
	Body StatusResponse
}

// Register registers the status routes with the API.
func (h *StatusHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getStatus",
		Method:      "GET",
		Path:        "/status",
		Summary:     "Pipeline status",
		Description: "Returns frame pipeline counters and decoder process state",
		Tags:        []string{"System"},
	}, h.GetStatus)
}

// GetStatus returns the current pipeline status.
func (h *StatusHandler) GetStatus(ctx context.Context, input *StatusInput) (*StatusOutput, error) {
	resp := StatusResponse{
		Pipeline: h.stats.Snapshot(),
	}

	if h.decoder != nil {
		if proc := h.decoder.LastProcess(); proc != nil {
			resp.Decoder = &DecoderStatus{
				PID:        proc.PID(),
				Stats:      proc.Stats(),
				StderrTail: proc.StderrTail(),
			}
		}
	}

	return &StatusOutput{Body: resp}, nil
}
