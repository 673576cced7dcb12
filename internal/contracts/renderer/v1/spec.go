// Package v1 is the wire contract between vidhook and a remote render
// service. The service shares the staging filesystem: inputs are read from
// and the output is written to the given paths.
package v1

const RenderPath = "/render/v1"

type RenderRequest struct {
	JobID string `json:"job_id"`
	// Inputs in engine slot order: [0] video, [1] template image.
	Inputs      []string `json:"inputs"`
	FilterGraph string   `json:"filter_graph"`
	MapLabel    string   `json:"map"`
	Output      Output   `json:"output"`
}

type Output struct {
	Path       string `json:"path"`
	Container  string `json:"container"`
	VideoCodec string `json:"video_codec"`
	AudioCodec string `json:"audio_codec"`
	FastStart  bool   `json:"faststart"`
}

// RenderResponse is returned with any status; Error is set on failure.
type RenderResponse struct {
	JobID string `json:"job_id"`
	Error string `json:"error,omitempty"`
}
