package dto

import "time"

// ResultStatus summarizes how a pipeline run ended.
type ResultStatus string

const (
	StatusGenerated     ResultStatus = "generated"
	StatusUnchanged     ResultStatus = "unchanged"
	StatusBusy          ResultStatus = "busy"
	StatusFailed        ResultStatus = "failed"
	StatusImageRejected ResultStatus = "image_rejected"
)

// PipelineResult is what the device and viewers see for one inbound image.
// SceneChanged false on a successful result is a deliberate no-op.
type PipelineResult struct {
	Success          bool         `json:"success"`
	SceneChanged     bool         `json:"sceneChanged"`
	Status           ResultStatus `json:"status"`
	Message          string       `json:"message,omitempty"`
	Warning          string       `json:"warning,omitempty"`
	MusicURL         string       `json:"musicUrl,omitempty"`
	ImageURL         string       `json:"imageUrl,omitempty"`
	Prompt           string       `json:"prompt,omitempty"`
	SceneDescription string       `json:"sceneDescription,omitempty"`
	MakeInstrumental *bool        `json:"makeInstrumental,omitempty"`
	ClipID           string       `json:"clipId,omitempty"`
	Title            string       `json:"title,omitempty"`
	ProcessingTime   int64        `json:"processingTime,omitempty"`
	ImageID          string       `json:"imageId,omitempty"`
	Error            string       `json:"error,omitempty"`
	Timestamp        time.Time    `json:"timestamp"`
}
