package models

// PipelineState is where a device currently is in its capture pipeline.
type PipelineState string

const (
	StateIdle          PipelineState = "idle"
	StateBuffering     PipelineState = "buffering"
	StateDetecting     PipelineState = "detecting"
	StateAnalyzing     PipelineState = "analyzing"
	StateGenerating    PipelineState = "generating"
	StateAwaitingAudio PipelineState = "awaiting-audio"
)
