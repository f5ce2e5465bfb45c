package models

import "time"

const (
	AnalysisConfidence = 0.85
	FallbackConfidence = 0.1
)

// SceneAnalysisResult is what the vision step hands to music generation.
type SceneAnalysisResult struct {
	Prompt           string    `json:"prompt"`
	SceneDescription string    `json:"sceneDescription"`
	MakeInstrumental bool      `json:"makeInstrumental"`
	Confidence       float64   `json:"confidence"`
	Timestamp        time.Time `json:"timestamp"`
	ProcessingTimeMs int64     `json:"processingTimeMs"`
}

// IsFallback reports whether the result came from the static fallback set.
func (r *SceneAnalysisResult) IsFallback() bool {
	return r.Confidence == FallbackConfidence
}
