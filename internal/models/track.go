package models

// TrackStatus is the lifecycle of a remote generation job.
type TrackStatus string

const (
	TrackSubmitted  TrackStatus = "submitted"
	TrackQueued     TrackStatus = "queued"
	TrackGenerating TrackStatus = "generating"
	TrackComplete   TrackStatus = "complete"
	TrackError      TrackStatus = "error"
)

// Valid reports whether s is one of the five known statuses.
func (s TrackStatus) Valid() bool {
	switch s {
	case TrackSubmitted, TrackQueued, TrackGenerating, TrackComplete, TrackError:
		return true
	}
	return false
}

// GeneratedTrack mirrors a clip object of the generation API.
type GeneratedTrack struct {
	ID           string      `json:"id"`
	Status       TrackStatus `json:"status"`
	Title        string      `json:"title,omitempty"`
	AudioURL     string      `json:"audio_url,omitempty"`
	ImageURL     string      `json:"image_url,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
}
