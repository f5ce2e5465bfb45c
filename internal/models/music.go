package models

import "time"

// StoredMusicEntry is the latest generated track for one device.
type StoredMusicEntry struct {
	DeviceID         string    `json:"deviceId"`
	UserID           string    `json:"userId,omitempty"`
	MusicURL         string    `json:"musicUrl"`
	ImageURL         string    `json:"imageUrl,omitempty"`
	Title            string    `json:"title,omitempty"`
	SceneDescription string    `json:"sceneDescription"`
	Prompt           string    `json:"prompt"`
	MakeInstrumental bool      `json:"makeInstrumental"`
	ClipID           string    `json:"clipId"`
	ImageID          string    `json:"imageId"`
	ProcessingTimeMs int64     `json:"processingTime"`
	Timestamp        time.Time `json:"timestamp"`
}
