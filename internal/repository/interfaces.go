package repository

import "scenesound/internal/models"

// TrackRepository is the appended history of generated tracks.
// The in-memory music store stays the source of the latest entry per device.
type TrackRepository interface {
	// Create operations
	Insert(entry *models.StoredMusicEntry) (int64, error)

	// Read operations
	GetByDevice(deviceID string, limit int) ([]models.StoredMusicEntry, error)
	Count(deviceID string) (int, error)

	// Delete operations
	DeleteByDevice(deviceID string) (int64, error)
}
