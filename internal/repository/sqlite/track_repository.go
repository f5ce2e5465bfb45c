package sqlite

import (
	"fmt"

	"scenesound/internal/models"
)

// TrackRepository implements repository.TrackRepository for SQLite.
type TrackRepository struct {
	db *DB
}

// NewTrackRepository creates a new SQLite track repository.
func NewTrackRepository(db *DB) *TrackRepository {
	return &TrackRepository{db: db}
}

// Insert appends a generated track to the history.
func (r *TrackRepository) Insert(entry *models.StoredMusicEntry) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		INSERT INTO tracks (device_id, user_id, clip_id, image_id, music_url, image_url, title,
			prompt, scene_description, make_instrumental, processing_time_ms, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.DeviceID, entry.UserID, entry.ClipID, entry.ImageID, entry.MusicURL, entry.ImageURL, entry.Title,
		entry.Prompt, entry.SceneDescription, entry.MakeInstrumental, entry.ProcessingTimeMs, entry.Timestamp.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert track: %w", err)
	}

	return result.LastInsertId()
}

// GetByDevice returns the history of deviceID, newest first. A limit <= 0 returns everything.
func (r *TrackRepository) GetByDevice(deviceID string, limit int) ([]models.StoredMusicEntry, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query := `
		SELECT device_id, user_id, clip_id, image_id, music_url, image_url, title,
			prompt, scene_description, make_instrumental, processing_time_ms, timestamp
		FROM tracks
		WHERE device_id = ?
		ORDER BY timestamp DESC, id DESC
	`
	args := []interface{}{deviceID}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	entries := []models.StoredMusicEntry{}
	for rows.Next() {
		var e models.StoredMusicEntry
		if err := rows.Scan(&e.DeviceID, &e.UserID, &e.ClipID, &e.ImageID, &e.MusicURL, &e.ImageURL, &e.Title,
			&e.Prompt, &e.SceneDescription, &e.MakeInstrumental, &e.ProcessingTimeMs, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan track: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tracks: %w", err)
	}

	return entries, nil
}

// Count returns how many tracks deviceID has, or all tracks when deviceID is empty.
func (r *TrackRepository) Count(deviceID string) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query := `SELECT COUNT(*) FROM tracks`
	args := []interface{}{}
	if deviceID != "" {
		query += " WHERE device_id = ?"
		args = append(args, deviceID)
	}

	var count int
	if err := r.db.Conn().QueryRow(query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tracks: %w", err)
	}
	return count, nil
}

// DeleteByDevice removes the history of deviceID.
func (r *TrackRepository) DeleteByDevice(deviceID string) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`DELETE FROM tracks WHERE device_id = ?`, deviceID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete tracks: %w", err)
	}
	return result.RowsAffected()
}

// InsertBatch appends several tracks in one transaction. Entries without a device or clip id are skipped.
func (r *TrackRepository) InsertBatch(entries []models.StoredMusicEntry) (int, error) {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO tracks (device_id, user_id, clip_id, image_id, music_url, image_url, title,
			prompt, scene_description, make_instrumental, processing_time_ms, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare track statement: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, e := range entries {
		if e.DeviceID == "" || e.ClipID == "" {
			continue
		}
		if _, err := stmt.Exec(e.DeviceID, e.UserID, e.ClipID, e.ImageID, e.MusicURL, e.ImageURL, e.Title,
			e.Prompt, e.SceneDescription, e.MakeInstrumental, e.ProcessingTimeMs, e.Timestamp.UTC()); err != nil {
			return 0, fmt.Errorf("failed to insert track %s: %w", e.ClipID, err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inserted, nil
}
