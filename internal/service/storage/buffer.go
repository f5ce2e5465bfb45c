package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"scenesound/internal/apperror"
	"scenesound/internal/logger"
	"scenesound/internal/models"
	"scenesound/internal/service/imageproc"
)

const (
	// DefaultBufferLimit caps the total number of buffered images across all devices.
	DefaultBufferLimit = 50
	hashPrefixLen      = 8
)

// AddOptions controls how an inbound image is normalized before buffering.
type AddOptions struct {
	Optimize bool
}

// BufferService keeps the most recent captured images in memory.
//
// The capacity bound is global: when it is exceeded the oldest image of any
// device is evicted, so a chatty device can push a quiet device's history out.
type BufferService struct {
	images    []models.ImageRecord // insertion order, newest last
	limit     int
	seq       uint64
	processor *imageproc.Processor
	logger    *logger.Logger
	now       func() time.Time
	mu        sync.RWMutex
}

// NewBufferService creates a BufferService holding at most limit images.
func NewBufferService(limit int, processor *imageproc.Processor, logger *logger.Logger) *BufferService {
	if limit <= 0 {
		limit = DefaultBufferLimit
	}
	return &BufferService{
		images:    make([]models.ImageRecord, 0, limit+1),
		limit:     limit,
		processor: processor,
		logger:    logger,
		now:       time.Now,
	}
}

// AddImage normalizes imageData, records its metadata and appends it to the buffer.
func (s *BufferService) AddImage(imageData []byte, deviceID, mimeType, userID string, opts AddOptions) (models.ImageRecord, error) {
	if len(imageData) == 0 {
		return models.ImageRecord{}, &apperror.ValidationError{Field: "image", Message: "image payload is empty"}
	}
	if strings.TrimSpace(deviceID) == "" {
		return models.ImageRecord{}, &apperror.ValidationError{Field: "deviceId", Message: "device id is required"}
	}

	prepared, err := s.processor.Prepare(imageData, opts.Optimize)
	if err != nil {
		return models.ImageRecord{}, &apperror.ImageProcessingError{DeviceID: deviceID, Err: err}
	}

	if opts.Optimize || mimeType == "" {
		mimeType = prepared.MimeType
	}

	sum := sha256.Sum256(prepared.Data)
	hash := hex.EncodeToString(sum[:])

	s.mu.Lock()
	defer s.mu.Unlock()

	timestamp := s.now()
	s.seq++
	record := models.NewImageRecord(models.ImageRecord{
		ID:        fmt.Sprintf("%s_%d_%s", deviceID, timestamp.UnixMilli(), hash[:hashPrefixLen]),
		DeviceID:  deviceID,
		UserID:    userID,
		Timestamp: timestamp,
		MimeType:  mimeType,
		Size:      len(prepared.Data),
		Width:     prepared.Width,
		Height:    prepared.Height,
		Hash:      hash,
		Data:      prepared.Data,
	}, s.seq)

	s.images = append(s.images, record)
	s.logger.Info("Buffered image %s (%dx%d, %d bytes) - buffer %d/%d",
		record.ID, record.Width, record.Height, record.Size, len(s.images), s.limit)

	for len(s.images) > s.limit {
		evicted := s.evictOldestLocked()
		s.logger.Info("Evicted image %s from device %s", evicted.ID, evicted.DeviceID)
	}

	return record, nil
}

// evictOldestLocked removes the record with the oldest timestamp, insertion order breaking ties.
func (s *BufferService) evictOldestLocked() models.ImageRecord {
	oldest := 0
	for i := 1; i < len(s.images); i++ {
		a, b := s.images[i], s.images[oldest]
		if a.Timestamp.Before(b.Timestamp) || (a.Timestamp.Equal(b.Timestamp) && a.Seq() < b.Seq()) {
			oldest = i
		}
	}
	evicted := s.images[oldest]
	s.images = append(s.images[:oldest], s.images[oldest+1:]...)
	return evicted
}

// Recent returns up to limit images of deviceID, newest first. limit <= 0 returns all of them.
func (s *BufferService) Recent(deviceID string, limit int) []models.ImageRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.ImageRecord
	for i := len(s.images) - 1; i >= 0; i-- {
		if s.images[i].DeviceID != deviceID {
			continue
		}
		out = append(out, s.images[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Clear drops every image of deviceID and returns how many were removed.
func (s *BufferService) Clear(deviceID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.images[:0]
	removed := 0
	for _, img := range s.images {
		if img.DeviceID == deviceID {
			removed++
			continue
		}
		kept = append(kept, img)
	}
	for i := len(kept); i < len(s.images); i++ {
		s.images[i] = models.ImageRecord{}
	}
	s.images = kept

	if removed > 0 {
		s.logger.Info("Cleared %d buffered images for device %s", removed, deviceID)
	}
	return removed
}

// Len returns the number of buffered images across all devices.
func (s *BufferService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.images)
}

// Stats summarizes the buffer contents.
func (s *BufferService) Stats() models.BufferStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := models.BufferStats{
		TotalImages: len(s.images),
		Capacity:    s.limit,
		PerDevice:   make(map[string]int),
	}

	for _, img := range s.images {
		stats.TotalSizeBytes += int64(img.Size)
		stats.PerDevice[img.DeviceID]++

		ts := img.Timestamp
		if stats.Oldest == nil || ts.Before(*stats.Oldest) {
			stats.Oldest = &ts
		}
		if stats.Newest == nil || ts.After(*stats.Newest) {
			t := ts
			stats.Newest = &t
		}
	}

	return stats
}
