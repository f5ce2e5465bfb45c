package storage

import (
	"sync"

	"scenesound/internal/models"
)

// DefaultMusicStoreLimit caps how many devices keep a stored entry.
const DefaultMusicStoreLimit = 100

// MusicStore holds one entry per device: a new entry overwrites the previous one.
// Past the limit the entry with the oldest timestamp is evicted, across all devices.
type MusicStore struct {
	entries map[string]models.StoredMusicEntry
	limit   int
	mu      sync.RWMutex
}

func NewMusicStore(limit int) *MusicStore {
	if limit <= 0 {
		limit = DefaultMusicStoreLimit
	}
	return &MusicStore{
		entries: make(map[string]models.StoredMusicEntry),
		limit:   limit,
	}
}

// Put stores entry under entry.DeviceID, replacing any previous entry for that device.
func (s *MusicStore) Put(entry models.StoredMusicEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[entry.DeviceID] = entry

	for len(s.entries) > s.limit {
		oldestID := ""
		for id, e := range s.entries {
			if id == entry.DeviceID {
				continue
			}
			if oldestID == "" || e.Timestamp.Before(s.entries[oldestID].Timestamp) {
				oldestID = id
			}
		}
		delete(s.entries, oldestID)
	}
}

// Get returns the latest entry of deviceID.
func (s *MusicStore) Get(deviceID string) (models.StoredMusicEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[deviceID]
	return entry, ok
}

// Delete removes the entry of deviceID and reports whether there was one.
func (s *MusicStore) Delete(deviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[deviceID]; !ok {
		return false
	}
	delete(s.entries, deviceID)
	return true
}

func (s *MusicStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Update applies fn to the entry of deviceID if it still belongs to clipID.
func (s *MusicStore) Update(deviceID, clipID string, fn func(*models.StoredMusicEntry)) (models.StoredMusicEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[deviceID]
	if !ok || entry.ClipID != clipID {
		return models.StoredMusicEntry{}, false
	}
	fn(&entry)
	s.entries[deviceID] = entry
	return entry, true
}
