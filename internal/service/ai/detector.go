package ai

import (
	"fmt"
	"sync"

	"scenesound/internal/logger"
	"scenesound/internal/models"
	"scenesound/internal/service/imageproc"
)

const (
	// DefaultChangeThreshold triggers a change once similarity drops below 0.7.
	DefaultChangeThreshold = 0.3
	// ThumbnailSize is the edge of the square each frame is downsampled to before binning.
	ThumbnailSize = 64
	histogramBins = 256
)

// Histogram counts raw byte values of a downsampled frame, all color channels pooled.
type Histogram [histogramBins]int

// ImageSource supplies the newest buffered images of a device, newest first.
type ImageSource interface {
	Recent(deviceID string, limit int) []models.ImageRecord
}

// Verdict is the outcome of comparing a device's two newest frames.
type Verdict struct {
	Changed    bool    `json:"changed"`
	Similarity float64 `json:"similarity"`
	Reason     string  `json:"reason"`
}

// deviceState caches histograms of the frames last compared for one device.
type deviceState struct {
	histograms map[string]*Histogram // keyed by content hash
	mutex      sync.Mutex
}

// DetectorService decides whether a device's scene changed enough to regenerate music.
type DetectorService struct {
	source       ImageSource
	processor    *imageproc.Processor
	deviceStates map[string]*deviceState
	statesMutex  sync.RWMutex
	logger       *logger.Logger
}

func NewDetectorService(source ImageSource, processor *imageproc.Processor, logger *logger.Logger) *DetectorService {
	return &DetectorService{
		source:       source,
		processor:    processor,
		deviceStates: make(map[string]*deviceState),
		logger:       logger,
	}
}

// HasChanged reports whether the two newest frames of deviceID differ by more than threshold.
func (s *DetectorService) HasChanged(deviceID string, threshold float64) bool {
	return s.Compare(deviceID, threshold).Changed
}

// Compare is HasChanged with the similarity and the reason for the verdict.
// With fewer than two frames, or when a frame cannot be processed, the scene counts as changed.
func (s *DetectorService) Compare(deviceID string, threshold float64) Verdict {
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultChangeThreshold
	}

	recent := s.source.Recent(deviceID, 2)
	if len(recent) < 2 {
		return Verdict{Changed: true, Reason: "first_frame"}
	}

	hists, err := s.histograms(deviceID, recent)
	if err != nil {
		s.logger.Warning("Scene comparison failed for device %s, assuming change: %v", deviceID, err)
		return Verdict{Changed: true, Reason: "comparison_failed"}
	}

	similarity := Similarity(hists[0], hists[1])
	changed := similarity < 1-threshold

	s.logger.Info("Device %s similarity %.3f (changed=%t, threshold %.2f)", deviceID, similarity, changed, threshold)

	reason := "scene_unchanged"
	if changed {
		reason = "scene_changed"
	}
	return Verdict{Changed: changed, Similarity: similarity, Reason: reason}
}

// Similarity is the intersection over union of two histograms: the sum of per-bin
// minima over the sum of per-bin maxima, 0 when both are empty.
func Similarity(a, b *Histogram) float64 {
	var intersection, union int
	for i := 0; i < histogramBins; i++ {
		x, y := a[i], b[i]
		if x < y {
			intersection += x
			union += y
		} else {
			intersection += y
			union += x
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// ComputeHistogram downsamples an encoded image to ThumbnailSize x ThumbnailSize and bins its bytes.
func (s *DetectorService) ComputeHistogram(imageBytes []byte) (*Histogram, error) {
	pixels, err := s.processor.RawPixels(imageBytes, ThumbnailSize, ThumbnailSize)
	if err != nil {
		return nil, err
	}
	var h Histogram
	for _, v := range pixels {
		h[v]++
	}
	return &h, nil
}

// ResetDevice forgets cached histograms of deviceID.
func (s *DetectorService) ResetDevice(deviceID string) {
	s.statesMutex.Lock()
	defer s.statesMutex.Unlock()
	delete(s.deviceStates, deviceID)
}

// histograms returns one histogram per record, reusing those computed on the previous call.
func (s *DetectorService) histograms(deviceID string, records []models.ImageRecord) ([]*Histogram, error) {
	state := s.getDeviceState(deviceID)
	state.mutex.Lock()
	defer state.mutex.Unlock()

	fresh := make(map[string]*Histogram, len(records))
	out := make([]*Histogram, 0, len(records))
	for _, rec := range records {
		h, ok := state.histograms[rec.Hash]
		if !ok {
			var err error
			h, err = s.ComputeHistogram(rec.Data)
			if err != nil {
				return nil, fmt.Errorf("image %s: %w", rec.ID, err)
			}
		}
		fresh[rec.Hash] = h
		out = append(out, h)
	}
	state.histograms = fresh
	return out, nil
}

// getDeviceState returns the per-device state, creating it when absent.
func (s *DetectorService) getDeviceState(deviceID string) *deviceState {
	s.statesMutex.RLock()
	state, exists := s.deviceStates[deviceID]
	s.statesMutex.RUnlock()

	if exists {
		return state
	}

	s.statesMutex.Lock()
	defer s.statesMutex.Unlock()
	// Double-check (may have been created by another goroutine)
	if state, exists := s.deviceStates[deviceID]; exists {
		return state
	}

	state = &deviceState{histograms: make(map[string]*Histogram)}
	s.deviceStates[deviceID] = state
	return state
}
