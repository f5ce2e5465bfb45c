package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"scenesound/internal/apperror"
	"scenesound/internal/dto"
	"scenesound/internal/logger"
	"scenesound/internal/models"
	"scenesound/internal/repository"
	"scenesound/internal/service/ai"
	"scenesound/internal/service/music"
	"scenesound/internal/service/storage"

	"github.com/google/uuid"
)

// Event types published to viewers.
const (
	EventResult   = "pipeline_result"
	EventState    = "pipeline_state"
	EventComplete = "track_complete"
)

// ChangeDetector decides whether the newest frame of a device starts a new scene.
type ChangeDetector interface {
	Compare(deviceID string, threshold float64) ai.Verdict
	ResetDevice(deviceID string)
}

// Analyzer turns a frame into a music prompt. It never fails.
type Analyzer interface {
	Analyze(ctx context.Context, imageBase64 string) *models.SceneAnalysisResult
}

// Generator submits music jobs and waits for their audio.
type Generator interface {
	Submit(ctx context.Context, tags, topic string, instrumental bool) (*models.GeneratedTrack, error)
	AwaitAudioURL(ctx context.Context, id string, timeout, interval time.Duration) (*models.GeneratedTrack, error)
	AwaitCompletion(ctx context.Context, id string, timeout, interval time.Duration) (*models.GeneratedTrack, error)
}

// Broadcaster pushes events to connected viewers.
type Broadcaster interface {
	Publish(eventType, deviceID string, payload interface{})
}

// ManagerOptions tunes a pipeline run. A zero CompletionTimeout disables the background
// pass that refreshes title and cover once a clip is complete.
type ManagerOptions struct {
	ChangeThreshold   float64
	AudioTimeout      time.Duration
	CompletionTimeout time.Duration
	PollInterval      time.Duration
	OptimizeImages    bool
}

// Manager runs the capture pipeline: buffer, detect, analyze, generate, store.
// Runs are serialized per device and independent across devices.
type Manager struct {
	bufferService *storage.BufferService
	musicStore    *storage.MusicStore
	detector      ChangeDetector
	analyzer      Analyzer
	generator     Generator
	history       repository.TrackRepository
	broadcaster   Broadcaster
	options       ManagerOptions
	logger        *logger.Logger
	now           func() time.Time

	inFlight map[string]bool
	states   map[string]models.PipelineState
	stateMu  sync.Mutex

	background context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	stopMu     sync.Mutex
	stopped    bool
}

// NewManager wires the pipeline. history and broadcaster may be nil.
func NewManager(
	bufferService *storage.BufferService,
	musicStore *storage.MusicStore,
	detector ChangeDetector,
	analyzer Analyzer,
	generator Generator,
	history repository.TrackRepository,
	broadcaster Broadcaster,
	options ManagerOptions,
	logger *logger.Logger,
) *Manager {
	if options.ChangeThreshold <= 0 || options.ChangeThreshold >= 1 {
		options.ChangeThreshold = ai.DefaultChangeThreshold
	}
	if options.AudioTimeout <= 0 {
		options.AudioTimeout = music.DefaultAudioTimeout
	}
	if options.PollInterval <= 0 {
		options.PollInterval = music.DefaultPollInterval
	}

	background, cancel := context.WithCancel(context.Background())
	return &Manager{
		background:    background,
		cancel:        cancel,
		bufferService: bufferService,
		musicStore:    musicStore,
		detector:      detector,
		analyzer:      analyzer,
		generator:     generator,
		history:       history,
		broadcaster:   broadcaster,
		options:       options,
		logger:        logger,
		now:           time.Now,
		inFlight:      make(map[string]bool),
		states:        make(map[string]models.PipelineState),
	}
}

// Process runs one inbound image through the pipeline. The returned error is nil for
// generated, unchanged and busy results; otherwise it carries the apperror behind the failure.
func (m *Manager) Process(ctx context.Context, req dto.IngestRequest) (dto.PipelineResult, error) {
	data, mimeType, err := req.Image()
	if err != nil {
		return m.failure(dto.StatusFailed, err), err
	}
	deviceID := strings.TrimSpace(req.DeviceID)
	log := m.logger.With("device", deviceID, "run", uuid.NewString())

	if !m.acquire(deviceID) {
		// The frame is kept so the next run compares against it.
		record, err := m.bufferService.AddImage(data, deviceID, mimeType, req.UserID, storage.AddOptions{Optimize: m.options.OptimizeImages})
		if err != nil {
			log.Warning("Dropped frame while busy: %v", err)
			return m.rejected(deviceID, err)
		}
		log.Info("Pipeline already running, frame %s buffered only", record.ID)
		return dto.PipelineResult{
			Success:      true,
			SceneChanged: false,
			Status:       dto.StatusBusy,
			Message:      "a pipeline run is already in progress for this device",
			ImageID:      record.ID,
			Timestamp:    m.now(),
		}, nil
	}
	defer m.release(deviceID)

	start := m.now()

	m.setState(deviceID, models.StateBuffering)
	record, err := m.bufferService.AddImage(data, deviceID, mimeType, req.UserID, storage.AddOptions{Optimize: m.options.OptimizeImages})
	if err != nil {
		log.Warning("Image rejected: %v", err)
		return m.rejected(deviceID, err)
	}

	m.setState(deviceID, models.StateDetecting)
	verdict := m.detector.Compare(deviceID, m.options.ChangeThreshold)
	if !verdict.Changed {
		log.Info("Scene unchanged (similarity %.3f), skipping generation", verdict.Similarity)
		result := dto.PipelineResult{
			Success:        true,
			SceneChanged:   false,
			Status:         dto.StatusUnchanged,
			Message:        "scene unchanged",
			ImageID:        record.ID,
			ProcessingTime: m.since(start),
			Timestamp:      m.now(),
		}
		m.publish(deviceID, result)
		return result, nil
	}
	log.Info("Scene change detected (%s, similarity %.3f)", verdict.Reason, verdict.Similarity)

	m.setState(deviceID, models.StateAnalyzing)
	analysis := m.analyzer.Analyze(ctx, record.Base64())
	instrumental := analysis.MakeInstrumental

	partial := dto.PipelineResult{
		SceneChanged:     true,
		Prompt:           analysis.Prompt,
		SceneDescription: analysis.SceneDescription,
		MakeInstrumental: &instrumental,
		ImageID:          record.ID,
	}

	m.setState(deviceID, models.StateGenerating)
	tags := ClampText(analysis.Prompt, music.MaxTagsLength)
	topic := ClampText(analysis.Prompt, music.MaxTopicLength)
	handle, err := m.generator.Submit(ctx, tags, topic, instrumental)
	if err != nil {
		return m.abort(log, deviceID, partial, start, err)
	}
	partial.ClipID = handle.ID

	m.setState(deviceID, models.StateAwaitingAudio)
	track, err := m.generator.AwaitAudioURL(ctx, handle.ID, m.options.AudioTimeout, m.options.PollInterval)
	if err != nil {
		return m.abort(log, deviceID, partial, start, err)
	}

	entry := models.StoredMusicEntry{
		DeviceID:         deviceID,
		UserID:           req.UserID,
		MusicURL:         track.AudioURL,
		ImageURL:         track.ImageURL,
		Title:            track.Title,
		SceneDescription: analysis.SceneDescription,
		Prompt:           analysis.Prompt,
		MakeInstrumental: instrumental,
		ClipID:           track.ID,
		ImageID:          record.ID,
		ProcessingTimeMs: m.since(start),
		Timestamp:        m.now(),
	}
	m.musicStore.Put(entry)
	if m.history != nil {
		if _, err := m.history.Insert(&entry); err != nil {
			log.Error("Failed to append track history: %v", err)
		}
	}

	result := partial
	result.Success = true
	result.Status = dto.StatusGenerated
	result.MusicURL = entry.MusicURL
	result.ImageURL = entry.ImageURL
	result.ClipID = entry.ClipID
	result.Title = entry.Title
	result.ProcessingTime = entry.ProcessingTimeMs
	result.Timestamp = entry.Timestamp

	log.Info("Generated clip %s in %dms", entry.ClipID, entry.ProcessingTimeMs)
	m.publish(deviceID, result)
	if track.Status != models.TrackComplete {
		m.finalize(log, deviceID, track.ID)
	}
	return result, nil
}

// finalize waits in the background for the clip to complete and refreshes the stored
// entry with its final title, cover and audio.
func (m *Manager) finalize(log *logger.Logger, deviceID, clipID string) {
	if m.options.CompletionTimeout <= 0 {
		return
	}

	refresh := func() {
		track, err := m.generator.AwaitCompletion(m.background, clipID, m.options.CompletionTimeout, m.options.PollInterval)
		if err != nil {
			log.Warning("Clip %s did not complete: %v", clipID, err)
			return
		}

		entry, ok := m.musicStore.Update(deviceID, clipID, func(e *models.StoredMusicEntry) {
			if track.Title != "" {
				e.Title = track.Title
			}
			if track.ImageURL != "" {
				e.ImageURL = track.ImageURL
			}
			if track.AudioURL != "" {
				e.MusicURL = track.AudioURL
			}
		})
		if !ok {
			return
		}
		log.Info("Clip %s complete: %q", clipID, entry.Title)
		if m.broadcaster != nil {
			m.broadcaster.Publish(EventComplete, deviceID, entry)
		}
	}
	if !m.goBackground(refresh) {
		log.Warning("Manager stopped, clip %s will not be refreshed", clipID)
	}
}

// HandleFrame runs a frame received outside HTTP in the background; results reach viewers
// through the broadcaster. Frames arriving after Stop are dropped.
func (m *Manager) HandleFrame(ctx context.Context, deviceID string, frame []byte) {
	accepted := m.goBackground(func() {
		if _, err := m.Process(ctx, dto.IngestRequest{DeviceID: deviceID, RawBytes: frame}); err != nil {
			m.logger.Warning("Frame from %s failed: %v", deviceID, err)
		}
	})
	if !accepted {
		m.logger.Warning("Manager stopped, dropped frame from %s", deviceID)
	}
}

// goBackground runs fn on a tracked goroutine unless Stop has begun.
func (m *Manager) goBackground(fn func()) bool {
	m.stopMu.Lock()
	defer m.stopMu.Unlock()
	if m.stopped {
		return false
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn()
	}()
	return true
}

// Wait blocks until every background run and completion pass has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Stop cancels pending completion passes and waits for background work to end.
func (m *Manager) Stop() {
	m.stopMu.Lock()
	m.stopped = true
	m.stopMu.Unlock()

	m.cancel()
	m.wg.Wait()
	m.logger.Info("Pipeline manager stopped")
}

// ClearDevice drops the buffered frames and detector cache of deviceID.
func (m *Manager) ClearDevice(deviceID string) int {
	removed := m.bufferService.Clear(deviceID)
	m.detector.ResetDevice(deviceID)
	return removed
}

// LatestMusic returns the stored entry of deviceID.
func (m *Manager) LatestMusic(deviceID string) (models.StoredMusicEntry, error) {
	entry, ok := m.musicStore.Get(deviceID)
	if !ok {
		return models.StoredMusicEntry{}, &apperror.NotFoundError{Resource: "music entry", ID: deviceID}
	}
	return entry, nil
}

// ForgetMusic drops the stored entry of deviceID. Appended history is kept.
func (m *Manager) ForgetMusic(deviceID string) error {
	if !m.musicStore.Delete(deviceID) {
		return &apperror.NotFoundError{Resource: "music entry", ID: deviceID}
	}
	return nil
}

// DeviceState reports where deviceID is in its pipeline.
func (m *Manager) DeviceState(deviceID string) (models.PipelineState, bool) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	state, ok := m.states[deviceID]
	if !ok {
		state = models.StateIdle
	}
	return state, m.inFlight[deviceID]
}

func (m *Manager) GetBufferService() *storage.BufferService {
	return m.bufferService
}

func (m *Manager) GetHistory() repository.TrackRepository {
	return m.history
}

// acquire marks deviceID as running. It reports false when a run is already in flight.
func (m *Manager) acquire(deviceID string) bool {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	if m.inFlight[deviceID] {
		return false
	}
	m.inFlight[deviceID] = true
	return true
}

func (m *Manager) release(deviceID string) {
	m.stateMu.Lock()
	delete(m.inFlight, deviceID)
	m.states[deviceID] = models.StateIdle
	m.stateMu.Unlock()
}

func (m *Manager) setState(deviceID string, state models.PipelineState) {
	m.stateMu.Lock()
	m.states[deviceID] = state
	m.stateMu.Unlock()

	if m.broadcaster != nil {
		m.broadcaster.Publish(EventState, deviceID, map[string]string{"state": string(state)})
	}
}

func (m *Manager) abort(log *logger.Logger, deviceID string, partial dto.PipelineResult, start time.Time, err error) (dto.PipelineResult, error) {
	// A clip the vendor no longer reports is a failed generation, not a missing route.
	var notFoundErr *apperror.NotFoundError
	if errors.As(err, &notFoundErr) {
		err = &apperror.GenerationFailedError{ClipID: partial.ClipID, Message: notFoundErr.Error()}
	}

	var timeoutErr *apperror.TimeoutError
	if errors.As(err, &timeoutErr) {
		log.Warning("Music generation timed out: %v", err)
	} else {
		log.Error("Music generation failed: %v", err)
	}

	result := partial
	result.Success = false
	result.Status = dto.StatusFailed
	result.Error = err.Error()
	result.ProcessingTime = m.since(start)
	result.Timestamp = m.now()
	m.publish(deviceID, result)
	return result, err
}

func (m *Manager) rejected(deviceID string, err error) (dto.PipelineResult, error) {
	result := m.failure(dto.StatusImageRejected, err)
	result.Warning = err.Error()
	m.publish(deviceID, result)
	return result, err
}

func (m *Manager) failure(status dto.ResultStatus, err error) dto.PipelineResult {
	return dto.PipelineResult{
		Success:   false,
		Status:    status,
		Error:     err.Error(),
		Timestamp: m.now(),
	}
}

func (m *Manager) publish(deviceID string, result dto.PipelineResult) {
	if m.broadcaster != nil {
		m.broadcaster.Publish(EventResult, deviceID, result)
	}
}

func (m *Manager) since(start time.Time) int64 {
	return m.now().Sub(start).Milliseconds()
}

// ClampText shortens s to at most limit characters, cutting at the last word boundary.
func ClampText(s string, limit int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:limit])
	if i := strings.LastIndexAny(cut, " ,;"); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,;.-")
}
