// Package music talks to the Suno HackMIT generation API.
package music

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"scenesound/internal/apperror"
	"scenesound/internal/logger"
	"scenesound/internal/models"
)

const (
	MaxTopicLength = 500
	MaxTagsLength  = 100

	DefaultPollInterval      = 2 * time.Second
	DefaultAudioTimeout      = 60 * time.Second
	DefaultCompletionTimeout = 3 * time.Minute

	maxErrorBody = 512
)

// Client submits generation jobs and polls their clips.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient creates a Client; a nil httpClient gets a 30 second timeout per request.
func NewClient(baseURL, apiKey string, httpClient *http.Client, logger *logger.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
		logger:     logger,
	}
}

type generateRequest struct {
	Topic            string `json:"topic,omitempty"`
	Tags             string `json:"tags,omitempty"`
	MakeInstrumental bool   `json:"make_instrumental"`
}

// clip is the wire shape of a clip; some deployments nest error_message in metadata.
type clip struct {
	ID           string             `json:"id"`
	Status       models.TrackStatus `json:"status"`
	Title        string             `json:"title"`
	AudioURL     string             `json:"audio_url"`
	ImageURL     string             `json:"image_url"`
	ErrorMessage string             `json:"error_message"`
	Metadata     struct {
		ErrorMessage string `json:"error_message"`
	} `json:"metadata"`
}

func (c clip) track() models.GeneratedTrack {
	msg := c.ErrorMessage
	if msg == "" {
		msg = c.Metadata.ErrorMessage
	}
	return models.GeneratedTrack{
		ID:           c.ID,
		Status:       c.Status,
		Title:        c.Title,
		AudioURL:     c.AudioURL,
		ImageURL:     c.ImageURL,
		ErrorMessage: msg,
	}
}

// ValidateRequest checks the length limits of a generation request.
func ValidateRequest(tags, topic string) error {
	if strings.TrimSpace(tags) == "" && strings.TrimSpace(topic) == "" {
		return &apperror.ValidationError{Field: "tags", Message: "tags or topic is required"}
	}
	if n := utf8.RuneCountInString(topic); n > MaxTopicLength {
		return &apperror.ValidationError{Field: "topic", Message: fmt.Sprintf("%d characters exceeds limit of %d", n, MaxTopicLength)}
	}
	if n := utf8.RuneCountInString(tags); n > MaxTagsLength {
		return &apperror.ValidationError{Field: "tags", Message: fmt.Sprintf("%d characters exceeds limit of %d", n, MaxTagsLength)}
	}
	return nil
}

// Submit starts a generation job. Limits are checked before anything is sent.
func (c *Client) Submit(ctx context.Context, tags, topic string, instrumental bool) (*models.GeneratedTrack, error) {
	if err := ValidateRequest(tags, topic); err != nil {
		return nil, err
	}

	var out clip
	req := generateRequest{Topic: topic, Tags: tags, MakeInstrumental: instrumental}
	if err := c.do(ctx, http.MethodPost, "/generate", req, &out); err != nil {
		return nil, fmt.Errorf("failed to submit generation: %w", err)
	}
	if out.ID == "" {
		return nil, fmt.Errorf("failed to submit generation: response has no clip id")
	}

	track := out.track()
	if track.Status == "" {
		track.Status = models.TrackSubmitted
	}
	c.logger.Info("Submitted clip %s (status %s, instrumental=%t)", track.ID, track.Status, instrumental)
	return &track, nil
}

// FetchStatus looks up several clips at once, in the order requested.
func (c *Client) FetchStatus(ctx context.Context, ids []string) ([]models.GeneratedTrack, error) {
	if len(ids) == 0 {
		return nil, &apperror.ValidationError{Field: "ids", Message: "at least one clip id is required"}
	}

	var clips []clip
	path := "/clips?ids=" + url.QueryEscape(strings.Join(ids, ","))
	if err := c.do(ctx, http.MethodGet, path, nil, &clips); err != nil {
		return nil, fmt.Errorf("failed to fetch clip status: %w", err)
	}

	byID := make(map[string]clip, len(clips))
	for _, cl := range clips {
		byID[cl.ID] = cl
	}

	tracks := make([]models.GeneratedTrack, 0, len(ids))
	for _, id := range ids {
		cl, ok := byID[id]
		if !ok {
			return nil, &apperror.NotFoundError{Resource: "clip", ID: id}
		}
		tracks = append(tracks, cl.track())
	}
	return tracks, nil
}

// AwaitCompletion polls until the clip is complete.
func (c *Client) AwaitCompletion(ctx context.Context, id string, timeout, interval time.Duration) (*models.GeneratedTrack, error) {
	if timeout <= 0 {
		timeout = DefaultCompletionTimeout
	}
	return c.poll(ctx, "await completion", id, timeout, interval, func(t models.GeneratedTrack) bool {
		return t.Status == models.TrackComplete
	})
}

// AwaitAudioURL returns as soon as the clip exposes an audio URL, which usually happens
// while it is still generating; title and cover may not be final yet.
func (c *Client) AwaitAudioURL(ctx context.Context, id string, timeout, interval time.Duration) (*models.GeneratedTrack, error) {
	if timeout <= 0 {
		timeout = DefaultAudioTimeout
	}
	track, err := c.poll(ctx, "await audio url", id, timeout, interval, func(t models.GeneratedTrack) bool {
		return t.AudioURL != "" || t.Status == models.TrackComplete
	})
	if err != nil {
		return nil, err
	}
	if track.AudioURL == "" {
		return nil, &apperror.GenerationFailedError{ClipID: id, Message: "clip completed without an audio url"}
	}
	return track, nil
}

// poll fetches the clip every interval until done, a remote error, the timeout or ctx ends it.
// A fetch in flight when the timeout passes is cancelled.
func (c *Client) poll(ctx context.Context, op, id string, timeout, interval time.Duration, done func(models.GeneratedTrack) bool) (*models.GeneratedTrack, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	start := time.Now()
	pollCtx, cancel := context.WithDeadline(ctx, start.Add(timeout))
	defer cancel()

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	timedOut := func() error {
		return &apperror.TimeoutError{Operation: op, Timeout: timeout, Elapsed: time.Since(start)}
	}

	unknown := false
	for attempt := 1; ; attempt++ {
		tracks, err := c.FetchStatus(pollCtx, []string{id})
		if err != nil {
			if ctx.Err() == nil && errors.Is(pollCtx.Err(), context.DeadlineExceeded) {
				return nil, timedOut()
			}
			return nil, err
		}
		track := tracks[0]

		if !track.Status.Valid() && !unknown {
			unknown = true
			c.logger.Warning("Clip %s reports unknown status %q, still polling", id, track.Status)
		}
		if track.Status == models.TrackError {
			return nil, &apperror.GenerationFailedError{ClipID: id, Message: track.ErrorMessage}
		}
		if done(track) {
			c.logger.Info("Clip %s ready after %d polls (%s, status %s)", id, attempt, time.Since(start).Round(time.Millisecond), track.Status)
			return &track, nil
		}

		elapsed := time.Since(start)
		if elapsed >= timeout {
			return nil, timedOut()
		}

		wait := interval
		if remaining := timeout - elapsed; remaining < wait {
			wait = remaining
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// do sends a JSON request and decodes a JSON reply into out.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &apperror.HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
