package models

import (
	"encoding/base64"
	"sync"
	"time"
)

// ImageRecord is one captured image after optional resize/recompression.
type ImageRecord struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"deviceId"`
	UserID    string    `json:"userId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	MimeType  string    `json:"mimeType"`
	Size      int       `json:"size"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Hash      string    `json:"hash"`

	Data []byte `json:"-"`

	b64     *lazyBase64
	ordinal uint64
}

type lazyBase64 struct {
	once    sync.Once
	encoded string
}

// NewImageRecord wires the lazy base64 cache; seq orders records that share a timestamp.
func NewImageRecord(r ImageRecord, seq uint64) ImageRecord {
	r.b64 = &lazyBase64{}
	r.ordinal = seq
	return r
}

// Base64 returns the standard base64 encoding of Data, computed at most once per record.
func (r ImageRecord) Base64() string {
	if r.b64 == nil {
		return base64.StdEncoding.EncodeToString(r.Data)
	}
	r.b64.once.Do(func() {
		r.b64.encoded = base64.StdEncoding.EncodeToString(r.Data)
	})
	return r.b64.encoded
}

// Seq is the insertion sequence number assigned by the buffer.
func (r ImageRecord) Seq() uint64 {
	return r.ordinal
}

// BufferStats summarizes the perceptual buffer.
type BufferStats struct {
	TotalImages    int            `json:"totalImages"`
	TotalSizeBytes int64          `json:"totalSizeBytes"`
	Capacity       int            `json:"capacity"`
	PerDevice      map[string]int `json:"perDevice"`
	Oldest         *time.Time     `json:"oldest,omitempty"`
	Newest         *time.Time     `json:"newest,omitempty"`
}
