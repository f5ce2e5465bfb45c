package dto

import (
	"encoding/base64"
	"net/http"
	"strings"

	"scenesound/internal/apperror"
)

// IngestRequest is one inbound capture. Exactly one of ImageBase64 and RawBytes carries the image.
type IngestRequest struct {
	ImageBase64 string `json:"imageBase64,omitempty"`
	RawBytes    []byte `json:"-"`
	DeviceID    string `json:"deviceId"`
	MimeType    string `json:"mimeType,omitempty"`
	UserID      string `json:"userId,omitempty"`
}

// Validate rejects requests without a device id or an image payload.
func (r *IngestRequest) Validate() error {
	if strings.TrimSpace(r.DeviceID) == "" {
		return &apperror.ValidationError{Field: "deviceId", Message: "deviceId is required"}
	}
	if len(r.RawBytes) == 0 && strings.TrimSpace(r.ImageBase64) == "" {
		return &apperror.ValidationError{Field: "imageBase64", Message: "an image payload is required"}
	}
	return nil
}

// Image returns the decoded payload and its MIME type. The type comes from MimeType, then
// from a data URL prefix, then from content sniffing.
func (r *IngestRequest) Image() ([]byte, string, error) {
	if err := r.Validate(); err != nil {
		return nil, "", err
	}

	data := r.RawBytes
	mimeType := strings.TrimSpace(r.MimeType)
	if len(data) == 0 {
		payload, prefixType := splitDataURL(strings.TrimSpace(r.ImageBase64))
		decoded, err := decodeBase64(payload)
		if err != nil {
			return nil, "", &apperror.ValidationError{Field: "imageBase64", Message: "invalid base64 payload"}
		}
		if len(decoded) == 0 {
			return nil, "", &apperror.ValidationError{Field: "imageBase64", Message: "image payload is empty"}
		}
		data = decoded
		if mimeType == "" {
			mimeType = prefixType
		}
	}

	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return data, mimeType, nil
}

// splitDataURL strips a "data:<mime>;base64," prefix.
func splitDataURL(s string) (payload, mimeType string) {
	if !strings.HasPrefix(s, "data:") {
		return s, ""
	}
	header, body, ok := strings.Cut(s, ",")
	if !ok {
		return s, ""
	}
	header = strings.TrimPrefix(header, "data:")
	mimeType, _, _ = strings.Cut(header, ";")
	return body, mimeType
}

func decodeBase64(s string) ([]byte, error) {
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
