package handler

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"scenesound/internal/apperror"
	"scenesound/internal/config"
	"scenesound/internal/dto"
	"scenesound/internal/logger"
	"scenesound/internal/service"
)

// IngestImageHandler accepts a capture as JSON ({imageBase64, deviceId, mimeType?, userId?})
// or as a raw image/* body with deviceId and userId in the query, and runs it through the pipeline.
func IngestImageHandler(manager *service.Manager, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadBytes)

		req, err := decodeIngestRequest(r)
		if err != nil {
			writeError(w, logger, err)
			return
		}

		result, err := manager.Process(r.Context(), req)
		writeJSON(w, logger, resultStatus(result, err), result)
	}
}

func decodeIngestRequest(r *http.Request) (dto.IngestRequest, error) {
	var req dto.IngestRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.HasPrefix(mediaType, "image/") || mediaType == "application/octet-stream" {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return req, bodyError(err)
		}
		req.RawBytes = data
		req.DeviceID = r.URL.Query().Get("deviceId")
		req.UserID = r.URL.Query().Get("userId")
		if strings.HasPrefix(mediaType, "image/") {
			req.MimeType = mediaType
		}
		return req, req.Validate()
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, bodyError(err)
	}
	return req, req.Validate()
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return &apperror.ValidationError{Field: "body", Message: "payload too large"}
	}
	return &apperror.ValidationError{Field: "body", Message: "invalid request body: " + err.Error()}
}

// resultStatus picks the response code of a pipeline result.
func resultStatus(result dto.PipelineResult, err error) int {
	if err != nil {
		return apperror.HTTPStatus(err)
	}
	if result.Status == dto.StatusBusy {
		return http.StatusAccepted
	}
	return http.StatusOK
}
