package handler

import (
	"net/http"
	"time"

	"scenesound/internal/logger"
	"scenesound/internal/service"

	"github.com/gorilla/mux"
)

const defaultRecentLimit = 10

// BufferStatsHandler returns counts and sizes of the perceptual buffer.
func BufferStatsHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, http.StatusOK, manager.GetBufferService().Stats())
	}
}

// RecentImagesHandler lists the metadata of the newest frames of a device.
func RecentImagesHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deviceID := mux.Vars(r)["deviceId"]
		limit := atoiDefault(r.URL.Query().Get("limit"), defaultRecentLimit)

		records := manager.GetBufferService().Recent(deviceID, limit)

		writeJSON(w, logger, http.StatusOK, map[string]interface{}{
			"deviceId": deviceID,
			"images":   records,
		})
	}
}

// ClearBufferHandler drops every buffered frame of a device.
func ClearBufferHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deviceID := mux.Vars(r)["deviceId"]
		removed := manager.ClearDevice(deviceID)
		logger.Info("Cleared %d buffered images of %s", removed, deviceID)
		w.WriteHeader(http.StatusNoContent)
	}
}

// DeviceStateHandler reports where a device is in its pipeline.
func DeviceStateHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deviceID := mux.Vars(r)["deviceId"]
		state, busy := manager.DeviceState(deviceID)
		writeJSON(w, logger, http.StatusOK, map[string]interface{}{
			"deviceId": deviceID,
			"state":    state,
			"busy":     busy,
		})
	}
}

// HealthHandler is the liveness probe.
func HealthHandler(logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"timestamp": time.Now().Unix(),
		})
	}
}
