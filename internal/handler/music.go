package handler

import (
	"net/http"

	"scenesound/internal/apperror"
	"scenesound/internal/logger"
	"scenesound/internal/service"

	"github.com/gorilla/mux"
)

const defaultHistoryLimit = 20

// LatestMusicHandler returns the latest stored track of a device.
func LatestMusicHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, err := manager.LatestMusic(mux.Vars(r)["deviceId"])
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, entry)
	}
}

// ForgetMusicHandler drops the latest stored track of a device.
func ForgetMusicHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deviceID := mux.Vars(r)["deviceId"]
		if err := manager.ForgetMusic(deviceID); err != nil {
			writeError(w, logger, err)
			return
		}
		logger.Info("Forgot latest track of %s", deviceID)
		w.WriteHeader(http.StatusNoContent)
	}
}

// MusicHistoryHandler returns the appended track history of a device, newest first.
func MusicHistoryHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		history := manager.GetHistory()
		if history == nil {
			writeError(w, logger, &apperror.NotFoundError{Resource: "track history", ID: "disabled"})
			return
		}

		deviceID := mux.Vars(r)["deviceId"]
		limit := atoiDefault(r.URL.Query().Get("limit"), defaultHistoryLimit)

		entries, err := history.GetByDevice(deviceID, limit)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, map[string]interface{}{
			"deviceId": deviceID,
			"tracks":   entries,
		})
	}
}
