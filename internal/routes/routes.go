package routes

import (
	"net/http"

	"scenesound/internal/config"
	"scenesound/internal/handler"
	"scenesound/internal/logger"
	"scenesound/internal/middleware"
	"scenesound/internal/service"
	"scenesound/internal/service/websocket"

	"github.com/gorilla/mux"
)

// SetupRoutes registers the API, viewer and log endpoints behind the API key middleware.
func SetupRoutes(manager *service.Manager, hub *websocket.HubService, cfg *config.Config, logger *logger.Logger) http.Handler {
	router := mux.NewRouter()
	router.Use(middleware.AuthMiddleware(cfg.APIKey))

	router.HandleFunc("/health", handler.HealthHandler(logger)).Methods(http.MethodGet)

	// API endpoints
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/images", handler.IngestImageHandler(manager, cfg, logger)).Methods(http.MethodPost)
	api.HandleFunc("/music/{deviceId}", handler.LatestMusicHandler(manager, logger)).Methods(http.MethodGet)
	api.HandleFunc("/music/{deviceId}", handler.ForgetMusicHandler(manager, logger)).Methods(http.MethodDelete)
	api.HandleFunc("/music/{deviceId}/history", handler.MusicHistoryHandler(manager, logger)).Methods(http.MethodGet)
	api.HandleFunc("/buffer/stats", handler.BufferStatsHandler(manager, logger)).Methods(http.MethodGet)
	api.HandleFunc("/buffer/{deviceId}", handler.RecentImagesHandler(manager, logger)).Methods(http.MethodGet)
	api.HandleFunc("/buffer/{deviceId}", handler.ClearBufferHandler(manager, logger)).Methods(http.MethodDelete)
	api.HandleFunc("/devices/{deviceId}/state", handler.DeviceStateHandler(manager, logger)).Methods(http.MethodGet)
	api.HandleFunc("/view", handler.ViewWebsocketHandler(hub, logger))

	// Log endpoints
	router.HandleFunc("/logs/{level}", handler.ShowLogsHandler(logger)).Methods(http.MethodGet)
	router.HandleFunc("/logs/{level}/clear", handler.ClearLogsHandler(logger)).Methods(http.MethodPost)

	return router
}
