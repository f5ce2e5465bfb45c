package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"scenesound/internal/config"
	"scenesound/internal/handler"
	"scenesound/internal/logger"
	"scenesound/internal/repository"
	"scenesound/internal/repository/sqlite"
	"scenesound/internal/routes"
	"scenesound/internal/service"
	"scenesound/internal/service/ai"
	"scenesound/internal/service/imageproc"
	"scenesound/internal/service/music"
	"scenesound/internal/service/storage"
	"scenesound/internal/service/websocket"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config     *config.Config
	logger     *logger.Logger
	db         *sqlite.DB
	hubService *websocket.HubService
	manager    *service.Manager
}

func NewApp() (*App, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.NewLogger(cfg)
	if err != nil {
		return nil, err
	}

	processor := imageproc.NewProcessor()
	log.Info("Image processing backend: %s", processor.Backend())
	buffer := storage.NewBufferService(cfg.BufferLimit, processor, log)
	store := storage.NewMusicStore(cfg.MusicStoreLimit)
	detector := ai.NewDetectorService(buffer, processor, log)

	provider, err := newVisionProvider(cfg)
	if err != nil {
		return nil, err
	}
	analyzer := ai.NewAnalyzerService(provider, time.Duration(cfg.VisionTimeoutSeconds)*time.Second, log)

	generator := music.NewClient(cfg.SunoAPIURL, cfg.SunoAPIKey, nil, log)
	if cfg.SunoAPIKey == "" {
		log.Warning("SUNO_API_KEY is not set, music generation requests will be rejected")
	}

	var (
		db      *sqlite.DB
		history repository.TrackRepository
	)
	if cfg.DatabasePath != "" {
		db, err = sqlite.New(cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		history = sqlite.NewTrackRepository(db)
	}

	hub := websocket.NewHubService(log)

	mng := service.NewManager(buffer, store, detector, analyzer, generator, history, hub, service.ManagerOptions{
		ChangeThreshold:   cfg.ChangeThreshold,
		AudioTimeout:      time.Duration(cfg.AudioTimeoutSeconds) * time.Second,
		CompletionTimeout: time.Duration(cfg.CompletionTimeoutSeconds) * time.Second,
		PollInterval:      time.Duration(cfg.PollIntervalMs) * time.Millisecond,
		OptimizeImages:    cfg.OptimizeImages,
	}, log)

	return &App{
		config:     cfg,
		logger:     log,
		db:         db,
		hubService: hub,
		manager:    mng,
	}, nil
}

// newVisionProvider picks the configured vision backend.
func newVisionProvider(cfg *config.Config) (ai.VisionProvider, error) {
	switch cfg.VisionProvider {
	case config.VisionProviderOpenAI:
		return ai.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIModel), nil
	case config.VisionProviderGemini:
		return ai.NewGeminiProvider(cfg.GeminiAPIKey, cfg.GeminiModel), nil
	default:
		return nil, fmt.Errorf("unknown vision provider %q", cfg.VisionProvider)
	}
}

// Run serves HTTP, the viewer hub and the optional UDP listener until SIGINT/SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer a.close()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.Port),
		Handler:           routes.SetupRoutes(a.manager, a.hubService, a.config, a.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.hubService.Run(gctx)
	})

	if a.config.UDPPort > 0 {
		g.Go(func() error {
			return handler.UDPCameraHandler(gctx, a.manager, a.logger, a.config)
		})
	}

	g.Go(func() error {
		a.logger.Info("Scene soundtrack server listening on %s (vision: %s, history: %t)",
			server.Addr, a.config.VisionProvider, a.db != nil)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (a *App) close() {
	a.manager.Stop()
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("Failed to close database: %v", err)
		}
	}
	a.logger.Sync()
}
