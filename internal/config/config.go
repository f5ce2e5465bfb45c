package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	VisionProviderGemini = "gemini"
	VisionProviderOpenAI = "openai"

	DefaultSunoAPIURL = "https://studio-api.prod.suno.com/api/v2/external/hackmit"
)

type Config struct {
	Port        int
	UDPPort     int               // 0 disables the UDP frame listener
	DeviceNames map[string]string // sender IP -> device id for UDP frames
	APIKey      string

	LogDirectory string
	LogMode      string

	BufferLimit     int
	MusicStoreLimit int
	ChangeThreshold float64
	OptimizeImages  bool
	MaxUploadBytes  int64

	VisionProvider       string
	GeminiAPIKey         string
	GeminiModel          string
	OpenAIAPIKey         string
	OpenAIModel          string
	VisionTimeoutSeconds int

	SunoAPIURL               string
	SunoAPIKey               string
	AudioTimeoutSeconds      int
	CompletionTimeoutSeconds int
	PollIntervalMs           int

	DatabasePath string // empty (DATABASE_PATH=off) disables track history
}

// Load reads an optional .env file and then the process environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:        getEnvAsInt("PORT", 8080),
		UDPPort:     getEnvAsInt("UDP_PORT", 0),
		DeviceNames: parseDeviceNames(getEnv("DEVICE_NAMES", "")),
		APIKey:      getEnv("API_KEY", ""),

		LogDirectory: getEnv("LOG_DIR", filepath.Join(".", "logs")),
		LogMode:      getEnv("LOG_MODE", "development"),

		BufferLimit:     getEnvAsInt("BUFFER_LIMIT", 50),
		MusicStoreLimit: getEnvAsInt("MUSIC_STORE_LIMIT", 100),
		ChangeThreshold: getEnvAsFloat("CHANGE_THRESHOLD", 0.3),
		OptimizeImages:  getEnvAsBool("OPTIMIZE_IMAGES", true),
		MaxUploadBytes:  getEnvAsInt64("MAX_UPLOAD_MB", 10) << 20,

		VisionProvider:       strings.ToLower(getEnv("VISION_PROVIDER", VisionProviderGemini)),
		GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
		GeminiModel:          getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		OpenAIAPIKey:         getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:          getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		VisionTimeoutSeconds: getEnvAsInt("VISION_TIMEOUT_SECONDS", 30),

		SunoAPIURL:               getEnv("SUNO_API_URL", DefaultSunoAPIURL),
		SunoAPIKey:               getEnv("SUNO_API_KEY", ""),
		AudioTimeoutSeconds:      getEnvAsInt("AUDIO_TIMEOUT_SECONDS", 60),
		CompletionTimeoutSeconds: getEnvAsInt("COMPLETION_TIMEOUT_SECONDS", 180),
		PollIntervalMs:           getEnvAsInt("POLL_INTERVAL_MS", 2000),

		DatabasePath: optionalPath(getEnv("DATABASE_PATH", filepath.Join(".", "data", "music.db"))),
	}
}

// Validate reports settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.UDPPort < 0 || c.UDPPort > 65535 {
		return fmt.Errorf("invalid UDP_PORT %d", c.UDPPort)
	}
	if c.BufferLimit <= 0 {
		return fmt.Errorf("BUFFER_LIMIT must be positive, got %d", c.BufferLimit)
	}
	if c.MusicStoreLimit <= 0 {
		return fmt.Errorf("MUSIC_STORE_LIMIT must be positive, got %d", c.MusicStoreLimit)
	}
	if c.ChangeThreshold <= 0 || c.ChangeThreshold >= 1 {
		return fmt.Errorf("CHANGE_THRESHOLD must be in (0,1), got %g", c.ChangeThreshold)
	}
	if c.PollIntervalMs <= 0 || c.AudioTimeoutSeconds <= 0 || c.CompletionTimeoutSeconds <= 0 {
		return fmt.Errorf("poll interval and timeouts must be positive")
	}
	switch c.VisionProvider {
	case VisionProviderGemini, VisionProviderOpenAI:
	default:
		return fmt.Errorf("unknown VISION_PROVIDER %q", c.VisionProvider)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// optionalPath maps "off" and "none" to an empty path.
func optionalPath(path string) string {
	switch strings.ToLower(strings.TrimSpace(path)) {
	case "off", "none":
		return ""
	}
	return path
}

// parseDeviceNames turns "10.0.0.5=glasses-1,10.0.0.6=glasses-2" into a lookup map.
func parseDeviceNames(raw string) map[string]string {
	names := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		ip, name, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || ip == "" || name == "" {
			continue
		}
		names[strings.TrimSpace(ip)] = strings.TrimSpace(name)
	}
	return names
}
