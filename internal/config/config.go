package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Server
	Port          int
	DataDir       string // per-user JSON documents
	FilesDir      string // uploaded library files
	MaxUploadSize int64  // bytes

	// Playback engine
	SaveDebounce   time.Duration // settings persist debounce
	HandoffGrace   time.Duration // old source kept this long after a rate change
	ReportInterval time.Duration // position reporter tick
	SessionIdle    time.Duration // idle sessions are closed after this long

	// Streams
	MP3Bitrate  string  // ffmpeg bitrate for /stream
	OpusBitrate int     // bits per second for WebRTC
	OutputGain  float64 // master gain of every session

	// Terminal front end
	LogFile string
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	dataDir := envStr("TEMPO_DATA_DIR", "./data")
	return Config{
		Port:          envInt("TEMPO_PORT", 8080),
		DataDir:       dataDir,
		FilesDir:      envStr("TEMPO_FILES_DIR", filepath.Join(dataDir, "files")),
		MaxUploadSize: int64(envInt("TEMPO_MAX_UPLOAD_MB", 100)) << 20,

		SaveDebounce:   envMillis("TEMPO_SAVE_DEBOUNCE_MS", 500),
		HandoffGrace:   envMillis("TEMPO_HANDOFF_GRACE_MS", 30),
		ReportInterval: envMillis("TEMPO_REPORT_INTERVAL_MS", 16),
		SessionIdle:    time.Duration(envInt("TEMPO_SESSION_IDLE_MIN", 30)) * time.Minute,

		MP3Bitrate:  envStr("TEMPO_MP3_BITRATE", "192k"),
		OpusBitrate: envInt("TEMPO_OPUS_BITRATE", 128000),
		OutputGain:  envFloat("TEMPO_OUTPUT_GAIN", 1.0),

		LogFile: envStr("TEMPO_LOG_FILE", "tempo-tui.log"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}
