package config

import (
	"github.com/voxpipe/voxpipe/internal/platform/envutil"
	"github.com/voxpipe/voxpipe/internal/platform/logger"
)

// Config is the process-wide configuration, read entirely from environment
// variables (SPEC_FULL.md §9 — no config file, matching the teacher).
type Config struct {
	DatabaseURL string

	OpenAIAPIKey string

	WhisperModel    string
	WhisperDevice   string
	WhisperLanguage string

	HFToken string

	DiarizationServiceURL string

	MaxFileSizeMB    int
	MaxBatchSize     int
	MinDurationSec   int
	MaxDurationSec   int
	AudioRetentionDays int

	Host        string
	Port        string
	CORSOrigins []string

	UploadsDir string
	AudioDir   string

	RedisAddr    string
	RedisChannel string

	SFTPHost           string
	SFTPPort           string
	SFTPUser           string
	SFTPPassword       string
	SFTPPrivateKeyPath string
	SFTPRemoteDir      string
	SFTPStagingDir     string
	SFTPPollInterval   int
}

func Load(log *logger.Logger) *Config {
	return &Config{
		DatabaseURL: envutil.String("DATABASE_URL", "", log),

		OpenAIAPIKey: envutil.String("OPENAI_API_KEY", "", log),

		WhisperModel:    envutil.String("WHISPER_MODEL", "base", log),
		WhisperDevice:   envutil.String("WHISPER_DEVICE", "cpu", log),
		WhisperLanguage: envutil.String("WHISPER_LANGUAGE", "ru", log),

		HFToken: envutil.String("HF_TOKEN", "", log),

		DiarizationServiceURL: envutil.String("DIARIZATION_SERVICE_URL", "", log),

		MaxFileSizeMB:      envutil.Int("MAX_FILE_SIZE_MB", 500, log),
		MaxBatchSize:       envutil.Int("MAX_BATCH_SIZE", 20, log),
		MinDurationSec:     envutil.Int("MIN_DURATION_SEC", 3, log),
		MaxDurationSec:     envutil.Int("MAX_DURATION_SEC", 14400, log),
		AudioRetentionDays: envutil.Int("AUDIO_RETENTION_DAYS", 7, log),

		Host: envutil.String("HOST", "0.0.0.0", log),
		Port: envutil.String("PORT", "8080", log),
		CORSOrigins: envutil.StringSlice("CORS_ORIGINS", []string{"*"}, log),

		UploadsDir: envutil.String("UPLOADS_DIR", "./data/uploads", log),
		AudioDir:   envutil.String("AUDIO_DIR", "./data/audio", log),

		RedisAddr:    envutil.String("REDIS_ADDR", "", log),
		RedisChannel: envutil.String("REDIS_CHANNEL", "progress", log),

		SFTPHost:           envutil.String("SFTP_HOST", "", log),
		SFTPPort:           envutil.String("SFTP_PORT", "22", log),
		SFTPUser:           envutil.String("SFTP_USER", "", log),
		SFTPPassword:       envutil.String("SFTP_PASSWORD", "", log),
		SFTPPrivateKeyPath: envutil.String("SFTP_PRIVATE_KEY_PATH", "", log),
		SFTPRemoteDir:      envutil.String("SFTP_REMOTE_DIR", "/recordings", log),
		SFTPStagingDir:     envutil.String("SFTP_STAGING_DIR", "./data/sftp-staging", log),
		SFTPPollInterval:   envutil.Int("SFTP_POLL_INTERVAL_SEC", 60, log),
	}
}
