package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr          string
	BaseURL       string
	DatabaseURL   string
	MigrationsDir string
	CORSOrigin    string
	// Short-link store
	RedisURL        string
	ShareNamespace  string
	ShareTTL        time.Duration
	InlineLimit     int
	StoreTimeout    time.Duration
	CleanupInterval time.Duration
	// Drafts
	AutosaveDelay time.Duration
	SnapshotsDir  string
	// Theme search
	MeiliURL       string
	MeiliMasterKey string
	// Export storage
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	// SMTP Configuration
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string
}

func Load() Config {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	return Config{
		Addr:            getenv("API_ADDR", ":8787"),
		BaseURL:         getenv("GRIDSHARE_BASE_URL", "http://localhost:8787/shared.html"),
		DatabaseURL:     getenv("DATABASE_URL", "file:gridshare.db?_busy_timeout=5000"),
		MigrationsDir:   getenv("GRIDSHARE_MIGRATIONS_DIR", ""),
		CORSOrigin:      getenv("GRIDSHARE_CORS_ORIGIN", "*"),
		RedisURL:        getenv("REDIS_URL", ""),
		ShareNamespace:  getenv("GRIDSHARE_NAMESPACE", "gridshare"),
		ShareTTL:        time.Duration(getenvInt("GRIDSHARE_SHARE_TTL_SECONDS", 604800)) * time.Second,
		InlineLimit:     getenvInt("GRIDSHARE_INLINE_LIMIT_BYTES", 1000),
		StoreTimeout:    time.Duration(getenvInt("GRIDSHARE_STORE_TIMEOUT_MS", 5000)) * time.Millisecond,
		CleanupInterval: time.Duration(getenvInt("GRIDSHARE_CLEANUP_INTERVAL_SECONDS", 3600)) * time.Second,
		AutosaveDelay:   time.Duration(getenvInt("GRIDSHARE_AUTOSAVE_MS", 1000)) * time.Millisecond,
		SnapshotsDir:    getenv("GRIDSHARE_SNAPSHOTS_DIR", "./data/snapshots"),
		MeiliURL:        getenv("MEILI_URL", ""),
		MeiliMasterKey:  getenv("MEILI_MASTER_KEY", ""),
		MinioEndpoint:   getenv("MINIO_ENDPOINT", ""),
		MinioAccessKey:  getenv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey:  getenv("MINIO_SECRET_KEY", ""),
		MinioBucket:     getenv("MINIO_BUCKET", "gridshare-exports"),
		MinioUseSSL:     getenvBool("MINIO_USE_SSL", false),
		// SMTP - empty by default, email disabled if not configured
		SMTPHost:     getenv("SMTP_HOST", ""),
		SMTPPort:     getenv("SMTP_PORT", "587"),
		SMTPUsername: getenv("SMTP_USERNAME", ""),
		SMTPPassword: getenv("SMTP_PASSWORD", ""),
		SMTPFrom:     getenv("SMTP_FROM", ""),
		SMTPFromName: getenv("SMTP_FROM_NAME", "Grid Share"),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
