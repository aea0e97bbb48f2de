package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendMemory    = "memory"
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
)

type Config struct {
	HTTPAddr string
	AppID    string

	// PostAuthorizationKey may be empty; /authorize then answers 500.
	PostAuthorizationKey string
	SessionSecret        string
	SessionTTL           time.Duration

	StoreBackend string
	DatabaseURL  string

	FirestoreProjectID        string
	FirebaseServiceAccountKey string

	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3AccessKey     string
	S3SecretKey     string
	S3PublicBaseURL string
	UploadMaxBytes  int64

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	AuthorizeRateLimit   int // requests per minute per IP

	LogLevel  string
	LogFormat string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:                  getenv("HTTP_ADDR", ":8080"),
		AppID:                     getenv("APP_ID", "memory-map-v1"),
		PostAuthorizationKey:      getenv("POST_AUTHORIZATION_KEY", ""),
		StoreBackend:              strings.ToLower(getenv("STORE_BACKEND", BackendMemory)),
		DatabaseURL:               getenv("DATABASE_URL", ""),
		FirestoreProjectID:        getenv("FIRESTORE_PROJECT_ID", ""),
		FirebaseServiceAccountKey: getenv("FIREBASE_SERVICE_ACCOUNT_KEY", ""),
		S3Bucket:                  getenv("S3_BUCKET", ""),
		S3Region:                  getenv("S3_REGION", "us-east-1"),
		S3Endpoint:                getenv("S3_ENDPOINT", ""),
		S3AccessKey:               getenv("S3_ACCESS_KEY", ""),
		S3SecretKey:               getenv("S3_SECRET_KEY", ""),
		S3PublicBaseURL:           getenv("S3_PUBLIC_BASE_URL", ""),
		CORSAllowCredentials:      getenv("CORS_ALLOW_CREDENTIALS", "false") == "true",
		LogLevel:                  getenv("LOG_LEVEL", "info"),
		LogFormat:                 getenv("LOG_FORMAT", "json"),
	}

	origins := strings.Split(getenv("CORS_ALLOWED_ORIGINS", ""), ",")
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}

	var err error
	if cfg.SessionTTL, err = time.ParseDuration(getenv("SESSION_TTL", "24h")); err != nil {
		return Config{}, fmt.Errorf("SESSION_TTL: %w", err)
	}
	if cfg.UploadMaxBytes, err = strconv.ParseInt(getenv("UPLOAD_MAX_BYTES", "10485760"), 10, 64); err != nil {
		return Config{}, fmt.Errorf("UPLOAD_MAX_BYTES: %w", err)
	}
	if cfg.AuthorizeRateLimit, err = strconv.Atoi(getenv("AUTHORIZE_RATE_LIMIT", "10")); err != nil {
		return Config{}, fmt.Errorf("AUTHORIZE_RATE_LIMIT: %w", err)
	}

	switch cfg.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		cfg.DatabaseURL = mustGetenv("DATABASE_URL")
	case BackendFirestore:
		cfg.FirestoreProjectID = mustGetenv("FIRESTORE_PROJECT_ID")
	default:
		return Config{}, fmt.Errorf("STORE_BACKEND: unknown backend %q", cfg.StoreBackend)
	}

	cfg.SessionSecret = mustGetenv("SESSION_SECRET")
	return cfg, nil
}

// ClientBaseURL is the API base url used by memoryctl.
func ClientBaseURL() string {
	_ = godotenv.Load()
	return getenv("API_BASE_URL", "http://localhost:8080")
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func mustGetenv(key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		panic("missing env: " + key)
	}
	return v
}
