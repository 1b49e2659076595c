package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultJwtSecret = "default_secret"

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Store    StoreConfig
	Keys     APIKeys
	Ai       AIConfig
	Auth     AuthConfig
	OAuth    OAuthConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	WsLogFilePath      string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	OtelEnabled        bool
	OtelEndpoint       string
}

type DatabaseConfig struct {
	Driver     string // "postgres" or "sqlite"
	Connection string
}

type StoreConfig struct {
	Driver   string // "memory", "gorm" or "redis"
	Feed     string // "local" or "redis"
	TenantID string
}

type APIKeys struct {
	GoogleGemini string
}

type AIConfig struct {
	GeminiBaseURL      string
	GeminiModel        string
	CompletionEndpoint string // first-party proxy URL; empty means call Gemini directly
	MaxAttempts        int
	InitialBackoff     time.Duration
}

type AuthConfig struct {
	JwtSecret string
	JwtTTL    time.Duration
}

// OAuthConfig drives Google sign-in. An empty client id leaves it off.
type OAuthConfig struct {
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	FrontendURL        string
}

func (c OAuthConfig) GoogleEnabled() bool {
	return c.GoogleClientID != ""
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// Validate rejects unknown drivers and settings that cannot work together.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unknown DB_DRIVER %q", c.Database.Driver)
	}
	switch c.Store.Driver {
	case "memory", "gorm", "redis":
	default:
		return fmt.Errorf("config: unknown DOCSTORE_DRIVER %q", c.Store.Driver)
	}
	switch c.Store.Feed {
	case "local", "redis":
	default:
		return fmt.Errorf("config: unknown DOCSTORE_FEED %q", c.Store.Feed)
	}
	if err := validateOrigins(c.App.CorsAllowedOrigins); err != nil {
		return err
	}
	if c.Store.TenantID == "" {
		return fmt.Errorf("config: APP_TENANT_ID is empty")
	}
	if c.Ai.MaxAttempts < 1 {
		return fmt.Errorf("config: COMPLETION_MAX_ATTEMPTS must be at least 1")
	}
	if c.OAuth.GoogleEnabled() && (c.OAuth.GoogleClientSecret == "" || c.OAuth.GoogleRedirectURL == "") {
		return fmt.Errorf("config: GOOGLE_CLIENT_SECRET and GOOGLE_REDIRECT_URL are required with GOOGLE_CLIENT_ID")
	}
	if c.IsProduction() && c.Auth.JwtSecret == defaultJwtSecret {
		return fmt.Errorf("config: JWT_SECRET must be set in production")
	}
	return nil
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			WsLogFilePath:      getEnv("WS_LOG_FILE_PATH", "logs/websocket.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			OtelEnabled:        getEnvAsBool("OTEL_ENABLED", false),
			OtelEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		},
		Database: DatabaseConfig{
			Driver:     strings.ToLower(getEnv("DB_DRIVER", "postgres")),
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Store: StoreConfig{
			Driver:   strings.ToLower(getEnv("DOCSTORE_DRIVER", "gorm")),
			Feed:     strings.ToLower(getEnv("DOCSTORE_FEED", "local")),
			TenantID: getEnv("APP_TENANT_ID", "default-app-id"),
		},
		Keys: APIKeys{
			GoogleGemini: getEnv("GOOGLE_GEMINI_API_KEY", ""),
		},
		Ai: AIConfig{
			GeminiBaseURL:      getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
			GeminiModel:        getEnv("GEMINI_MODEL", "gemini-2.5-flash-preview-05-20"),
			CompletionEndpoint: getEnv("COMPLETION_ENDPOINT", ""),
			MaxAttempts:        getEnvAsInt("COMPLETION_MAX_ATTEMPTS", 5),
			InitialBackoff:     getEnvAsDuration("COMPLETION_INITIAL_BACKOFF", time.Second),
		},
		Auth: AuthConfig{
			JwtSecret: getEnv("JWT_SECRET", defaultJwtSecret),
			JwtTTL:    getEnvAsDuration("JWT_TTL", 24*time.Hour),
		},
		OAuth: OAuthConfig{
			GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", "http://localhost:3000/api/auth/v1/oauth/google/callback"),
			FrontendURL:        getEnv("FRONTEND_URL", "http://localhost:5173"),
		},
	}
}

// validateOrigins requires an explicit origin list, since the API allows
// credentialed requests and a wildcard cannot be combined with them.
func validateOrigins(origins string) error {
	if strings.TrimSpace(origins) == "" {
		return fmt.Errorf("config: CORS_ALLOWED_ORIGINS is empty")
	}
	for _, origin := range strings.Split(origins, ",") {
		if strings.TrimSpace(origin) == "*" {
			return fmt.Errorf("config: CORS_ALLOWED_ORIGINS cannot be \"*\" with credentials enabled")
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}
