package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Server ServerConfig `json:"server"`

	// MongoDB Configuration (document store + media blobs)
	Mongo MongoConfig `json:"mongo"`

	// Media host Configuration
	Media MediaConfig `json:"media"`

	// Auth Configuration (gateway tokens)
	Auth AuthConfig `json:"auth"`

	// Chat engine tunables
	Chat ChatConfig `json:"chat"`

	// Logging Configuration
	Logging LoggingConfig `json:"logging"`
}

// ServerConfig contains gateway server configuration
type ServerConfig struct {
	Host        string `json:"host"`
	Port        string `json:"port"`
	Environment string `json:"environment"` // development, staging, production
}

// MongoConfig contains document store connection configuration
type MongoConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	Database string `json:"database"`
}

// MediaConfig contains media host configuration
type MediaConfig struct {
	Port    string `json:"port"`
	BaseURL string `json:"base_url"` // where the uploader posts blobs
}

// AuthConfig contains gateway token configuration
type AuthConfig struct {
	JWTSecret string `json:"-"`
}

// ChatConfig contains engine tunables
type ChatConfig struct {
	Window           int `json:"window"`             // initial message window size
	EditWindowMin    int `json:"edit_window_min"`    // edit age limit, minutes
	TypingIdleSec    int `json:"typing_idle_sec"`    // typing debounce idle, seconds
	SweepIntervalSec int `json:"sweep_interval_sec"` // local expiry sweep interval
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, console
}

// Load reads .env (if present) and assembles the configuration from the
// environment with development defaults.
func Load() *Config {
	// Missing .env is fine, system env wins anyway
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Host:        getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			Port:        getEnvOrDefault("SERVER_PORT", "8090"),
			Environment: getEnvOrDefault("ENVIRONMENT", "development"),
		},
		Mongo: MongoConfig{
			Host:     getEnvOrDefault("MONGO_HOST", "localhost"),
			Port:     getEnvOrDefault("MONGO_PORT", "27017"),
			Username: getEnvOrDefault("MONGO_USER", ""),
			Password: getEnvOrDefault("MONGO_PASSWORD", ""),
			Database: getEnvOrDefault("MONGO_DB", "govibe"),
		},
		Media: MediaConfig{
			Port:    getEnvOrDefault("MEDIA_PORT", "8080"),
			BaseURL: getEnvOrDefault("MEDIA_BASE_URL", "http://localhost:8080"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnvOrDefault("JWT_SECRET", "dev-secret"),
		},
		Chat: ChatConfig{
			Window:           getEnvIntOrDefault("CHAT_WINDOW", 20),
			EditWindowMin:    getEnvIntOrDefault("CHAT_EDIT_WINDOW_MIN", 5),
			TypingIdleSec:    getEnvIntOrDefault("CHAT_TYPING_IDLE_SEC", 2),
			SweepIntervalSec: getEnvIntOrDefault("CHAT_SWEEP_INTERVAL_SEC", 60),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "console"),
		},
	}
}

// GetMongoURI builds the connection string from the mongo section
func (cfg *Config) GetMongoURI() string {
	if cfg.Mongo.Username != "" {
		return fmt.Sprintf("mongodb://%s:%s@%s:%s",
			cfg.Mongo.Username,
			cfg.Mongo.Password,
			cfg.Mongo.Host,
			cfg.Mongo.Port,
		)
	}
	return fmt.Sprintf("mongodb://%s:%s", cfg.Mongo.Host, cfg.Mongo.Port)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
