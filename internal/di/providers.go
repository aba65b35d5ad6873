package di

import (
	"time"

	"github.com/rs/zerolog"

	"govibe/internal/auth"
	"govibe/internal/chat"
	"govibe/internal/cleanup"
	"govibe/internal/config"
	"govibe/internal/dbmongo"
	"govibe/internal/gateway"
	"govibe/internal/logging"
	"govibe/internal/media"
	"govibe/internal/store"
)

// Application bundles everything the gateway binary needs.
type Application struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Mongo   *dbmongo.MongoClient
	Store   store.Store
	JWT     *auth.JWTManager
	Gateway *gateway.Server
	Cleanup *cleanup.Service
}

func ProvideLogger(cfg *config.Config) zerolog.Logger {
	return logging.New(cfg.Logging.Level, cfg.Logging.Format)
}

func ProvideStore(mc *dbmongo.MongoClient, log zerolog.Logger) store.Store {
	return dbmongo.NewDocStore(mc, log)
}

func ProvideJWT(cfg *config.Config) *auth.JWTManager {
	return auth.NewJWTManager(cfg.Auth.JWTSecret, 24*time.Hour)
}

func ProvideUploader(cfg *config.Config) media.Uploader {
	return media.NewHTTPUploader(cfg.Media.BaseURL)
}

func ProvideChatOptions(cfg *config.Config) chat.Options {
	return chat.Options{
		Window:        cfg.Chat.Window,
		EditWindow:    time.Duration(cfg.Chat.EditWindowMin) * time.Minute,
		TypingIdle:    time.Duration(cfg.Chat.TypingIdleSec) * time.Second,
		SweepInterval: time.Duration(cfg.Chat.SweepIntervalSec) * time.Second,
	}
}
