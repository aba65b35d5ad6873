package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"govibe/internal/auth"
	"govibe/internal/config"
	"govibe/internal/dbmongo"
	"govibe/internal/logging"
	"govibe/internal/media"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	mongoClient, err := dbmongo.NewMongoConnection(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to MongoDB")
	}

	jwt := auth.NewJWTManager(cfg.Auth.JWTSecret, 24*time.Hour)
	mediaServer := media.NewHTTPServer(mongoClient, cfg.Media.BaseURL, jwt, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Media.Port),
		Handler:      mediaServer.Router(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("media host starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("media host failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("media host forced to shutdown")
	}
	if err := mongoClient.Close(ctx); err != nil {
		logger.Warn().Err(err).Msg("mongo disconnect failed")
	}

	logger.Info().Msg("media host stopped")
}
