// Command stub-server runs the in-memory content service double so the exam
// client can be exercised without a production LMS backend.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/lms-exam-client/internal/config"
	"github.com/stemsi/lms-exam-client/internal/logger"
	"github.com/stemsi/lms-exam-client/internal/stubserver"
)

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	port := os.Getenv("STUB_PORT")
	if port == "" {
		port = "8000"
	}
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: stubserver.New(log).Router(),
	}

	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("login", stubserver.FixtureEmail).
			Str("module", stubserver.FixtureModuleID).
			Msg("Stub content service listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}
}
