package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/isdelr/student-records-be/internal/api"
	"github.com/isdelr/student-records-be/internal/auth"
	"github.com/isdelr/student-records-be/internal/cache"
	"github.com/isdelr/student-records-be/internal/config"
	"github.com/isdelr/student-records-be/internal/database"
	"github.com/isdelr/student-records-be/internal/jobs"
	"github.com/isdelr/student-records-be/internal/logger"
	"github.com/isdelr/student-records-be/internal/services"
	"github.com/isdelr/student-records-be/internal/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.LogLevel, !cfg.IsProduction())

	// Set up database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database migrations")
	}

	// Set up the student cache; without Redis every read goes to the database.
	var studentCache cache.Cache = cache.Nop{}
	if cfg.CacheEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rc, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("Failed to connect to Redis")
		}
		defer rc.Close()
		studentCache = rc
		log.Info().Str("addr", cfg.RedisAddr).Dur("ttl", cfg.CacheTTL).Msg("Student cache enabled")
	} else {
		log.Warn().Msg("REDIS_ADDR not set, student cache disabled")
	}

	// Set up WebSocket Hub
	hub := websocket.NewHub()
	go hub.Run()

	// Set up services
	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	userService := services.NewUserService(db)
	authService := services.NewAuthService(userService, tokens, bcrypt.DefaultCost)
	studentService := services.NewCachedStudentService(services.NewStudentService(db, hub), studentCache, cfg.CacheTTL)

	// Set up background jobs
	runner := jobs.NewRunner()
	var scheduler *jobs.Scheduler
	if cfg.ImportCron != "" {
		scheduler = jobs.NewScheduler(runner)
		if err := scheduler.ScheduleImport(cfg.ImportCron, studentService, cfg.ImportPath); err != nil {
			log.Fatal().Err(err).Msg("Failed to schedule student import")
		}
		scheduler.Run()
	}

	router := api.NewRouter(api.Deps{
		DB:          db,
		Hub:         hub,
		Auth:        authService,
		Students:    studentService,
		Jobs:        runner,
		CORSOrigins: cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info().Int("port", cfg.ServerPort).Str("env", cfg.AppEnv).Msg("Server starting")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("ListenAndServe failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if scheduler != nil {
		scheduler.Stop()
	}
	runner.Stop(10 * time.Second)
	hub.Stop()

	log.Info().Msg("Server exiting")
}
