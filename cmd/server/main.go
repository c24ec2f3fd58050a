package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/markov-rps/internal/auth"
	"github.com/freeeve/markov-rps/internal/bot"
	"github.com/freeeve/markov-rps/internal/config"
	"github.com/freeeve/markov-rps/internal/handler"
	"github.com/freeeve/markov-rps/internal/logger"
	"github.com/freeeve/markov-rps/internal/middleware"
	"github.com/freeeve/markov-rps/internal/repository/postgres"
	redisrepo "github.com/freeeve/markov-rps/internal/repository/redis"
	"github.com/freeeve/markov-rps/internal/service"
)

func main() {
	logger.Init(logger.OptionsFromEnv())
	cfg := config.Load()
	bot.ExternalEnginePath = cfg.EnginePath
	log.Info().Str("port", cfg.Port).Dur("sessionTTL", cfg.SessionTTL).Int("maxRounds", cfg.MaxRounds).Msg("Config loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Database connection failed")
	}
	defer db.Close()

	// Redis
	redisClient, err := redisrepo.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Redis connection failed")
	}
	defer redisClient.Close()

	// Repos
	matchRepo := postgres.NewMatchRepo(db)

	// Auth
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.SessionTTL)

	// WebSocket hub
	wsHub := handler.NewHub()

	// Services
	sessionSvc := service.NewSessionService(redisClient, matchRepo, wsHub, service.SessionConfig{
		TTL:       cfg.SessionTTL,
		MaxRounds: cfg.MaxRounds,
		Markov:    cfg.Markov,
	})
	janitor := service.NewJanitor(redisClient, matchRepo, cfg.MatchRetention)

	// Handlers
	sessionHandler := handler.NewSessionHandler(sessionSvc, jwtMgr)
	wsHandler := handler.NewWSHandler(wsHub, jwtMgr, sessionSvc)

	// Router
	mux := http.NewServeMux()
	authMw := auth.Middleware(jwtMgr)

	// Public
	mux.HandleFunc("GET /healthz", sessionHandler.Health)
	mux.HandleFunc("POST /sessions", sessionHandler.CreateSession)

	// Protected API routes
	api := http.NewServeMux()
	api.HandleFunc("GET /sessions/{id}", sessionHandler.GetSession)
	api.HandleFunc("POST /sessions/{id}/rounds", sessionHandler.PlayRound)
	api.HandleFunc("POST /sessions/{id}/finish", sessionHandler.FinishSession)
	api.HandleFunc("GET /matches", sessionHandler.ListMatches)

	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", authMw(api)))

	// WebSocket (auth via query param, not middleware)
	mux.HandleFunc("GET /api/v1/ws", wsHandler.ServeWS)

	// Apply global middleware
	root := middleware.Chain(mux, middleware.Logger, middleware.Recover, middleware.CORS(cfg.CORSOrigin), middleware.JSON)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go janitor.Start(ctx)

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server shutdown error")
	}
	log.Info().Msg("Server stopped")
}
