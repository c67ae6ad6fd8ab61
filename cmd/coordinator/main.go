// Package main provides the coordinator binary that serves the realtime
// space protocol over websocket connections.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/flowspace/internal/auth"
	"github.com/cory-johannsen/flowspace/internal/config"
	"github.com/cory-johannsen/flowspace/internal/coordinator"
	"github.com/cory-johannsen/flowspace/internal/observability"
	"github.com/cory-johannsen/flowspace/internal/server"
	"github.com/cory-johannsen/flowspace/internal/space"
	"github.com/cory-johannsen/flowspace/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting coordinator",
		zap.String("addr", cfg.Server.Addr()),
	)

	// Load space templates.
	tmplStart := time.Now()
	templates, err := space.LoadTemplatesFromDir(cfg.Coordinator.TemplatesDir)
	if err != nil {
		logger.Fatal("loading space templates", zap.Error(err))
	}
	logger.Info("space templates loaded",
		zap.Int("count", templates.Len()),
		zap.Duration("elapsed", time.Since(tmplStart)),
	)

	// Connect to PostgreSQL for message and grant persistence.
	dbStart := time.Now()
	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("connecting to database", zap.Error(err))
	}
	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Duration("elapsed", time.Since(dbStart)),
	)
	memberRepo := postgres.NewMemberRepository(pool.DB())
	messageRepo := postgres.NewMessageRepository(pool.DB())
	grantRepo := postgres.NewGrantRepository(pool.DB())

	// Create registries and shared state.
	registry := space.NewRegistry()
	parties := space.NewPartyRegistry()
	media := space.NewMediaState()
	limiter := space.NewRateLimiter(cfg.Coordinator.RateLimit)
	reactions := space.NewReactionBoard()

	// Create handlers.
	hub := coordinator.NewHub(registry, parties, logger)
	chatHandler := coordinator.NewChatHandler(
		registry, parties, limiter, reactions, hub, messageRepo,
		cfg.Coordinator.MaxContentLength, logger,
	)
	adminHandler := coordinator.NewAdminHandler(registry, hub, cfg.Coordinator.MaxContentLength, logger)
	mediaHandler := coordinator.NewMediaHandler(registry, media, hub, grantRepo, logger)
	relayHandler := coordinator.NewRelayHandler(registry, hub, logger)

	coord := coordinator.NewCoordinator(
		registry, parties, media, limiter, templates,
		hub, memberRepo, chatHandler, adminHandler, mediaHandler, relayHandler,
		logger,
	)

	verifier := auth.NewVerifier(cfg.Auth.Secret)
	wsServer := coordinator.NewServer(cfg.Server, verifier, coord, cfg.Coordinator.OutboundBuffer, logger)

	// Wire lifecycle.
	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("websocket", wsServer)

	lifecycle.Add("postgres", &server.FuncService{
		StartFn: func() error {
			for {
				time.Sleep(30 * time.Second)
				if err := pool.Health(ctx, 5*time.Second); err != nil {
					logger.Warn("database health check failed", zap.Error(err))
				}
			}
		},
		StopFn: func() {
			pool.Close()
		},
	})

	logger.Info("coordinator initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("addr", cfg.Server.Addr()),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
