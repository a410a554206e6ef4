package main

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/telemed-live/videocall-service/internal/cache"
	"github.com/telemed-live/videocall-service/internal/config"
	"github.com/telemed-live/videocall-service/internal/domain"
	"github.com/telemed-live/videocall-service/internal/handler"
	"github.com/telemed-live/videocall-service/internal/hub"
	"github.com/telemed-live/videocall-service/internal/repository"
	"github.com/telemed-live/videocall-service/internal/service"
	"github.com/telemed-live/videocall-service/internal/sfu"
	"github.com/telemed-live/videocall-service/internal/token"
	"github.com/telemed-live/videocall-service/pkg/database"
	pkglog "github.com/telemed-live/videocall-service/pkg/log"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Level == "debug",
		ServiceName: "videocall-service",
	})
	logger := pkglog.L()

	// Both secrets are hard requirements: without them the service
	// would either sign tokens with nothing or accept any caller.
	if cfg.Auth.InternalSecret == "" {
		logger.Fatal().Msg("INTERNAL_SECRET is not configured")
	}
	issuer, err := token.NewIssuer(cfg.Token.Secret, cfg.Token.TTL)
	if err != nil {
		logger.Fatal().Err(err).Msg("VIDEO_JWT_SECRET is not configured")
	}

	// Connect to database using GORM
	dbConfig := &database.Config{
		Driver:          cfg.Database.Driver,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		FilePath:        cfg.Database.FilePath,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}

	db, err := database.New(dbConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	// Auto-migrate
	if err := database.AutoMigrate(db, &domain.SessionModel{}); err != nil {
		logger.Fatal().Err(err).Msg("failed to auto-migrate")
	}
	logger.Info().Msg("database migration completed")

	// Initialize repository
	sessionRepo := repository.NewGormSessionRepository(db)

	// Initialize session cache
	var sessionCache cache.SessionCache
	switch cfg.Cache.Driver {
	case "memory":
		sessionCache = cache.NewMemorySessionCache()
		logger.Info().Msg("in-memory session cache enabled")
	default:
		redisCache, err := cache.NewRedisSessionCache(cfg.Redis, cfg.Cache.Prefix)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		sessionCache = redisCache
		logger.Info().Msg("redis session cache connected")
	}
	defer sessionCache.Close()

	// Initialize SFU node allocator
	allocator := sfu.New(cfg.SFU.Nodes)

	// Initialize session orchestrator
	sessionService := service.NewSessionService(
		sessionRepo,
		sessionCache,
		cfg.Cache.TTL,
		allocator,
		issuer,
		cfg.Client.BaseURL,
	)

	// Start the signaling relay
	relay := hub.New(cfg.WebSocket)
	go relay.Run()

	// Initialize handlers
	wsHandler := handler.NewWSHandler(relay, issuer)
	httpHandler := handler.NewHandler(sessionService, cfg.Auth.InternalSecret, cfg.Client.JoinPage, wsHandler)

	// Setup Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))

	// Register routes
	httpHandler.RegisterRoutes(r)

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info().
		Str("addr", addr).
		Str("driver", cfg.Database.Driver).
		Strs("sfu_nodes", allocator.Nodes()).
		Msg("videocall-service starting")
	if err := r.Run(addr); err != nil {
		logger.Fatal().Err(err).Msg("failed to start server")
	}
}
