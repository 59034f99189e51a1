package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	echoapi "go.pilab.hu/authgate/api/echo"
	redisstore "go.pilab.hu/authgate/cache/redis"
	"go.pilab.hu/authgate/config"
	"go.pilab.hu/authgate/internal/authflow"
	"go.pilab.hu/authgate/internal/metrics"
	"go.pilab.hu/authgate/internal/oidcflow"
	"go.pilab.hu/authgate/internal/reconcile"
	"go.pilab.hu/authgate/mongodb"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Logger setup
	logLevel, parseErr := zerolog.ParseLevel(cfg.LogLevel)
	if parseErr != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	if parseErr != nil {
		log.Warn().Str("configured_log_level", cfg.LogLevel).Msg("Invalid LOG_LEVEL configured, defaulting to 'info'")
	}

	log.Info().
		Str("http_port", cfg.HTTPPort).
		Str("mongo_db_name", cfg.MongoDBName).
		Str("redis_addr", cfg.RedisAddr).
		Str("oidc_issuer", cfg.OIDCIssuer).
		Msg("Starting authgate server")

	ctx := context.Background()

	// Stores
	mongoClient, db, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}
	defer mongodb.Disconnect(ctx, mongoClient)

	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}

	sessions := redisstore.NewSessionStore(redisClient, "authgate", cfg.SessionTTL())

	// Repositories and services
	userRepo, err := mongodb.NewUserRepository(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize UserRepository")
	}

	flows := oidcflow.NewFlowStore(10 * time.Minute)
	defer flows.Stop()

	discoveryCtx, cancelDiscovery := context.WithTimeout(ctx, 30*time.Second)
	flowSvc, err := authflow.NewService(discoveryCtx, authflow.Config{
		Issuer:         cfg.OIDCIssuer,
		ClientID:       cfg.OIDCClientID,
		ClientSecret:   cfg.OIDCClientSecret,
		RedirectURL:    cfg.OIDCRedirectURL,
		ResponseMode:   cfg.OIDCResponseMode,
		AllowedIssuers: cfg.AllowedIssuerSet(),
		StoreTimeout:   cfg.StoreTimeout(),
	}, flows, reconcile.NewReconciler(userRepo), sessions)
	cancelDiscovery()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize authentication flow")
	}

	// Metrics
	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	// HTTP server
	e := echo.New()
	e.HideBanner = true
	e.Use(echomiddleware.Recover())

	authAPI := echoapi.NewAuthAPI(flowSvc, sessions, echoapi.Options{
		CookieDomain:          cfg.CookieDomain,
		CookieMaxAge:          5 * 24 * time.Hour,
		StoreTimeout:          cfg.StoreTimeout(),
		LoginSuccessURL:       cfg.LoginSuccessURL,
		LoginFailureURL:       cfg.LoginFailureURL,
		PostLogoutRedirectURL: cfg.PostLogoutRedirectURL,
	})
	authAPI.RegisterRoutes(e)

	healthAPI := echoapi.NewHealthAPI(map[string]echoapi.Pinger{
		"mongodb": func(ctx context.Context) error { return mongodb.Ping(ctx, mongoClient) },
		"redis":   func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	})
	healthAPI.RegisterRoutes(e)

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	go func() {
		if err := e.Start(":" + cfg.HTTPPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()
	log.Info().Str("port", cfg.HTTPPort).Msg("Auth gateway started")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
}
