package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	"github.com/mentorclub/auth-service/application/port/outbound"
	"github.com/mentorclub/auth-service/application/usecase"
	"github.com/mentorclub/auth-service/domain/entity"
	"github.com/mentorclub/auth-service/infrastructure/config"
	"github.com/mentorclub/auth-service/infrastructure/http/handler"
	"github.com/mentorclub/auth-service/infrastructure/http/middleware"
	"github.com/mentorclub/auth-service/infrastructure/metrics"
	"github.com/mentorclub/auth-service/infrastructure/persistence/memory"
	"github.com/mentorclub/auth-service/infrastructure/persistence/postgres"
	redisstore "github.com/mentorclub/auth-service/infrastructure/persistence/redis"
	"github.com/mentorclub/auth-service/infrastructure/service/jwt"
	"github.com/mentorclub/auth-service/infrastructure/service/logger"
	"github.com/mentorclub/auth-service/infrastructure/service/mailer"
	"github.com/mentorclub/auth-service/infrastructure/service/password"
	"github.com/mentorclub/auth-service/infrastructure/service/ratelimit"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	structuredLogger := logger.NewStructuredLogger(logger.LoggerConfig{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		ServiceName: "auth-service",
	})
	structuredLogger.Info(ctx, "Application starting", map[string]interface{}{
		"env":         cfg.Environment,
		"token_store": cfg.TokenStore,
		"jwt_alg":     cfg.JWTAlgorithm,
	})

	checks := map[string]handler.Check{}

	// Users live in postgres unless everything runs in memory.
	var (
		userRepo  outbound.UserRepository
		tokenRepo outbound.TokenRepository
	)
	if cfg.TokenStore == config.StoreMemory {
		structuredLogger.Warn(ctx, "Using in-memory stores, data is lost on restart", nil)
		userRepo = memory.NewUserRepository()
		tokenRepo = memory.NewTokenRepository()
	} else {
		db, err := openDatabase(ctx, cfg)
		if err != nil {
			structuredLogger.Error(ctx, "Failed to connect to database", err, nil)
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		checks["postgres"] = db.PingContext

		if cfg.MigrateOnStart {
			if err := postgres.RunMigrations(ctx, db); err != nil {
				structuredLogger.Error(ctx, "Failed to run migrations", err, nil)
				log.Fatalf("Failed to run migrations: %v", err)
			}
		}

		userRepo = postgres.NewUserRepository(db)
		tokenRepo = postgres.NewTokenRepository(db)
	}

	var redisClient *redis.Client
	if cfg.TokenStore == config.StoreRedis || cfg.RateLimitEnabled {
		redisClient, err = openRedis(ctx, cfg)
		if err != nil {
			if cfg.TokenStore == config.StoreRedis {
				structuredLogger.Error(ctx, "Failed to connect to redis", err, nil)
				log.Fatalf("Failed to connect to redis: %v", err)
			}
			structuredLogger.Warn(ctx, "Redis unavailable, rate limiting disabled", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			defer redisClient.Close()
			checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
		}
	}
	if cfg.TokenStore == config.StoreRedis {
		tokenRepo = redisstore.NewTokenRepository(redisClient, cfg.RedisRetention)
	}

	rateLimitService := ratelimit.NewNoopRateLimitService()
	if cfg.RateLimitEnabled && redisClient != nil {
		rateLimitService = ratelimit.NewRateLimitService(redisClient, structuredLogger)
		structuredLogger.Info(ctx, "Rate limiting service initialized", map[string]interface{}{
			"ip_attempts":   cfg.RateLimitIPAttempts,
			"user_attempts": cfg.RateLimitUserAttempts,
		})
	}

	privatePEM, publicPEM := []byte(cfg.JWTPrivateKey), []byte(cfg.JWTPublicKey)
	if len(privatePEM) == 0 {
		structuredLogger.Warn(ctx, "No signing key configured, generating an ephemeral key pair", map[string]interface{}{
			"jwt_alg": cfg.JWTAlgorithm,
		})
		privatePEM, publicPEM, err = jwt.GenerateKeyPairPEM(cfg.JWTAlgorithm)
		if err != nil {
			log.Fatalf("Failed to generate signing key: %v", err)
		}
	}
	signer, err := jwt.NewJWTService(jwt.Config{
		Algorithm:     cfg.JWTAlgorithm,
		PrivateKeyPEM: privatePEM,
		PublicKeyPEM:  publicPEM,
	})
	if err != nil {
		structuredLogger.Error(ctx, "Failed to initialize JWT service", err, nil)
		log.Fatalf("Failed to initialize JWT service: %v", err)
	}

	var mail outbound.Mailer = mailer.NewLogMailer(structuredLogger)
	if cfg.SMTPHost != "" {
		mail = mailer.NewSMTPMailer(mailer.SMTPConfig{
			Host:      cfg.SMTPHost,
			Port:      cfg.SMTPPort,
			Username:  cfg.SMTPUsername,
			Password:  cfg.SMTPPassword,
			FromEmail: cfg.SMTPFromEmail,
			FromName:  cfg.SMTPFromName,
		}, structuredLogger)
	}

	lifecycleMetrics := metrics.NewLifecycleMetrics()

	sessions := usecase.NewSessionUseCase(usecase.SessionDeps{
		Users:       userRepo,
		Tokens:      tokenRepo,
		Signer:      signer,
		Passwords:   password.NewBcryptPasswordService(cfg.BcryptCost),
		Mailer:      mail,
		RateLimiter: rateLimitService,
		Metrics:     lifecycleMetrics,
		Logger:      structuredLogger,
		Lifetimes: usecase.LifetimePolicy{
			entity.TokenKindAccess:       cfg.AccessTokenTTL,
			entity.TokenKindRefresh:      cfg.RefreshTokenTTL,
			entity.TokenKindEmailConfirm: cfg.EmailConfirmTokenTTL,
		},
		LoginLimits: usecase.LoginLimits{
			IPAttempts:    cfg.RateLimitIPAttempts,
			IPWindow:      cfg.RateLimitIPWindow,
			UserAttempts:  cfg.RateLimitUserAttempts,
			UserWindow:    cfg.RateLimitUserWindow,
			BlockDuration: cfg.RateLimitBlockDuration,
		},
		BackendURL: cfg.BackendURL,
	})

	proxyTrust, err := middleware.NewProxyTrust(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("Invalid TRUSTED_PROXIES: %v", err)
	}

	routerConfig := handler.RouterConfig{
		Sessions: handler.NewSessionHandler(sessions, handler.CookieConfig{
			Path:   cfg.RefreshCookiePath,
			Secure: cfg.RefreshCookieSecure,
		}, structuredLogger),
		Health:        handler.NewHealthHandler(checks),
		Auth:          middleware.NewAuthMiddleware(sessions),
		Metrics:       lifecycleMetrics.Handler(),
		CorrelationID: middleware.CorrelationID(cfg.LogCorrelationIDHeader),
		ClientAddress: middleware.ClientAddress(proxyTrust),
	}
	if cfg.RateLimitEnabled && redisClient != nil {
		routerConfig.RateLimit = middleware.NewRateLimitMiddleware(rateLimitService, nil, structuredLogger)
	}
	if cfg.LogEnableRequestLog {
		routerConfig.RequestLog = middleware.RequestLog(structuredLogger)
	}
	if cfg.CORSEnabled && len(cfg.CORSAllowedOrigins) > 0 {
		routerConfig.CORS = middleware.CORS(cfg.CORSAllowedOrigins, cfg.CORSAllowCredentials)
	}

	server := &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler.NewRouter(routerConfig),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		structuredLogger.Info(ctx, "Starting server", map[string]interface{}{
			"addr": server.Addr,
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			structuredLogger.Error(ctx, "Server failed to start", err, map[string]interface{}{
				"addr": server.Addr,
			})
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	structuredLogger.Info(ctx, "Shutting down server...", nil)

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		structuredLogger.Error(ctx, "Server forced to shutdown", err, nil)
	}
	structuredLogger.Info(ctx, "Server exited", nil)
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func openRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
