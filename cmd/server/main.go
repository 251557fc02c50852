package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/AnshRaj112/serenify-auth/internal/config"
	"github.com/AnshRaj112/serenify-auth/internal/database"
	"github.com/AnshRaj112/serenify-auth/internal/ratelimit"
	"github.com/AnshRaj112/serenify-auth/internal/routes"
	"github.com/AnshRaj112/serenify-auth/internal/services"
	"github.com/AnshRaj112/serenify-auth/internal/store"
	"github.com/AnshRaj112/serenify-auth/pkg/log"
	"github.com/AnshRaj112/serenify-auth/pkg/utils"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := log.New("development")
		boot.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := log.New(cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL
	db, err := database.ConnectPostgres(ctx, cfg.PostgresURI, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to PostgreSQL")
	}
	defer db.Close()
	if err := database.Migrate(ctx, db, logger); err != nil {
		logger.Fatal().Err(err).Msg("failed to apply migrations")
	}
	users := store.NewPostgres(db)

	// Rate limiting: Redis when configured so every instance shares counters,
	// process memory otherwise.
	var limiter ratelimit.Limiter
	if cfg.RedisURI != "" {
		rdb, err := database.ConnectRedis(ctx, cfg.RedisURI, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer func(c *redis.Client) { _ = c.Close() }(rdb)
		limiter = ratelimit.NewRedis(rdb)
	} else {
		mem := ratelimit.NewMemory(ratelimit.WithSweepInterval(cfg.RateLimit.SweepInterval))
		mem.Start()
		defer mem.Close()
		limiter = mem
		logger.Info().Msg("rate limiting in process memory (REDIS_URI not set)")
	}

	// Security audit trail (optional)
	var auditor services.Auditor = services.NopAuditor{}
	if cfg.MongoURI != "" {
		mdb, err := database.ConnectMongo(ctx, cfg.MongoURI, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to MongoDB")
		}
		defer func() { _ = database.DisconnectMongo(mdb) }()
		ma := services.NewMongoAuditor(mdb, logger)
		if err := ma.EnsureIndexes(ctx); err != nil {
			logger.Warn().Err(err).Msg("failed to ensure security event indexes")
		}
		defer ma.Close()
		auditor = ma
	}

	var mailer services.Mailer
	if cfg.ResendAPIKey != "" {
		mailer = services.NewResendMailer(cfg.ResendAPIKey, cfg.FromEmail, cfg.EmailSendRate)
	} else {
		mailer = services.NewLogMailer(logger)
		logger.Warn().Msg("RESEND_API_KEY not set, emails will only be logged")
	}

	var oauth services.OAuthProvider = services.DisabledOAuth{}
	if cfg.GoogleEnabled() {
		oauth = services.NewGoogleOAuth(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleCallbackURL)
	}

	var uploader services.AvatarUploader = services.DisabledUploader{}
	if cfg.CloudinaryEnabled() {
		cld, err := services.NewCloudinaryService(cfg.CloudinaryName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to initialize Cloudinary, avatar uploads disabled")
		} else {
			uploader = cld
		}
	}

	tokens := services.NewTokenService(services.TokenConfig{
		AccessSecret:  cfg.JWTSecret,
		RefreshSecret: cfg.JWTRefreshSecret,
		Issuer:        cfg.JWTIssuer,
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
		Rotate:        cfg.RotateRefresh,
		MaxPerUser:    cfg.MaxRefreshPerUser,
	}, users, nil)

	auth := services.NewAuthService(services.AuthDeps{
		Store:     users,
		Hasher:    utils.NewHasher(cfg.BcryptCost, cfg.HashWorkers),
		Tokens:    tokens,
		Limiter:   limiter,
		Mailer:    mailer,
		Templates: services.EmailTemplates{FrontendURL: cfg.FrontendURL},
		OAuth:     oauth,
		Uploader:  uploader,
		Auditor:   auditor,
		Logger:    logger,
	}, services.AuthConfig{
		Policies:        cfg.Policies(),
		VerificationTTL: cfg.VerificationTTL,
		ResetTTL:        cfg.ResetTTL,
	})
	defer auth.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           routes.New(routes.Deps{Config: cfg, Auth: auth, Tokens: tokens, Limiter: limiter, Logger: logger}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Str("env", cfg.Environment).Msg("serenify auth running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return services.NewTokenCleanup(users, cfg.TokenCleanupPeriod, logger).Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
	}
}
