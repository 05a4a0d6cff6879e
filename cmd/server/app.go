package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/kisan-sarthi/backend/internal/api"
	"github.com/kisan-sarthi/backend/internal/assistant"
	"github.com/kisan-sarthi/backend/internal/auth"
	"github.com/kisan-sarthi/backend/internal/config"
	"github.com/kisan-sarthi/backend/internal/logger"
	"github.com/kisan-sarthi/backend/internal/metrics"
	"github.com/kisan-sarthi/backend/internal/repository"
	"github.com/kisan-sarthi/backend/internal/storage"
	"github.com/kisan-sarthi/backend/internal/weather"
	"github.com/kisan-sarthi/backend/internal/wizard"
)

// application holds the long-lived collaborators of the server.
type application struct {
	cfg     *config.AppConfig
	log     logger.Logger
	db      *sqlx.DB
	redis   *redis.Client
	mongo   *mongo.Client
	memory  *auth.MemoryCodeStore
	store   storage.Store
	media   *storage.MediaUploader
	repo    *repository.ListingRepository
	auth    *auth.Service
	wizards *wizard.Manager
	chat    *assistant.Chat
	weather *weather.Client
	metrics *metrics.Metrics

	codeStoreName string
}

func build(ctx context.Context, cfg *config.AppConfig, log logger.Logger) (_ *application, err error) {
	app := &application{cfg: cfg, log: log, metrics: metrics.New()}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	// Listings
	app.db, err = repository.Open(ctx, repository.Dialect(cfg.Database.Driver), cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	app.repo = repository.NewListingRepository(app.db)
	if err := app.repo.Migrate(ctx); err != nil {
		return nil, err
	}

	// Media
	switch cfg.Storage.Backend {
	case "gridfs":
		app.mongo, err = storage.ConnectMongo(ctx, cfg.Storage.MongoURI)
		if err != nil {
			return nil, err
		}
		app.store, err = storage.NewGridFSStore(app.mongo, cfg.Storage.MongoDatabase, cfg.Storage.MongoBucket)
		if err != nil {
			return nil, err
		}
	default:
		app.store, err = storage.NewLocalStore(cfg.GetUploadDir())
		if err != nil {
			return nil, fmt.Errorf("initialize storage: %w", err)
		}
	}
	app.media = storage.NewMediaUploader(app.store, cfg.GetPublicBaseURL())

	// Auth
	var codes auth.CodeStore
	if cfg.Auth.RedisAddress != "" {
		app.redis, err = auth.DialRedis(ctx, cfg.Auth.RedisAddress, cfg.Auth.RedisPassword, cfg.Auth.RedisDB)
		if err != nil {
			return nil, err
		}
		codes = auth.NewRedisCodeStore(app.redis, "kisan")
		app.codeStoreName = "redis " + cfg.Auth.RedisAddress
	} else {
		app.memory = auth.NewMemoryCodeStore()
		codes = app.memory
		app.codeStoreName = "memory"
	}

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret, err = randomSecret()
		if err != nil {
			return nil, err
		}
		log.Warn("auth.jwt_secret not set; sessions will not survive a restart")
	}
	tokens, err := auth.NewTokenIssuer(secret, cfg.TokenTTL())
	if err != nil {
		return nil, err
	}
	app.auth = auth.NewService(codes, auth.LogSender{Log: log}, tokens, auth.Config{
		CodeLength:  cfg.Auth.OTPLength,
		CodeTTL:     cfg.OTPTTL(),
		MaxAttempts: cfg.Auth.OTPMaxAttempts,
		CountryCode: cfg.Auth.DefaultCountryCode,
	}, log)

	// Wizards
	app.wizards = wizard.NewManager(app.media, app.repo,
		wizard.WithReporterFactory(reporterFactory(cfg)),
		wizard.WithManagerLogger(log.With(logger.String("component", "wizard"))),
		wizard.WithSubmitObserver(app.metrics),
	)

	// Assistant widgets
	app.chat, err = assistant.New(ctx, cfg.Assistant.APIKey, cfg.Assistant.Model)
	if err != nil {
		return nil, err
	}
	if !app.chat.Configured() {
		log.Info("assistant disabled: no API key")
	}
	app.weather = weather.NewClient(cfg.Weather.BaseURL, time.Duration(cfg.Weather.TimeoutSeconds)*time.Second)

	return app, nil
}

// reporterFactory builds one progress reporter per wizard.
func reporterFactory(cfg *config.AppConfig) func() wizard.ProgressReporter {
	if cfg.Wizard.ProgressMode == "transfer" {
		return func() wizard.ProgressReporter { return wizard.TransferReporter{} }
	}
	interval, step := cfg.ProgressInterval(), cfg.Wizard.ProgressStep
	return func() wizard.ProgressReporter { return wizard.NewIntervalReporter(interval, step) }
}

func (a *application) deps(version string) *api.Dependencies {
	return &api.Dependencies{
		Listings:    a.repo,
		Store:       a.store,
		Media:       a.media,
		Wizards:     a.wizards,
		Auth:        a.auth,
		Assistant:   a.chat,
		Weather:     a.weather,
		DB:          a.db,
		Metrics:     a.metrics,
		Log:         a.log,
		Version:     version,
		PageSize:    a.cfg.Feed.PageSize,
		MaxPageSize: a.cfg.Feed.MaxPageSize,
	}
}

// cleanupLoop removes idle wizards and expired in-memory codes until ctx ends.
func (a *application) cleanupLoop(ctx context.Context, every, maxIdle time.Duration) {
	if every <= 0 {
		every = 5 * time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.wizards.CleanupIdle(maxIdle); n > 0 {
				a.log.Info("removed idle wizards", logger.Int("count", n))
			}
			if a.memory != nil {
				a.memory.Sweep()
			}
			a.metrics.WizardSessions.Set(float64(a.wizards.Len()))
		}
	}
}

// Close releases connections opened by build.
func (a *application) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.mongo.Disconnect(ctx)
	}
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
