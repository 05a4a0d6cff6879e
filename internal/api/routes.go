// routes.go - Route registration and middleware setup
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/kisan-sarthi/backend/internal/auth"
	"github.com/kisan-sarthi/backend/internal/logger"
	"github.com/kisan-sarthi/backend/internal/metrics"
	"github.com/kisan-sarthi/backend/internal/storage"
	"github.com/kisan-sarthi/backend/internal/wizard"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Listings    ListingStore
	Store       storage.Store
	Media       *storage.MediaUploader
	Wizards     *wizard.Manager
	Auth        AuthService
	Assistant   Asker
	Weather     WeatherSource
	DB          Pinger
	Metrics     *metrics.Metrics
	Log         logger.Logger
	Version     string
	PageSize    int
	MaxPageSize int
}

// Handlers holds all handler instances
type Handlers struct {
	Health    HealthHandler
	Auth      AuthHandler
	Listings  ListingHandler
	Media     MediaHandler
	Wizards   WizardHandler
	Stream    *WebSocketHandler
	Assistant AssistantHandler

	requireSession echo.MiddlewareFunc
	metrics        http.Handler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	log := deps.Log
	if log == nil {
		log = logger.NewNop()
	}

	var (
		otpObs         OTPObserver
		pageObs        PageObserver
		bytes          ByteCounter
		metricsHandler http.Handler
	)
	if deps.Metrics != nil {
		otpObs = deps.Metrics
		pageObs = deps.Metrics
		bytes = deps.Metrics.MediaBytesSaved
		metricsHandler = deps.Metrics.Handler()
	}

	return &Handlers{
		Health:         NewHealthHandler(deps.Version, deps.DB),
		Auth:           NewAuthHandler(deps.Auth, otpObs),
		Listings:       NewListingHandler(deps.Listings, mediaResolver(deps.Media), deps.PageSize, deps.MaxPageSize, pageObs),
		Media:          NewMediaHandler(deps.Store, deps.Media, bytes),
		Wizards:        NewWizardHandler(deps.Wizards),
		Stream:         NewWebSocketHandler(deps.Wizards, deps.Auth, log),
		Assistant:      NewAssistantHandler(deps.Assistant, deps.Weather),
		requireSession: auth.RequireSession(deps.Auth),
		metrics:        metricsHandler,
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, h *Handlers) {
	apiGroup := e.Group("/api")
	protected := h.requireSession

	// Health check
	apiGroup.GET("/health", h.Health.HandleHealth)
	if h.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(h.metrics))
	}

	// Authentication
	authGroup := apiGroup.Group("/auth")
	authGroup.POST("/otp", h.Auth.HandleSendOTP)
	authGroup.POST("/verify", h.Auth.HandleVerifyOTP)
	authGroup.GET("/session", h.Auth.HandleSession)
	authGroup.POST("/logout", h.Auth.HandleLogout)

	// Listings
	apiGroup.GET("/listings", h.Listings.HandleListListings)
	apiGroup.GET("/listings/:id", h.Listings.HandleGetListing)
	apiGroup.POST("/listings", h.Listings.HandleCreateListing, protected)

	// Media
	apiGroup.POST("/media", h.Media.HandleUploadMedia, protected)
	apiGroup.GET("/media/:id", h.Media.HandleGetMedia)
	apiGroup.HEAD("/media/:id", h.Media.HandleGetMedia)

	// Wizards
	apiGroup.GET("/wizards/schema/:kind", h.Wizards.HandleGetSchema)
	wizardGroup := apiGroup.Group("/wizards", protected)
	wizardGroup.POST("", h.Wizards.HandleCreateWizard)
	wizardGroup.GET("/:id", h.Wizards.HandleGetWizard)
	wizardGroup.PUT("/:id/fields", h.Wizards.HandleSetFields)
	wizardGroup.POST("/:id/next", h.Wizards.HandleNextStep)
	wizardGroup.POST("/:id/previous", h.Wizards.HandlePreviousStep)
	wizardGroup.POST("/:id/files", h.Wizards.HandleSelectFiles)
	wizardGroup.POST("/:id/submit", h.Wizards.HandleSubmit)
	wizardGroup.DELETE("/:id", h.Wizards.HandleDeleteWizard)

	// WebSocket progress stream; authenticates itself
	apiGroup.GET("/ws/wizards/:id", h.Stream.HandleWizardStream)

	// Assistant widgets
	apiGroup.POST("/assistant/chat", h.Assistant.HandleChat)
	apiGroup.GET("/weather", h.Assistant.HandleWeather)
}

// MiddlewareConfig selects the optional middleware
type MiddlewareConfig struct {
	Development       bool
	RequestLogging    bool
	EnableCORS        bool
	AllowOrigins      []string
	EnableCompression bool
	CompressionLevel  int
	BodyLimit         string
	RequestTimeout    time.Duration
}

// quietPath reports routes that are polled or long-lived.
func quietPath(c echo.Context) bool {
	path := c.Request().URL.Path
	return path == "/api/health" ||
		path == "/metrics" ||
		strings.HasPrefix(path, "/api/ws/")
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, cfg MiddlewareConfig, log logger.Logger, m *metrics.Metrics) {
	e.HTTPErrorHandler = NewErrorHandler(log, cfg.Development)

	if cfg.RequestLogging {
		e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
			Skipper:     quietPath,
			LogMethod:   true,
			LogURI:      true,
			LogStatus:   true,
			LogLatency:  true,
			LogRemoteIP: true,
			LogError:    true,
			HandleError: true,
			LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
				fields := []logger.Field{
					logger.String("method", v.Method),
					logger.String("uri", v.URI),
					logger.Int("status", v.Status),
					logger.Duration("latency", v.Latency),
					logger.String("remote_ip", v.RemoteIP),
				}
				if v.Error != nil {
					log.Warn("request", append(fields, logger.Error(v.Error))...)
					return nil
				}
				log.Info("request", fields...)
				return nil
			},
		}))
	}

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10,
	}))

	if m != nil {
		e.Use(m.Middleware())
	}

	if cfg.RequestTimeout > 0 {
		e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
			Timeout: cfg.RequestTimeout,
			Skipper: func(c echo.Context) bool {
				path := c.Request().URL.Path
				return quietPath(c) ||
					strings.HasPrefix(path, "/api/media") ||
					strings.HasSuffix(path, "/files")
			},
			ErrorMessage: "request timeout",
		}))
	}

	if cfg.EnableCompression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level: cfg.CompressionLevel,
			Skipper: func(c echo.Context) bool {
				return strings.HasPrefix(c.Request().URL.Path, "/api/ws/") ||
					strings.HasPrefix(c.Request().URL.Path, "/api/media/")
			},
		}))
	}

	if cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.BodyLimit))
	}

	if cfg.EnableCORS {
		origins := cfg.AllowOrigins
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		}))
	}
}

// mediaResolver keeps a nil uploader from becoming a non-nil interface.
func mediaResolver(m *storage.MediaUploader) MediaResolver {
	if m == nil {
		return nil
	}
	return m
}
