// Package config provides YAML configuration for the marketplace server.
//
// A default config file is written on first run. Values from .env files and
// the process environment override the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppConfig is the root configuration document.
type AppConfig struct {
	Environment string          `yaml:"environment"`
	Server      ServerConfig    `yaml:"server"`
	Database    DatabaseConfig  `yaml:"database"`
	Storage     StorageConfig   `yaml:"storage"`
	Auth        AuthConfig      `yaml:"auth"`
	Feed        FeedConfig      `yaml:"feed"`
	Wizard      WizardConfig    `yaml:"wizard"`
	Assistant   AssistantConfig `yaml:"assistant"`
	Weather     WeatherConfig   `yaml:"weather"`
	Logging     LoggingConfig   `yaml:"logging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port                 int      `yaml:"port"`
	BindAddress          string   `yaml:"bind_address"`
	EnableCORS           bool     `yaml:"enable_cors"`
	AllowOrigins         []string `yaml:"allow_origins"`
	ReadTimeoutSeconds   int      `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds  int      `yaml:"write_timeout_seconds"`
	IdleTimeoutSeconds   int      `yaml:"idle_timeout_seconds"`
	BodyLimit            string   `yaml:"body_limit"`
	EnableRequestLogging bool     `yaml:"enable_request_logging"`
	EnableCompression    bool     `yaml:"enable_compression"`
	CompressionLevel     int      `yaml:"compression_level"`
}

// DatabaseConfig selects the listing document store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // duckdb | postgres
	DSN    string `yaml:"dsn"`
}

// StorageConfig selects the media blob store.
type StorageConfig struct {
	Backend          string `yaml:"backend"` // local | gridfs
	DataDirectory    string `yaml:"data_directory"`
	UploadsDirectory string `yaml:"uploads_directory"`
	MongoURI         string `yaml:"mongo_uri"`
	MongoDatabase    string `yaml:"mongo_database"`
	MongoBucket      string `yaml:"mongo_bucket"`
	PublicBaseURL    string `yaml:"public_base_url"`
}

// AuthConfig contains phone OTP and token settings.
type AuthConfig struct {
	JWTSecret          string `yaml:"jwt_secret"`
	TokenTTLHours      int    `yaml:"token_ttl_hours"`
	OTPTTLSeconds      int    `yaml:"otp_ttl_seconds"`
	OTPLength          int    `yaml:"otp_length"`
	OTPMaxAttempts     int    `yaml:"otp_max_attempts"`
	RedisAddress       string `yaml:"redis_address"` // empty means in-memory
	RedisPassword      string `yaml:"redis_password"`
	RedisDB            int    `yaml:"redis_db"`
	DefaultCountryCode string `yaml:"default_country_code"`
}

// FeedConfig contains listing feed settings.
type FeedConfig struct {
	PageSize    int `yaml:"page_size"`
	MaxPageSize int `yaml:"max_page_size"`
}

// WizardConfig contains listing wizard settings.
type WizardConfig struct {
	ProgressMode           string `yaml:"progress_mode"` // interval | transfer
	ProgressIntervalMillis int    `yaml:"progress_interval_ms"`
	ProgressStep           int    `yaml:"progress_step"`
	SessionTimeoutMinutes  int    `yaml:"session_timeout_minutes"`
	CleanupIntervalMinutes int    `yaml:"cleanup_interval_minutes"`
}

// AssistantConfig contains the farming assistant settings.
type AssistantConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// WeatherConfig contains the weather proxy settings.
type WeatherConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// LoggingConfig contains logger settings.
type LoggingConfig struct {
	Level       string   `yaml:"level"`
	Development bool     `yaml:"development"`
	OutputPaths []string `yaml:"output_paths"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Environment: "development",
		Server: ServerConfig{
			Port:                 8089,
			BindAddress:          "0.0.0.0",
			EnableCORS:           true,
			AllowOrigins:         []string{"*"},
			ReadTimeoutSeconds:   30,
			WriteTimeoutSeconds:  60,
			IdleTimeoutSeconds:   120,
			BodyLimit:            "50M",
			EnableRequestLogging: true,
			EnableCompression:    true,
			CompressionLevel:     5,
		},
		Database: DatabaseConfig{
			Driver: "duckdb",
			DSN:    "./data/listings.duckdb",
		},
		Storage: StorageConfig{
			Backend:          "local",
			DataDirectory:    "./data",
			UploadsDirectory: "./data/uploads",
			MongoDatabase:    "kisan",
			MongoBucket:      "media",
		},
		Auth: AuthConfig{
			TokenTTLHours:      24 * 7,
			OTPTTLSeconds:      300,
			OTPLength:          6,
			OTPMaxAttempts:     5,
			DefaultCountryCode: "+91",
		},
		Feed: FeedConfig{
			PageSize:    5,
			MaxPageSize: 50,
		},
		Wizard: WizardConfig{
			ProgressMode:           "interval",
			ProgressIntervalMillis: 200,
			ProgressStep:           10,
			SessionTimeoutMinutes:  30,
			CleanupIntervalMinutes: 5,
		},
		Assistant: AssistantConfig{
			Model: "gemini-2.0-flash",
		},
		Weather: WeatherConfig{
			BaseURL:        "https://api.open-meteo.com/v1/forecast",
			TimeoutSeconds: 10,
		},
		Logging: LoggingConfig{
			Level:       "info",
			OutputPaths: []string{"stdout"},
		},
	}
}

// LoadConfig loads configuration from a YAML file, creating it with defaults
// when it does not exist.
func LoadConfig(configPath string) (*AppConfig, error) {
	if err := loadEnvFiles(filepath.Dir(configPath)); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Unmarshal over the defaults so missing keys keep their default.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvironmentOverrides()
	cfg.resolvePaths(filepath.Dir(configPath))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFiles loads ENV_FILE when set, otherwise .env.local and .env from the
// working directory and the config directory. Missing files are ignored, and
// variables already set in the environment win.
func loadEnvFiles(configDir string) error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}
	candidates := []string{".env.local", ".env"}
	if configDir != "" && configDir != "." {
		candidates = append(candidates,
			filepath.Join(configDir, ".env.local"),
			filepath.Join(configDir, ".env"))
	}
	for _, name := range candidates {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

// Save writes the configuration as YAML.
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# Kisan Sarthi marketplace configuration\n# This file is auto-generated on first run\n\n")
	content := append(header, output...)

	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// applyEnvironmentOverrides lets environment variables override file values.
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("APP_ENV"); v != "" {
		c.Environment = v
	}
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.UploadsDirectory = filepath.Join(dataDir, "uploads")
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("MONGO_URI"); v != "" {
		c.Storage.MongoURI = v
	}
	if v := os.Getenv("PUBLIC_BASE_URL"); v != "" {
		c.Storage.PublicBaseURL = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("REDIS_ADDRESS"); v != "" {
		c.Auth.RedisAddress = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Auth.RedisPassword = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Assistant.APIKey = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// resolvePaths makes relative paths absolute against the config file location.
func (c *AppConfig) resolvePaths(configDir string) {
	resolve := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
	resolve(&c.Storage.DataDirectory)
	resolve(&c.Storage.UploadsDirectory)
	if c.Database.Driver == "duckdb" && c.Database.DSN != "" && c.Database.DSN != ":memory:" &&
		!strings.Contains(c.Database.DSN, "://") {
		resolve(&c.Database.DSN)
	}
}

// IsDevelopment reports whether the server runs in development mode.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "" || c.Environment == "development"
}

// Validate rejects unusable settings.
func (c *AppConfig) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "duckdb", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q: want duckdb or postgres", c.Database.Driver))
	}
	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required for postgres"))
	}
	switch c.Storage.Backend {
	case "local":
	case "gridfs":
		if c.Storage.MongoURI == "" {
			errs = append(errs, errors.New("storage.mongo_uri is required for gridfs"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q: want local or gridfs", c.Storage.Backend))
	}
	switch c.Wizard.ProgressMode {
	case "interval", "transfer":
	default:
		errs = append(errs, fmt.Errorf("wizard.progress_mode %q: want interval or transfer", c.Wizard.ProgressMode))
	}
	if c.Feed.PageSize <= 0 {
		errs = append(errs, errors.New("feed.page_size must be positive"))
	}
	if c.Feed.MaxPageSize < c.Feed.PageSize {
		errs = append(errs, errors.New("feed.max_page_size must be at least feed.page_size"))
	}
	if c.Auth.OTPLength < 4 || c.Auth.OTPLength > 10 {
		errs = append(errs, errors.New("auth.otp_length must be between 4 and 10"))
	}
	if c.Auth.JWTSecret == "" && !c.IsDevelopment() {
		errs = append(errs, errors.New("auth.jwt_secret is required outside development"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// GetDataDir returns the absolute data directory path.
func (c *AppConfig) GetDataDir() string {
	return c.Storage.DataDirectory
}

// GetUploadDir returns the absolute uploads directory path.
func (c *AppConfig) GetUploadDir() string {
	return c.Storage.UploadsDirectory
}

// GetServerAddr returns the server bind address.
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// GetPublicBaseURL returns the base URL written into media URLs.
func (c *AppConfig) GetPublicBaseURL() string {
	if c.Storage.PublicBaseURL != "" {
		return strings.TrimRight(c.Storage.PublicBaseURL, "/")
	}
	host := c.Server.BindAddress
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, c.Server.Port)
}

// TokenTTL is the lifetime of a session token.
func (c *AppConfig) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLHours) * time.Hour
}

// OTPTTL is the lifetime of a one-time code.
func (c *AppConfig) OTPTTL() time.Duration {
	return time.Duration(c.Auth.OTPTTLSeconds) * time.Second
}

func (c *AppConfig) ProgressInterval() time.Duration {
	return time.Duration(c.Wizard.ProgressIntervalMillis) * time.Millisecond
}

func (c *AppConfig) SessionTimeout() time.Duration {
	return time.Duration(c.Wizard.SessionTimeoutMinutes) * time.Minute
}

func (c *AppConfig) CleanupInterval() time.Duration {
	return time.Duration(c.Wizard.CleanupIntervalMinutes) * time.Minute
}

// EnsureDirectories creates the data directories.
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{c.Storage.DataDirectory, c.Storage.UploadsDirectory}
	if c.Database.Driver == "duckdb" && c.Database.DSN != "" && c.Database.DSN != ":memory:" {
		dirs = append(dirs, filepath.Dir(c.Database.DSN))
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
