// Package config provides configuration management and environment variable handling for the application
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/wb-tariffs-sync/models"
	"github.com/amirphl/wb-tariffs-sync/utils"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds all configuration for the sync service
type Config struct {
	Database   DatabaseConfig   `json:"database"`
	TariffAPI  TariffAPIConfig  `json:"tariff_api"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	Sheets     SheetsConfig     `json:"sheets"`
	Server     ServerConfig     `json:"server"`
	Logging    LoggingConfig    `json:"logging"`
	Metrics    MetricsConfig    `json:"metrics"`
	Admin      AdminConfig      `json:"admin"`
	Deployment DeploymentConfig `json:"deployment"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"-"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	SlowQueryTime   time.Duration `json:"slow_query_time"`
}

// DSN returns the key/value connection string understood by pgx
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type TariffAPIConfig struct {
	URL       string        `json:"url"`
	Token     string        `json:"-"`
	Timeout   time.Duration `json:"timeout"`
	UserAgent string        `json:"user_agent"`
}

type SchedulerConfig struct {
	Cron        string        `json:"cron"`
	RunOnStart  bool          `json:"run_on_start"`
	Timezone    string        `json:"timezone"`
	TickTimeout time.Duration `json:"tick_timeout"`
}

// Location resolves Timezone; empty means UTC
func (c SchedulerConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

type SheetsConfig struct {
	SheetIDs            []string      `json:"sheet_ids"`
	ServiceAccountEmail string        `json:"service_account_email"`
	PrivateKey          string        `json:"-"`
	WorksheetName       string        `json:"worksheet_name"`
	SortBy              string        `json:"sort_by"`
	DefaultRows         int           `json:"default_rows"`
	DefaultColumns      int           `json:"default_columns"`
	MaxConcurrency      int           `json:"max_concurrency"`
	RequestTimeout      time.Duration `json:"request_timeout"`
}

// HasGoogleTargets reports whether any target is a Google spreadsheet id
func (c SheetsConfig) HasGoogleTargets() bool {
	for _, id := range c.SheetIDs {
		if !strings.HasPrefix(id, "xlsx:") {
			return true
		}
	}
	return false
}

type ServerConfig struct {
	Enabled         bool          `json:"enabled"`
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level        string `json:"level"`  // debug, info, warn, error
	Format       string `json:"format"` // json, console
	Output       string `json:"output"` // stdout, file, both
	FilePath     string `json:"file_path"`
	MaxSize      int    `json:"max_size"` // MB
	MaxBackups   int    `json:"max_backups"`
	MaxAge       int    `json:"max_age"` // days
	Compress     bool   `json:"compress"`
	EnableCaller bool   `json:"enable_caller"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type AdminConfig struct {
	JWTSecret string `json:"-"`
	JWTIssuer string `json:"jwt_issuer"`
}

type DeploymentConfig struct {
	Environment string `json:"environment"`
	Version     string `json:"version"`
}

// LoadConfig reads .env (if present) and the process environment, then validates the result
func LoadConfig() (*Config, error) {
	if err := loadEnvFile(getEnvString("ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", getEnvString("POSTGRES_HOST", "localhost")),
			Port:            getEnvInt("DB_PORT", getEnvInt("POSTGRES_PORT", 5432)),
			Name:            getEnvString("DB_NAME", getEnvString("POSTGRES_DB", "postgres")),
			User:            getEnvString("DB_USER", getEnvString("POSTGRES_USER", "postgres")),
			Password:        getEnvString("DB_PASSWORD", getEnvString("POSTGRES_PASSWORD", "postgres")),
			SSLMode:         getEnvString("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
			SlowQueryTime:   getEnvDuration("DB_SLOW_QUERY_TIME", 1*time.Second),
		},
		TariffAPI: TariffAPIConfig{
			URL:       getEnvString("WB_API_URL", utils.DefaultTariffAPIURL),
			Token:     getEnvString("WB_API_TOKEN", ""),
			Timeout:   getEnvDuration("WB_API_TIMEOUT", utils.DefaultTariffAPITimeout),
			UserAgent: getEnvString("WB_API_USER_AGENT", utils.DefaultUserAgent),
		},
		Scheduler: SchedulerConfig{
			Cron:        getEnvString("SCHEDULER_CRON", utils.DefaultSchedulerCron),
			RunOnStart:  getEnvBool("SCHEDULER_RUN_ON_START", true),
			Timezone:    getEnvString("SCHEDULER_TIMEZONE", "UTC"),
			TickTimeout: getEnvDuration("SCHEDULER_TICK_TIMEOUT", utils.DefaultTickTimeout),
		},
		Sheets: SheetsConfig{
			SheetIDs:            getEnvStringSlice("GOOGLE_SHEET_IDS", nil),
			ServiceAccountEmail: getEnvString("GOOGLE_SERVICE_ACCOUNT_EMAIL", ""),
			PrivateKey:          strings.ReplaceAll(getEnvString("GOOGLE_PRIVATE_KEY", ""), `\n`, "\n"),
			WorksheetName:       getEnvString("SHEETS_WORKSHEET_NAME", utils.DefaultWorksheetName),
			SortBy:              getEnvString("SHEETS_SORT_BY", string(models.SortByStorage)),
			DefaultRows:         getEnvInt("SHEETS_DEFAULT_ROWS", utils.DefaultSheetRows),
			DefaultColumns:      getEnvInt("SHEETS_DEFAULT_COLUMNS", utils.DefaultSheetColumns),
			MaxConcurrency:      getEnvInt("SHEETS_MAX_CONCURRENCY", 4),
			RequestTimeout:      getEnvDuration("SHEETS_REQUEST_TIMEOUT", 60*time.Second),
		},
		Server: ServerConfig{
			Enabled:         getEnvBool("SERVER_ENABLED", true),
			Host:            getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", getEnvInt("APP_PORT", 8080)),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Logging: LoggingConfig{
			Level:        getEnvString("LOG_LEVEL", "info"),
			Format:       getEnvString("LOG_FORMAT", "json"),
			Output:       getEnvString("LOG_OUTPUT", "stdout"),
			FilePath:     getEnvString("LOG_FILE_PATH", "logs/wb-tariffs-sync.log"),
			MaxSize:      getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups:   getEnvInt("LOG_MAX_BACKUPS", 5),
			MaxAge:       getEnvInt("LOG_MAX_AGE", 30),
			Compress:     getEnvBool("LOG_COMPRESS", true),
			EnableCaller: getEnvBool("LOG_ENABLE_CALLER", false),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
		Admin: AdminConfig{
			JWTSecret: getEnvString("ADMIN_JWT_SECRET", ""),
			JWTIssuer: getEnvString("ADMIN_JWT_ISSUER", "wb-tariffs-sync"),
		},
		Deployment: DeploymentConfig{
			Environment: getEnvString("APP_ENV", "production"),
			Version:     getEnvString("VERSION", "dev"),
		},
	}

	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile loads variables from path without overriding the process environment.
// A missing file is not an error.
func loadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateConfig checks every section and reports all problems at once
func ValidateConfig(cfg *Config) error {
	var errors []string

	// Database
	if cfg.Database.Host == "" {
		errors = append(errors, "DB_HOST is required")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		errors = append(errors, "DB_PORT must be between 1 and 65535")
	}
	if cfg.Database.Name == "" {
		errors = append(errors, "DB_NAME is required")
	}
	if cfg.Database.User == "" {
		errors = append(errors, "DB_USER is required")
	}

	// Upstream API
	if cfg.TariffAPI.Token == "" {
		errors = append(errors, "WB_API_TOKEN is required")
	}
	if cfg.TariffAPI.Timeout <= 0 {
		errors = append(errors, "WB_API_TIMEOUT must be positive")
	}

	// Scheduler
	if _, err := cronParser.Parse(cfg.Scheduler.Cron); err != nil {
		errors = append(errors, fmt.Sprintf("SCHEDULER_CRON is invalid: %v", err))
	}
	if _, err := cfg.Scheduler.Location(); err != nil {
		errors = append(errors, fmt.Sprintf("SCHEDULER_TIMEZONE is invalid: %v", err))
	}
	if cfg.Scheduler.TickTimeout < 0 {
		errors = append(errors, "SCHEDULER_TICK_TIMEOUT must not be negative")
	}

	// Sheets
	if !models.SortBy(cfg.Sheets.SortBy).Valid() {
		errors = append(errors, "SHEETS_SORT_BY must be one of: storage, delivery, delivery_marketplace")
	}
	if cfg.Sheets.HasGoogleTargets() {
		if cfg.Sheets.ServiceAccountEmail == "" {
			errors = append(errors, "GOOGLE_SERVICE_ACCOUNT_EMAIL is required for Google Sheets targets")
		}
		if cfg.Sheets.PrivateKey == "" {
			errors = append(errors, "GOOGLE_PRIVATE_KEY is required for Google Sheets targets")
		}
	}
	for _, id := range cfg.Sheets.SheetIDs {
		if id == "xlsx:" {
			errors = append(errors, "GOOGLE_SHEET_IDS contains an xlsx target without a path")
		}
	}
	if cfg.Sheets.WorksheetName == "" {
		errors = append(errors, "SHEETS_WORKSHEET_NAME is required")
	}
	if cfg.Sheets.DefaultRows <= 0 || cfg.Sheets.DefaultColumns <= 0 {
		errors = append(errors, "SHEETS_DEFAULT_ROWS and SHEETS_DEFAULT_COLUMNS must be positive")
	}
	if cfg.Sheets.MaxConcurrency <= 0 {
		errors = append(errors, "SHEETS_MAX_CONCURRENCY must be positive")
	}

	// Server
	if cfg.Server.Enabled {
		if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
			errors = append(errors, "SERVER_PORT must be between 1 and 65535")
		}
		if cfg.Server.ReadTimeout <= 0 {
			errors = append(errors, "SERVER_READ_TIMEOUT must be positive")
		}
		if cfg.Server.WriteTimeout <= 0 {
			errors = append(errors, "SERVER_WRITE_TIMEOUT must be positive")
		}
	}
	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errors = append(errors, "METRICS_PATH must start with /")
	}
	if cfg.Admin.JWTSecret != "" && len(cfg.Admin.JWTSecret) < 32 {
		errors = append(errors, "ADMIN_JWT_SECRET must be at least 32 characters long")
	}

	// Logging
	if !oneOf(cfg.Logging.Level, "debug", "info", "warn", "error") {
		errors = append(errors, "LOG_LEVEL must be one of: debug, info, warn, error")
	}
	if !oneOf(cfg.Logging.Format, "json", "console") {
		errors = append(errors, "LOG_FORMAT must be one of: json, console")
	}
	if !oneOf(cfg.Logging.Output, "stdout", "file", "both") {
		errors = append(errors, "LOG_OUTPUT must be one of: stdout, file, both")
	}
	if cfg.Logging.Output != "stdout" && cfg.Logging.FilePath == "" {
		errors = append(errors, "LOG_FILE_PATH is required when logging to a file")
	}

	// Return validation errors if any
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}
