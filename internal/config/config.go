package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendBubble = "bubble"
	BackendMemory = "memory"
)

type Config struct {
	// HTTP Server
	Port               string        `yaml:"port"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute"`
	JWTSecret          string        `yaml:"jwt_secret"`

	// Record store
	DataBackend   string        `yaml:"data_backend"`
	BubbleBaseURL string        `yaml:"bubble_base_url"`
	BubbleAPIKey  string        `yaml:"bubble_api_key"`
	MemoryDataDir string        `yaml:"memory_data_dir"`
	HTTPTimeout   time.Duration `yaml:"http_timeout"`
	HTTPRetryMax  int           `yaml:"http_retry_max"`

	// Pipeline
	PageSize            int    `yaml:"page_size"`
	CategoryPageSize    int    `yaml:"category_page_size"`
	BackfillConcurrency int    `yaml:"backfill_concurrency"`
	ClassifierRulesFile string `yaml:"classifier_rules_file"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Journal
	SQLiteDBPath string `yaml:"sqlite_db_path"`

	// AMQP
	AMQPURL      string `yaml:"amqp_url"`
	AMQPExchange string `yaml:"amqp_exchange"`
	AMQPQueue    string `yaml:"amqp_queue"`

	// Google Sheets export
	GoogleSpreadsheetID string `yaml:"google_spreadsheet_id"`
	GoogleSheetName     string `yaml:"google_sheet_name"`

	// Worker
	ExportBatchSize  int           `yaml:"export_batch_size"`
	ExportInterval   time.Duration `yaml:"export_interval"`
	ExportMaxRetries int           `yaml:"export_max_retries"`
	RetentionAge     time.Duration `yaml:"retention_age"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Port:               "8080",
		RequestTimeout:     60 * time.Second,
		RateLimitPerMinute: 60,

		DataBackend:   BackendBubble,
		MemoryDataDir: "./data",
		HTTPTimeout:   30 * time.Second,
		HTTPRetryMax:  3,

		PageSize:            1000,
		CategoryPageSize:    2000,
		BackfillConcurrency: 8,

		LogLevel:  "info",
		LogFormat: "text",

		SQLiteDBPath: "./data/agfdash.db",

		AMQPExchange: "agfdash",
		AMQPQueue:    "report_runs",

		ExportBatchSize:  10,
		ExportInterval:   10 * time.Second,
		ExportMaxRetries: 3,
		RetentionAge:     30 * 24 * time.Hour,
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE if any, then environment variables, each layer overriding the
// previous one.
func Load() (*Config, error) {
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.overlayFile(path); err != nil {
			return nil, err
		}
	}
	cfg.overlayEnv()
	return cfg, nil
}

func (c *Config) overlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) overlayEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", c.RequestTimeout)
	c.RateLimitPerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", c.RateLimitPerMinute)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)

	c.DataBackend = strings.ToLower(getEnv("DATA_BACKEND", c.DataBackend))
	c.BubbleBaseURL = getEnv("BUBBLE_BASE_URL", c.BubbleBaseURL)
	c.BubbleAPIKey = getEnv("BUBBLE_API_KEY", c.BubbleAPIKey)
	c.MemoryDataDir = getEnv("MEMORY_DATA_DIR", c.MemoryDataDir)
	c.HTTPTimeout = getEnvDuration("HTTP_TIMEOUT", c.HTTPTimeout)
	c.HTTPRetryMax = getEnvInt("HTTP_RETRY_MAX", c.HTTPRetryMax)

	c.PageSize = getEnvInt("PAGE_SIZE", c.PageSize)
	c.CategoryPageSize = getEnvInt("CATEGORY_PAGE_SIZE", c.CategoryPageSize)
	c.BackfillConcurrency = getEnvInt("BACKFILL_CONCURRENCY", c.BackfillConcurrency)
	c.ClassifierRulesFile = getEnv("CLASSIFIER_RULES_FILE", c.ClassifierRulesFile)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)

	c.SQLiteDBPath = getEnv("SQLITE_DB_PATH", c.SQLiteDBPath)

	c.AMQPURL = getEnv("AMQP_URL", c.AMQPURL)
	c.AMQPExchange = getEnv("AMQP_EXCHANGE", c.AMQPExchange)
	c.AMQPQueue = getEnv("AMQP_QUEUE", c.AMQPQueue)

	c.GoogleSpreadsheetID = getEnv("GOOGLE_SPREADSHEET_ID", c.GoogleSpreadsheetID)
	c.GoogleSheetName = getEnv("GOOGLE_SHEET_NAME", c.GoogleSheetName)

	c.ExportBatchSize = getEnvInt("EXPORT_BATCH_SIZE", c.ExportBatchSize)
	c.ExportInterval = getEnvDuration("EXPORT_INTERVAL", c.ExportInterval)
	c.ExportMaxRetries = getEnvInt("EXPORT_MAX_RETRIES", c.ExportMaxRetries)
	c.RetentionAge = getEnvDuration("RETENTION_AGE", c.RetentionAge)
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate data backend
	validBackends := []string{BackendBubble, BackendMemory}
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == BackendBubble {
		if c.BubbleBaseURL == "" {
			errors = append(errors, "BUBBLE_BASE_URL is required when using bubble backend")
		} else if u, err := url.Parse(c.BubbleBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errors = append(errors, fmt.Sprintf("invalid bubble base URL '%s': must be an http(s) URL", c.BubbleBaseURL))
		}
		if c.BubbleAPIKey == "" {
			errors = append(errors, "BUBBLE_API_KEY is required when using bubble backend")
		}
	}

	if c.DataBackend == BackendMemory && c.MemoryDataDir == "" {
		errors = append(errors, "memory data directory cannot be empty when using memory backend")
	}

	// Validate pipeline tuning
	if c.PageSize < 1 || c.PageSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid page size %d: must be between 1 and 1000", c.PageSize))
	}
	if c.CategoryPageSize < 1 || c.CategoryPageSize > 5000 {
		errors = append(errors, fmt.Sprintf("invalid category page size %d: must be between 1 and 5000", c.CategoryPageSize))
	}
	if c.BackfillConcurrency < 1 || c.BackfillConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid backfill concurrency %d: must be between 1 and 64", c.BackfillConcurrency))
	}
	if c.HTTPRetryMax < 0 {
		errors = append(errors, fmt.Sprintf("invalid HTTP retry max %d: must not be negative", c.HTTPRetryMax))
	}
	if c.HTTPTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid HTTP timeout %v: must be at least 1 second", c.HTTPTimeout))
	}
	if c.RequestTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid request timeout %v: must be at least 1 second", c.RequestTimeout))
	}
	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1 per minute", c.RateLimitPerMinute))
	}
	if c.ClassifierRulesFile != "" {
		if _, err := os.Stat(c.ClassifierRulesFile); err != nil {
			errors = append(errors, fmt.Sprintf("classifier rules file does not exist: %s", c.ClassifierRulesFile))
		}
	}

	if f := strings.ToLower(c.LogFormat); f != "text" && f != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Validate worker configuration
	if c.ExportBatchSize < 1 || c.ExportBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid export batch size %d: must be between 1 and 1000", c.ExportBatchSize))
	}
	if c.ExportInterval < time.Second || c.ExportInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid export interval %v: must be between 1 second and 24 hours", c.ExportInterval))
	}
	if c.ExportMaxRetries < 1 {
		errors = append(errors, fmt.Sprintf("invalid export max retries %d: must be at least 1", c.ExportMaxRetries))
	}
	if c.RetentionAge < time.Hour {
		errors = append(errors, fmt.Sprintf("invalid retention age %v: must be at least 1 hour", c.RetentionAge))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// AuthEnabled reports whether /api routes require a bearer token.
func (c *Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}

// ExportEnabled reports whether the worker should write to Google Sheets.
func (c *Config) ExportEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return defaultValue
}
