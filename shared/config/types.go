package config

import (
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Core settings
	Environment string
	ServiceName string
	LogLevel    string
	Version     string

	// Component configurations
	Portal        PortalConfig
	Fetch         FetchConfig
	Retry         RetryConfig
	Convert       ConvertConfig
	Setup         SetupConfig
	Storage       StorageConfig
	Observability ObservabilityConfig
}

// PortalConfig holds the JGI Genome Portal endpoints and HTTP client settings
type PortalConfig struct {
	SignOnURL    string
	CatalogURL   string
	DownloadBase string
	Organism     string
	Username     string
	Password     string
	UserAgent    string

	// Timeout bounds sign on and catalog requests
	Timeout time.Duration
	// AttemptTimeout bounds a single archive download attempt
	AttemptTimeout time.Duration

	// RateLimit is the sustained request rate in requests per second
	RateLimit float64
	RateBurst int
}

// FetchConfig holds fetch pass settings
type FetchConfig struct {
	BaseDir     string
	Suffix      string
	SpeciesFile string // YAML allow-list; the embedded list is used when empty
	ConvertOnly bool
	NoConvert   bool
}

// RetryConfig holds retry policy configuration
type RetryConfig struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// Backoff calculates the backoff duration for a retry attempt
func (c RetryConfig) Backoff(attempt int) time.Duration {
	backoff := float64(c.InitialBackoff) * math.Pow(c.BackoffMultiplier, float64(attempt))

	// Cap at max backoff
	if backoff > float64(c.MaxBackoff) {
		backoff = float64(c.MaxBackoff)
	}

	return time.Duration(backoff)
}

// ConvertConfig holds the BLAST database converter settings
type ConvertConfig struct {
	Converter string // path to makeblastdb; looked up on PATH when empty
	ExtraArgs string // shell-style extra arguments
	DBType    string
}

// SetupConfig holds environment setup settings
type SetupConfig struct {
	DepsDir          string
	InstallerScript  string
	ConfigPath       string
	Target           string
	EvalThreshold    float64
	MissingThreshold float64
}

// StorageConfig holds archive mirror configuration
type StorageConfig struct {
	Provider     string // "fs", "s3" or empty to disable the mirror
	BucketOrPath string
	Prefix       string
	Timeout      time.Duration
	S3           S3Config
}

// S3Config holds S3-specific configuration
type S3Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // custom endpoint for MinIO or LocalStack
	UsePathStyle    bool
}

// ObservabilityConfig holds metrics publication settings
type ObservabilityConfig struct {
	PushgatewayURL string
	PushJob        string
}

// Validate validates the entire configuration
func (c *Config) Validate() error {
	var errors []string

	// Core validations
	if c.ServiceName == "" {
		errors = append(errors, "SERVICE_NAME is required")
	}

	// Portal
	for _, endpoint := range []struct{ name, raw string }{
		{"JGI_SIGNON_URL", c.Portal.SignOnURL},
		{"JGI_CATALOG_URL", c.Portal.CatalogURL},
		{"JGI_DOWNLOAD_BASE", c.Portal.DownloadBase},
	} {
		if u, err := url.Parse(endpoint.raw); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, fmt.Sprintf("%s must be an absolute URL", endpoint.name))
		}
	}
	if c.Portal.Timeout <= 0 {
		errors = append(errors, "JGI_TIMEOUT must be positive")
	}
	if c.Portal.AttemptTimeout <= 0 {
		errors = append(errors, "JGI_ATTEMPT_TIMEOUT must be positive")
	}
	if c.Portal.RateLimit <= 0 {
		errors = append(errors, "JGI_RATE_LIMIT must be positive")
	}
	if c.Portal.RateBurst < 1 {
		errors = append(errors, "JGI_RATE_BURST must be at least 1")
	}

	// Fetch
	if c.Fetch.BaseDir == "" {
		errors = append(errors, "FETCH_BASE_DIR is required")
	}
	if c.Fetch.Suffix == "" {
		errors = append(errors, "FETCH_SUFFIX is required")
	}

	// Retry
	if c.Retry.MaxAttempts < 1 {
		errors = append(errors, "RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if c.Retry.BackoffMultiplier < 1.0 {
		errors = append(errors, "RETRY_BACKOFF_MULTIPLIER must be >= 1.0")
	}
	if c.Retry.InitialBackoff < 0 || c.Retry.MaxBackoff < c.Retry.InitialBackoff {
		errors = append(errors, "RETRY_MAX_BACKOFF must be >= RETRY_INITIAL_BACKOFF >= 0")
	}

	// Setup
	if c.Setup.EvalThreshold <= 0 {
		errors = append(errors, "SETUP_EVAL_THRESHOLD must be positive")
	}
	if c.Setup.MissingThreshold < 0 || c.Setup.MissingThreshold > 1 {
		errors = append(errors, "SETUP_MISSING_THRESHOLD must be between 0 and 1")
	}

	// Storage
	switch strings.ToLower(c.Storage.Provider) {
	case "":
	case "fs", "s3":
		if c.Storage.BucketOrPath == "" {
			errors = append(errors, "STORAGE_BUCKET_OR_PATH is required when STORAGE_PROVIDER is set")
		}
	default:
		errors = append(errors, fmt.Sprintf("unsupported STORAGE_PROVIDER %q", c.Storage.Provider))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// MirrorEnabled reports whether changed archives are copied to object storage.
func (c *Config) MirrorEnabled() bool {
	return c.Storage.Provider != ""
}

// Environment detection methods

// IsLocal returns true if running in local/development environment
func (c *Config) IsLocal() bool {
	env := strings.ToLower(c.Environment)
	return env == "local" || env == "development" || env == "dev"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Environment)
	return env == "production" || env == "prod"
}

// IsTest returns true if running in test environment
func (c *Config) IsTest() bool {
	env := strings.ToLower(c.Environment)
	return env == "test" || env == "testing"
}
