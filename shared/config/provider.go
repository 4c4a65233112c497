// Package config loads phytofetch configuration from the environment and
// optional .env files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/joho/godotenv"
)

// Provider manages configuration lifecycle and ensures singleton behavior
type Provider struct {
	config   *Config
	envFiles []string
	mu       sync.RWMutex
	loaded   bool
}

var (
	instance *Provider
	once     sync.Once
)

// GetProvider returns the singleton configuration provider instance
func GetProvider() *Provider {
	once.Do(func() {
		instance = NewProvider()
	})
	return instance
}

// NewProvider returns an unloaded provider. Most callers want GetProvider.
func NewProvider() *Provider {
	return &Provider{}
}

// Load loads configuration from environment variables and .env files.
// extraEnvFiles are applied after the standard files and override them.
// This should be called once at application startup
func (p *Provider) Load(extraEnvFiles ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.loaded {
		return nil // Already loaded
	}

	p.envFiles = extraEnvFiles
	if err := p.loadEnvFiles(); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}

	cfg := p.parseConfig()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	p.config = cfg
	p.loaded = true
	return nil
}

// Get returns the current configuration
// Returns error if configuration hasn't been loaded
func (p *Provider) Get() (*Config, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.loaded || p.config == nil {
		return nil, fmt.Errorf("configuration not loaded; call Load() first")
	}

	return p.config, nil
}

// MustGet returns the configuration or panics if not loaded
// Use this when you're certain configuration has been loaded
func (p *Provider) MustGet() *Config {
	cfg, err := p.Get()
	if err != nil {
		panic(fmt.Sprintf("failed to get configuration: %v", err))
	}
	return cfg
}

// Reload re-reads the env files passed to Load and the process environment.
func (p *Provider) Reload() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.loadEnvFiles(); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}

	cfg := p.parseConfig()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	p.config = cfg
	p.loaded = true
	return nil
}

// IsLoaded returns whether configuration has been loaded
func (p *Provider) IsLoaded() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loaded
}

// loadEnvFiles loads .env files in order of precedence. Variables already
// set in the process environment win over .env, everything after it overloads.
func (p *Provider) loadEnvFiles() error {
	if err := loadIfExists(".env", godotenv.Load); err != nil {
		return err
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = os.Getenv("ENV")
	}
	if env != "" {
		if err := loadIfExists(fmt.Sprintf(".env.%s", env), godotenv.Overload); err != nil {
			return err
		}
	}

	if err := loadIfExists(".env.local", godotenv.Overload); err != nil {
		return err
	}

	// Files named explicitly must exist.
	for _, file := range p.envFiles {
		if err := godotenv.Overload(file); err != nil {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	return nil
}

func loadIfExists(file string, load func(...string) error) error {
	if _, err := os.Stat(file); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", file, err)
	}
	if err := load(file); err != nil {
		return fmt.Errorf("failed to load %s: %w", file, err)
	}
	return nil
}

// parseConfig parses configuration from environment variables
func (p *Provider) parseConfig() *Config {
	d := DefaultConfig()

	return &Config{
		// Core
		Environment: getEnv("ENVIRONMENT", d.Environment),
		ServiceName: getEnv("SERVICE_NAME", d.ServiceName),
		LogLevel:    getEnv("LOG_LEVEL", d.LogLevel),
		Version:     getEnv("SERVICE_VERSION", d.Version),

		// JGI Genome Portal
		Portal: PortalConfig{
			SignOnURL:      getEnv("JGI_SIGNON_URL", d.Portal.SignOnURL),
			CatalogURL:     getEnv("JGI_CATALOG_URL", d.Portal.CatalogURL),
			DownloadBase:   getEnv("JGI_DOWNLOAD_BASE", d.Portal.DownloadBase),
			Organism:       getEnv("JGI_ORGANISM", d.Portal.Organism),
			Username:       getEnv("JGI_USERNAME", ""),
			Password:       getEnv("JGI_PASSWORD", ""),
			UserAgent:      getEnv("JGI_USER_AGENT", d.Portal.UserAgent),
			Timeout:        getDuration("JGI_TIMEOUT", d.Portal.Timeout),
			AttemptTimeout: getDuration("JGI_ATTEMPT_TIMEOUT", d.Portal.AttemptTimeout),
			RateLimit:      getFloat64("JGI_RATE_LIMIT", d.Portal.RateLimit),
			RateBurst:      getInt("JGI_RATE_BURST", d.Portal.RateBurst),
		},

		// Fetch
		Fetch: FetchConfig{
			BaseDir:     getEnv("FETCH_BASE_DIR", d.Fetch.BaseDir),
			Suffix:      getEnv("FETCH_SUFFIX", d.Fetch.Suffix),
			SpeciesFile: getEnv("FETCH_SPECIES_FILE", ""),
			ConvertOnly: getBool("FETCH_CONVERT_ONLY", false),
			NoConvert:   getBool("FETCH_NO_CONVERT", false),
		},

		// Retry
		Retry: RetryConfig{
			MaxAttempts:       getInt("RETRY_MAX_ATTEMPTS", d.Retry.MaxAttempts),
			InitialBackoff:    getDuration("RETRY_INITIAL_BACKOFF", d.Retry.InitialBackoff),
			MaxBackoff:        getDuration("RETRY_MAX_BACKOFF", d.Retry.MaxBackoff),
			BackoffMultiplier: getFloat64("RETRY_BACKOFF_MULTIPLIER", d.Retry.BackoffMultiplier),
		},

		// Convert
		Convert: ConvertConfig{
			Converter: getEnv("CONVERT_CONVERTER", ""),
			ExtraArgs: getEnv("CONVERT_EXTRA_ARGS", ""),
			DBType:    getEnv("CONVERT_DBTYPE", d.Convert.DBType),
		},

		// Setup
		Setup: SetupConfig{
			DepsDir:          getEnv("SETUP_DEPS_DIR", d.Setup.DepsDir),
			InstallerScript:  getEnv("SETUP_INSTALLER_SCRIPT", d.Setup.InstallerScript),
			ConfigPath:       getEnv("SETUP_CONFIG_PATH", d.Setup.ConfigPath),
			Target:           getEnv("SETUP_TARGET_SPECIES", ""),
			EvalThreshold:    getFloat64("SETUP_EVAL_THRESHOLD", d.Setup.EvalThreshold),
			MissingThreshold: getFloat64("SETUP_MISSING_THRESHOLD", d.Setup.MissingThreshold),
		},

		// Storage
		Storage: StorageConfig{
			Provider:     getEnv("STORAGE_PROVIDER", ""),
			BucketOrPath: getEnv("STORAGE_BUCKET_OR_PATH", ""),
			Prefix:       getEnv("STORAGE_PREFIX", d.Storage.Prefix),
			Timeout:      getDuration("STORAGE_TIMEOUT", d.Storage.Timeout),
			S3: S3Config{
				Region:          getEnv("AWS_REGION", d.Storage.S3.Region),
				AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
				SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
				Endpoint:        getEnv("S3_ENDPOINT", ""),
				UsePathStyle:    getBool("S3_USE_PATH_STYLE", false),
			},
		},

		// Observability
		Observability: ObservabilityConfig{
			PushgatewayURL: getEnv("METRICS_PUSHGATEWAY_URL", ""),
			PushJob:        getEnv("METRICS_PUSH_JOB", d.Observability.PushJob),
		},
	}
}
