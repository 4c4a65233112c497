package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "PhytozomeV10", cfg.Portal.Organism)
	assert.Equal(t, ".cds.fa.gz", cfg.Fetch.Suffix)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, "nucl", cfg.Convert.DBType)
	assert.False(t, cfg.MirrorEnabled())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "relative sign on url",
			mutate:  func(c *Config) { c.Portal.SignOnURL = "/signon" },
			wantErr: "JGI_SIGNON_URL must be an absolute URL",
		},
		{
			name:    "zero attempts",
			mutate:  func(c *Config) { c.Retry.MaxAttempts = 0 },
			wantErr: "RETRY_MAX_ATTEMPTS must be at least 1",
		},
		{
			name:    "backoff shrinks",
			mutate:  func(c *Config) { c.Retry.BackoffMultiplier = 0.5 },
			wantErr: "RETRY_BACKOFF_MULTIPLIER must be >= 1.0",
		},
		{
			name:    "max backoff below initial",
			mutate:  func(c *Config) { c.Retry.MaxBackoff = time.Millisecond },
			wantErr: "RETRY_MAX_BACKOFF",
		},
		{
			name:    "non-positive evalue",
			mutate:  func(c *Config) { c.Setup.EvalThreshold = 0 },
			wantErr: "SETUP_EVAL_THRESHOLD must be positive",
		},
		{
			name:    "missing threshold above one",
			mutate:  func(c *Config) { c.Setup.MissingThreshold = 1.5 },
			wantErr: "SETUP_MISSING_THRESHOLD must be between 0 and 1",
		},
		{
			name:    "mirror without bucket",
			mutate:  func(c *Config) { c.Storage.Provider = "s3" },
			wantErr: "STORAGE_BUCKET_OR_PATH is required",
		},
		{
			name:    "unknown storage provider",
			mutate:  func(c *Config) { c.Storage.Provider = "gcs"; c.Storage.BucketOrPath = "b" },
			wantErr: `unsupported STORAGE_PROVIDER "gcs"`,
		},
		{
			name:    "empty base",
			mutate:  func(c *Config) { c.Fetch.BaseDir = "" },
			wantErr: "FETCH_BASE_DIR is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_Validate_CollectsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retry.MaxAttempts = 0
	cfg.Portal.RateBurst = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RETRY_MAX_ATTEMPTS")
	assert.Contains(t, err.Error(), "JGI_RATE_BURST")
}

func TestProvider_Load_FromEnvironment(t *testing.T) {
	t.Setenv("FETCH_BASE_DIR", "/data/phytozome")
	t.Setenv("JGI_USERNAME", "someone@example.org")
	t.Setenv("RETRY_MAX_ATTEMPTS", "3")
	t.Setenv("RETRY_INITIAL_BACKOFF", "250ms")
	t.Setenv("JGI_RATE_LIMIT", "0.5")
	t.Setenv("FETCH_CONVERT_ONLY", "true")
	t.Setenv("STORAGE_PROVIDER", "fs")
	t.Setenv("STORAGE_BUCKET_OR_PATH", "/mirror")

	p := NewProvider()
	require.NoError(t, p.Load())
	assert.True(t, p.IsLoaded())

	cfg := p.MustGet()
	assert.Equal(t, "/data/phytozome", cfg.Fetch.BaseDir)
	assert.Equal(t, "someone@example.org", cfg.Portal.Username)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.InitialBackoff)
	assert.Equal(t, 0.5, cfg.Portal.RateLimit)
	assert.True(t, cfg.Fetch.ConvertOnly)
	assert.True(t, cfg.MirrorEnabled())
}

func TestProvider_Load_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("RETRY_MAX_ATTEMPTS", "many")
	t.Setenv("JGI_TIMEOUT", "soon")

	p := NewProvider()
	require.NoError(t, p.Load())

	cfg := p.MustGet()
	assert.Equal(t, DefaultRetryConfig().MaxAttempts, cfg.Retry.MaxAttempts)
	assert.Equal(t, DefaultPortalConfig().Timeout, cfg.Portal.Timeout)
}

func TestProvider_Load_ValidationError(t *testing.T) {
	t.Setenv("SETUP_MISSING_THRESHOLD", "2")

	p := NewProvider()
	err := p.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
	assert.False(t, p.IsLoaded())

	_, err = p.Get()
	assert.Error(t, err)
	assert.Panics(t, func() { p.MustGet() })
}

func TestProvider_Load_ExplicitEnvFile(t *testing.T) {
	// Registered so the values godotenv sets are restored afterwards.
	t.Setenv("JGI_ORGANISM", "")
	t.Setenv("CONVERT_EXTRA_ARGS", "")

	envFile := filepath.Join(t.TempDir(), "phytofetch.env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"JGI_ORGANISM=PhytozomeV12\nCONVERT_EXTRA_ARGS=\"-parse_seqids -hash_index\"\n",
	), 0o600))

	p := NewProvider()
	require.NoError(t, p.Load(envFile))

	cfg := p.MustGet()
	assert.Equal(t, "PhytozomeV12", cfg.Portal.Organism)
	assert.Equal(t, "-parse_seqids -hash_index", cfg.Convert.ExtraArgs)
}

func TestProvider_Load_MissingEnvFile(t *testing.T) {
	p := NewProvider()
	err := p.Load(filepath.Join(t.TempDir(), "absent.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load env files")
}

func TestProvider_LoadIsIdempotent_ReloadIsNot(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")

	p := NewProvider()
	require.NoError(t, p.Load())
	assert.Equal(t, "debug", p.MustGet().LogLevel)

	t.Setenv("LOG_LEVEL", "warn")
	require.NoError(t, p.Load())
	assert.Equal(t, "debug", p.MustGet().LogLevel)

	require.NoError(t, p.Reload())
	assert.Equal(t, "warn", p.MustGet().LogLevel)
}

func TestGetProvider_Singleton(t *testing.T) {
	assert.Same(t, GetProvider(), GetProvider())
}

func TestRetryConfig_Backoff(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    time.Second,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}

	assert.Equal(t, time.Second, cfg.Backoff(0))
	assert.Equal(t, 2*time.Second, cfg.Backoff(1))
	assert.Equal(t, 4*time.Second, cfg.Backoff(2))
	assert.Equal(t, 8*time.Second, cfg.Backoff(3))
	assert.Equal(t, 10*time.Second, cfg.Backoff(4))
	assert.Equal(t, 10*time.Second, cfg.Backoff(10))
}

func TestLookupHelpers(t *testing.T) {
	t.Setenv("PHYTOFETCH_TEST_INT", "7")
	t.Setenv("PHYTOFETCH_TEST_BAD_INT", "seven")
	t.Setenv("PHYTOFETCH_TEST_DURATION", "90s")
	t.Setenv("PHYTOFETCH_TEST_EMPTY", "")

	assert.Equal(t, 7, getInt("PHYTOFETCH_TEST_INT", 1))
	assert.Equal(t, 1, getInt("PHYTOFETCH_TEST_BAD_INT", 1))
	assert.Equal(t, 90*time.Second, getDuration("PHYTOFETCH_TEST_DURATION", time.Second))
	assert.Equal(t, "fallback", getEnv("PHYTOFETCH_TEST_EMPTY", "fallback"))
	assert.True(t, getBool("PHYTOFETCH_TEST_UNSET", true))
	assert.Equal(t, 0.5, getFloat64("PHYTOFETCH_TEST_UNSET", 0.5))
}
