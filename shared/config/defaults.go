package config

import "time"

// DefaultPortalConfig returns the public JGI Genome Portal endpoints
func DefaultPortalConfig() PortalConfig {
	return PortalConfig{
		SignOnURL:      "https://signon.jgi.doe.gov/",
		CatalogURL:     "http://genome.jgi.doe.gov/ext-api/downloads/get-directory",
		DownloadBase:   "http://genome.jgi.doe.gov",
		Organism:       "PhytozomeV10",
		UserAgent:      "phytofetch/1.0",
		Timeout:        120 * time.Second,
		AttemptTimeout: 30 * time.Minute,
		RateLimit:      2,
		RateBurst:      4,
	}
}

// DefaultFetchConfig returns sensible defaults for the fetch pass
func DefaultFetchConfig() FetchConfig {
	return FetchConfig{
		BaseDir: ".",
		Suffix:  ".cds.fa.gz",
	}
}

// DefaultRetryConfig returns sensible defaults for retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    time.Second,
		MaxBackoff:        time.Minute,
		BackoffMultiplier: 2.0,
	}
}

// DefaultConvertConfig returns sensible defaults for the converter
func DefaultConvertConfig() ConvertConfig {
	return ConvertConfig{
		DBType: "nucl",
	}
}

// DefaultSetupConfig returns sensible defaults for environment setup
func DefaultSetupConfig() SetupConfig {
	return SetupConfig{
		DepsDir:          "deps",
		InstallerScript:  "./Shell_Scripts/get_dependencies.sh",
		ConfigPath:       "BAD_Mutations_Config.txt",
		EvalThreshold:    0.05,
		MissingThreshold: 0.75,
	}
}

// DefaultStorageConfig returns sensible defaults for storage configuration.
// The mirror is disabled until a provider is chosen.
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		Prefix:  "phytozome",
		Timeout: 5 * time.Minute,
		S3:      DefaultS3Config(),
	}
}

// DefaultS3Config returns sensible defaults for S3 configuration
func DefaultS3Config() S3Config {
	return S3Config{
		Region: "us-east-2",
	}
}

// DefaultConfig returns a complete configuration with sensible defaults
// This is useful for testing or when you want to start with defaults and override specific parts
func DefaultConfig() *Config {
	return &Config{
		Environment: "local",
		ServiceName: "phytofetch",
		LogLevel:    "info",
		Version:     "1.0.0",

		Portal:  DefaultPortalConfig(),
		Fetch:   DefaultFetchConfig(),
		Retry:   DefaultRetryConfig(),
		Convert: DefaultConvertConfig(),
		Setup:   DefaultSetupConfig(),
		Storage: DefaultStorageConfig(),
		Observability: ObservabilityConfig{
			PushJob: "phytofetch",
		},
	}
}
