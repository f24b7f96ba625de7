package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	LogLevel  string
	LogFormat string

	Threads         int
	BlockSizeKB     int // -1 picks a block size per input, 0 digests whole inputs
	OutputThreshold int
	MinFeatures     int
	SampleSize      int

	AWSRegion   string
	S3Endpoint  string
	PostgresDSN string

	IndexCapacity uint
	IndexFPRate   float64
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SDHASH")
	v.AutomaticEnv()

	v.SetDefault("LOG_LEVEL", "warn")
	v.SetDefault("LOG_FORMAT", "console")
	v.SetDefault("THREADS", 1)
	v.SetDefault("BLOCK_SIZE_KB", -1)
	v.SetDefault("OUTPUT_THRESHOLD", 1)
	v.SetDefault("MIN_FEATURES", 16)
	v.SetDefault("SAMPLE_SIZE", 0)
	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("INDEX_CAPACITY", 1_000_000)
	v.SetDefault("INDEX_FP_RATE", 0.001)

	cfg := &Config{
		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),

		Threads:         v.GetInt("THREADS"),
		BlockSizeKB:     v.GetInt("BLOCK_SIZE_KB"),
		OutputThreshold: v.GetInt("OUTPUT_THRESHOLD"),
		MinFeatures:     v.GetInt("MIN_FEATURES"),
		SampleSize:      v.GetInt("SAMPLE_SIZE"),

		AWSRegion:   v.GetString("AWS_REGION"),
		S3Endpoint:  v.GetString("S3_ENDPOINT"),
		PostgresDSN: v.GetString("POSTGRES_DSN"),

		IndexCapacity: v.GetUint("INDEX_CAPACITY"),
		IndexFPRate:   v.GetFloat64("INDEX_FP_RATE"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Threads < 1 {
		return fmt.Errorf("THREADS must be at least 1, got %d", c.Threads)
	}
	if c.BlockSizeKB < -1 {
		return fmt.Errorf("BLOCK_SIZE_KB must be -1, 0 or positive, got %d", c.BlockSizeKB)
	}
	if c.OutputThreshold < 0 || c.OutputThreshold > 100 {
		return fmt.Errorf("OUTPUT_THRESHOLD must be in [0, 100], got %d", c.OutputThreshold)
	}
	if c.IndexFPRate <= 0 || c.IndexFPRate >= 1 {
		return fmt.Errorf("INDEX_FP_RATE must be in (0, 1), got %g", c.IndexFPRate)
	}
	if c.LogFormat != "console" && c.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be console or json, got %q", c.LogFormat)
	}
	return nil
}
