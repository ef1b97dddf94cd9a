package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/tobsdb/samplestore/internal/samples"
	"github.com/tobsdb/samplestore/pkg"
)

const EnvPrefix = "TDB_"

type Config struct {
	DataPath      string `env:"DATA_PATH"`
	InMem         bool   `env:"IN_MEM"         envDefault:"false"`
	WriteInterval int    `env:"WRITE_INTERVAL" envDefault:"1000"` // ms

	TileSize        int           `env:"TILE_SIZE"         envDefault:"1000"`
	SamplesDB       string        `env:"SAMPLES_DB"        envDefault:"samples_db"`
	SampleCount     int           `env:"SAMPLE_COUNT"      envDefault:"1000"`
	RefreshMode     string        `env:"REFRESH_MODE"      envDefault:"two_phase"` // two_phase, single_txn
	RefreshInterval time.Duration `env:"REFRESH_INTERVAL"  envDefault:"5m"`
	RefreshThresh   int           `env:"REFRESH_THRESHOLD" envDefault:"1000"`
	RefreshWorkers  int           `env:"REFRESH_WORKERS"   envDefault:"4"`

	Port     int    `env:"PORT" envDefault:"7085"`
	Username string `env:"USER"`
	Password string `env:"PASS"`

	LogLevel  string `env:"LOG_LEVEL"  envDefault:"error"` // none, error, debug
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`  // text, json

	// MySQL dsn that receives a copy of every refreshed sample set. Empty turns export off.
	ExportDSN string `env:"EXPORT_DSN"`
}

// Load reads the configuration from TDB_ prefixed environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}
	return cfg, nil
}

// LoadWithEnvironment is Load reading from the given map instead of the process environment.
func LoadWithEnvironment(environment map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix, Environment: environment}); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.SampleCount <= 0 {
		return fmt.Errorf("sample count must be positive, got %d", c.SampleCount)
	}
	if c.TileSize <= 0 {
		return fmt.Errorf("tile size must be positive, got %d", c.TileSize)
	}
	if c.RefreshWorkers <= 0 {
		return fmt.Errorf("refresh workers must be positive, got %d", c.RefreshWorkers)
	}
	if c.RefreshThresh <= 0 {
		return fmt.Errorf("refresh threshold must be positive, got %d", c.RefreshThresh)
	}
	if c.RefreshInterval < 0 {
		return errors.New("refresh interval cannot be negative")
	}
	if _, err := samples.ParseRefreshMode(c.RefreshMode); err != nil {
		return err
	}
	if _, ok := pkg.ParseLogLevel(c.LogLevel); !ok {
		return fmt.Errorf("invalid log level: %s", c.LogLevel)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log format: %s", c.LogFormat)
	}
	if c.SamplesDB == "" {
		return errors.New("samples database name cannot be empty")
	}
	if !c.InMem && c.DataPath == "" {
		return errors.New("must either provide a data path or use in-memory mode")
	}
	if c.WriteInterval <= 0 && !c.InMem {
		return fmt.Errorf("write interval must be positive, got %d", c.WriteInterval)
	}
	return nil
}

// ApplyLogging configures the process logger from the config.
func (c *Config) ApplyLogging() {
	level, _ := pkg.ParseLogLevel(c.LogLevel)
	pkg.SetLogLevel(level)
	pkg.SetLogFormat(c.LogFormat)
}
