package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "CHANFETCH"

// Config holds engine and client settings. Values are layered: defaults,
// then the YAML file, then CHANFETCH_* environment variables, then flags.
type Config struct {
	OutputDir      string        `yaml:"output_dir" split_words:"true"`
	TempDirName    string        `yaml:"temp_dir_name" split_words:"true"`
	Connections    int           `yaml:"connections"`
	MaxConcurrency int           `yaml:"max_concurrency" split_words:"true"`
	MinChunkSize   ByteSize      `yaml:"min_chunk_size" split_words:"true"`
	BufferSize     ByteSize      `yaml:"buffer_size" split_words:"true"`
	BandwidthLimit ByteSize      `yaml:"bandwidth_limit" split_words:"true"`
	StallTimeout   time.Duration `yaml:"stall_timeout" split_words:"true"`
	DrainTimeout   time.Duration `yaml:"drain_timeout" split_words:"true"`
	LogFile        string        `yaml:"log_file" split_words:"true"`

	HTTP HTTPConfig `yaml:"http"`
	S3   S3Config   `yaml:"s3"`
}

type HTTPConfig struct {
	Timeout          time.Duration     `yaml:"timeout"`
	KeepAliveTimeout time.Duration     `yaml:"keep_alive_timeout" split_words:"true"`
	UserAgent        string            `yaml:"user_agent" split_words:"true"`
	Proxy            string            `yaml:"proxy"`
	ProxyUsername    string            `yaml:"proxy_username" split_words:"true"`
	ProxyPassword    string            `yaml:"proxy_password" split_words:"true"`
	Headers          map[string]string `yaml:"headers"`
	BearerToken      string            `yaml:"bearer_token" split_words:"true"`
}

type S3Config struct {
	Profile  string `yaml:"profile"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

func Default() Config {
	return Config{
		OutputDir:      ".",
		TempDirName:    ".chanfetch-temp",
		Connections:    4,
		MaxConcurrency: 16,
		MinChunkSize:   256 * humanize.KiByte,
		BufferSize:     256 * humanize.KiByte,
		StallTimeout:   60 * time.Second,
		DrainTimeout:   10 * time.Second,
		HTTP: HTTPConfig{
			KeepAliveTimeout: 90 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file at path
// and the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return cfg, fmt.Errorf("error processing env: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.Connections < 1 {
		errs = append(errs, fmt.Errorf("connections must be at least 1, got %d", c.Connections))
	}
	if c.MaxConcurrency < 1 {
		errs = append(errs, fmt.Errorf("max_concurrency must be at least 1, got %d", c.MaxConcurrency))
	}
	if c.MinChunkSize <= 0 {
		errs = append(errs, errors.New("min_chunk_size must be positive"))
	}
	if c.BufferSize <= 0 {
		errs = append(errs, errors.New("buffer_size must be positive"))
	}
	if c.BandwidthLimit < 0 {
		errs = append(errs, errors.New("bandwidth_limit must not be negative"))
	}
	if c.StallTimeout < 0 || c.DrainTimeout < 0 || c.HTTP.Timeout < 0 || c.HTTP.KeepAliveTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	if c.TempDirName == "" {
		errs = append(errs, errors.New("temp_dir_name is required"))
	}
	return errors.Join(errs...)
}
