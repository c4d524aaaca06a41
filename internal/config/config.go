package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Model     ModelConfig     `mapstructure:"model"`
	Upload    UploadConfig    `mapstructure:"upload"`
	Dataset   DatasetConfig   `mapstructure:"dataset"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Log       LogConfig       `mapstructure:"log"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type ModelConfig struct {
	Path              string   `mapstructure:"path"`
	MetadataPath      string   `mapstructure:"metadata_path"`
	Classes           []string `mapstructure:"classes"`
	SharedLibraryPath string   `mapstructure:"shared_library_path"`
	InputName         string   `mapstructure:"input_name"`
	OutputName        string   `mapstructure:"output_name"`
	IntraOpThreads    int      `mapstructure:"intra_op_threads"`
	MaxPixels         int64    `mapstructure:"max_pixels"`
}

type UploadConfig struct {
	MaxSize      int64    `mapstructure:"max_size"`
	UploadDir    string   `mapstructure:"upload_dir"`
	AllowedTypes []string `mapstructure:"allowed_types"`
}

type DatasetConfig struct {
	Dir        string `mapstructure:"dir"`
	SamplesDir string `mapstructure:"samples_dir"`
}

type CacheConfig struct {
	SizeMB int           `mapstructure:"size_mb"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type MetricsConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	Address      string  `mapstructure:"address"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configPath (YAML) on top of the defaults. Environment variables
// override both, with dots replaced by underscores (model.path -> MODEL_PATH).
// A missing file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Model.Path == "" {
		return errors.New("model.path must be set")
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("server.mode must be debug, release or test, got %q", c.Server.Mode)
	}
	if c.Model.MaxPixels <= 0 {
		return fmt.Errorf("model.max_pixels must be positive, got %d", c.Model.MaxPixels)
	}
	if c.Upload.MaxSize <= 0 {
		return fmt.Errorf("upload.max_size must be positive, got %d", c.Upload.MaxSize)
	}
	if c.Server.RequestTimeout < 0 {
		return fmt.Errorf("server.request_timeout must not be negative, got %s", c.Server.RequestTimeout)
	}
	if c.Metrics.SamplingRate < 0 || c.Metrics.SamplingRate > 1 {
		return fmt.Errorf("metrics.sampling_rate must be within [0,1], got %v", c.Metrics.SamplingRate)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "pancreas-api")
	v.SetDefault("app.env", "local")

	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.request_timeout", 20*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("model.path", "models/model.onnx")
	v.SetDefault("model.metadata_path", "")
	v.SetDefault("model.classes", []string{
		"Normal",
		"Acute Pancreatitis",
		"Chronic Pancreatitis",
		"Pancreatic Cancer",
		"Pancreatic Cysts",
	})
	v.SetDefault("model.shared_library_path", "")
	v.SetDefault("model.input_name", "")
	v.SetDefault("model.output_name", "")
	v.SetDefault("model.intra_op_threads", 0)
	v.SetDefault("model.max_pixels", 40_000_000)

	v.SetDefault("upload.max_size", 10*1024*1024)
	v.SetDefault("upload.upload_dir", "./uploads")
	v.SetDefault("upload.allowed_types", []string{
		"image/jpeg", "image/png", "image/gif", "image/bmp", "image/tiff", "image/webp",
	})

	v.SetDefault("dataset.dir", "./DATASET")
	v.SetDefault("dataset.samples_dir", "./samples")

	v.SetDefault("cache.size_mb", 32)
	v.SetDefault("cache.ttl", time.Hour)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.address", "localhost:8125")
	v.SetDefault("metrics.sampling_rate", 1.0)

	v.SetDefault("ratelimit.rps", 20.0)
	v.SetDefault("ratelimit.burst", 40)

	v.SetDefault("log.level", "info")
}
