package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/michaelbrown/gradebox/internal/sandbox"
)

const (
	BackendGoja   = "goja"
	BackendDocker = "docker"
)

type SandboxConfig struct {
	Backend      string        `mapstructure:"backend"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxCallStack int           `mapstructure:"max_call_stack"`
	Image        string        `mapstructure:"image"`
	Images       []string      `mapstructure:"images"`
	Memory       string        `mapstructure:"memory"`
}

type GradingConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	PrecheckTimeout time.Duration `mapstructure:"precheck_timeout"`
	PassThreshold   float64       `mapstructure:"pass_threshold"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

type ExercisesConfig struct {
	Dir string `mapstructure:"dir"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type Config struct {
	Sandbox   SandboxConfig   `mapstructure:"sandbox"`
	Grading   GradingConfig   `mapstructure:"grading"`
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Exercises ExercisesConfig `mapstructure:"exercises"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// Load reads gradebox.yaml from the working directory or $HOME/.gradebox.
// The file is optional; defaults and GRADEBOX_* environment variables
// apply either way. An explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("gradebox")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.gradebox")
	}

	setDefaults(v)

	v.SetEnvPrefix("GRADEBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	policy := sandbox.DefaultPolicy()
	home := os.Getenv("HOME")

	v.SetDefault("sandbox.backend", BackendGoja)
	v.SetDefault("sandbox.timeout", policy.Timeout)
	v.SetDefault("sandbox.max_call_stack", policy.MaxCallStackSize)
	v.SetDefault("sandbox.image", policy.Image)
	v.SetDefault("sandbox.images", policy.Images)
	v.SetDefault("sandbox.memory", policy.MaxMemory)
	v.SetDefault("grading.timeout", 2*time.Second)
	v.SetDefault("grading.precheck_timeout", 2*time.Second)
	v.SetDefault("grading.pass_threshold", 8.0)
	v.SetDefault("server.port", 8080)
	v.SetDefault("storage.db_path", filepath.Join(home, ".gradebox", "gradebox.db"))
	v.SetDefault("exercises.dir", "exercises")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("metrics.enabled", true)
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	switch c.Sandbox.Backend {
	case BackendGoja, BackendDocker:
	default:
		return fmt.Errorf("unknown sandbox backend: %s", c.Sandbox.Backend)
	}
	if c.Sandbox.Timeout <= 0 || c.Grading.Timeout <= 0 || c.Grading.PrecheckTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	if c.Grading.PassThreshold < 0 || c.Grading.PassThreshold > 10 {
		return fmt.Errorf("pass_threshold must be within 0-10, got %v", c.Grading.PassThreshold)
	}
	return nil
}

// Policy returns the sandbox policy described by the config.
func (c *Config) Policy() sandbox.Policy {
	p := sandbox.DefaultPolicy()
	p.Timeout = c.Sandbox.Timeout
	p.MaxCallStackSize = c.Sandbox.MaxCallStack
	p.MaxMemory = c.Sandbox.Memory
	p.Image = c.Sandbox.Image
	if len(c.Sandbox.Images) > 0 {
		p.Images = c.Sandbox.Images
	}
	return p
}

// NewSandbox builds the configured execution backend.
func (c *Config) NewSandbox() sandbox.Sandbox {
	if c.Sandbox.Backend == BackendDocker {
		return sandbox.NewDockerSandbox(c.Policy())
	}
	return sandbox.NewGojaSandbox(c.Policy())
}
