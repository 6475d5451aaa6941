package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/abelbrown/refcheck/internal/transport"
)

// EnvPrefix prefixes every environment override, e.g. REFCHECK_SERVICE_BASE_URL.
const EnvPrefix = "REFCHECK"

// DefaultModels are the models the verification service accepts.
var DefaultModels = []string{
	"gemini-1.5-pro",
	"gemini-1.5-flash",
	"gemini-2.5-flash",
	"deepseek-chat",
	"deepseek-reasoner",
}

// Config is the application configuration.
type Config struct {
	Service ServiceConfig `mapstructure:"service"`
	Models  ModelsConfig  `mapstructure:"models"`
	Stream  StreamConfig  `mapstructure:"stream"`
	Upload  UploadConfig  `mapstructure:"upload"`
	Log     LogConfig     `mapstructure:"log"`
	DataDir string        `mapstructure:"data_dir"`
}

// ServiceConfig locates the verification service.
type ServiceConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	VerifyPath     string        `mapstructure:"verify_path"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// ModelsConfig lists the selectable models.
type ModelsConfig struct {
	Available []string `mapstructure:"available"`
	Default   string   `mapstructure:"default"`
}

// StreamConfig tunes the response reader.
type StreamConfig struct {
	IdleTimeout time.Duration `mapstructure:"idle_timeout"` // 0 waits forever
	ReadBuffer  int           `mapstructure:"read_buffer"`
}

// UploadConfig paces uploads.
type UploadConfig struct {
	MinInterval time.Duration `mapstructure:"min_interval"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DefaultDataDir returns ~/.refcheck.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".refcheck")
}

// ConfigPath returns the path to the default config file.
func ConfigPath() string {
	return filepath.Join(DefaultDataDir(), "config.json")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.base_url", "http://localhost:8000")
	v.SetDefault("service.verify_path", "/stream-verify/")
	v.SetDefault("service.connect_timeout", "10s")

	v.SetDefault("models.available", DefaultModels)
	v.SetDefault("models.default", DefaultModels[0])

	v.SetDefault("stream.idle_timeout", "0s")
	v.SetDefault("stream.read_buffer", 32*1024)

	v.SetDefault("upload.min_interval", "2s")

	v.SetDefault("log.level", "info")
	v.SetDefault("data_dir", DefaultDataDir())
}

// Load reads configuration from, in increasing priority: defaults, the
// JSON config file, .env files and REFCHECK_* environment variables.
//
// An empty configFile means ConfigPath(), which may be absent. An explicit
// configFile must exist. Missing env files are skipped; they never override
// variables already set in the environment.
func Load(configFile string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	explicit := configFile != ""
	if !explicit {
		configFile = ConfigPath()
	}
	v.SetConfigFile(configFile)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.DataDir = expandHome(cfg.DataDir)
	return &cfg, nil
}

// Validate rejects configurations the client cannot run with.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Service.BaseURL)
	if err != nil {
		return fmt.Errorf("service.base_url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("service.base_url: %q is not an http(s) URL", c.Service.BaseURL)
	}
	if len(c.Models.Available) == 0 {
		return errors.New("models.available: no models configured")
	}
	if !slices.Contains(c.Models.Available, c.Models.Default) {
		return fmt.Errorf("models.default: %q is not in models.available", c.Models.Default)
	}
	if c.Stream.IdleTimeout < 0 {
		return errors.New("stream.idle_timeout: must not be negative")
	}
	if c.Stream.ReadBuffer <= 0 {
		return errors.New("stream.read_buffer: must be positive")
	}
	if c.Upload.MinInterval < 0 {
		return errors.New("upload.min_interval: must not be negative")
	}
	if c.DataDir == "" {
		return errors.New("data_dir: must be set")
	}
	return nil
}

// Endpoint is the full upload URL.
func (c *Config) Endpoint() string {
	return strings.TrimRight(c.Service.BaseURL, "/") + "/" + strings.TrimLeft(c.Service.VerifyPath, "/")
}

// Transport returns the transport settings.
func (c *Config) Transport() transport.Config {
	return transport.Config{
		Endpoint:       c.Endpoint(),
		ConnectTimeout: c.Service.ConnectTimeout,
		IdleTimeout:    c.Stream.IdleTimeout,
		ReadBuffer:     c.Stream.ReadBuffer,
		MinInterval:    c.Upload.MinInterval,
	}
}

// HasModel reports whether name is a selectable model.
func (c *Config) HasModel(name string) bool {
	return slices.Contains(c.Models.Available, name)
}

// DBPath is the run history database.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "refcheck.db")
}

// EventLogPath is the JSONL diagnostics log.
func (c *Config) EventLogPath() string {
	return filepath.Join(c.DataDir, "refcheck.events.jsonl")
}

// EnsureDataDir creates the data directory if needed.
func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return p
		}
		return filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return p
}
