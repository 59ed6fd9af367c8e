package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. CENSAI_RETRIEVAL_TOP_K.
const EnvPrefix = "CENSAI"

type ProviderConfig struct {
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
}

type RetrievalConfig struct {
	TopK int `yaml:"top_k" mapstructure:"top_k"`
}

// LLMConfig tunes the optional rewrite step.
type LLMConfig struct {
	Enabled     bool          `yaml:"enabled" mapstructure:"enabled"`
	URL         string        `yaml:"url,omitempty" mapstructure:"url"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Temperature float64       `yaml:"temperature" mapstructure:"temperature"`
	TopP        float64       `yaml:"top_p" mapstructure:"top_p"`
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Style       string        `yaml:"style" mapstructure:"style"`
	Language    string        `yaml:"language" mapstructure:"language"`
}

type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	Format     string `yaml:"format" mapstructure:"format"`
	Output     string `yaml:"output" mapstructure:"output"`
	FilePath   string `yaml:"file_path,omitempty" mapstructure:"file_path"`
	MaxSize    int    `yaml:"max_size" mapstructure:"max_size"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAge     int    `yaml:"max_age" mapstructure:"max_age"`
	Compress   bool   `yaml:"compress" mapstructure:"compress"`
}

type IntelConfig struct {
	KEVPath  string `yaml:"kev_path,omitempty" mapstructure:"kev_path"`
	EPSSPath string `yaml:"epss_path,omitempty" mapstructure:"epss_path"`
}

type StoreConfig struct {
	Path string `yaml:"path,omitempty" mapstructure:"path"`
}

type GeoConfig struct {
	CityDB string `yaml:"city_db,omitempty" mapstructure:"city_db"`
	ASNDB  string `yaml:"asn_db,omitempty" mapstructure:"asn_db"`
}

type LimitsConfig struct {
	MaxRecords int `yaml:"max_records" mapstructure:"max_records"`
}

type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
	Mode string `yaml:"mode" mapstructure:"mode"`
}

type Config struct {
	SelectedProvider string                    `yaml:"selected_provider" mapstructure:"selected_provider"`
	SelectedModel    string                    `yaml:"selected_model" mapstructure:"selected_model"`
	Providers        map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`

	Retrieval RetrievalConfig `yaml:"retrieval" mapstructure:"retrieval"`
	LLM       LLMConfig       `yaml:"llm" mapstructure:"llm"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Intel     IntelConfig     `yaml:"intel" mapstructure:"intel"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Geo       GeoConfig       `yaml:"geo" mapstructure:"geo"`
	Limits    LimitsConfig    `yaml:"limits" mapstructure:"limits"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
}

// GetConfigDir returns ~/.censai, creating it with 0700 permissions.
func GetConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	configDir := filepath.Join(home, ".censai")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", err
	}
	return configDir, nil
}

func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("selected_provider", "ollama")
	v.SetDefault("selected_model", "")

	v.SetDefault("retrieval.top_k", 50)

	v.SetDefault("llm.enabled", false)
	v.SetDefault("llm.url", "")
	v.SetDefault("llm.timeout", "20s")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.top_p", 0.9)
	v.SetDefault("llm.max_tokens", 256)
	v.SetDefault("llm.style", "executive")
	v.SetDefault("llm.language", "en")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("log.file_path", "")
	v.SetDefault("log.max_size", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", false)

	v.SetDefault("intel.kev_path", "")
	v.SetDefault("intel.epss_path", "")
	v.SetDefault("store.path", "")
	v.SetDefault("geo.city_db", "")
	v.SetDefault("geo.asn_db", "")

	v.SetDefault("limits.max_records", 100000)

	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("server.mode", "release")
}

// Load reads the YAML file at path (the default location when empty),
// layers CENSAI_* environment overrides on top and validates the result.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := GetConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = filepath.Join(filepath.Dir(path), "censai.db")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// LoadConfig loads the default config file.
func LoadConfig() (*Config, error) {
	return Load("")
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Retrieval.TopK < 1 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Limits.MaxRecords < 1 {
		return fmt.Errorf("limits.max_records must be positive, got %d", c.Limits.MaxRecords)
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be positive, got %s", c.LLM.Timeout)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("unsupported log format: %s", c.Log.Format)
	}
	switch strings.ToLower(c.Log.Output) {
	case "stdout", "stderr":
	case "file":
		if c.Log.FilePath == "" {
			return fmt.Errorf("log.file_path is required when output is file")
		}
	default:
		return fmt.Errorf("unsupported log output: %s", c.Log.Output)
	}
	return nil
}

// Save writes cfg to path with 0600 permissions, since it may hold api keys.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// SaveConfig writes cfg to the default location.
func SaveConfig(cfg *Config) error {
	path, err := GetConfigPath()
	if err != nil {
		return err
	}
	return Save(cfg, path)
}

func (c *Config) SetAPIKey(provider, key string) {
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	p := c.Providers[provider]
	p.APIKey = key
	c.Providers[provider] = p
}

// GetAPIKey returns the stored key for provider, falling back to
// CENSAI_<PROVIDER>_API_KEY.
func (c *Config) GetAPIKey(provider string) string {
	if k := c.Providers[provider].APIKey; k != "" {
		return k
	}
	return os.Getenv(EnvPrefix + "_" + strings.ToUpper(provider) + "_API_KEY")
}
