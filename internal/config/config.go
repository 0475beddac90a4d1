package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	AI         AIConfig         `mapstructure:"ai"`
	Generation GenerationConfig `mapstructure:"generation"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Log        LogConfig        `mapstructure:"log"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Access     AccessConfig     `mapstructure:"access"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
	StaticDir      string        `mapstructure:"static_dir"`
}

// AIConfig selects the chat provider for the text phase. Images always go
// through the OpenAI-compatible images endpoint.
type AIConfig struct {
	Provider string       `mapstructure:"provider"`
	OpenAI   OpenAIConfig `mapstructure:"openai"`
	Doubao   DoubaoConfig `mapstructure:"doubao"`
	Qwen     QwenConfig   `mapstructure:"qwen"`
	Image    ImageConfig  `mapstructure:"image"`
}

type OpenAIConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float32       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type DoubaoConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type QwenConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Temperature  float32       `mapstructure:"temperature"`
	TopP         float32       `mapstructure:"top_p"`
	Timeout      time.Duration `mapstructure:"timeout"`
	DebugRequest bool          `mapstructure:"debug_request"`
}

type ImageConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Model        string        `mapstructure:"model"`
	Size         string        `mapstructure:"size"`
	Timeout      time.Duration `mapstructure:"timeout"`
	DebugRequest bool          `mapstructure:"debug_request"`
}

type GenerationConfig struct {
	DefaultLanguage string        `mapstructure:"default_language"`
	DefaultAgeBand  string        `mapstructure:"default_age_band"`
	ImageAttempts   int           `mapstructure:"image_attempts"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StorageConfig struct {
	Type       string `mapstructure:"type"`
	DataDir    string `mapstructure:"data_dir"`
	CacheSize  int    `mapstructure:"cache_size"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	Key          string        `mapstructure:"key"`
	Channel      string        `mapstructure:"channel"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type AccessConfig struct {
	Password   string        `mapstructure:"password"`
	CookieName string        `mapstructure:"cookie_name"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// StorageType resolves which history backend to use. An explicit type wins;
// otherwise the shared redis store is used whenever it is configured.
func (c *Config) StorageType() string {
	if c.Storage.Type != "" {
		return strings.ToLower(c.Storage.Type)
	}
	if c.Redis.Addr != "" {
		return "redis"
	}
	return "disk"
}

var cfg *Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 0)
	v.SetDefault("server.max_header_bytes", 1<<20)
	v.SetDefault("server.static_dir", "./dist")

	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.openai.model", "gpt-4o-mini")
	v.SetDefault("ai.openai.temperature", 0.8)
	v.SetDefault("ai.openai.timeout", 90*time.Second)
	v.SetDefault("ai.qwen.base_url", "https://dashscope.aliyuncs.com/compatible-mode/v1")
	v.SetDefault("ai.qwen.model", "qwen-plus")
	v.SetDefault("ai.qwen.max_tokens", 4096)
	v.SetDefault("ai.qwen.temperature", 0.8)
	v.SetDefault("ai.qwen.top_p", 0.9)
	v.SetDefault("ai.qwen.timeout", 90*time.Second)
	v.SetDefault("ai.image.model", "dall-e-3")
	v.SetDefault("ai.image.size", "1792x1024")
	v.SetDefault("ai.image.timeout", 120*time.Second)

	v.SetDefault("generation.default_language", "ca")
	v.SetDefault("generation.default_age_band", "9-12")
	v.SetDefault("generation.image_attempts", 2)
	v.SetDefault("generation.retry_delay", 1500*time.Millisecond)

	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Origin", "Content-Type", "Accept"})
	v.SetDefault("cors.max_age", 3600)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("storage.data_dir", "./data")
	v.SetDefault("storage.cache_size", 20)
	v.SetDefault("storage.sqlite_path", "./data/history.db")

	v.SetDefault("redis.key", "aina:presentations")
	v.SetDefault("redis.channel", "aina:presentations:changed")
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)

	v.SetDefault("access.cookie_name", "aina_access")
	v.SetDefault("access.session_ttl", 12*time.Hour)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Load reads the YAML file at configPath. A missing file is not an error:
// defaults and AINA_* environment variables still apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetEnvPrefix("AINA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, err
			}
		}
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, err
	}

	// The config file wins; well-known provider variables fill the gaps.
	if c.AI.OpenAI.APIKey == "" {
		c.AI.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.AI.Doubao.APIKey == "" {
		if apiKey := os.Getenv("DOUBAO_API_KEY"); apiKey != "" {
			c.AI.Doubao.APIKey = apiKey
		}
		if apiKey := os.Getenv("ARK_API_KEY"); apiKey != "" {
			c.AI.Doubao.APIKey = apiKey
		}
	}
	if c.AI.Qwen.APIKey == "" {
		c.AI.Qwen.APIKey = os.Getenv("DASHSCOPE_API_KEY")
	}
	if c.AI.Image.APIKey == "" {
		c.AI.Image.APIKey = c.AI.OpenAI.APIKey
	}
	if c.AI.Image.BaseURL == "" {
		c.AI.Image.BaseURL = c.AI.OpenAI.BaseURL
	}

	cfg = c
	return c, nil
}

func Get() *Config {
	return cfg
}
