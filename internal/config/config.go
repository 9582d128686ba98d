package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	TMDB      TMDBConfig      `mapstructure:"tmdb"`
	Wikipedia WikipediaConfig `mapstructure:"wikipedia"`
	Brave     BraveConfig     `mapstructure:"brave"`
	SerpAPI   SerpAPIConfig   `mapstructure:"serpapi"`
	Lens      LensConfig      `mapstructure:"lens"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Assistant AssistantConfig `mapstructure:"assistant"`
	Quota     QuotaConfig     `mapstructure:"quota"`
}

// ServerConfig holds HTTP server configuration (webhook + health).
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // "sqlite" or "postgres"
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// TelegramConfig holds bot transport configuration.
type TelegramConfig struct {
	Token           string `mapstructure:"token"`
	Mode            string `mapstructure:"mode"` // "polling" or "webhook"
	WebhookURL      string `mapstructure:"webhook_url"`
	WebhookSecret   string `mapstructure:"webhook_secret"`
	PollTimeout     int    `mapstructure:"poll_timeout"`
	TypingInterval  int    `mapstructure:"typing_interval_seconds"`
	DefaultLanguage string `mapstructure:"default_language"`
	Debug           bool   `mapstructure:"debug"`
}

// TMDBConfig holds TMDB API configuration.
type TMDBConfig struct {
	APIKey          string   `mapstructure:"api_key"`
	ReadAccessToken string   `mapstructure:"read_access_token"`
	BaseURL         string   `mapstructure:"base_url"`
	ImageBaseURL    string   `mapstructure:"image_base_url"`
	Timeout         int      `mapstructure:"timeout"`
	Languages       []string `mapstructure:"languages"`
}

// WikipediaConfig holds the encyclopedia opensearch configuration.
// BaseURL is a template where %s is replaced with the language code.
type WikipediaConfig struct {
	BaseURL   string   `mapstructure:"base_url"`
	Languages []string `mapstructure:"languages"`
	Timeout   int      `mapstructure:"timeout"`
}

// BraveConfig holds the free web search tier configuration.
type BraveConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Timeout int    `mapstructure:"timeout"`
}

// SerpAPIConfig holds the paid web search tier configuration.
type SerpAPIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Timeout int    `mapstructure:"timeout"`
}

// LensConfig holds the reverse-image lookup configuration.
type LensConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Timeout int    `mapstructure:"timeout"`
}

// LLMConfig holds the vision/text model configuration.
type LLMConfig struct {
	APIKey      string `mapstructure:"api_key"`
	BaseURL     string `mapstructure:"base_url"`
	Model       string `mapstructure:"model"`
	VisionModel string `mapstructure:"vision_model"`
	Timeout     int    `mapstructure:"timeout"`
}

// RedisConfig holds the optional shared search cache configuration.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	TTL      int    `mapstructure:"ttl_minutes"`
}

// AssistantConfig holds media conversation tuning.
type AssistantConfig struct {
	SessionTTLMinutes   int     `mapstructure:"session_ttl_minutes"`
	ModeTTLMinutes      int     `mapstructure:"mode_ttl_minutes"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
}

// QuotaConfig maps plan name to feature to monthly unit cap.
// A negative cap means unlimited, zero disables the feature.
type QuotaConfig struct {
	Plans map[string]map[string]int `mapstructure:"plans"`
}

// SessionTTL returns the media session lifetime.
func (c AssistantConfig) SessionTTL() time.Duration {
	if c.SessionTTLMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// ModeTTL returns the persisted assistant mode lifetime.
func (c AssistantConfig) ModeTTL() time.Duration {
	if c.ModeTTLMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.ModeTTLMinutes) * time.Minute
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   "./data/diarybot.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Telegram: TelegramConfig{
			Mode:            "polling",
			PollTimeout:     30,
			TypingInterval:  4,
			DefaultLanguage: "ru",
		},
		TMDB: TMDBConfig{
			APIKey:       EmbeddedTMDBKey,
			BaseURL:      "https://api.themoviedb.org/3",
			ImageBaseURL: "https://image.tmdb.org/t/p",
			Timeout:      10,
			Languages:    []string{"ru-RU", "en-US"},
		},
		Wikipedia: WikipediaConfig{
			BaseURL:   "https://%s.wikipedia.org/w/api.php",
			Languages: []string{"ru", "en"},
			Timeout:   7,
		},
		Brave: BraveConfig{
			BaseURL: "https://api.search.brave.com/res/v1/web/search",
			Timeout: 10,
		},
		SerpAPI: SerpAPIConfig{
			BaseURL: "https://serpapi.com/search.json",
			Timeout: 15,
		},
		Lens: LensConfig{
			Timeout: 25,
		},
		LLM: LLMConfig{
			BaseURL:     "https://api.openai.com/v1/chat/completions",
			Model:       "gpt-4o-mini",
			VisionModel: "gpt-4o-mini",
			Timeout:     25,
		},
		Redis: RedisConfig{
			TTL: 30,
		},
		Assistant: AssistantConfig{
			SessionTTLMinutes:   10,
			ModeTTLMinutes:      10,
			ConfidenceThreshold: 0.58,
		},
		Quota: QuotaConfig{
			Plans: DefaultPlans(),
		},
	}
}

// DefaultPlans returns the built-in monthly caps per plan.
func DefaultPlans() map[string]map[string]int {
	return map[string]map[string]int{
		"free": {
			"web_paid":  0,
			"lens":      3,
			"vision":    5,
			"assistant": 30,
		},
		"plus": {
			"web_paid":  50,
			"lens":      60,
			"vision":    100,
			"assistant": 500,
		},
		"pro": {
			"web_paid":  300,
			"lens":      300,
			"vision":    500,
			"assistant": -1,
		},
	}
}

// Load reads configuration from .env, config file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.diarybot")
	}

	v.SetEnvPrefix("DIARYBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if len(cfg.Quota.Plans) == 0 {
		cfg.Quota.Plans = DefaultPlans()
	}

	return cfg, nil
}

// setDefaults mirrors Default() into viper so env vars can override nested keys.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.dsn", "")

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.compress", true)

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.mode", d.Telegram.Mode)
	v.SetDefault("telegram.webhook_url", "")
	v.SetDefault("telegram.webhook_secret", "")
	v.SetDefault("telegram.poll_timeout", d.Telegram.PollTimeout)
	v.SetDefault("telegram.typing_interval_seconds", d.Telegram.TypingInterval)
	v.SetDefault("telegram.default_language", d.Telegram.DefaultLanguage)
	v.SetDefault("telegram.debug", false)

	v.SetDefault("tmdb.api_key", d.TMDB.APIKey)
	v.SetDefault("tmdb.read_access_token", "")
	v.SetDefault("tmdb.base_url", d.TMDB.BaseURL)
	v.SetDefault("tmdb.image_base_url", d.TMDB.ImageBaseURL)
	v.SetDefault("tmdb.timeout", d.TMDB.Timeout)
	v.SetDefault("tmdb.languages", d.TMDB.Languages)

	v.SetDefault("wikipedia.base_url", d.Wikipedia.BaseURL)
	v.SetDefault("wikipedia.languages", d.Wikipedia.Languages)
	v.SetDefault("wikipedia.timeout", d.Wikipedia.Timeout)

	v.SetDefault("brave.api_key", "")
	v.SetDefault("brave.base_url", d.Brave.BaseURL)
	v.SetDefault("brave.timeout", d.Brave.Timeout)

	v.SetDefault("serpapi.api_key", "")
	v.SetDefault("serpapi.base_url", d.SerpAPI.BaseURL)
	v.SetDefault("serpapi.timeout", d.SerpAPI.Timeout)

	v.SetDefault("lens.base_url", "")
	v.SetDefault("lens.api_key", "")
	v.SetDefault("lens.timeout", d.Lens.Timeout)

	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.vision_model", d.LLM.VisionModel)
	v.SetDefault("llm.timeout", d.LLM.Timeout)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl_minutes", d.Redis.TTL)

	v.SetDefault("assistant.session_ttl_minutes", d.Assistant.SessionTTLMinutes)
	v.SetDefault("assistant.mode_ttl_minutes", d.Assistant.ModeTTLMinutes)
	v.SetDefault("assistant.confidence_threshold", d.Assistant.ConfidenceThreshold)
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
