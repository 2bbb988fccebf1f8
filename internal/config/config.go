package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/teachlyze/tamanduai-api/pkg/plagiarism"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName                   string
	AppEnv                    string
	AppPort                   string
	LogLevel                  string
	DatabaseURL               string
	Database                  DatabaseConfig
	RedisURL                  string
	RedisDialTimeout          time.Duration
	NATSURL                   string
	RabbitMQURL               string
	RabbitMQExchange          string
	JWTSecret                 string
	RealtimeChannel           string
	NotificationStreamTimeout time.Duration
	CORSAllowOrigins          string
	RateLimitPrefix           string
	Plagiarism                PlagiarismConfig
	Email                     EmailConfig
}

// DatabaseConfig tunes the Postgres pool and slow query logging.
type DatabaseConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	SlowQuery       time.Duration
}

// PlagiarismConfig configures the detection provider, the result cache and classification defaults.
type PlagiarismConfig struct {
	ProviderAPIKey  string
	ProviderBaseURL string
	ProviderModel   string
	ProviderTimeout time.Duration
	CacheTTL        time.Duration
	Thresholds      plagiarism.Thresholds
	RateLimit       int
}

// EmailConfig configures outbound alert emails. An empty APIKey disables delivery.
type EmailConfig struct {
	APIKey      string
	BaseURL     string
	FromAddress string
	FromName    string
	Timeout     time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("TAMANDUAI")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "TamanduAI API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.slow_query", "500ms")
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("http.cors_allow_origins", "*")
	v.SetDefault("http.rate_limit_prefix", "tamanduai")
	v.SetDefault("rabbitmq.exchange", "tamanduai.events")
	v.SetDefault("realtime.channel", "tamanduai")
	v.SetDefault("notification.stream_timeout", "30s")
	v.SetDefault("plagiarism.provider_model", "gpt-4o-mini")
	v.SetDefault("plagiarism.provider_timeout", "30s")
	v.SetDefault("plagiarism.cache_ttl", "168h")
	v.SetDefault("plagiarism.thresholds.low", plagiarism.DefaultThresholds.Low)
	v.SetDefault("plagiarism.thresholds.medium", plagiarism.DefaultThresholds.Medium)
	v.SetDefault("plagiarism.thresholds.high", plagiarism.DefaultThresholds.High)
	v.SetDefault("plagiarism.rate_limit", 20)
	v.SetDefault("email.from_name", "TamanduAI")
	v.SetDefault("email.timeout", "10s")
}

func fromViper(v *viper.Viper) (Config, error) {
	streamTimeout, err := parseDuration(v, "notification.stream_timeout")
	if err != nil {
		return Config{}, err
	}
	providerTimeout, err := parseDuration(v, "plagiarism.provider_timeout")
	if err != nil {
		return Config{}, err
	}
	cacheTTL, err := parseDuration(v, "plagiarism.cache_ttl")
	if err != nil {
		return Config{}, err
	}
	emailTimeout, err := parseDuration(v, "email.timeout")
	if err != nil {
		return Config{}, err
	}
	redisDialTimeout, err := parseDuration(v, "redis.dial_timeout")
	if err != nil {
		return Config{}, err
	}
	connMaxLifetime, err := parseDuration(v, "database.conn_max_lifetime")
	if err != nil {
		return Config{}, err
	}
	slowQuery, err := parseDuration(v, "database.slow_query")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:                   v.GetString("app.name"),
		AppEnv:                    v.GetString("app.env"),
		AppPort:                   v.GetString("app.port"),
		LogLevel:                  strings.ToLower(v.GetString("app.log_level")),
		DatabaseURL:               v.GetString("database.url"),
		RedisURL:                  v.GetString("redis.url"),
		RedisDialTimeout:          redisDialTimeout,
		NATSURL:                   v.GetString("nats.url"),
		RabbitMQURL:               v.GetString("rabbitmq.url"),
		RabbitMQExchange:          v.GetString("rabbitmq.exchange"),
		JWTSecret:                 v.GetString("jwt.secret"),
		RealtimeChannel:           v.GetString("realtime.channel"),
		NotificationStreamTimeout: streamTimeout,
		CORSAllowOrigins:          strings.TrimSpace(v.GetString("http.cors_allow_origins")),
		RateLimitPrefix:           strings.TrimSpace(v.GetString("http.rate_limit_prefix")),
		Database: DatabaseConfig{
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
			SlowQuery:       slowQuery,
		},
		Plagiarism: PlagiarismConfig{
			ProviderAPIKey:  v.GetString("plagiarism.provider_api_key"),
			ProviderBaseURL: v.GetString("plagiarism.provider_base_url"),
			ProviderModel:   v.GetString("plagiarism.provider_model"),
			ProviderTimeout: providerTimeout,
			CacheTTL:        cacheTTL,
			Thresholds: plagiarism.Thresholds{
				Low:    v.GetFloat64("plagiarism.thresholds.low"),
				Medium: v.GetFloat64("plagiarism.thresholds.medium"),
				High:   v.GetFloat64("plagiarism.thresholds.high"),
			},
			RateLimit: v.GetInt("plagiarism.rate_limit"),
		},
		Email: EmailConfig{
			APIKey:      v.GetString("email.api_key"),
			BaseURL:     v.GetString("email.base_url"),
			FromAddress: v.GetString("email.from_address"),
			FromName:    v.GetString("email.from_name"),
			Timeout:     emailTimeout,
		},
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if err := cfg.Plagiarism.Thresholds.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid default plagiarism thresholds: %w", err)
	}

	if cfg.Plagiarism.CacheTTL <= 0 {
		return Config{}, fmt.Errorf("plagiarism cache ttl must be positive")
	}

	if cfg.Plagiarism.RateLimit <= 0 {
		cfg.Plagiarism.RateLimit = 20
	}

	if cfg.Email.APIKey != "" && cfg.Email.FromAddress == "" {
		return Config{}, fmt.Errorf("email from address is required when an email api key is set")
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, nil
	}
	duration, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return duration, nil
}
