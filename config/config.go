package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds all configuration for the server.
// Tags use mapstructure for Viper unmarshalling.
type ServerConfig struct {
	HTTPPort    string `mapstructure:"HTTP_PORT"`
	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	RedisPrefix   string `mapstructure:"REDIS_PREFIX"`

	LogLevel        string `mapstructure:"LOG_LEVEL"`
	LogPretty       bool   `mapstructure:"LOG_PRETTY"`
	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	JWTAccessSecret string `mapstructure:"JWT_ACCESS_SECRET"`
	WebhookAPIKey   string `mapstructure:"WEBHOOK_API_KEY"`
	CORSOrigins     string `mapstructure:"CORS_ORIGINS"`

	WATargetURL        string `mapstructure:"WA_TARGET_URL"`
	BrowserHeadless    bool   `mapstructure:"BROWSER_HEADLESS"`
	SessionCacheTTLSec int    `mapstructure:"SESSION_CACHE_TTL_SEC"`
}

// SessionCacheTTL returns the fast-store entry lifetime.
func (c *ServerConfig) SessionCacheTTL() time.Duration {
	return time.Duration(c.SessionCacheTTLSec) * time.Second
}

// CORSOriginList splits the configured comma-separated origins.
func (c *ServerConfig) CORSOriginList() []string {
	parts := strings.Split(c.CORSOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// LoadConfig reads configuration from file, environment variables, and
// defaults.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/wabroker/")
	v.AddConfigPath("$HOME/.wabroker")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "8000")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/wabroker_dev")
	v.SetDefault("MONGO_DB_NAME", "wabroker_dev")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_PREFIX", "whatsapp")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("OTEL_SERVICE_NAME", "wabroker-server")
	v.SetDefault("JWT_ACCESS_SECRET", "a_very_secret_jwt_key_change_me") // CHANGE IN PRODUCTION
	v.SetDefault("WEBHOOK_API_KEY", "")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000,http://127.0.0.1:3000,http://localhost:3001,http://127.0.0.1:3001")
	v.SetDefault("WA_TARGET_URL", "https://web.whatsapp.com")
	v.SetDefault("BROWSER_HEADLESS", true)
	v.SetDefault("SESSION_CACHE_TTL_SEC", 3600)

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine: defaults and env vars apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}
