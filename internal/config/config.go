package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/notifier/pkg/validator"
)

const envPrefix = "NOTIFIER"

type Config struct {
	Enabled   bool            `mapstructure:"enabled"`
	Server    ServerConfig    `mapstructure:"server"`
	Transport TransportConfig `mapstructure:"transport"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Heartbeat HeartbeatConfig `mapstructure:"heartbeat"`
	Backoff   BackoffConfig   `mapstructure:"backoff"`
	Log       LogConfig       `mapstructure:"log"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port" validate:"gte=1,lte=65535"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
}

type TransportConfig struct {
	Kind             string        `mapstructure:"kind" validate:"oneof=websocket redis"`
	URL              string        `mapstructure:"url"`
	Channel          string        `mapstructure:"channel"`
	AwaitAck         bool          `mapstructure:"await_ack"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" validate:"gt=0"`
}

type AuthConfig struct {
	Token     string `mapstructure:"token"`
	TokenFile string `mapstructure:"token_file"`
	TokenEnv  string `mapstructure:"token_env"`
}

type HeartbeatConfig struct {
	Interval time.Duration `mapstructure:"interval" validate:"gte=0"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

type BackoffConfig struct {
	Min         time.Duration `mapstructure:"min" validate:"gt=0"`
	Max         time.Duration `mapstructure:"max" validate:"gtefield=Min"`
	Factor      float64       `mapstructure:"factor" validate:"gte=1"`
	Jitter      float64       `mapstructure:"jitter" validate:"gte=0,lte=1"`
	MaxRetries  int           `mapstructure:"max_retries" validate:"gte=0"`
	StableAfter time.Duration `mapstructure:"stable_after" validate:"gte=0"`
}

type LogConfig struct {
	Capacity int `mapstructure:"capacity" validate:"gte=0"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps" validate:"gte=0"`
	Burst   int     `mapstructure:"burst" validate:"gte=0"`
}

// envOverrides are the NOTIFIER_* variables applied on top of the file.
type envOverrides struct {
	Enabled   *bool   `envconfig:"ENABLED"`
	Port      int     `envconfig:"PORT"`
	Transport string  `envconfig:"TRANSPORT"`
	URL       string  `envconfig:"URL"`
	Channel   string  `envconfig:"CHANNEL"`
	Token     string  `envconfig:"TOKEN"`
	TokenFile string  `envconfig:"TOKEN_FILE"`
	LogLevel  string  `envconfig:"LOG_LEVEL"`
	LogFormat string  `envconfig:"LOG_FORMAT"`
	Capacity  int     `envconfig:"LOG_CAPACITY"`
	RPS       float64 `envconfig:"RATE_LIMIT_RPS"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("enabled", true)

	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 0)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("transport.kind", "websocket")
	v.SetDefault("transport.url", "")
	v.SetDefault("transport.channel", "")
	v.SetDefault("transport.await_ack", false)
	v.SetDefault("transport.handshake_timeout", 10*time.Second)

	v.SetDefault("auth.token", "")
	v.SetDefault("auth.token_file", "")
	v.SetDefault("auth.token_env", "")

	v.SetDefault("heartbeat.interval", 25*time.Second)
	v.SetDefault("heartbeat.timeout", 60*time.Second)

	v.SetDefault("backoff.min", time.Second)
	v.SetDefault("backoff.max", 30*time.Second)
	v.SetDefault("backoff.factor", 2.0)
	v.SetDefault("backoff.jitter", 0.2)
	v.SetDefault("backoff.max_retries", 0)
	v.SetDefault("backoff.stable_after", 30*time.Second)

	v.SetDefault("log.capacity", 100)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.rps", 20.0)
	v.SetDefault("rate_limit.burst", 40)
}

// LoadConfig reads config.yml from path, or from the usual locations when
// path is empty. A missing file is not an error; defaults and NOTIFIER_*
// variables still apply.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/notifier")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return fmt.Errorf("failed to process environment: %w", err)
	}

	if env.Enabled != nil {
		c.Enabled = *env.Enabled
	}
	if env.Port != 0 {
		c.Server.Port = env.Port
	}
	if env.Transport != "" {
		c.Transport.Kind = strings.ToLower(env.Transport)
	}
	if env.URL != "" {
		c.Transport.URL = env.URL
	}
	if env.Channel != "" {
		c.Transport.Channel = env.Channel
	}
	if env.Token != "" {
		c.Auth.Token = env.Token
	}
	if env.TokenFile != "" {
		c.Auth.TokenFile = env.TokenFile
	}
	if env.LogLevel != "" {
		c.Logging.Level = env.LogLevel
	}
	if env.LogFormat != "" {
		c.Logging.Format = env.LogFormat
	}
	if env.Capacity != 0 {
		c.Log.Capacity = env.Capacity
	}
	if env.RPS != 0 {
		c.RateLimit.RPS = env.RPS
	}
	return nil
}

func (c *Config) Validate() error {
	if err := validator.New().Validate(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Heartbeat.Interval > 0 && c.Heartbeat.Timeout > 0 && c.Heartbeat.Timeout <= c.Heartbeat.Interval {
		return fmt.Errorf("invalid config: heartbeat.timeout must exceed heartbeat.interval")
	}
	return nil
}

// Endpointless reports whether there is nothing to connect to. The client
// then stays disconnected, which is a valid steady state.
func (c *Config) Endpointless() bool {
	if c.Transport.URL == "" {
		return true
	}
	return c.Transport.Kind == "redis" && c.Transport.Channel == ""
}
