package config

import "time"

// Backends for the broadcast fabric and presence registry.
const (
	FabricLocal = "local"
	FabricRedis = "redis"
	FabricNATS  = "nats"

	PresenceMemory = "memory"
	PresenceRedis  = "redis"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`

	MaxMessageBytes    int64 `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	MaxContentLength   int   `mapstructure:"max_content_length" yaml:"max_content_length"`
	RateLimitPerMinute int   `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	HTTPRateLimit      int   `mapstructure:"http_rate_limit" yaml:"http_rate_limit"`

	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`

	HistoryPageSize int `mapstructure:"history_page_size" yaml:"history_page_size"`
	HistoryMaxPage  int `mapstructure:"history_max_page" yaml:"history_max_page"`

	PingInterval  time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`
	PingTimeout   time.Duration `mapstructure:"ping_timeout" yaml:"ping_timeout"`
	SessionBuffer int           `mapstructure:"session_buffer" yaml:"session_buffer"`

	FabricBackend   string        `mapstructure:"fabric_backend" yaml:"fabric_backend"`
	PresenceBackend string        `mapstructure:"presence_backend" yaml:"presence_backend"`
	PresenceTTL     time.Duration `mapstructure:"presence_ttl" yaml:"presence_ttl"`
	RedisURL        string        `mapstructure:"redis_url" yaml:"redis_url"`
	NATSURL         string        `mapstructure:"nats_url" yaml:"nats_url"`
	NATSToken       string        `mapstructure:"nats_token" yaml:"nats_token"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",

		DatabasePath: "kasichat.db",

		JWTSecret:   "change-me",
		JWTIssuer:   "kasi-rent",
		JWTAudience: "kasi-rent-chat",
		JWTTTL:      24 * time.Hour,

		MaxMessageBytes:    1 << 20,
		MaxContentLength:   4000,
		RateLimitPerMinute: 120,
		HTTPRateLimit:      300,

		CORSOrigins: []string{"*"},

		HistoryPageSize: 50,
		HistoryMaxPage:  100,

		PingInterval:  30 * time.Second,
		PingTimeout:   10 * time.Second,
		SessionBuffer: 64,

		FabricBackend:   FabricLocal,
		PresenceBackend: PresenceMemory,
		PresenceTTL:     60 * time.Second,
		RedisURL:        "redis://localhost:6379/0",
		NATSURL:         "nats://localhost:4222",
	}
}
