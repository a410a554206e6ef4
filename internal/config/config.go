package config

import (
	"time"

	"github.com/spf13/viper"

	pkgconfig "github.com/telemed-live/videocall-service/pkg/config"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Cache     CacheConfig
	Auth      AuthConfig
	Token     TokenConfig
	SFU       SFUConfig `mapstructure:"sfu"`
	WebSocket WebSocketConfig
	Client    ClientConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	FilePath        string `mapstructure:"file_path"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

type CacheConfig struct {
	// Driver is "redis" or "memory".
	Driver string
	Prefix string
	TTL    time.Duration `mapstructure:"ttl"`
}

type AuthConfig struct {
	// InternalSecret is the shared secret the booking service must
	// present on orchestration calls.
	InternalSecret string `mapstructure:"internal_secret"`
}

type TokenConfig struct {
	Secret string
	TTL    time.Duration `mapstructure:"ttl"`
}

type SFUConfig struct {
	Nodes []string
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

type ClientConfig struct {
	// BaseURL is the externally visible URL join links are built on.
	BaseURL string `mapstructure:"base_url"`
	// JoinPage is the static call page served at /join/:sessionId.
	JoinPage string `mapstructure:"join_page"`
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 4000)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "videocall")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.file_path", "./data/videocall.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", 60)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("cache.driver", "redis")
	v.SetDefault("cache.prefix", "videocall:session")
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("auth.internal_secret", "")
	v.SetDefault("token.secret", "")
	v.SetDefault("token.ttl", "1h")
	v.SetDefault("sfu.nodes", []string{})
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 65536)
	v.SetDefault("client.base_url", "http://localhost:4000")
	v.SetDefault("client.join_page", "./web/join.html")
	v.SetDefault("log.level", "info")

	// Bind environment variables
	v.BindEnv("server.port", "PORT")
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("database.sslmode", "DB_SSLMODE")
	v.BindEnv("database.file_path", "DB_FILE_PATH")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("cache.driver", "CACHE_DRIVER")
	v.BindEnv("auth.internal_secret", "INTERNAL_SECRET")
	v.BindEnv("token.secret", "VIDEO_JWT_SECRET")
	v.BindEnv("sfu.nodes", "SFU_NODES")
	v.BindEnv("client.base_url", "CLIENT_BASE_URL")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Parse durations
	cfg.Cache.TTL = parseDuration(v, "cache.ttl", 5*time.Minute)
	cfg.Token.TTL = parseDuration(v, "token.ttl", time.Hour)
	cfg.WebSocket.PingInterval = parseDuration(v, "websocket.ping_interval", 30*time.Second)
	cfg.WebSocket.PongWait = parseDuration(v, "websocket.pong_wait", 60*time.Second)
	cfg.WebSocket.WriteWait = parseDuration(v, "websocket.write_wait", 10*time.Second)

	return &cfg, nil
}

func parseDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	str := v.GetString(key)
	d, err := time.ParseDuration(str)
	if err != nil {
		return defaultVal
	}
	return d
}
