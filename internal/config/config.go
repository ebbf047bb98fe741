package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Auth      AuthConfig `mapstructure:"auth"`
	Redis     RedisConfig
	Tracing   TracingConfig   `mapstructure:"tracing"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Events    EventsConfig    `mapstructure:"events"`
	Quiz      QuizConfig      `mapstructure:"quiz"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"` // 强制执行数据库迁移
	MigrateOnly  bool `mapstructure:"-"` // 仅迁移模式（迁移后退出）
	ConfigFile   string `mapstructure:"-"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

type ServerConfig struct {
	Port string
	Mode string
}

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
)

type DatabaseConfig struct {
	Driver        string
	Host          string
	Port          int
	User          string
	Password      string
	DBName        string
	Charset       string
	ParseTime     bool
	SSLMode       string `mapstructure:"sslmode"`
	Path          string // sqlite 文件路径
	MongoURI      string `mapstructure:"mongo_uri" yaml:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database" yaml:"mongo_database"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

// AuthConfig 外部身份提供方配置；IntrospectionURL 为空时使用本地 JWT 校验
type AuthConfig struct {
	IntrospectionURL string `mapstructure:"introspection_url"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type EventsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

// QuizConfig 答题生命周期策略，支持热更新
type QuizConfig struct {
	MaxStartRetries    int    `mapstructure:"max_start_retries"`
	RetryBackoffMs     int    `mapstructure:"retry_backoff_ms"`
	EnforceTimeLimit   bool   `mapstructure:"enforce_time_limit"`
	ExpiryGraceSeconds int    `mapstructure:"expiry_grace_seconds"`
	ExpirySweep        string `mapstructure:"expiry_sweep"` // cron 表达式，空表示关闭
	ViewCacheSeconds   int    `mapstructure:"view_cache_seconds"`
	DefaultPageSize    int    `mapstructure:"default_page_size"`
	MaxPageSize        int    `mapstructure:"max_page_size"`
}

func (q QuizConfig) RetryBackoff() time.Duration {
	return time.Duration(q.RetryBackoffMs) * time.Millisecond
}

func (q QuizConfig) ExpiryGrace() time.Duration {
	return time.Duration(q.ExpiryGraceSeconds) * time.Second
}

func (q QuizConfig) ViewCacheTTL() time.Duration {
	return time.Duration(q.ViewCacheSeconds) * time.Second
}

// DefaultQuizConfig 与原系统保持一致：最多 3 次插入尝试，每次间隔 100ms
func DefaultQuizConfig() QuizConfig {
	return QuizConfig{
		MaxStartRetries:    3,
		RetryBackoffMs:     100,
		EnforceTimeLimit:   false,
		ExpiryGraceSeconds: 30,
		ViewCacheSeconds:   300,
		DefaultPageSize:    20,
		MaxPageSize:        100,
	}
}

func setDefaults(v *viper.Viper) {
	q := DefaultQuizConfig()
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", DriverMySQL)
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.parsetime", true)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.mongo_database", "quiz_backend")
	v.SetDefault("jwt.expire_hours", 72)
	v.SetDefault("auth.timeout_seconds", 5)
	v.SetDefault("rate_limit.max_requests", 100000)
	v.SetDefault("rate_limit.window_minutes", 1)
	v.SetDefault("events.exchange", "quiz.events")
	v.SetDefault("quiz.max_start_retries", q.MaxStartRetries)
	v.SetDefault("quiz.retry_backoff_ms", q.RetryBackoffMs)
	v.SetDefault("quiz.enforce_time_limit", q.EnforceTimeLimit)
	v.SetDefault("quiz.expiry_grace_seconds", q.ExpiryGraceSeconds)
	v.SetDefault("quiz.view_cache_seconds", q.ViewCacheSeconds)
	v.SetDefault("quiz.default_page_size", q.DefaultPageSize)
	v.SetDefault("quiz.max_page_size", q.MaxPageSize)
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("QUIZ")
	v.AutomaticEnv()
	setDefaults(v)

	// Database
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "DATABASE_NAME")
	v.BindEnv("database.mongo_uri", "MONGO_URI")
	v.BindEnv("database.mongo_database", "MONGO_DATABASE")

	// JWT / 身份
	v.BindEnv("jwt.secret", "JWT_SECRET")
	v.BindEnv("auth.introspection_url", "AUTH_INTROSPECTION_URL")

	// Redis
	v.BindEnv("redis.enabled", "REDIS_ENABLED")
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.mode", "SERVER_MODE")

	// Tracing
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	// Events
	v.BindEnv("events.enabled", "EVENTS_ENABLED")
	v.BindEnv("events.url", "RABBITMQ_URI")
	v.BindEnv("events.exchange", "RABBITMQ_EXCHANGE")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour
	cfg.ConfigFile = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	// 生产环境校验 JWT Secret 强度
	if c.Server.Mode == "release" && c.Auth.IntrospectionURL == "" && len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(c.JWT.Secret))
	}

	switch c.Database.Driver {
	case DriverMySQL, DriverPostgres, DriverSQLite, DriverMongo:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.Quiz.MaxStartRetries < 1 {
		return fmt.Errorf("quiz.max_start_retries must be >= 1, got %d", c.Quiz.MaxStartRetries)
	}
	if c.Quiz.DefaultPageSize < 1 || c.Quiz.MaxPageSize < c.Quiz.DefaultPageSize {
		return fmt.Errorf("invalid quiz page sizes: default=%d max=%d", c.Quiz.DefaultPageSize, c.Quiz.MaxPageSize)
	}
	return nil
}
