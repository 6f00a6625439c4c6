package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config 服务配置
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Follow    FollowConfig    `mapstructure:"follow"`
	Cascade   CascadeConfig   `mapstructure:"cascade"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig       `mapstructure:"log"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	FilePath        string        `mapstructure:"file_path"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// CacheConfig 缓存层配置；TTL 只是兜底，正确性依赖写时失效
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Prefix  string        `mapstructure:"prefix"`
	Scope   string        `mapstructure:"scope"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// ExtraType 第三方注册的关注类型
type ExtraType struct {
	Type       string `mapstructure:"type"`
	Name       string `mapstructure:"name"`
	LeaderKind string `mapstructure:"leader_kind"`
}

type FollowConfig struct {
	AllowSelfFollow bool        `mapstructure:"allow_self_follow"`
	ExtraTypes      []ExtraType `mapstructure:"extra_types"`
}

type CascadeConfig struct {
	Async      bool          `mapstructure:"async"`
	Workers    int           `mapstructure:"workers"`
	QueueSize  int           `mapstructure:"queue_size"`
	JobTimeout time.Duration `mapstructure:"job_timeout"`
	// MaxAttempts 异步任务失败后的最大执行次数
	MaxAttempts  int           `mapstructure:"max_attempts"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

type OutboxConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Sink         string        `mapstructure:"sink"` // kafka, redis, log
	Workers      int           `mapstructure:"workers"`
	ClaimLimit   int           `mapstructure:"claim_limit"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	TopicPrefix  string        `mapstructure:"topic_prefix"`
	// Lease processing 超过该时长视为 relay 已崩溃，事件重新投递
	Lease time.Duration `mapstructure:"lease"`
}

type KafkaConfig struct {
	Brokers     []string `mapstructure:"brokers"`
	EntityTopic string   `mapstructure:"entity_topic"`
	GroupID     string   `mapstructure:"group_id"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type SentryConfig struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
	Insecure    bool   `mapstructure:"insecure"`
}

// Load 读取 ./config/config.yaml（可选）与 FOLLOWGRAPH_* 环境变量
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FOLLOWGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "read config")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	// AutomaticEnv 不会拆分逗号分隔的列表
	if len(cfg.Kafka.Brokers) == 1 && strings.Contains(cfg.Kafka.Brokers[0], ",") {
		cfg.Kafka.Brokers = strings.Split(cfg.Kafka.Brokers[0], ",")
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "followgraph")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.file_path", "./data/followgraph.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.prefix", "followgraph")
	v.SetDefault("cache.scope", "1")
	v.SetDefault("cache.ttl", "0s")

	v.SetDefault("follow.allow_self_follow", false)

	v.SetDefault("cascade.async", false)
	v.SetDefault("cascade.workers", 4)
	v.SetDefault("cascade.queue_size", 1024)
	v.SetDefault("cascade.job_timeout", "30s")
	v.SetDefault("cascade.max_attempts", 3)
	v.SetDefault("cascade.retry_backoff", "500ms")

	v.SetDefault("outbox.enabled", false)
	v.SetDefault("outbox.sink", "log")
	v.SetDefault("outbox.workers", 2)
	v.SetDefault("outbox.claim_limit", 128)
	v.SetDefault("outbox.poll_interval", "200ms")
	v.SetDefault("outbox.max_attempts", 5)
	v.SetDefault("outbox.topic_prefix", "followgraph")
	v.SetDefault("outbox.lease", "5m")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.entity_topic", "")
	v.SetDefault("kafka.group_id", "followgraph")

	v.SetDefault("jwt.secret", "change-me")
	v.SetDefault("jwt.issuer", "")

	v.SetDefault("rate_limit.rps", 50)
	v.SetDefault("rate_limit.burst", 100)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "development")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.service_name", "followgraph")
	v.SetDefault("tracing.insecure", true)
}
