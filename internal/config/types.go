package config

import (
	"fmt"
	"time"
)

type Config struct {
	Server      ServerConfig      `json:"server"`
	Database    Database          `json:"database"`
	Redis       RedisConfig       `json:"redis"`
	Auth        AuthConfig        `json:"auth"`
	ObjectStore ObjectStoreConfig `json:"object_store"`
	Queue       QueueConfig       `json:"queue"`
	Finalize    FinalizeConfig    `json:"finalize"`
	Log         LogConfig         `json:"log"`
	Sentry      SentryConfig      `json:"sentry"`
}

// Durations below follow the unit named in the field comment; the value is
// multiplied out where it is used.
type ServerConfig struct {
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`     // seconds
	WriteTimeout    time.Duration `json:"write_timeout"`    // seconds
	FinalizeTimeout time.Duration `json:"finalize_timeout"` // seconds, whole pipeline deadline
	MaxRequestBytes int64         `json:"max_request_bytes"`
	AllowedOrigins  []string      `json:"allowed_origins"`
}

type Database struct {
	DSN            string `json:"dsn"`
	MigrateOnStart bool   `json:"migrate_on_start"`
}

type RedisConfig struct {
	Password            string        `json:"password"`
	DatabaseID          int           `json:"database_id"`
	HealthCheckInterval time.Duration `json:"health_check_interval"` // seconds
	DialTimeout         time.Duration `json:"dial_timeout"`          // seconds
	ReadTimeout         time.Duration `json:"read_timeout"`          // seconds
	WriteTimeout        time.Duration `json:"write_timeout"`         // seconds
	PoolSize            int           `json:"pool_size"`
	Nodes               []RedisNode   `json:"nodes"`
}

func (c RedisConfig) Enabled() bool { return len(c.Nodes) > 0 }

type RedisNode struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func (n RedisNode) Addr() string { return fmt.Sprintf("%s:%d", n.Host, n.Port) }

type AuthConfig struct {
	JWTSecret          string `json:"jwt_secret"`
	JWTIssuer          string `json:"jwt_issuer"`
	MembershipCacheTTL int    `json:"membership_cache_ttl"` // seconds, 0 disables caching
}

// Credentials are the static keys for a SigV4 protected service. When both
// keys are empty and UseDefaultChain is set, the AWS default chain is used.
type Credentials struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretKey       string `json:"secret_key"`
	SessionToken    string `json:"session_token"`
	UseDefaultChain bool   `json:"use_default_credentials"`
}

type ObjectStoreConfig struct {
	Endpoint    string `json:"endpoint"` // e.g. https://s3.eu-central-1.wasabisys.com
	Region      string `json:"region"`
	Bucket      string `json:"bucket"`
	VirtualHost bool   `json:"virtual_host"` // bucket.endpoint instead of endpoint/bucket
	Credentials

	MaxAttempts    int           `json:"max_attempts"`
	BackoffBase    time.Duration `json:"backoff_base"`    // milliseconds
	RequestTimeout time.Duration `json:"request_timeout"` // seconds, per probe
}

const (
	QueueBackendSQS   = "sqs"
	QueueBackendRedis = "redis"

	QueueProtocolJSON  = "json"
	QueueProtocolQuery = "query"
)

type QueueConfig struct {
	Backend string `json:"backend"` // sqs | redis

	// sqs
	URL      string `json:"url"`
	Region   string `json:"region"`
	Protocol string `json:"protocol"` // json | query
	Credentials
	RequestTimeout time.Duration `json:"request_timeout"` // seconds

	// redis
	Stream string `json:"stream"`
	MaxLen int64  `json:"max_len"`
}

type FinalizeConfig struct {
	JobType string `json:"job_type"`
}

type LogConfig struct {
	Level       string `json:"level"`
	Development bool   `json:"development"`
}

type SentryConfig struct {
	SentryDSN   string `json:"sentry_dsn"`
	Environment string `json:"environment"`
}
