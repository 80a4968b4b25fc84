package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Create new config instance with defaults applied
func NewConfig() *Config {
	c := Default()
	return &c
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15,
			WriteTimeout:    60,
			FinalizeTimeout: 45,
			MaxRequestBytes: 1 << 20,
		},
		Redis: RedisConfig{
			HealthCheckInterval: 30,
			DialTimeout:         5,
			ReadTimeout:         3,
			WriteTimeout:        3,
			PoolSize:            10,
		},
		Auth: AuthConfig{
			JWTIssuer:          "rugbycodex",
			MembershipCacheTTL: 60,
		},
		ObjectStore: ObjectStoreConfig{
			Region:         "us-east-1",
			MaxAttempts:    5,
			BackoffBase:    500,
			RequestTimeout: 10,
		},
		Queue: QueueConfig{
			Backend:        QueueBackendSQS,
			Protocol:       QueueProtocolJSON,
			RequestTimeout: 10,
			Stream:         "media:jobs",
			MaxLen:         10000,
		},
		Finalize: FinalizeConfig{JobType: "transcode"},
		Log:      LogConfig{Level: "info"},
	}
}

// Load configuration file in json format
func (c *Config) Read(file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", file, err)
	}
	return nil
}

// ApplyEnv overrides secrets and endpoints from the environment. lookup is
// normally os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	set(&c.Database.DSN, "DATABASE_URL")
	set(&c.Auth.JWTSecret, "JWT_SECRET")
	set(&c.Auth.JWTIssuer, "JWT_ISSUER")
	set(&c.Redis.Password, "REDIS_PASSWORD")
	set(&c.ObjectStore.Endpoint, "OBJECT_STORE_ENDPOINT")
	set(&c.ObjectStore.Region, "OBJECT_STORE_REGION")
	set(&c.ObjectStore.Bucket, "OBJECT_STORE_BUCKET")
	set(&c.ObjectStore.AccessKeyID, "OBJECT_STORE_ACCESS_KEY_ID")
	set(&c.ObjectStore.SecretKey, "OBJECT_STORE_SECRET_KEY")
	set(&c.Queue.URL, "QUEUE_URL")
	set(&c.Queue.Region, "QUEUE_REGION")
	set(&c.Queue.AccessKeyID, "QUEUE_ACCESS_KEY_ID")
	set(&c.Queue.SecretKey, "QUEUE_SECRET_KEY")
	set(&c.Sentry.SentryDSN, "SENTRY_DSN")
	set(&c.Sentry.Environment, "SENTRY_ENVIRONMENT")
	set(&c.Log.Level, "LOG_LEVEL")
}

// Validate rejects configuration the service cannot start with. Missing
// object store or queue credentials are not checked here; they are reported
// per request.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port: out of range: %d", c.Server.Port))
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		errs = append(errs, errors.New("database.dsn: required"))
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New("auth.jwt_secret: required"))
	}
	if c.ObjectStore.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("object_store.max_attempts: must be at least 1, got %d", c.ObjectStore.MaxAttempts))
	}
	if c.ObjectStore.BackoffBase < 0 {
		errs = append(errs, errors.New("object_store.backoff_base: must not be negative"))
	}
	if strings.TrimSpace(c.Finalize.JobType) == "" {
		errs = append(errs, errors.New("finalize.job_type: required"))
	}

	switch c.Queue.Backend {
	case QueueBackendSQS:
		if c.Queue.Protocol != QueueProtocolJSON && c.Queue.Protocol != QueueProtocolQuery {
			errs = append(errs, fmt.Errorf("queue.protocol: unsupported value %q", c.Queue.Protocol))
		}
	case QueueBackendRedis:
		if !c.Redis.Enabled() {
			errs = append(errs, errors.New("queue.backend: redis requires redis.nodes"))
		}
		if strings.TrimSpace(c.Queue.Stream) == "" {
			errs = append(errs, errors.New("queue.stream: required for redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("queue.backend: unsupported value %q", c.Queue.Backend))
	}

	return errors.Join(errs...)
}
