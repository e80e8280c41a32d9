package store

import (
	"strings"
	"time"
)

// Driver names returned by DetectDSNType.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// DefaultRedisTTL bounds how long an idle session survives in Redis.
const DefaultRedisTTL = 24 * time.Hour

// Opts holds configuration shared by the persistent store constructors.
type Opts struct {
	DSN string        // connection string or file path
	TTL time.Duration // key expiry, Redis only
}

// Option configures store construction.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithRedisURL sets the Redis URL, e.g. redis://localhost:6379/0.
func WithRedisURL(url string) Option {
	return func(o *Opts) {
		o.DSN = url
	}
}

// WithTTL sets the expiry applied to Redis keys.
func WithTTL(ttl time.Duration) Option {
	return func(o *Opts) {
		o.TTL = ttl
	}
}

// DetectDSNType returns the driver name a DSN should be opened with.
// Anything that is not recognisably Postgres or Redis is treated as a
// SQLite file path.
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return DriverPostgres
	case strings.HasPrefix(lower, "redis://"), strings.HasPrefix(lower, "rediss://"):
		return DriverRedis
	case strings.Contains(lower, "dbname=") || strings.HasPrefix(lower, "host="):
		return DriverPostgres
	default:
		return DriverSQLite
	}
}

// Open creates the store a DSN points at. An empty DSN yields an InMemoryStore.
func Open(dsn string, opts ...Option) (Store, error) {
	if dsn == "" {
		return NewInMemoryStore(), nil
	}
	switch DetectDSNType(dsn) {
	case DriverPostgres:
		return NewPostgresStore(append([]Option{WithPostgresDSN(dsn)}, opts...)...)
	case DriverRedis:
		return NewRedisStore(append([]Option{WithRedisURL(dsn)}, opts...)...)
	default:
		return NewSQLiteStore(append([]Option{WithSQLiteDSN(dsn)}, opts...)...)
	}
}
