package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Cache backend constants
const (
	CacheTypeMemory  = "memory"
	CacheTypeRueidis = "rueidis"
)

// Rate limit store constants
const (
	RateLimitStoreMemory = "memory"
	RateLimitStoreRedis  = "redis"
)

// Lifespan describes the validity window applied to a minted artifact.
// NotBeforeOffset shifts the not-before instant relative to issuance.
// A zero TTL means the artifact never expires.
type Lifespan struct {
	NotBeforeOffset time.Duration
	TTL             time.Duration
}

// Window computes the (issuedAt, notBefore, expiresAt) triple for an artifact
// minted at now. expiresAt is nil for never-expiring artifacts.
func (l Lifespan) Window(now time.Time) (issuedAt, notBefore time.Time, expiresAt *time.Time) {
	issuedAt = now
	notBefore = now.Add(l.NotBeforeOffset)
	if l.TTL > 0 {
		exp := now.Add(l.TTL)
		expiresAt = &exp
	}
	return issuedAt, notBefore, expiresAt
}

type Config struct {
	// Server settings
	ServerAddr string
	BaseURL    string

	// Session settings
	SessionSecret string

	// Database
	DatabaseDriver string // "sqlite" or "postgres"
	DatabaseDSN    string

	// Artifact lifespans, per purpose
	AuthCodeLifespan        Lifespan
	AccessTokenLifespan     Lifespan
	RefreshTokenLifespan    Lifespan
	IDTokenLifespan         Lifespan
	DelegationTokenLifespan Lifespan

	// Expiry sweep
	SweepInterval time.Duration

	// Client metadata cache
	CacheType     string // "memory" or "rueidis"
	CacheTTL      time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Rate limiting
	RateLimitEnabled           bool
	RateLimitRequestsPerMinute int
	RateLimitStore             string // "memory" or "redis"

	// Metrics
	MetricsEnabled bool
	MetricsToken   string

	IsProduction bool
}

func Load() *Config {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	driver := getEnv("DATABASE_DRIVER", "sqlite")
	var dsn string
	if driver == "sqlite" {
		dsn = getEnv("DATABASE_DSN", "oauthd.db")
	} else {
		dsn = getEnv("DATABASE_DSN", "")
	}

	return &Config{
		ServerAddr:     getEnv("SERVER_ADDR", ":8080"),
		BaseURL:        getEnv("BASE_URL", "http://localhost:8080"),
		SessionSecret:  getEnv("SESSION_SECRET", "session-secret-change-in-production"),
		DatabaseDriver: driver,
		DatabaseDSN:    dsn,

		AuthCodeLifespan: Lifespan{
			NotBeforeOffset: getEnvSeconds("AUTH_CODE_NOT_BEFORE_OFFSET", 0),
			TTL:             getEnvSeconds("AUTH_CODE_LIFESPAN", 600),
		},
		AccessTokenLifespan: Lifespan{
			NotBeforeOffset: getEnvSeconds("ACCESS_TOKEN_NOT_BEFORE_OFFSET", 0),
			TTL:             getEnvSeconds("ACCESS_TOKEN_LIFESPAN", 3600),
		},
		RefreshTokenLifespan: Lifespan{
			NotBeforeOffset: getEnvSeconds("REFRESH_TOKEN_NOT_BEFORE_OFFSET", 0),
			TTL:             getEnvSeconds("REFRESH_TOKEN_LIFESPAN", 30*24*3600),
		},
		IDTokenLifespan: Lifespan{
			NotBeforeOffset: getEnvSeconds("ID_TOKEN_NOT_BEFORE_OFFSET", 0),
			TTL:             getEnvSeconds("ID_TOKEN_LIFESPAN", 3600),
		},
		DelegationTokenLifespan: Lifespan{
			NotBeforeOffset: getEnvSeconds("DELEGATION_TOKEN_NOT_BEFORE_OFFSET", 0),
			TTL:             getEnvSeconds("DELEGATION_TOKEN_LIFESPAN", 3600),
		},

		SweepInterval: getEnvDuration("SWEEP_INTERVAL", 5*time.Minute),

		CacheType:     getEnv("CACHE_TYPE", CacheTypeMemory),
		CacheTTL:      getEnvDuration("CACHE_TTL", 30*time.Second),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RateLimitEnabled:           getEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequestsPerMinute: getEnvInt("RATE_LIMIT_REQUESTS_PER_MINUTE", 60),
		RateLimitStore:             getEnv("RATE_LIMIT_STORE", RateLimitStoreMemory),

		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
		MetricsToken:   getEnv("METRICS_TOKEN", ""),

		IsProduction: getEnvBool("PRODUCTION", false),
	}
}

// Validate checks the configuration for inconsistencies that would only
// surface later at request time.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("BASE_URL must not be empty")
	}
	if strings.HasSuffix(c.BaseURL, "/") {
		c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	}
	if c.DatabaseDriver != "sqlite" && c.DatabaseDriver != "postgres" {
		return fmt.Errorf("unsupported database driver: %s", c.DatabaseDriver)
	}
	if c.DatabaseDSN == "" {
		return errors.New("DATABASE_DSN must not be empty")
	}
	if c.CacheType != CacheTypeMemory && c.CacheType != CacheTypeRueidis {
		return fmt.Errorf("unsupported cache type: %s", c.CacheType)
	}
	if c.RateLimitStore != RateLimitStoreMemory && c.RateLimitStore != RateLimitStoreRedis {
		return fmt.Errorf("unsupported rate limit store: %s", c.RateLimitStore)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var i int
		if _, err := fmt.Sscanf(value, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvSeconds reads an integer number of seconds. Lifespan values use plain
// seconds rather than duration strings so that 0 (never expires) is explicit.
func getEnvSeconds(key string, defaultValue int) time.Duration {
	return time.Duration(getEnvInt(key, defaultValue)) * time.Second
}
