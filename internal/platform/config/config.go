package config

import (
	"os"
	"strconv"
	"time"
)

// Config captures everything vcgate reads from the environment. Loaded once at
// startup; immutable afterwards.
type Config struct {
	Server   Server
	Auth     Auth
	Pipeline Pipeline
	Cache    Cache
	Audit    Audit
	Redis    Redis
	Postgres Postgres
	Ollama   Ollama
	N8N      N8N
	Log      Log
}

// Server covers the MCP and operational HTTP listeners.
type Server struct {
	Name     string
	Version  string
	MCPAddr  string
	HTTPAddr string
}

// Auth covers JWT verification and the RBAC switch.
type Auth struct {
	SigningKey      string
	Issuer          string
	TokenTTL        time.Duration
	ClockSkew       time.Duration
	RBACEnabled     bool
	PolicyPath      string
	CredentialsPath string
}

// Pipeline bounds operation execution.
type Pipeline struct {
	MaxConcurrent    int
	QueueWait        time.Duration
	OperationTimeout time.Duration
}

// Cache configures the result cache.
type Cache struct {
	TTL     time.Duration
	Backend string // "memory" or "redis"
}

// Audit configures the audit recorder.
type Audit struct {
	Enabled bool
	Backend string // "memory" or "postgres"
}

// Redis is only consulted when Cache.Backend is "redis".
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Postgres is only consulted when Audit.Backend is "postgres".
type Postgres struct {
	DSN string
}

// Ollama configures the analyzer integration.
type Ollama struct {
	Enabled bool
	BaseURL string
	Model   string
	Timeout time.Duration
}

// N8N configures the workflow webhook integration.
type N8N struct {
	Enabled    bool
	WebhookURL string
	APIKey     string
	Timeout    time.Duration
}

// Log configures slog output.
type Log struct {
	Level  string
	Format string // "json" or "text"
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Server: Server{
			Name:     getString("VCGATE_SERVER_NAME", "vcgate"),
			Version:  getString("VCGATE_SERVER_VERSION", "1.0.0"),
			MCPAddr:  getString("VCGATE_MCP_ADDR", ":8080"),
			HTTPAddr: getString("VCGATE_HTTP_ADDR", ":9090"),
		},
		Auth: Auth{
			// Default exists for local development only; override in production.
			SigningKey:      getString("VCGATE_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			Issuer:          getString("VCGATE_JWT_ISSUER", "vcgate"),
			TokenTTL:        getDuration("VCGATE_JWT_TTL", 30*time.Minute),
			ClockSkew:       getDuration("VCGATE_JWT_CLOCK_SKEW", 0),
			RBACEnabled:     getBool("VCGATE_ENABLE_RBAC", true),
			PolicyPath:      getString("VCGATE_POLICY_FILE", ""),
			CredentialsPath: getString("VCGATE_CREDENTIALS_FILE", ""),
		},
		Pipeline: Pipeline{
			MaxConcurrent:    getInt("VCGATE_MAX_CONCURRENT_OPERATIONS", 10),
			QueueWait:        getDuration("VCGATE_ADMISSION_QUEUE_WAIT", 0),
			OperationTimeout: getDuration("VCGATE_OPERATION_TIMEOUT", 300*time.Second),
		},
		Cache: Cache{
			TTL:     getDuration("VCGATE_CACHE_TTL", 300*time.Second),
			Backend: getString("VCGATE_CACHE_BACKEND", "memory"),
		},
		Audit: Audit{
			Enabled: getBool("VCGATE_ENABLE_AUDIT", true),
			Backend: getString("VCGATE_AUDIT_BACKEND", "memory"),
		},
		Redis: Redis{
			URL:          getString("VCGATE_REDIS_URL", ""),
			PoolSize:     getInt("VCGATE_REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("VCGATE_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("VCGATE_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("VCGATE_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("VCGATE_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: Postgres{
			DSN: getString("VCGATE_POSTGRES_DSN", ""),
		},
		Ollama: Ollama{
			Enabled: getBool("VCGATE_ENABLE_OLLAMA", false),
			BaseURL: getString("VCGATE_OLLAMA_URL", "http://localhost:11434"),
			Model:   getString("VCGATE_OLLAMA_MODEL", "llama3.2"),
			Timeout: getDuration("VCGATE_OLLAMA_TIMEOUT", 30*time.Second),
		},
		N8N: N8N{
			Enabled:    getBool("VCGATE_ENABLE_N8N", false),
			WebhookURL: getString("VCGATE_N8N_WEBHOOK_URL", "http://localhost:5678/webhook"),
			APIKey:     getString("VCGATE_N8N_API_KEY", ""),
			Timeout:    getDuration("VCGATE_N8N_TIMEOUT", 10*time.Second),
		},
		Log: Log{
			Level:  getString("VCGATE_LOG_LEVEL", "info"),
			Format: getString("VCGATE_LOG_FORMAT", "json"),
		},
	}
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
