package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	config "github.com/0xsj/overwatch-pkg/config"

	domainerror "github.com/0xsj/overwatch-revocation/internal/domain/error"
)

// Config holds all configuration for the revocation service.
type Config struct {
	Server   ServerConfig
	Registry RegistryConfig
	Redis    RedisConfig
	NATS     NATSConfig
	Token    TokenConfig
	Metrics  MetricsConfig
}

// ServerConfig holds gRPC server configuration.
type ServerConfig struct {
	Host              string        `env:"SERVER_HOST" default:"0.0.0.0"`
	Port              int           `env:"SERVER_PORT" default:"50052"`
	EnableReflection  bool          `env:"SERVER_ENABLE_REFLECTION" default:"true"`
	EnableHealthCheck bool          `env:"SERVER_ENABLE_HEALTH_CHECK" default:"true"`
	ShutdownTimeout   time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// Backend selection modes.
const (
	BackendAuto   = "auto"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// RegistryConfig holds revocation registry configuration.
type RegistryConfig struct {
	// Backend is one of auto, memory or redis. Auto selects redis when
	// remote credentials are present.
	Backend          string        `env:"REGISTRY_BACKEND" default:"auto"`
	MaxEntries       int           `env:"REGISTRY_MAX_ENTRIES" default:"10000"`
	SweepInterval    time.Duration `env:"REGISTRY_SWEEP_INTERVAL" default:"1m"`
	OperationTimeout time.Duration `env:"REGISTRY_OPERATION_TIMEOUT" default:"250ms"`
	FailOpen         bool          `env:"REGISTRY_FAIL_OPEN" default:"true"`
	MultiInstance    bool          `env:"REGISTRY_MULTI_INSTANCE" default:"false"`
}

// RedisConfig holds the remote shared store configuration.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL" default:""`
	Token        string        `env:"REDIS_TOKEN" default:"" sensitive:"true"`
	KeyPrefix    string        `env:"REDIS_KEY_PREFIX" default:"revocation:"`
	ScanCount    int           `env:"REDIS_SCAN_COUNT" default:"100"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" default:"2s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" default:"200ms"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" default:"200ms"`
}

// NATSConfig holds NATS configuration. An empty URL disables event publishing.
type NATSConfig struct {
	URL           string        `env:"NATS_URL" default:""`
	SubjectPrefix string        `env:"NATS_SUBJECT_PREFIX" default:"overwatch"`
	MaxReconnects int           `env:"NATS_MAX_RECONNECTS" default:"10"`
	ReconnectWait time.Duration `env:"NATS_RECONNECT_WAIT" default:"2s"`
}

// TokenConfig holds access token verification configuration.
type TokenConfig struct {
	Issuer              string        `env:"TOKEN_ISSUER" default:"overwatch-identity"`
	Audience            string        `env:"TOKEN_AUDIENCE" default:"overwatch"`
	AccessTokenDuration time.Duration `env:"TOKEN_ACCESS_DURATION" default:"15m"`
	SigningKey          string        `env:"TOKEN_SIGNING_KEY" required:"true" sensitive:"true"`
}

// MetricsConfig holds Prometheus exposition configuration.
type MetricsConfig struct {
	Enabled bool   `env:"METRICS_ENABLED" default:"true"`
	Address string `env:"METRICS_ADDRESS" default:":9090"`
	Path    string `env:"METRICS_PATH" default:"/metrics"`

	// StatsInterval is how often registry statistics are refreshed.
	StatsInterval time.Duration `env:"METRICS_STATS_INTERVAL" default:"30s"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg, config.WithPrefix("REVOCATION_")); err != nil {
		return nil, err
	}
	if err := cfg.Registry.Validate(cfg.Redis); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Address returns the gRPC server address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// HasCredentials returns true if both the endpoint and the access token are set.
func (c *RedisConfig) HasCredentials() bool {
	return c.URL != "" && c.Token != ""
}

// HasPartialCredentials returns true if exactly one of endpoint and token is set.
func (c *RedisConfig) HasPartialCredentials() bool {
	return (c.URL != "") != (c.Token != "")
}

// Enabled returns true if a NATS server is configured.
func (c *NATSConfig) Enabled() bool {
	return c.URL != ""
}

// Validate checks the backend mode against the remote credentials.
func (c *RegistryConfig) Validate(redis RedisConfig) error {
	_, err := c.SelectBackend(redis)
	return err
}

// SelectBackend resolves the configured mode to a concrete backend.
// Asking for redis without credentials, or setting only one of the two
// credentials, is a configuration error.
func (c *RegistryConfig) SelectBackend(redis RedisConfig) (string, error) {
	mode := strings.ToLower(strings.TrimSpace(c.Backend))
	if mode == "" {
		mode = BackendAuto
	}

	switch mode {
	case BackendMemory:
		return BackendMemory, nil
	case BackendRedis:
		if !redis.HasCredentials() {
			return "", domainerror.ErrRemoteCredentialsMissing
		}
		return BackendRedis, nil
	case BackendAuto:
		if redis.HasPartialCredentials() {
			return "", domainerror.ErrRemoteCredentialsPartial
		}
		if redis.HasCredentials() {
			return BackendRedis, nil
		}
		return BackendMemory, nil
	default:
		return "", domainerror.ErrBackendUnknown
	}
}

// serverlessEnvVars are set by platforms that run many short-lived instances.
var serverlessEnvVars = []string{
	"AWS_LAMBDA_FUNCTION_NAME",
	"K_SERVICE",
	"FUNCTION_TARGET",
	"VERCEL",
	"NETLIFY",
	"KUBERNETES_SERVICE_HOST",
}

// IsMultiInstance reports whether the process is, or likely is, one of
// several instances that do not share memory.
func (c *RegistryConfig) IsMultiInstance() bool {
	if c.MultiInstance {
		return true
	}
	for _, name := range serverlessEnvVars {
		if os.Getenv(name) != "" {
			return true
		}
	}
	return false
}
