package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	xutil "FinRelay/pkg/util"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Auth schemes understood by the provider descriptors.
const (
	AuthBearer   = "bearer"
	AuthAPIKey   = "api_key"
	AuthQueryKey = "query_key"
)

// Failure policies for upstream non-2xx responses.
const (
	PolicyMarker      = "marker"
	PolicyPassthrough = "passthrough"
)

// Provider kinds.
const (
	KindGroww        = "groww"
	KindAlphaVantage = "alphavantage"
)

// Backend names shared by audit and rate limiting.
const (
	BackendNone       = "none"
	BackendKafka      = "kafka"
	BackendClickHouse = "clickhouse"
	BackendMemory     = "memory"
	BackendRedis      = "redis"
)

type Config struct {
	Environment string            `yaml:"environment" default:"development" validate:"required"`
	Server      Server            `yaml:"server"`
	Log         Log               `yaml:"log"`
	Metrics     Metrics           `yaml:"metrics"`
	Upstream    Upstream          `yaml:"upstream"`
	Providers   []Provider        `yaml:"providers" validate:"dive"`
	Secrets     map[string]string `yaml:"secrets"`
	Audit       Audit             `yaml:"audit"`
	Kafka       Kafka             `yaml:"kafka"`
	ClickHouse  ClickHouse        `yaml:"clickhouse"`
	RateLimit   RateLimit         `yaml:"ratelimit"`
	Redis       Redis             `yaml:"redis"`
}

type Server struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"40s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	CORS            bool          `yaml:"cors" default:"true"`
	// TrustedProxies lists CIDRs whose X-Forwarded-For is honoured; empty uses the peer address.
	TrustedProxies []string `yaml:"trusted_proxies" validate:"dive,cidr"`
}

type Log struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"json" validate:"oneof=json console"`
	Output string `yaml:"output" default:"stdout"`
}

type Metrics struct {
	Enabled       bool          `yaml:"enabled" default:"true"`
	Path          string        `yaml:"path" default:"/metrics" validate:"startswith=/"`
	SlowThreshold time.Duration `yaml:"slow_threshold" default:"2s"`
}

type Upstream struct {
	// Timeout of zero leaves the outbound call unbounded.
	Timeout   time.Duration `yaml:"timeout" default:"30s"`
	UserAgent string        `yaml:"user_agent" default:"finrelay/1.0"`
}

// Provider describes one proxy instance: a route bound to an upstream API.
type Provider struct {
	Name           string   `yaml:"name" validate:"required"`
	Kind           string   `yaml:"kind" validate:"required,oneof=groww alphavantage"`
	Route          string   `yaml:"route" validate:"required,startswith=/"`
	BaseURL        string   `yaml:"base_url" validate:"required,url"`
	Auth           string   `yaml:"auth" validate:"required,oneof=bearer api_key query_key"`
	CredentialKeys []string `yaml:"credential_keys" validate:"required,min=1,max=2,dive,required"`
	FailurePolicy  string   `yaml:"failure_policy" validate:"omitempty,oneof=marker passthrough"`
}

type Audit struct {
	Backend string        `yaml:"backend" default:"none" validate:"oneof=none kafka clickhouse"`
	Timeout time.Duration `yaml:"timeout" default:"2s"`
	// BufferSize bounds events queued for the sink; overflow is dropped.
	BufferSize int `yaml:"buffer_size" default:"1024" validate:"gt=0"`
}

type Kafka struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic" default:"finrelay.upstream_fetches"`
	RequiredAcks int           `yaml:"required_acks" default:"-1" validate:"oneof=-1 0 1"`
	Compression  string        `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
	MaxAttempts  int           `yaml:"max_attempts" default:"3"`
	BatchTimeout time.Duration `yaml:"batch_timeout" default:"10ms"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"5s"`
	Async        bool          `yaml:"async"`
}

type ClickHouse struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port" default:"9000"`
	Database     string        `yaml:"database" default:"finrelay"`
	Table        string        `yaml:"table" default:"upstream_fetches"`
	User         string        `yaml:"user" default:"default"`
	Password     string        `yaml:"password"`
	UseHTTP      bool          `yaml:"use_http"`
	AsyncInsert  bool          `yaml:"async_insert" default:"true"`
	WaitForAsync bool          `yaml:"wait_for_async_insert"`
	DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
}

type RateLimit struct {
	Backend string `yaml:"backend" default:"none" validate:"oneof=none memory redis"`
	// Token bucket (memory backend).
	Capacity     float64 `yaml:"capacity" default:"20"`
	RefillPerSec float64 `yaml:"refill_per_sec" default:"5"`
	// Fixed window (redis backend).
	Limit  int           `yaml:"limit" default:"300"`
	Window time.Duration `yaml:"window" default:"1m"`
}

type Redis struct {
	Host     string `yaml:"host" default:"localhost"`
	Port     int    `yaml:"port" default:"6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size" default:"10"`
	Prefix   string `yaml:"prefix" default:"finrelay"`
}

var validate = validator.New()

// DefaultProviders returns the three stock proxy instances.
func DefaultProviders() []Provider {
	return []Provider{
		{
			Name:           "groww",
			Kind:           KindGroww,
			Route:          "/api/in",
			BaseURL:        "https://api.groww.in",
			Auth:           AuthBearer,
			CredentialKeys: []string{"GROWW_ACCESS_TOKEN"},
			FailurePolicy:  PolicyMarker,
		},
		{
			Name:           "groww-key",
			Kind:           KindGroww,
			Route:          "/api/in/key",
			BaseURL:        "https://api.groww.in",
			Auth:           AuthAPIKey,
			CredentialKeys: []string{"GROWW_API_KEY", "GROWW_API_SECRET"},
			FailurePolicy:  PolicyMarker,
		},
		{
			Name:           "alphavantage",
			Kind:           KindAlphaVantage,
			Route:          "/api/us",
			BaseURL:        "https://www.alphavantage.co",
			Auth:           AuthQueryKey,
			CredentialKeys: []string{"ALPHAVANTAGE_KEY"},
			FailurePolicy:  PolicyPassthrough,
		},
	}
}

// Default returns a configuration with every tag default applied.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	return load(path, false)
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	return load(path, true)
}

func load(path string, withEnv bool) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(b, c); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if withEnv {
		c.applyEnv()
	}
	c.applyProviderDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = xutil.ParseIntDefault(v, c.Server.Port)
	}
	if v := os.Getenv("TRUSTED_PROXIES"); v != "" {
		c.Server.TrustedProxies = xutil.SplitCSV(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = strings.ToLower(v)
	}
	if v := os.Getenv("METRICS_ENABLED"); v != "" {
		c.Metrics.Enabled = xutil.ParseBoolDefault(v, c.Metrics.Enabled)
	}
	if v := os.Getenv("UPSTREAM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= 0 {
			c.Upstream.Timeout = d
		}
	}
	if v := os.Getenv("AUDIT_BACKEND"); v != "" {
		c.Audit.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = xutil.SplitCSV(v)
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("RATELIMIT_BACKEND"); v != "" {
		c.RateLimit.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		c.Redis.Port = xutil.ParseIntDefault(v, c.Redis.Port)
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}

	// Base URL overrides apply to every instance of the kind; used to point at sandboxes.
	growwURL := os.Getenv("GROWW_BASE_URL")
	avURL := os.Getenv("ALPHAVANTAGE_BASE_URL")
	if growwURL == "" && avURL == "" {
		return
	}
	if len(c.Providers) == 0 {
		c.Providers = DefaultProviders()
	}
	for i := range c.Providers {
		switch {
		case c.Providers[i].Kind == KindGroww && growwURL != "":
			c.Providers[i].BaseURL = growwURL
		case c.Providers[i].Kind == KindAlphaVantage && avURL != "":
			c.Providers[i].BaseURL = avURL
		}
	}
}

func (c *Config) applyProviderDefaults() {
	if len(c.Providers) == 0 {
		c.Providers = DefaultProviders()
	}
	for i := range c.Providers {
		p := &c.Providers[i]
		if p.FailurePolicy != "" {
			continue
		}
		if p.Kind == KindAlphaVantage {
			p.FailurePolicy = PolicyPassthrough
		} else {
			p.FailurePolicy = PolicyMarker
		}
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	reserved := map[string]bool{"/healthz": true}
	if c.Metrics.Enabled {
		reserved[c.Metrics.Path] = true
	}
	routes := make(map[string]string, len(c.Providers))
	for _, p := range c.Providers {
		if want := credentialCount(p.Auth); len(p.CredentialKeys) != want {
			return fmt.Errorf("providers[%s]: auth '%s' needs %d credential key(s), got %d", p.Name, p.Auth, want, len(p.CredentialKeys))
		}
		if reserved[p.Route] {
			return fmt.Errorf("providers[%s]: route '%s' is reserved", p.Name, p.Route)
		}
		if other, ok := routes[p.Route]; ok {
			return fmt.Errorf("providers[%s]: route '%s' already used by '%s'", p.Name, p.Route, other)
		}
		routes[p.Route] = p.Name
	}

	switch c.Audit.Backend {
	case BackendKafka:
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers cannot be empty when audit.backend is 'kafka'")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("kafka.topic is required when audit.backend is 'kafka'")
		}
	case BackendClickHouse:
		if c.ClickHouse.Host == "" {
			return fmt.Errorf("clickhouse.host is required when audit.backend is 'clickhouse'")
		}
	}

	switch c.RateLimit.Backend {
	case BackendMemory:
		if c.RateLimit.Capacity < 1 || c.RateLimit.RefillPerSec <= 0 {
			return fmt.Errorf("ratelimit: capacity must be >= 1 and refill_per_sec > 0")
		}
	case BackendRedis:
		if c.Redis.Host == "" {
			return fmt.Errorf("redis.host is required when ratelimit.backend is 'redis'")
		}
		if c.RateLimit.Limit < 1 || c.RateLimit.Window <= 0 {
			return fmt.Errorf("ratelimit: limit must be >= 1 and window > 0")
		}
	}
	return nil
}

func credentialCount(auth string) int {
	if auth == AuthAPIKey {
		return 2
	}
	return 1
}
