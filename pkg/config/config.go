package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const EnvPrefix = "AJSHOES"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	StateBackendMemory = "memory"
	StateBackendRedis  = "redis"
	StateBackendSQLite = "sqlite"
)

const (
	EnvAppEnv       = "AJSHOES_APP_ENV"
	EnvAPIBaseURL   = "AJSHOES_API_BASE_URL"
	EnvWSBaseURL    = "AJSHOES_WS_BASE_URL"
	EnvStateBackend = "AJSHOES_STATE_BACKEND"
	EnvRedisURL     = "AJSHOES_REDIS_URL"
	EnvPollInterval = "AJSHOES_REALTIME_POLL_INTERVAL"
)

type Config struct {
	App       AppConfig
	API       APIConfig
	Realtime  RealtimeConfig
	State     StateConfig
	Redis     RedisConfig
	Metrics   MetricsConfig
	Reporting ReportingConfig
	Twin      TwinConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"AJSHOES_APP_ENV" default:"dev"`
	LogLevel     string `envconfig:"AJSHOES_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"AJSHOES_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"AJSHOES_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type APIConfig struct {
	BaseURL string `envconfig:"AJSHOES_API_BASE_URL" default:"http://localhost:8000"`
	// RequestTimeout of zero leaves REST calls bounded only by the caller's context.
	RequestTimeout time.Duration `envconfig:"AJSHOES_API_REQUEST_TIMEOUT" default:"0s"`
	RefreshSkew    time.Duration `envconfig:"AJSHOES_API_REFRESH_SKEW" default:"30s"`
}

type RealtimeConfig struct {
	// WSBaseURL empty means the real-time path is not configured and feeds
	// start in fallback polling.
	WSBaseURL           string        `envconfig:"AJSHOES_WS_BASE_URL"`
	HandshakeTimeout    time.Duration `envconfig:"AJSHOES_REALTIME_HANDSHAKE_TIMEOUT" default:"10s"`
	BaseDelay           time.Duration `envconfig:"AJSHOES_REALTIME_BASE_DELAY" default:"1s"`
	MaxDelay            time.Duration `envconfig:"AJSHOES_REALTIME_MAX_DELAY" default:"30s"`
	MaxAttempts         int           `envconfig:"AJSHOES_REALTIME_MAX_ATTEMPTS" default:"5"`
	PollInterval        time.Duration `envconfig:"AJSHOES_REALTIME_POLL_INTERVAL" default:"30s"`
	RetryInterval       time.Duration `envconfig:"AJSHOES_REALTIME_RETRY_INTERVAL" default:"0s"`
	DedupTTL            time.Duration `envconfig:"AJSHOES_REALTIME_DEDUP_TTL" default:"5m"`
	DedupCapacity       int           `envconfig:"AJSHOES_REALTIME_DEDUP_CAPACITY" default:"50"`
	ChatHistoryCap      int           `envconfig:"AJSHOES_CHAT_HISTORY_CAP" default:"200"`
	NotificationListCap int           `envconfig:"AJSHOES_NOTIFICATION_LIST_CAP" default:"30"`
}

type StateConfig struct {
	Backend    string `envconfig:"AJSHOES_STATE_BACKEND" default:"sqlite"`
	SQLitePath string `envconfig:"AJSHOES_STATE_SQLITE_PATH" default:"ajshoes-state.db"`
	// Profile namespaces persisted tokens and cursors so several accounts can
	// share one state backend.
	Profile string `envconfig:"AJSHOES_PROFILE" default:"default"`
}

type RedisConfig struct {
	URL          string        `envconfig:"AJSHOES_REDIS_URL"`
	Address      string        `envconfig:"AJSHOES_REDIS_ADDR"`
	Password     string        `envconfig:"AJSHOES_REDIS_PASSWORD"`
	DB           int           `envconfig:"AJSHOES_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"AJSHOES_REDIS_POOL_SIZE" default:"4"`
	MinIdleConns int           `envconfig:"AJSHOES_REDIS_MIN_IDLE_CONNS" default:"1"`
	DialTimeout  time.Duration `envconfig:"AJSHOES_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"AJSHOES_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"AJSHOES_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type MetricsConfig struct {
	Addr string `envconfig:"AJSHOES_METRICS_ADDR" default:"127.0.0.1:9464"`
}

type ReportingConfig struct {
	Enabled     bool          `envconfig:"AJSHOES_REPORTING_ENABLED" default:"true"`
	DedupWindow time.Duration `envconfig:"AJSHOES_REPORTING_DEDUP_WINDOW" default:"15s"`
}

type TwinConfig struct {
	Addr      string `envconfig:"AJSHOES_TWIN_ADDR" default:"127.0.0.1:8000"`
	JWTSecret string `envconfig:"AJSHOES_TWIN_JWT_SECRET" default:"twin-secret"`
	Issuer    string `envconfig:"AJSHOES_TWIN_JWT_ISSUER" default:"ajshoes-twin"`
	// AccessTTL is kept short by default so refresh paths get exercised.
	AccessTTL time.Duration `envconfig:"AJSHOES_TWIN_ACCESS_TTL" default:"15m"`

	LoginWindow        time.Duration `envconfig:"AJSHOES_TWIN_LOGIN_WINDOW" default:"1m"`
	LoginIPLimit       int           `envconfig:"AJSHOES_TWIN_LOGIN_IP_LIMIT" default:"20"`
	LoginUsernameLimit int           `envconfig:"AJSHOES_TWIN_LOGIN_USERNAME_LIMIT" default:"10"`
	// CORSOrigins are allowed in addition to the local storefront dev servers.
	CORSOrigins []string `envconfig:"AJSHOES_TWIN_CORS_ORIGINS"`
}

func (c *Config) validate() error {
	if _, err := url.ParseRequestURI(c.API.BaseURL); err != nil {
		return fmt.Errorf("%s is not a valid url: %w", EnvAPIBaseURL, err)
	}
	if c.Realtime.WSBaseURL != "" {
		u, err := url.Parse(c.Realtime.WSBaseURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return fmt.Errorf("%s must be a ws:// or wss:// url", EnvWSBaseURL)
		}
	}
	switch strings.ToLower(c.State.Backend) {
	case StateBackendMemory, StateBackendSQLite:
	case StateBackendRedis:
		if c.Redis.URL == "" && c.Redis.Address == "" {
			return fmt.Errorf("%s=redis requires %s", EnvStateBackend, EnvRedisURL)
		}
	default:
		return fmt.Errorf("%s must be one of memory, redis, sqlite", EnvStateBackend)
	}
	if c.Realtime.MaxAttempts <= 0 {
		return fmt.Errorf("realtime max attempts must be positive")
	}
	if c.Realtime.PollInterval <= 0 {
		return fmt.Errorf("%s must be positive", EnvPollInterval)
	}
	return nil
}

// WSURL joins the websocket base with path. It returns "" when real-time is
// not configured.
func (r RealtimeConfig) WSURL(path string) string {
	if r.WSBaseURL == "" {
		return ""
	}
	return strings.TrimRight(r.WSBaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}
