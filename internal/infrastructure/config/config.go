package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Telemetry TelemetryConfig
	Source    ExternalAPIConfig
	Target    ExternalAPIConfig
	Sync      SyncConfig
	Retry     RetryConfig
	Scheduler SchedulerConfig
	Reconcile ReconcileConfig
	Events    EventsConfig
	Cache     CacheConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	MigrateOnStart  bool
}

// RedisConfig holds Redis connection settings.
// Redis is optional: without it the scheduler lock, mapping invalidation and
// event relay stay process-local.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	ShutdownTimeout  time.Duration
	MaxHeaderBytes   int
	MaxBodyBytes     int64
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool    // Whether to enable OpenTelemetry
	CollectorEndpoint string  // OTEL Collector endpoint (e.g., "localhost:4317")
	SamplingRatio     float64 // Sampling ratio (0.0-1.0, 1.0 = 100%)
	ServiceName       string  // Service name for traces
	Insecure          bool    // Use insecure (non-TLS) connection (development only)
	MetricsInterval   time.Duration
	LogsEnabled       bool // Export zap logs over OTLP
	// Database tracing options
	DBTraceEnabled    bool          // Enable database query tracing (otelgorm)
	DBLogFullSQL      bool          // Log full SQL statements (dev only, disable in prod for security)
	DBSlowQueryThresh time.Duration // Slow query threshold for warnings (default: 200ms)
}

// ExternalAPIConfig holds the connection settings of a source or target system
type ExternalAPIConfig struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	RateLimit      float64 // requests per second, 0 = unlimited
	RateLimitBurst int
	MaxAttempts    int // attempts per call including the first
	PageSize       int
}

// SyncConfig holds orchestrator settings
type SyncConfig struct {
	PushBatchSize   int
	InitialLookback time.Duration

	// ApprovalThreshold diverts stock movements whose absolute quantity is at
	// or above it to the pending adjustment workflow. Empty disables the check.
	ApprovalThreshold     string
	ApplyApprovedToTarget bool
}

// RetryConfig holds retry engine settings
type RetryConfig struct {
	BatchSize int
	// MaxRetries caps automatic retries; a record reaching it is IGNORED.
	// Zero leaves retries unbounded so operators decide when to ignore a record.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// SchedulerConfig holds the background trigger configuration
type SchedulerConfig struct {
	Enabled       bool
	SyncInterval  time.Duration
	SyncScope     string // ALL or a single sync type
	RetryInterval time.Duration
	RunOnStart    bool
	JobTimeout    time.Duration
	LockTTL       time.Duration
	LockPrefix    string
}

// ReconcileConfig holds startup reconciliation settings
type ReconcileConfig struct {
	Enabled    bool
	StaleAfter time.Duration
}

// EventsConfig holds live notification settings
type EventsConfig struct {
	SSEHeartbeat  time.Duration
	SSEMaxClients int
	SSEBufferSize int
	RelayChannel  string
}

// CacheConfig holds mapping cache settings
type CacheConfig struct {
	MappingTTL          time.Duration
	CleanupInterval     time.Duration
	InvalidationChannel string
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with SYNC_ prefix (e.g., SYNC_DATABASE_PASSWORD)
// 2. .env file in the working directory
// 3. config.toml
// 4. Built-in defaults
func Load() (*Config, error) {
	// A missing .env is normal outside local development
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("SYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Booleans that default to true cannot be told apart from "unset" after GetBool
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("reconcile.enabled", true)
	v.SetDefault("sync.apply_approved_to_target", true)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			MigrateOnStart:  v.GetBool("database.migrate_on_start"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			ShutdownTimeout:  v.GetDuration("http.shutdown_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodyBytes:     v.GetInt64("http.max_body_bytes"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods: v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders: v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
		Source: loadExternalAPI(v, "source"),
		Target: loadExternalAPI(v, "target"),
		Sync: SyncConfig{
			PushBatchSize:         v.GetInt("sync.push_batch_size"),
			InitialLookback:       v.GetDuration("sync.initial_lookback"),
			ApprovalThreshold:     v.GetString("sync.approval_threshold"),
			ApplyApprovedToTarget: v.GetBool("sync.apply_approved_to_target"),
		},
		Retry: RetryConfig{
			BatchSize:  v.GetInt("retry.batch_size"),
			MaxRetries: v.GetInt("retry.max_retries"),
			BaseDelay:  v.GetDuration("retry.base_delay"),
			MaxDelay:   v.GetDuration("retry.max_delay"),
		},
		Scheduler: SchedulerConfig{
			Enabled:       v.GetBool("scheduler.enabled"),
			SyncInterval:  v.GetDuration("scheduler.sync_interval"),
			SyncScope:     v.GetString("scheduler.sync_scope"),
			RetryInterval: v.GetDuration("scheduler.retry_interval"),
			RunOnStart:    v.GetBool("scheduler.run_on_start"),
			JobTimeout:    v.GetDuration("scheduler.job_timeout"),
			LockTTL:       v.GetDuration("scheduler.lock_ttl"),
			LockPrefix:    v.GetString("scheduler.lock_prefix"),
		},
		Reconcile: ReconcileConfig{
			Enabled:    v.GetBool("reconcile.enabled"),
			StaleAfter: v.GetDuration("reconcile.stale_after"),
		},
		Events: EventsConfig{
			SSEHeartbeat:  v.GetDuration("events.sse_heartbeat"),
			SSEMaxClients: v.GetInt("events.sse_max_clients"),
			SSEBufferSize: v.GetInt("events.sse_buffer_size"),
			RelayChannel:  v.GetString("events.relay_channel"),
		},
		Cache: CacheConfig{
			MappingTTL:          v.GetDuration("cache.mapping_ttl"),
			CleanupInterval:     v.GetDuration("cache.cleanup_interval"),
			InvalidationChannel: v.GetString("cache.invalidation_channel"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadExternalAPI(v *viper.Viper, prefix string) ExternalAPIConfig {
	return ExternalAPIConfig{
		BaseURL:        v.GetString(prefix + ".base_url"),
		APIKey:         v.GetString(prefix + ".api_key"),
		Timeout:        v.GetDuration(prefix + ".timeout"),
		RateLimit:      v.GetFloat64(prefix + ".rate_limit"),
		RateLimitBurst: v.GetInt(prefix + ".rate_limit_burst"),
		MaxAttempts:    v.GetInt(prefix + ".max_attempts"),
		PageSize:       v.GetInt(prefix + ".page_size"),
	}
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "sync-engine"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "syncengine"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		// long enough for a manual sync run triggered over HTTP
		cfg.HTTP.WriteTimeout = 10 * time.Minute
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 30 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodyBytes == 0 {
		cfg.HTTP.MaxBodyBytes = 1 << 20
	}
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID"}
	}

	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 60 * time.Second
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}

	applyExternalDefaults(&cfg.Source)
	applyExternalDefaults(&cfg.Target)

	if cfg.Sync.PushBatchSize == 0 {
		cfg.Sync.PushBatchSize = 100
	}
	if cfg.Sync.InitialLookback == 0 {
		cfg.Sync.InitialLookback = 24 * time.Hour
	}

	if cfg.Retry.BatchSize == 0 {
		cfg.Retry.BatchSize = 50
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = 30 * time.Minute
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = 24 * time.Hour
	}

	if cfg.Scheduler.SyncInterval == 0 {
		cfg.Scheduler.SyncInterval = 6 * time.Hour
	}
	if cfg.Scheduler.SyncScope == "" {
		cfg.Scheduler.SyncScope = "ALL"
	}
	if cfg.Scheduler.RetryInterval == 0 {
		cfg.Scheduler.RetryInterval = 24 * time.Hour
	}
	if cfg.Scheduler.JobTimeout == 0 {
		cfg.Scheduler.JobTimeout = time.Hour
	}
	if cfg.Scheduler.LockTTL == 0 {
		cfg.Scheduler.LockTTL = cfg.Scheduler.JobTimeout + 5*time.Minute
	}
	if cfg.Scheduler.LockPrefix == "" {
		cfg.Scheduler.LockPrefix = "syncengine:job:"
	}

	if cfg.Reconcile.StaleAfter == 0 {
		cfg.Reconcile.StaleAfter = time.Hour
	}

	if cfg.Events.SSEHeartbeat == 0 {
		cfg.Events.SSEHeartbeat = 30 * time.Second
	}
	if cfg.Events.SSEMaxClients == 0 {
		cfg.Events.SSEMaxClients = 100
	}
	if cfg.Events.SSEBufferSize == 0 {
		cfg.Events.SSEBufferSize = 100
	}
	if cfg.Events.RelayChannel == "" {
		cfg.Events.RelayChannel = "syncengine:events"
	}

	if cfg.Cache.MappingTTL == 0 {
		cfg.Cache.MappingTTL = 10 * time.Minute
	}
	if cfg.Cache.CleanupInterval == 0 {
		cfg.Cache.CleanupInterval = time.Minute
	}
	if cfg.Cache.InvalidationChannel == "" {
		cfg.Cache.InvalidationChannel = "syncengine:mapping-invalidation"
	}
}

func applyExternalDefaults(c *ExternalAPIConfig) {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RateLimitBurst == 0 {
		c.RateLimitBurst = 1
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.PageSize == 0 {
		c.PageSize = 200
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries cannot be negative (0 means unbounded)")
	}
	if c.Retry.BaseDelay > c.Retry.MaxDelay {
		return fmt.Errorf("retry.base_delay (%s) cannot exceed retry.max_delay (%s)", c.Retry.BaseDelay, c.Retry.MaxDelay)
	}
	if c.Sync.PushBatchSize < 0 || c.Retry.BatchSize < 0 {
		return fmt.Errorf("sync.push_batch_size and retry.batch_size must be positive")
	}
	if c.Source.MaxAttempts < 1 || c.Target.MaxAttempts < 1 {
		return fmt.Errorf("source.max_attempts and target.max_attempts must be at least 1")
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Source.BaseURL == "" || c.Target.BaseURL == "" {
			return fmt.Errorf("source.base_url and target.base_url are required in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
