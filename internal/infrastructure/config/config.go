package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides
const EnvPrefix = "PARTNER"

// Orphan policies for the reconciliation sweep
const (
	OrphanPolicyReport  = "report"
	OrphanPolicyRestore = "restore"
	OrphanPolicyRemove  = "remove"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	HTTP      HTTPConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Log       LogConfig
	Telemetry TelemetryConfig
	Directory DirectoryConfig
	Partner   PartnerConfig
	Reconcile ReconcileConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxHeaderBytes   int
	MaxBodySize      int64
	CORSAllowOrigins []string
	CORSAllowMethods []string
	CORSAllowHeaders []string
	TrustedProxies   []string
	// WriteRateLimit caps mutating requests per caller per WriteRateWindow;
	// zero disables the limit
	WriteRateLimit  int
	WriteRateWindow time.Duration
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
	LogLevel        string
	AutoMigrate     bool
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// JWTConfig holds settings for verifying wallet-auth bearer tokens
type JWTConfig struct {
	Enabled      bool
	Secret       string
	Issuer       string
	AddressClaim string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
	Export bool   // also ship logs over OTLP
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64
	ServiceName       string
	Insecure          bool
	MetricsInterval   time.Duration
	DBTraceEnabled    bool
	DBLogFullSQL      bool
	DBSlowQueryThresh time.Duration
}

// DirectoryConfig controls company name resolution
type DirectoryConfig struct {
	Table       string
	CacheTTL    time.Duration
	NegativeTTL time.Duration
}

// PartnerConfig holds relationship service behaviour switches
type PartnerConfig struct {
	AtomicPairWrites  bool
	RejectReversePair bool
}

// ReconcileConfig holds mirror reconciliation settings
type ReconcileConfig struct {
	Enabled       bool
	Workers       int
	QueueSize     int
	JobTimeout    time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
	SweepInterval time.Duration
	SweepLimit    int
	OrphanPolicy  string
	DedupWindow   time.Duration // zero queues every warning
}

// Load loads configuration from config.toml and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with PARTNER_ prefix (e.g., PARTNER_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return fromViper(v)
}

// LoadFile loads configuration from an explicit file path plus env overrides
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("partner.reject_reverse_pair", false)
	v.SetDefault("reconcile.enabled", true)
	v.SetDefault("reconcile.dedup_window", 30*time.Second)
	v.SetDefault("http.write_rate_limit", 60)
	v.SetDefault("http.write_rate_window", time.Minute)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			CORSAllowMethods: v.GetStringSlice("http.cors_allow_methods"),
			CORSAllowHeaders: v.GetStringSlice("http.cors_allow_headers"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
			WriteRateLimit:   v.GetInt("http.write_rate_limit"),
			WriteRateWindow:  v.GetDuration("http.write_rate_window"),
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
			LogLevel:        v.GetString("database.log_level"),
			AutoMigrate:     v.GetBool("database.auto_migrate"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Enabled:      v.GetBool("jwt.enabled"),
			Secret:       v.GetString("jwt.secret"),
			Issuer:       v.GetString("jwt.issuer"),
			AddressClaim: v.GetString("jwt.address_claim"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
			Export: v.GetBool("log.export"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
		Directory: DirectoryConfig{
			Table:       v.GetString("directory.table"),
			CacheTTL:    v.GetDuration("directory.cache_ttl"),
			NegativeTTL: v.GetDuration("directory.negative_cache_ttl"),
		},
		Partner: PartnerConfig{
			AtomicPairWrites:  v.GetBool("partner.atomic_pair_writes"),
			RejectReversePair: v.GetBool("partner.reject_reverse_pair"),
		},
		Reconcile: ReconcileConfig{
			Enabled:       v.GetBool("reconcile.enabled"),
			Workers:       v.GetInt("reconcile.workers"),
			QueueSize:     v.GetInt("reconcile.queue_size"),
			JobTimeout:    v.GetDuration("reconcile.job_timeout"),
			MaxRetries:    v.GetInt("reconcile.max_retries"),
			RetryDelay:    v.GetDuration("reconcile.retry_delay"),
			SweepInterval: v.GetDuration("reconcile.sweep_interval"),
			SweepLimit:    v.GetInt("reconcile.sweep_limit"),
			OrphanPolicy:  strings.ToLower(v.GetString("reconcile.orphan_policy")),
			DedupWindow:   v.GetDuration("reconcile.dedup_window"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "partner-service"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20
	}
	// CORS origins stay empty unless configured: no cross-origin access by default.
	if len(cfg.HTTP.CORSAllowMethods) == 0 {
		cfg.HTTP.CORSAllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	}
	if len(cfg.HTTP.CORSAllowHeaders) == 0 {
		cfg.HTTP.CORSAllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID"}
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
		cfg.Database.DBName = "partner"
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
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "wallet-auth"
	}
	if cfg.JWT.AddressClaim == "" {
		cfg.JWT.AddressClaim = "address"
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
	if cfg.Directory.Table == "" {
		cfg.Directory.Table = "companies"
	}
	if cfg.Directory.CacheTTL == 0 {
		cfg.Directory.CacheTTL = 10 * time.Minute
	}
	if cfg.Directory.NegativeTTL == 0 {
		cfg.Directory.NegativeTTL = time.Minute
	}
	if cfg.Reconcile.Workers == 0 {
		cfg.Reconcile.Workers = 2
	}
	if cfg.Reconcile.QueueSize == 0 {
		cfg.Reconcile.QueueSize = 256
	}
	if cfg.Reconcile.JobTimeout == 0 {
		cfg.Reconcile.JobTimeout = 10 * time.Second
	}
	if cfg.Reconcile.MaxRetries == 0 {
		cfg.Reconcile.MaxRetries = 3
	}
	if cfg.Reconcile.RetryDelay == 0 {
		cfg.Reconcile.RetryDelay = time.Second
	}
	if cfg.Reconcile.SweepLimit == 0 {
		cfg.Reconcile.SweepLimit = 500
	}
	if cfg.Reconcile.OrphanPolicy == "" {
		cfg.Reconcile.OrphanPolicy = OrphanPolicyReport
	}
}

// Validate performs validation on the configuration
func (c *Config) Validate() error {
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
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("database.port out of range: %d", c.Database.Port)
	}
	if c.JWT.Enabled && c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required when jwt.enabled is true")
	}
	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	if !validIdentifier(c.Directory.Table) {
		return fmt.Errorf("directory.table %q is not a valid table name", c.Directory.Table)
	}
	switch c.Reconcile.OrphanPolicy {
	case OrphanPolicyReport, OrphanPolicyRestore, OrphanPolicyRemove:
	default:
		return fmt.Errorf("reconcile.orphan_policy must be one of report, restore, remove; got %q", c.Reconcile.OrphanPolicy)
	}
	if c.Reconcile.Workers < 0 || c.Reconcile.QueueSize < 0 || c.Reconcile.MaxRetries < 0 {
		return fmt.Errorf("reconcile workers, queue_size and max_retries cannot be negative")
	}
	if c.HTTP.WriteRateLimit < 0 {
		return fmt.Errorf("http.write_rate_limit cannot be negative")
	}
	if c.HTTP.WriteRateLimit > 0 && c.HTTP.WriteRateWindow <= 0 {
		return fmt.Errorf("http.write_rate_window must be positive when write_rate_limit is set")
	}
	if c.Reconcile.SweepInterval < 0 || c.Reconcile.DedupWindow < 0 {
		return fmt.Errorf("reconcile.sweep_interval and dedup_window cannot be negative")
	}

	if c.App.Env == "production" {
		if c.JWT.Enabled && len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("cors_allow_origins cannot be '*' in production (use specific origins)")
			}
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production")
		}
	}
	return nil
}

// validIdentifier accepts [A-Za-z_][A-Za-z0-9_]* optionally schema-qualified
func validIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, part := range strings.Split(s, ".") {
		if part == "" {
			return false
		}
		for i, r := range part {
			switch {
			case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			case r >= '0' && r <= '9' && i > 0:
			default:
				return false
			}
		}
	}
	return true
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
