package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates application settings sourced from environment variables.
type Config struct {
	API       APIConfig       `mapstructure:"api"`
	Admin     AdminConfig     `mapstructure:"admin"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Sections  SectionsConfig  `mapstructure:"sections"`
	Uploads   UploadsConfig   `mapstructure:"uploads"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	MinIO     MinIOConfig     `mapstructure:"minio"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port           int      `mapstructure:"port"`
	BaseURL        string   `mapstructure:"base_url"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	Production     bool     `mapstructure:"production"`
}

// AdminConfig 管理后台登录相关配置。
// 明文密码优先于 bcrypt 哈希，两者至少配置一个时才能登录。
type AdminConfig struct {
	Password          string `mapstructure:"password"`
	PasswordHash      string `mapstructure:"password_hash"`
	JWTSecret         string `mapstructure:"jwt_secret"`
	TokenTTLMinutes   int    `mapstructure:"token_ttl_minutes"`
	TokenTTLHours     int    `mapstructure:"token_ttl_hours"`
	AllowLegacyCookie bool   `mapstructure:"allow_legacy_cookie"`
}

// TokenTTL 与登录 Cookie 的有效期保持一致：分钟优先，否则按小时且至少 1 小时。
func (a AdminConfig) TokenTTL() time.Duration {
	if a.TokenTTLMinutes > 0 {
		return time.Duration(a.TokenTTLMinutes) * time.Minute
	}
	return time.Duration(max(1, a.TokenTTLHours)) * time.Hour
}

// RateLimitConfig 登录限流参数。
type RateLimitConfig struct {
	Window      time.Duration `mapstructure:"window"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	Block       time.Duration `mapstructure:"block"`
}

// SectionsConfig 决定首页区块文档的存储后端。
type SectionsConfig struct {
	Store           string        `mapstructure:"store"`
	FilePath        string        `mapstructure:"file_path"`
	PublishEnabled  bool          `mapstructure:"publish_enabled"`
	PublishUnique   time.Duration `mapstructure:"publish_unique"`
}

const (
	SectionsStoreDatabase = "database"
	SectionsStoreFile     = "file"
)

// UploadsConfig 上传限制与病毒扫描。ClamdAddr 为空时跳过扫描。
type UploadsConfig struct {
	MaxBytes  int64  `mapstructure:"max_bytes"`
	ClamdAddr string `mapstructure:"clamd_addr"`
}

// WorkerConfig 控制发布任务的消费。
type WorkerConfig struct {
	Concurrency    int  `mapstructure:"concurrency"`
	PreviewEnabled bool `mapstructure:"preview_enabled"`
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig 包含 Redis 连接配置。
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr 返回 host:port 形式的地址。
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint         string `mapstructure:"endpoint"`
	PublicEndpoint   string `mapstructure:"public_endpoint"`
	AccessKeyID      string `mapstructure:"access_key_id"`
	SecretAccessKey  string `mapstructure:"secret_access_key"`
	UseSSL           bool   `mapstructure:"use_ssl"`
	Bucket           string `mapstructure:"bucket"`
	Region           string `mapstructure:"region"`
	BucketLookup     string `mapstructure:"bucket_lookup"`
	AutoCreateBucket bool   `mapstructure:"auto_create_bucket"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Load reads configuration solely from environment variables (with optional defaults).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Sections.Store = strings.ToLower(strings.TrimSpace(cfg.Sections.Store))

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.base_url", "http://localhost:8080")
	v.SetDefault("api.production", false)
	v.SetDefault("admin.token_ttl_minutes", 0)
	v.SetDefault("admin.token_ttl_hours", 3)
	v.SetDefault("admin.allow_legacy_cookie", false)
	v.SetDefault("ratelimit.window", 15*time.Minute)
	v.SetDefault("ratelimit.max_attempts", 5)
	v.SetDefault("ratelimit.block", 30*time.Minute)
	v.SetDefault("sections.store", SectionsStoreDatabase)
	v.SetDefault("sections.file_path", "data/home_sections.json")
	v.SetDefault("sections.publish_enabled", true)
	v.SetDefault("sections.publish_unique", 5*time.Second)
	v.SetDefault("uploads.max_bytes", 50*1024*1024)
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.preview_enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "sitecms")
	v.SetDefault("database.user", "sitecms")
	v.SetDefault("database.password", "sitecms")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.public_endpoint", "http://localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "sitecms")
	v.SetDefault("minio.bucket_lookup", "auto")
	v.SetDefault("minio.auto_create_bucket", true)
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                   "API_PORT",
		"api.base_url":               "API_BASE_URL",
		"api.allowed_origins":        "API_ALLOWED_ORIGINS",
		"api.production":             "API_PRODUCTION",
		"admin.password":             "ADMIN_PASSWORD",
		"admin.password_hash":        "ADMIN_PASSWORD_HASH",
		"admin.jwt_secret":           "JWT_SECRET",
		"admin.token_ttl_minutes":    "ADMIN_TOKEN_TTL_MINUTES",
		"admin.token_ttl_hours":      "ADMIN_TOKEN_TTL_HOURS",
		"admin.allow_legacy_cookie":  "ADMIN_ALLOW_LEGACY_COOKIE",
		"ratelimit.window":           "LOGIN_RATE_WINDOW",
		"ratelimit.max_attempts":     "LOGIN_RATE_MAX_ATTEMPTS",
		"ratelimit.block":            "LOGIN_RATE_BLOCK",
		"sections.store":             "SECTIONS_STORE",
		"sections.file_path":         "SECTIONS_FILE_PATH",
		"sections.publish_enabled":   "SECTIONS_PUBLISH_ENABLED",
		"sections.publish_unique":    "SECTIONS_PUBLISH_UNIQUE",
		"uploads.max_bytes":          "UPLOADS_MAX_BYTES",
		"uploads.clamd_addr":         "CLAMD_ADDR",
		"worker.concurrency":         "WORKER_CONCURRENCY",
		"worker.preview_enabled":     "WORKER_PREVIEW_ENABLED",
		"database.host":              "DATABASE_HOST",
		"database.port":              "DATABASE_PORT",
		"database.name":              "POSTGRES_DB",
		"database.user":              "POSTGRES_USER",
		"database.password":          "POSTGRES_PASSWORD",
		"database.sslmode":           "DATABASE_SSLMODE",
		"database.max_open_conns":    "DATABASE_MAX_OPEN_CONNS",
		"database.max_idle_conns":    "DATABASE_MAX_IDLE_CONNS",
		"database.conn_max_lifetime": "DATABASE_CONN_MAX_LIFETIME",
		"redis.host":                 "REDIS_HOST",
		"redis.port":                 "REDIS_PORT",
		"minio.endpoint":             "MINIO_ENDPOINT",
		"minio.public_endpoint":      "MINIO_PUBLIC_ENDPOINT",
		"minio.access_key_id":        "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":    "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":              "MINIO_USE_SSL",
		"minio.bucket":               "MINIO_BUCKET",
		"minio.region":               "MINIO_REGION",
		"minio.bucket_lookup":        "MINIO_BUCKET_LOOKUP",
		"minio.auto_create_bucket":   "MINIO_AUTO_CREATE_BUCKET",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	if strings.TrimSpace(cfg.Admin.JWTSecret) == "" {
		return errors.New("jwt secret is required")
	}
	if cfg.RateLimit.MaxAttempts <= 0 {
		return errors.New("login rate max attempts must be positive")
	}
	if cfg.RateLimit.Window <= 0 || cfg.RateLimit.Block <= 0 {
		return errors.New("login rate window and block must be positive")
	}
	switch cfg.Sections.Store {
	case SectionsStoreDatabase:
	case SectionsStoreFile:
		if strings.TrimSpace(cfg.Sections.FilePath) == "" {
			return errors.New("sections file path is required for the file store")
		}
	default:
		return fmt.Errorf("unknown sections store %q", cfg.Sections.Store)
	}
	if cfg.Uploads.MaxBytes <= 0 {
		return errors.New("upload max bytes must be positive")
	}
	if cfg.Worker.Concurrency <= 0 {
		return errors.New("worker concurrency must be positive")
	}
	if cfg.Database.Host == "" {
		return errors.New("database host is required")
	}
	if cfg.Database.Port <= 0 {
		return errors.New("database port must be positive")
	}
	if cfg.Database.Name == "" {
		return errors.New("database name is required")
	}
	if cfg.Database.User == "" {
		return errors.New("database user is required")
	}
	if cfg.Database.Password == "" {
		return errors.New("database password is required")
	}
	if cfg.Database.SSLMode == "" {
		return errors.New("database sslmode is required")
	}
	if cfg.Redis.Host == "" {
		return errors.New("redis host is required")
	}
	if cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}
	if cfg.MinIO.Endpoint == "" {
		return errors.New("minio endpoint is required")
	}
	if cfg.MinIO.AccessKeyID == "" {
		return errors.New("minio access key id is required")
	}
	if cfg.MinIO.SecretAccessKey == "" {
		return errors.New("minio secret access key is required")
	}
	if cfg.MinIO.Bucket == "" {
		return errors.New("minio bucket is required")
	}
	return nil
}
