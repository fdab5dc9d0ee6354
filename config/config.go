package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	JWT         JWTConfig         `yaml:"jwt"`
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
	Upload      UploadConfig      `yaml:"upload"`
	Quota       QuotaConfig       `yaml:"quota"`
	Pagination  PaginationConfig  `yaml:"pagination"`
	Tree        TreeConfig        `yaml:"tree"`
	Thumbnail   ThumbnailConfig   `yaml:"thumbnail"`
	Cleanup     CleanupConfig     `yaml:"cleanup"`
	Log         LogConfig         `yaml:"log"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

type ServerConfig struct {
	Port int    `yaml:"port" validate:"gte=0,lte=65535"`
	Host string `yaml:"host"`
}

type DatabaseConfig struct {
	Driver       string `yaml:"driver" validate:"oneof=mysql postgres sqlite"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database"`
	Charset      string `yaml:"charset"`
	SSLMode      string `yaml:"ssl_mode"`
	Path         string `yaml:"path"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	LogQueries   bool   `yaml:"log_queries"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type JWTConfig struct {
	Secret      string `yaml:"secret" validate:"required"`
	ExpireHours int    `yaml:"expire_hours" validate:"gt=0"`
}

type ObjectStoreConfig struct {
	Driver          string `yaml:"driver" validate:"oneof=s3 minio"`
	Bucket          string `yaml:"bucket" validate:"required"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UseSSL          bool   `yaml:"use_ssl"`
	ForcePathStyle  bool   `yaml:"force_path_style"`
	// MinPartSize and MaxParts are the multipart limits imposed by the store.
	MinPartSize       int64 `yaml:"min_part_size" validate:"gt=0"`
	MaxParts          int64 `yaml:"max_parts" validate:"gt=0"`
	PresignTTLSeconds int   `yaml:"presign_ttl_seconds" validate:"gt=0"`
}

type UploadConfig struct {
	SigningSecret        string `yaml:"signing_secret" validate:"required"`
	CommitBaseURL        string `yaml:"commit_base_url"`
	SessionTTLSeconds    int    `yaml:"session_ttl_seconds" validate:"gt=0"`
	CommitLockTTLSeconds int    `yaml:"commit_lock_ttl_seconds" validate:"gt=0"`
}

type QuotaConfig struct {
	OvercommitMargin     float64 `yaml:"overcommit_margin" validate:"gte=0,lte=1"`
	DefaultMemberQuota   int64   `yaml:"default_member_quota" validate:"gt=0"`
	DefaultResourceQuota int64   `yaml:"default_resource_quota" validate:"gt=0"`
	DefaultStorageQuota  int64   `yaml:"default_storage_quota" validate:"gt=0"`
}

type PaginationConfig struct {
	PageSize int `yaml:"page_size" validate:"gt=0"`
}

type TreeConfig struct {
	MaxDepth int `yaml:"max_depth" validate:"gt=0"`
}

type ThumbnailConfig struct {
	Enabled         bool `yaml:"enabled"`
	Width           int  `yaml:"width"`
	Height          int  `yaml:"height"`
	Quality         int  `yaml:"quality" validate:"gte=0,lte=100"`
	IntervalSeconds int  `yaml:"interval_seconds"`
	BatchSize       int  `yaml:"batch_size"`
	RetryMax        int  `yaml:"retry_max"`
}

type CleanupConfig struct {
	Enabled         bool `yaml:"enabled"`
	IntervalSeconds int  `yaml:"interval_seconds"`
	BatchSize       int  `yaml:"batch_size"`
}

type LogConfig struct {
	Level  string          `yaml:"level" validate:"oneof=debug info warn error"`
	Format string          `yaml:"format" validate:"oneof=json text"`
	File   string          `yaml:"file"`
	Rotate LogRotateConfig `yaml:"rotate"`
}

type LogRotateConfig struct {
	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days"`
	Compress   bool `yaml:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

func (c ObjectStoreConfig) PresignTTL() time.Duration {
	return time.Duration(c.PresignTTLSeconds) * time.Second
}

func (c UploadConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSeconds) * time.Second
}

func (c UploadConfig) CommitLockTTL() time.Duration {
	return time.Duration(c.CommitLockTTLSeconds) * time.Second
}

var AppConfig *Config

// LoadConfig reads the yaml file at path, loads a sibling .env file when
// present, applies TEAMDRIVE_* overrides and defaults, then validates.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// .env is optional
	_ = godotenv.Load()

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	AppConfig = cfg
	return cfg, nil
}

// Parse builds a Config from yaml bytes and the process environment.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Database.Password, "TEAMDRIVE_DATABASE_PASSWORD")
	setString(&cfg.Redis.Password, "TEAMDRIVE_REDIS_PASSWORD")
	setString(&cfg.JWT.Secret, "TEAMDRIVE_JWT_SECRET")
	setString(&cfg.Upload.SigningSecret, "TEAMDRIVE_SIGNING_SECRET")
	setString(&cfg.ObjectStore.AccessKeyID, "TEAMDRIVE_OBJECT_STORE_ACCESS_KEY_ID")
	setString(&cfg.ObjectStore.SecretAccessKey, "TEAMDRIVE_OBJECT_STORE_SECRET_ACCESS_KEY")
	setString(&cfg.ObjectStore.Endpoint, "TEAMDRIVE_OBJECT_STORE_ENDPOINT")
	setString(&cfg.Log.Level, "TEAMDRIVE_LOG_LEVEL")
	if v := os.Getenv("TEAMDRIVE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.Driver == "sqlite" && cfg.Database.Path == "" {
		cfg.Database.Path = "teamdrive.db"
	}
	if cfg.Database.Charset == "" {
		cfg.Database.Charset = "utf8mb4"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 10
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 50
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "127.0.0.1"
	}
	if cfg.JWT.ExpireHours == 0 {
		cfg.JWT.ExpireHours = 24
	}
	if cfg.ObjectStore.Driver == "" {
		cfg.ObjectStore.Driver = "s3"
	}
	if cfg.ObjectStore.Region == "" {
		cfg.ObjectStore.Region = "us-east-1"
	}
	if cfg.ObjectStore.MinPartSize == 0 {
		cfg.ObjectStore.MinPartSize = 6 << 20
	}
	if cfg.ObjectStore.MaxParts == 0 {
		cfg.ObjectStore.MaxParts = 10000
	}
	if cfg.ObjectStore.PresignTTLSeconds == 0 {
		cfg.ObjectStore.PresignTTLSeconds = 24 * 3600
	}
	if cfg.Upload.SessionTTLSeconds == 0 {
		cfg.Upload.SessionTTLSeconds = 7 * 24 * 3600
	}
	if cfg.Upload.CommitLockTTLSeconds == 0 {
		cfg.Upload.CommitLockTTLSeconds = 300
	}
	if cfg.Quota.OvercommitMargin == 0 {
		cfg.Quota.OvercommitMargin = 0.10
	}
	if cfg.Quota.DefaultMemberQuota == 0 {
		cfg.Quota.DefaultMemberQuota = 1
	}
	if cfg.Quota.DefaultResourceQuota == 0 {
		cfg.Quota.DefaultResourceQuota = 10000
	}
	if cfg.Quota.DefaultStorageQuota == 0 {
		cfg.Quota.DefaultStorageQuota = 10 << 30
	}
	if cfg.Pagination.PageSize == 0 {
		cfg.Pagination.PageSize = 100
	}
	if cfg.Tree.MaxDepth == 0 {
		cfg.Tree.MaxDepth = 256
	}
	if cfg.Thumbnail.Width == 0 {
		cfg.Thumbnail.Width = 320
	}
	if cfg.Thumbnail.Height == 0 {
		cfg.Thumbnail.Height = 320
	}
	if cfg.Thumbnail.Quality == 0 {
		cfg.Thumbnail.Quality = 80
	}
	if cfg.Thumbnail.IntervalSeconds == 0 {
		cfg.Thumbnail.IntervalSeconds = 30
	}
	if cfg.Thumbnail.BatchSize == 0 {
		cfg.Thumbnail.BatchSize = 20
	}
	if cfg.Thumbnail.RetryMax == 0 {
		cfg.Thumbnail.RetryMax = 3
	}
	if cfg.Cleanup.IntervalSeconds == 0 {
		cfg.Cleanup.IntervalSeconds = 3600
	}
	if cfg.Cleanup.BatchSize == 0 {
		cfg.Cleanup.BatchSize = 200
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Log.Rotate.MaxSizeMB == 0 {
		cfg.Log.Rotate.MaxSizeMB = 100
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}
