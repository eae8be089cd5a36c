package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	BaseURL         string
	UserAgent       string
	Timeout         time.Duration
	RequestInterval time.Duration // 0 disables pacing

	PageSize          int
	CountersMaxPages  int // -1 to harvest all pages
	CountsMaxPages    int // -1 to harvest all pages
	RecentDays        int
	FallbackSortField string

	StorageBackend string // fs or s3
	BronzeDir      string
	InputDir       string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	S3Bucket       string
	S3Region       string
	S3UseSSL       bool
	S3KeyPrefix    string

	MongoURI         string // empty disables the catalog
	MongoDBName      string
	RabbitURI        string // empty disables events
	RabbitExchange   string
	RabbitRoutingKey string

	PollInterval time.Duration
	MaxPolls     int // -1 is unlimited
	RunTimeout   time.Duration
	HTTPAddr     string
}

const (
	BaseURL           = "OPENDATA_BASE_URL"
	UserAgent         = "USER_AGENT"
	Timeout           = "HTTP_TIMEOUT"
	RequestInterval   = "REQUEST_INTERVAL"
	PageSize          = "PAGE_SIZE"
	CountersMaxPages  = "COUNTERS_MAX_PAGES"
	CountsMaxPages    = "COUNTS_MAX_PAGES"
	RecentDays        = "RECENT_DAYS"
	FallbackSortField = "FALLBACK_SORT_FIELD"
	StorageBackend    = "STORAGE_BACKEND"
	BronzeDir         = "BRONZE_DIR"
	InputDir          = "INPUT_DIR"
	S3Endpoint        = "S3_ENDPOINT"
	S3AccessKey       = "S3_ACCESS_KEY"
	S3SecretKey       = "S3_SECRET_KEY"
	S3Bucket          = "S3_BUCKET"
	S3Region          = "S3_REGION"
	S3UseSSL          = "S3_USE_SSL"
	S3KeyPrefix       = "S3_KEY_PREFIX"
	MongoURI          = "MONGO_URI"
	MongoDBName       = "MONGO_DB_NAME"
	RabbitURIEnv      = "RABBIT_URI"
	RabbitExchangeEnv = "RABBIT_EXCHANGE"
	RabbitRoutingKey  = "RABBIT_ROUTING_KEY"
	PollInterval      = "POLL_INTERVAL"
	MaxPolls          = "MAX_POLLS"
	RunTimeout        = "RUN_TIMEOUT"
	HTTPAddr          = "HTTP_ADDR"
)

const (
	BackendFS = "fs"
	BackendS3 = "s3"
)

func FromEnv() (Config, error) {
	var cfg Config

	cfg.BaseURL = getEnv(BaseURL, "https://opendata.paris.fr/api/records/1.0/search/")
	cfg.UserAgent = getEnv(UserAgent, "analytics-data-pipeline/1.0")
	cfg.FallbackSortField = getEnv(FallbackSortField, "record_timestamp")
	cfg.StorageBackend = getEnv(StorageBackend, BackendFS)
	cfg.BronzeDir = getEnv(BronzeDir, "data/bronze")
	cfg.InputDir = getEnv(InputDir, "data/input")
	cfg.S3Endpoint = getEnv(S3Endpoint, "")
	cfg.S3AccessKey = getEnv(S3AccessKey, "")
	cfg.S3SecretKey = getEnv(S3SecretKey, "")
	cfg.S3Bucket = getEnv(S3Bucket, "bronze")
	cfg.S3Region = getEnv(S3Region, "")
	cfg.S3KeyPrefix = getEnv(S3KeyPrefix, "")
	cfg.MongoURI = getEnv(MongoURI, "")
	cfg.MongoDBName = getEnv(MongoDBName, "bronze")
	cfg.RabbitURI = getEnv(RabbitURIEnv, "")
	cfg.RabbitExchange = getEnv(RabbitExchangeEnv, "bronze.events")
	cfg.RabbitRoutingKey = getEnv(RabbitRoutingKey, "opendata")
	cfg.HTTPAddr = getEnv(HTTPAddr, ":8080")

	var err error
	if cfg.PageSize, err = getEnvInt(PageSize, 100); err != nil {
		return cfg, fmt.Errorf("invalid %v: %w", PageSize, err)
	}
	if cfg.CountersMaxPages, err = getEnvInt(CountersMaxPages, -1); err != nil {
		return cfg, fmt.Errorf("invalid %v: %w", CountersMaxPages, err)
	}
	if cfg.CountsMaxPages, err = getEnvInt(CountsMaxPages, 10); err != nil {
		return cfg, fmt.Errorf("invalid %v: %w", CountsMaxPages, err)
	}
	if cfg.RecentDays, err = getEnvInt(RecentDays, 30); err != nil {
		return cfg, fmt.Errorf("invalid %v: %w", RecentDays, err)
	}
	if cfg.MaxPolls, err = getEnvInt(MaxPolls, -1); err != nil {
		return cfg, fmt.Errorf("invalid %v: %w", MaxPolls, err)
	}
	if cfg.S3UseSSL, err = getEnvBool(S3UseSSL, false); err != nil {
		return cfg, fmt.Errorf("invalid %v: %w", S3UseSSL, err)
	}
	if cfg.Timeout, err = getEnvDuration(Timeout, "60s"); err != nil {
		return cfg, fmt.Errorf("invalid %v: %w", Timeout, err)
	}
	if cfg.RequestInterval, err = getEnvDuration(RequestInterval, "0s"); err != nil {
		return cfg, fmt.Errorf("invalid %v: %w", RequestInterval, err)
	}
	if cfg.PollInterval, err = getEnvDuration(PollInterval, "24h"); err != nil {
		return cfg, fmt.Errorf("invalid %v: %w", PollInterval, err)
	}
	if cfg.RunTimeout, err = getEnvDuration(RunTimeout, "25m"); err != nil {
		return cfg, fmt.Errorf("invalid %v: %w", RunTimeout, err)
	}

	if cfg.PageSize <= 0 {
		return cfg, fmt.Errorf("invalid %v: must be positive, got %d", PageSize, cfg.PageSize)
	}
	if cfg.RecentDays <= 0 {
		return cfg, fmt.Errorf("invalid %v: must be positive, got %d", RecentDays, cfg.RecentDays)
	}
	if cfg.PollInterval <= 0 {
		return cfg, fmt.Errorf("invalid %v: must be positive", PollInterval)
	}
	switch cfg.StorageBackend {
	case BackendFS:
	case BackendS3:
		if cfg.S3Endpoint == "" {
			return cfg, fmt.Errorf("invalid %v: required when %v=%s", S3Endpoint, StorageBackend, BackendS3)
		}
	default:
		return cfg, fmt.Errorf("invalid %v: %q (want %s or %s)", StorageBackend, cfg.StorageBackend, BackendFS, BackendS3)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	return i, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}

func getEnvDuration(key, fallback string) (time.Duration, error) {
	return time.ParseDuration(getEnv(key, fallback))
}
