package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends selectable through STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv   string
	Port     string
	LogLevel string

	StoreBackend  string
	DataDir       string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret            string
	PaymentWebhookSecret string

	StoragePath    string
	StorageBaseURL string

	DashScopeAPIKey     string
	DashScopeBaseURL    string
	DashScopeImageModel string
	DashScopeEditModel  string
	DashScopeVideoModel string
	ScoringURL          string
	ScoringAPIKey       string
	CutoutURL           string
	CutoutAPIKey        string
	FFmpegPath          string

	KafkaBrokers  []string
	KafkaJobTopic string

	ImageCost           int
	VideoCost           int
	FreeMonthlyCredits  int
	InviteReferrerBonus int
	InviteInviteeBonus  int
	InviteExpiry        time.Duration
	MonthlyInviteCap    int

	JobTimeout          time.Duration
	JobRetention        time.Duration
	JobSweepInterval    time.Duration
	JobSnapshotInterval time.Duration

	PollInterval    time.Duration
	PollMaxAttempts int
	PollDeadline    time.Duration
	SubmitTimeout   time.Duration

	WorkerConcurrency int

	GeoIPDBPath string

	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
	CORSAllowedOrigins []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:               getEnv("APP_ENV", "development"),
		Port:                 port,
		LogLevel:             os.Getenv("LOG_LEVEL"),
		StoreBackend:         strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
		DataDir:              getEnv("DATA_DIR", "./data"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		PaymentWebhookSecret: os.Getenv("PAYMENT_WEBHOOK_SECRET"),
		StoragePath:          getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:       getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"),
		DashScopeAPIKey:      os.Getenv("DASHSCOPE_API_KEY"),
		DashScopeBaseURL:     getEnv("DASHSCOPE_BASE_URL", "https://dashscope-intl.aliyuncs.com/api/v1"),
		DashScopeImageModel:  getEnv("DASHSCOPE_IMAGE_MODEL", "wanx2.1-t2i-turbo"),
		DashScopeEditModel:   getEnv("DASHSCOPE_EDIT_MODEL", "wanx2.1-imageedit"),
		DashScopeVideoModel:  getEnv("DASHSCOPE_VIDEO_MODEL", "wanx2.1-i2v-turbo"),
		ScoringURL:           os.Getenv("SCORING_URL"),
		ScoringAPIKey:        os.Getenv("SCORING_API_KEY"),
		CutoutURL:            os.Getenv("CUTOUT_URL"),
		CutoutAPIKey:         os.Getenv("CUTOUT_API_KEY"),
		FFmpegPath:           getEnv("FFMPEG_PATH", "ffmpeg"),
		KafkaBrokers:         getEnvList("KAFKA_BROKERS"),
		KafkaJobTopic:        getEnv("KAFKA_JOB_TOPIC", "vidluxe.jobs"),
		ImageCost:            getEnvInt("IMAGE_CREDIT_COST", 1),
		VideoCost:            getEnvInt("VIDEO_CREDIT_COST", 3),
		FreeMonthlyCredits:   getEnvInt("FREE_MONTHLY_CREDITS", 3),
		InviteReferrerBonus:  getEnvInt("INVITE_REFERRER_BONUS", 5),
		InviteInviteeBonus:   getEnvInt("INVITE_INVITEE_BONUS", 3),
		InviteExpiry:         getEnvDuration("INVITE_EXPIRY", 30*24*time.Hour),
		MonthlyInviteCap:     getEnvInt("INVITE_MONTHLY_CAP", 10),
		JobTimeout:           getEnvDuration("JOB_TIMEOUT", 10*time.Minute),
		JobRetention:         getEnvDuration("JOB_RETENTION", 24*time.Hour),
		JobSweepInterval:     getEnvDuration("JOB_SWEEP_INTERVAL", time.Minute),
		JobSnapshotInterval:  getEnvDuration("JOB_SNAPSHOT_INTERVAL", 10*time.Second),
		PollInterval:         getEnvDuration("POLL_INTERVAL", 5*time.Second),
		PollMaxAttempts:      getEnvInt("POLL_MAX_ATTEMPTS", 120),
		PollDeadline:         getEnvDuration("POLL_DEADLINE", 10*time.Minute),
		SubmitTimeout:        getEnvDuration("SUBMIT_TIMEOUT", 30*time.Second),
		WorkerConcurrency:    getEnvInt("WORKER_CONCURRENCY", 4),
		GeoIPDBPath:          os.Getenv("GEOIP_DB_PATH"),
		HTTPReadTimeout:      time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:     time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:      time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:      getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSAllowedOrigins:   getEnvList("CORS_ALLOWED_ORIGINS"),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	switch cfg.StoreBackend {
	case BackendMemory, BackendFile:
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	case BackendRedis:
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("REDIS_ADDR is required for the redis backend")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("90s", "10m").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
