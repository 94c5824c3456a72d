package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// OAuth（クライアントIDが設定されたプロバイダーのみ有効）
	GoogleClientID     string
	GoogleClientSecret string
	GitHubClientID     string
	GitHubClientSecret string

	// Session
	SessionSecret        string
	SessionMaxAge        int
	SessionRetentionDays int

	// Magic link
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	MagicLinkTTL time.Duration

	// Upload
	UploadDir     string
	UploadMaxSize int64

	// Fetch（リンク補完・フィード取り込み）
	FetchTimeout time.Duration
	FetchMaxSize int64

	// Enrichment
	EnrichInterval  time.Duration
	EnrichBatchSize int

	// Pending actions
	PendingActionTTL time.Duration

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitAuth    int
	RateLimitImport  int

	// Server
	ServerPort        string
	WorkerMetricsPort string
	BaseURL           string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// GoogleEnabled はGoogleログインが設定済みかを返す。
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// GitHubEnabled はGitHubログインが設定済みかを返す。
func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// SMTPEnabled はSMTP送信が設定済みかを返す。未設定時はログ出力で代替する。
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != ""
}

// UploadPublicURL はアップロード画像の公開URLプレフィックスを返す。
func (c *Config) UploadPublicURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/uploads"
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.BaseURL = strings.TrimRight(os.Getenv("BASE_URL"), "/")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	cfg.GitHubClientID = os.Getenv("GITHUB_CLIENT_ID")
	cfg.GitHubClientSecret = os.Getenv("GITHUB_CLIENT_SECRET")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 30*86400)
	cfg.SessionRetentionDays = getEnvInt("SESSION_RETENTION_DAYS", 7)
	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	cfg.SMTPPort = getEnvInt("SMTP_PORT", 587)
	cfg.SMTPUsername = os.Getenv("SMTP_USERNAME")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.SMTPFrom = getEnvString("SMTP_FROM", "no-reply@localhost")
	cfg.MagicLinkTTL = getEnvDuration("MAGIC_LINK_TTL", 15*time.Minute)
	cfg.UploadDir = getEnvString("UPLOAD_DIR", "./uploads")
	cfg.UploadMaxSize = getEnvInt64("UPLOAD_MAX_SIZE", 5242880)
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 10*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)
	cfg.EnrichInterval = getEnvDuration("ENRICH_INTERVAL", 15*time.Minute)
	cfg.EnrichBatchSize = getEnvInt("ENRICH_BATCH_SIZE", 50)
	cfg.PendingActionTTL = getEnvDuration("PENDING_ACTION_TTL", 30*time.Minute)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 10)
	cfg.RateLimitImport = getEnvInt("RATE_LIMIT_IMPORT", 20)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.WorkerMetricsPort = getEnvString("WORKER_METRICS_PORT", "9090")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil || i <= 0 {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
