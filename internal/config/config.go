package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数（および存在すれば .env）から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Google Calendar OAuth
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	GoogleCalendarID   string
	CalendarTimeZone   string
	UpstreamTimeout    time.Duration

	// Clerk
	ClerkJWTKey        string
	ClerkWebhookSecret string
	// ClerkIssuer が空の場合issは検証しない
	ClerkIssuer string
	// ClerkAuthorizedParties はazpの許可リスト（カンマ区切り）。未設定時はCORS_ALLOWED_ORIGINを使う。
	ClerkAuthorizedParties string

	// Credential Vault
	EncryptionKey string

	// Redis（任意。未設定ならトークンリフレッシュのロックは行わない）
	RedisURL            string
	TokenRefreshLockTTL time.Duration

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitGeneral      int
	RateLimitCalendarSync int

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

var requiredKeys = []string{
	"DATABASE_URL",
	"GOOGLE_CLIENT_ID",
	"GOOGLE_CLIENT_SECRET",
	"GOOGLE_REDIRECT_URL",
	"CLERK_JWT_KEY",
	"CLERK_WEBHOOK_SECRET",
	"BASE_URL",
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合は、未設定のキーをすべて列挙したエラーを返す。
func Load() (*Config, error) {
	// .env はローカル開発用。存在しなければ環境変数のみを使う。
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_GENERAL", 120)
	v.SetDefault("RATE_LIMIT_CALENDAR_SYNC", 20)
	v.SetDefault("CALENDAR_TIME_ZONE", "UTC")
	v.SetDefault("GOOGLE_CALENDAR_ID", "primary")
	v.SetDefault("UPSTREAM_TIMEOUT", 10*time.Second)
	v.SetDefault("TOKEN_REFRESH_LOCK_TTL", 15*time.Second)

	var missing []string
	for _, key := range requiredKeys {
		if strings.TrimSpace(v.GetString(key)) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg := &Config{
		DatabaseURL:           v.GetString("DATABASE_URL"),
		GoogleClientID:        v.GetString("GOOGLE_CLIENT_ID"),
		GoogleClientSecret:    v.GetString("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:     v.GetString("GOOGLE_REDIRECT_URL"),
		GoogleCalendarID:      v.GetString("GOOGLE_CALENDAR_ID"),
		CalendarTimeZone:      v.GetString("CALENDAR_TIME_ZONE"),
		UpstreamTimeout:       getDuration(v, "UPSTREAM_TIMEOUT", 10*time.Second),
		ClerkJWTKey:           v.GetString("CLERK_JWT_KEY"),
		ClerkWebhookSecret:    v.GetString("CLERK_WEBHOOK_SECRET"),
		EncryptionKey:         v.GetString("ENCRYPTION_KEY"),
		RedisURL:              v.GetString("REDIS_URL"),
		TokenRefreshLockTTL:   getDuration(v, "TOKEN_REFRESH_LOCK_TTL", 15*time.Second),
		RateLimitGeneral:      getPositiveInt(v, "RATE_LIMIT_GENERAL", 120),
		RateLimitCalendarSync: getPositiveInt(v, "RATE_LIMIT_CALENDAR_SYNC", 20),
		LogLevel:              v.GetString("LOG_LEVEL"),
		ServerPort:            v.GetString("SERVER_PORT"),
		BaseURL:               v.GetString("BASE_URL"),
		CookieDomain:          v.GetString("COOKIE_DOMAIN"),
		CORSAllowedOrigin:     v.GetString("CORS_ALLOWED_ORIGIN"),
	}
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	cfg.ClerkIssuer = strings.TrimSpace(v.GetString("CLERK_ISSUER"))
	cfg.ClerkAuthorizedParties = v.GetString("CLERK_AUTHORIZED_PARTIES")
	if strings.TrimSpace(cfg.ClerkAuthorizedParties) == "" {
		cfg.ClerkAuthorizedParties = cfg.CORSAllowedOrigin
	}

	return cfg, nil
}

// getPositiveInt は不正値・0以下の値をデフォルト値にフォールバックする。
func getPositiveInt(v *viper.Viper, key string, defaultVal int) int {
	i := v.GetInt(key)
	if i <= 0 {
		return defaultVal
	}
	return i
}

func getDuration(v *viper.Viper, key string, defaultVal time.Duration) time.Duration {
	d := v.GetDuration(key)
	if d <= 0 {
		return defaultVal
	}
	return d
}
