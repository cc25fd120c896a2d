// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// IDプロバイダーの種別
const (
	ProviderFirebase = "firebase"
	ProviderLocal    = "local"
)

// currentUserIdのフォールバック最終段のポリシー
const (
	UnknownUserNull        = "null"
	UnknownUserPlaceholder = "placeholder"
)

// FirebaseConfig はIdentity Toolkitの接続設定を保持する。
type FirebaseConfig struct {
	APIKey            string
	AuthDomain        string
	ProjectID         string
	StorageBucket     string
	MessagingSenderID string
	AppID             string
	EmulatorHost      string
}

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Server
	ServerPort string
	BaseURL    string
	APIPort    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// Profile gateway
	APIBaseURL            string
	UseMockData           bool
	MockLatency           time.Duration
	ProfileSeedOnNotFound bool
	ProfileTimeout        time.Duration
	UnknownUserPolicy     string
	PlaceholderUserID     string

	// Identity provider
	IdentityProvider string
	Firebase         FirebaseConfig
	TokenSigningKey  string
	TokenTTL         time.Duration
	APIStaticToken   string

	// Browser context
	SessionMaxAge        int
	ContextSweepInterval time.Duration

	// Rate Limit
	RateLimitAuth int
	RateLimitAPI  int

	// CORS
	CORSAllowedOrigin string

	// Database
	DatabaseURL string

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// 値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:8080")
	cfg.APIPort = getEnvString("API_PORT", "3000")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")

	cfg.APIBaseURL = strings.TrimRight(getEnvString("API_BASE_URL", "http://localhost:3000/api/user"), "/")
	cfg.UseMockData = getEnvBool("USE_MOCK_DATA", false)
	cfg.MockLatency = getEnvDuration("MOCK_LATENCY", 500*time.Millisecond)
	cfg.ProfileSeedOnNotFound = getEnvBool("PROFILE_SEED_ON_NOT_FOUND", true)
	cfg.ProfileTimeout = getEnvDuration("PROFILE_TIMEOUT", 10*time.Second)
	cfg.UnknownUserPolicy = strings.ToLower(getEnvString("UNKNOWN_USER_POLICY", UnknownUserNull))
	cfg.PlaceholderUserID = getEnvString("PLACEHOLDER_USER_ID", "guest")

	cfg.IdentityProvider = strings.ToLower(getEnvString("IDENTITY_PROVIDER", ProviderFirebase))
	cfg.Firebase = FirebaseConfig{
		APIKey:            getEnvString("FIREBASE_API_KEY", "demo-api-key"),
		AuthDomain:        getEnvString("FIREBASE_AUTH_DOMAIN", "demo-app.firebaseapp.com"),
		ProjectID:         getEnvString("FIREBASE_PROJECT_ID", "demo-app"),
		StorageBucket:     getEnvString("FIREBASE_STORAGE_BUCKET", "demo-app.appspot.com"),
		MessagingSenderID: getEnvString("FIREBASE_MESSAGING_SENDER_ID", "123456789"),
		AppID:             getEnvString("FIREBASE_APP_ID", "1:123456789:web:abcdef123456789"),
		EmulatorHost:      getEnvString("FIREBASE_AUTH_EMULATOR_HOST", ""),
	}
	cfg.TokenSigningKey = os.Getenv("TOKEN_SIGNING_KEY")
	cfg.TokenTTL = getEnvDuration("TOKEN_TTL", time.Hour)
	cfg.APIStaticToken = os.Getenv("API_STATIC_TOKEN")

	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.ContextSweepInterval = getEnvDuration("CONTEXT_SWEEP_INTERVAL", 5*time.Minute)

	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 10)
	cfg.RateLimitAPI = getEnvInt("RATE_LIMIT_API", 120)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:8080")

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var invalid []string
	switch c.IdentityProvider {
	case ProviderFirebase:
	case ProviderLocal:
		if c.TokenSigningKey == "" {
			invalid = append(invalid, "TOKEN_SIGNING_KEY (required when IDENTITY_PROVIDER=local)")
		}
	default:
		invalid = append(invalid, "IDENTITY_PROVIDER")
	}
	if c.UnknownUserPolicy != UnknownUserNull && c.UnknownUserPolicy != UnknownUserPlaceholder {
		invalid = append(invalid, "UNKNOWN_USER_POLICY")
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid environment variables: %v", invalid)
	}
	return nil
}

// RequireBackend はプロフィールAPI（api, migrateサブコマンド）に必要な設定を検証する。
func (c *Config) RequireBackend() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.APIStaticToken == "" && c.TokenSigningKey == "" {
		missing = append(missing, "API_STATIC_TOKEN or TOKEN_SIGNING_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("required environment variables are not set: %v", missing)
	}
	return nil
}

// RequireDatabase はmigrateサブコマンドに必要な設定を検証する。
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("required environment variables are not set: [DATABASE_URL]")
	}
	return nil
}

// PlaceholderPolicyEnabled はcurrentUserIdが固定のプレースホルダーIDを返すポリシーかどうかを返す。
func (c *Config) PlaceholderPolicyEnabled() bool {
	return c.UnknownUserPolicy == UnknownUserPlaceholder
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
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
