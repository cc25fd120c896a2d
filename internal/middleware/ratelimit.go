package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	APIRate         rate.Limit    // プロフィールAPIのレート（req/sec）
	APIBurst        int           // プロフィールAPIのバーストサイズ
	AuthRate        rate.Limit    // 認証フォーム送信のレート（req/sec）
	AuthBurst       int           // 認証フォーム送信のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// プロフィールAPI 120 req/min/user、認証フォーム 10 req/min/client
func DefaultRateLimiterConfig() RateLimiterConfig {
	return NewRateLimiterConfig(10, 120)
}

// NewRateLimiterConfig は1分あたりの許容回数からレート制限設定を生成する。
// 0以下の値は1として扱う。
func NewRateLimiterConfig(authPerMinute, apiPerMinute int) RateLimiterConfig {
	if authPerMinute < 1 {
		authPerMinute = 1
	}
	if apiPerMinute < 1 {
		apiPerMinute = 1
	}
	return RateLimiterConfig{
		APIRate:         rate.Limit(float64(apiPerMinute) / 60.0),
		APIBurst:        apiPerMinute,
		AuthRate:        rate.Limit(float64(authPerMinute) / 60.0),
		AuthBurst:       authPerMinute,
		CleanupInterval: 5 * time.Minute,
	}
}

// keyedLimiter はキーごとのレートリミッターとアクセス時刻を保持する。
type keyedLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterSet は同じレートを共有するキーごとのリミッター集合。
type limiterSet struct {
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
	limiters map[string]*keyedLimiter
}

func newLimiterSet(r rate.Limit, burst int) *limiterSet {
	return &limiterSet{rate: r, burst: burst, limiters: make(map[string]*keyedLimiter)}
}

// get はキーのリミッターを取得または作成する。
func (s *limiterSet) get(key string) *rate.Limiter {
	s.mu.RLock()
	kl, exists := s.limiters[key]
	s.mu.RUnlock()

	if exists {
		s.mu.Lock()
		kl.lastAccess = time.Now()
		s.mu.Unlock()
		return kl.limiter
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// ダブルチェック
	if kl, exists := s.limiters[key]; exists {
		kl.lastAccess = time.Now()
		return kl.limiter
	}

	limiter := rate.NewLimiter(s.rate, s.burst)
	s.limiters[key] = &keyedLimiter{limiter: limiter, lastAccess: time.Now()}
	return limiter
}

func (s *limiterSet) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.limiters)
}

func (s *limiterSet) expire(now time.Time, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, kl := range s.limiters {
		if now.Sub(kl.lastAccess) > ttl {
			delete(s.limiters, key)
		}
	}
}

// RateLimiter はレート制限を管理する。
// プロフィールAPI（ユーザー単位）と認証フォーム送信（ブラウザコンテキストまたはIP単位）の2種類を提供する。
type RateLimiter struct {
	config RateLimiterConfig
	api    *limiterSet
	auth   *limiterSet
	stopCh chan struct{}
	once   sync.Once
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config: config,
		api:    newLimiterSet(config.APIRate, config.APIBurst),
		auth:   newLimiterSet(config.AuthRate, config.AuthBurst),
		stopCh: make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。複数回呼んでもよい。
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stopCh) })
}

// APIMiddleware はプロフィールAPIのレート制限ミドルウェアを返す。
// リクエストコンテキストにユーザーIDが含まれている必要がある（Bearer認証の後に配置）。
// 静的トークンによるサービス呼び出しはユーザーIDを持たないため、リモートアドレス単位で制限する。
func (rl *RateLimiter) APIMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, err := UserIDFromContext(r.Context())
			if err != nil {
				key = "addr:" + clientIP(r)
			}

			if !rl.api.get(key).Allow() {
				writeRateLimitResponse(w, rl.config.APIRate)
				slog.Warn("rate limit exceeded",
					slog.String("key", key),
					slog.String("limit_type", "api"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AuthFormMiddleware は認証フォーム送信のレート制限ミドルウェアを返す。
// POSTのみを対象とし、ブラウザコンテキストがあればそのID、なければリモートアドレスで制限する。
func (rl *RateLimiter) AuthFormMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			key := "addr:" + clientIP(r)
			if bc, ok := BrowserContextFromContext(r.Context()); ok {
				key = "ctx:" + bc.ID
			}

			if !rl.auth.get(key).Allow() {
				writeRateLimitResponse(w, rl.config.AuthRate)
				slog.Warn("rate limit exceeded",
					slog.String("key", key),
					slog.String("limit_type", "auth_form"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// APILimiterCount は現在管理されているAPIリミッターのエントリ数を返す。
func (rl *RateLimiter) APILimiterCount() int { return rl.api.len() }

// AuthLimiterCount は現在管理されている認証フォームリミッターのエントリ数を返す。
func (rl *RateLimiter) AuthLimiterCount() int { return rl.auth.len() }

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2
	now := time.Now()
	rl.api.expire(now, ttl)
	rl.auth.expire(now, ttl)
}

// clientIP はリモートアドレスからホスト部分を取り出す。
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	json.NewEncoder(w).Encode(map[string]string{
		"code":     "rate_limit_exceeded",
		"message":  "Too many requests. Please try again later.",
		"category": "system",
		"action":   "Please wait and retry after the specified time.",
	})
}
