// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/ebuddy/internal/session"
)

// ContextCookieName はブラウザコンテキストIDを保持するCookieの名前。
const ContextCookieName = "ebuddy_ctx"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
	userIDContextKey = contextKey("user_id")
	// browserContextKey はリクエストコンテキストにブラウザコンテキストを格納するためのキー。
	browserContextKey = contextKey("browser_context")
)

// BrowserContexts はブラウザコンテキストの取得と生成に必要なインターフェース。
// session.Managerが実装する。
type BrowserContexts interface {
	Get(id string) (*session.Context, bool)
	Create(userAgent string) (*session.Context, error)
}

// CookieConfig はCookie発行の設定。
type CookieConfig struct {
	Secure bool
	Domain string
	MaxAge int // 秒
}

// NewBrowserContextMiddleware はHTTP Only Cookieからブラウザコンテキストを解決するミドルウェアを返す。
// Cookieがない場合や対応するコンテキストが破棄済みの場合は新しいコンテキストを生成する。
// ブラウザコンテキストと、サインイン済みであればユーザーIDをリクエストコンテキストに注入する。
func NewBrowserContextMiddleware(contexts BrowserContexts, config CookieConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var bc *session.Context
			if cookie, err := r.Cookie(ContextCookieName); err == nil && cookie.Value != "" {
				bc, _ = contexts.Get(cookie.Value)
			}

			if bc == nil {
				created, err := contexts.Create(r.UserAgent())
				if err != nil {
					slog.Error("failed to create browser context",
						slog.String("error", err.Error()),
					)
					WriteInternalServerError(w)
					return
				}
				bc = created
			}

			// 有効期限をアクセスのたびに延長する
			http.SetCookie(w, &http.Cookie{
				Name:     ContextCookieName,
				Value:    bc.ID,
				Path:     "/",
				Domain:   config.Domain,
				MaxAge:   config.MaxAge,
				HttpOnly: true,
				Secure:   config.Secure,
				SameSite: http.SameSiteLaxMode,
			})

			ctx := ContextWithBrowserContext(r.Context(), bc)
			if sess := bc.Store.Session(); sess.IsAuthenticated {
				ctx = ContextWithUserID(ctx, sess.UserID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BrowserContextFromContext はリクエストコンテキストからブラウザコンテキストを取得する。
func BrowserContextFromContext(ctx context.Context) (*session.Context, bool) {
	bc, ok := ctx.Value(browserContextKey).(*session.Context)
	return bc, ok && bc != nil
}

// ContextWithBrowserContext はコンテキストにブラウザコンテキストを注入する。
func ContextWithBrowserContext(ctx context.Context, bc *session.Context) context.Context {
	annotateLog(ctx, func(f *logFields) { f.cid = bc.ID })
	return context.WithValue(ctx, browserContextKey, bc)
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	annotateLog(ctx, func(f *logFields) { f.uid = userID })
	return context.WithValue(ctx, userIDContextKey, userID)
}
