package middleware

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/ebuddy/internal/model"
)

// principalContextKey はBearer認証の主体を格納するためのキー。
var principalContextKey = contextKey("principal")

// Principal はBearer認証で確認した呼び出し元。
type Principal struct {
	// UserID はIDトークンのsub。静的トークンの場合は空。
	UserID string
	// Static は静的トークンで認証された場合にtrue。任意のユーザーを操作できる。
	Static bool
}

// SubjectVerifier はIDトークンを検証してユーザーIDを返す。
// local.Verifierが実装する。
type SubjectVerifier interface {
	Subject(token string) (string, error)
}

// BearerConfig はBearer認証の設定。
type BearerConfig struct {
	StaticToken string
	Verifier    SubjectVerifier
}

// NewBearerAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証するミドルウェアを返す。
// 静的トークンと一致する場合、またはIDトークンの検証に成功した場合のみ通過させる。
// それ以外は401 Unauthorizedを返す。
func NewBearerAuthMiddleware(config BearerConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			if config.StaticToken != "" &&
				subtle.ConstantTimeCompare([]byte(token), []byte(config.StaticToken)) == 1 {
				ctx := context.WithValue(r.Context(), principalContextKey, Principal{Static: true})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			if config.Verifier == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			subject, err := config.Verifier.Subject(token)
			if err != nil {
				slog.Warn("bearer token rejected",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			ctx := context.WithValue(r.Context(), principalContextKey, Principal{UserID: subject})
			ctx = ContextWithUserID(ctx, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewOwnerMiddleware はURLパラメータのユーザーIDと認証済みユーザーが一致することを要求するミドルウェアを返す。
// 静的トークンで認証された呼び出しは常に通過する。
func NewOwnerMiddleware(param string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFromContext(r.Context())
			if !ok {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			if !p.Static && p.UserID != chi.URLParam(r, param) {
				slog.Warn("access to another user's profile denied",
					slog.String("user_id", p.UserID),
					slog.String("target_id", chi.URLParam(r, param)),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PrincipalFromContext はBearer認証の主体を取得する。
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(Principal)
	return p, ok
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(h[len(prefix):])
	return token, token != ""
}
