package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// healthTimeout はDB疎通確認のタイムアウト。
const healthTimeout = 2 * time.Second

// HealthChecker は依存先の疎通確認。*sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// healthResponse はヘルスチェックのレスポンス。
type healthResponse struct {
	Status string `json:"status"`
}

// NewHealthHandler はヘルスチェックのハンドラーを返す。
// checkerがnilの場合は常に200を返す。
func NewHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	}
}
