package middleware

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

// logFieldsContextKey は後段のミドルウェアが解決した値をアクセスログに渡すためのキー。
var logFieldsContextKey = contextKey("log_fields")

// logFields はアクセスログに追加する値。後段でContextWith系の関数が設定する。
type logFields struct {
	mu  sync.Mutex
	cid string
	uid string
}

func (f *logFields) contextID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cid
}

func (f *logFields) userID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uid
}

func annotateLog(ctx context.Context, set func(*logFields)) {
	if f, ok := ctx.Value(logFieldsContextKey).(*logFields); ok {
		f.mu.Lock()
		set(f)
		f.mu.Unlock()
	}
}

// statusRecorder はhttp.ResponseWriterをラップし、ステータスコードを記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	if sr, ok := w.(*statusRecorder); ok {
		return sr
	}
	return &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
}

// WriteHeader はステータスコードを記録してから委譲する。
func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

// Write はデータを書き込む。WriteHeaderが未呼び出しの場合は200を記録する。
func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// Hijack はWebSocketアップグレードのために下層の接続を引き渡す。
// アップグレード後のステータスは101として記録する。
func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := sr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	conn, rw, err := hj.Hijack()
	if err == nil && !sr.written {
		sr.statusCode = http.StatusSwitchingProtocols
		sr.written = true
	}
	return conn, rw, err
}

// Flush はバッファされたデータを送出する。
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap はhttp.ResponseControllerのために元のResponseWriterを返す。
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// NewLoggingMiddleware はリクエストのJSON構造化ログを出力するミドルウェアを返す。
// ログにはmethod、path、status、duration_msと、分かる場合はcontext_idとuser_idを含む。
func NewLoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rec := newStatusRecorder(w)
			fields := &logFields{}
			if bc, ok := BrowserContextFromContext(r.Context()); ok {
				fields.cid = bc.ID
			}
			if userID, err := UserIDFromContext(r.Context()); err == nil {
				fields.uid = userID
			}

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), logFieldsContextKey, fields)))

			duration := time.Since(start)
			durationMs := float64(duration.Nanoseconds()) / float64(time.Millisecond)

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Float64("duration_ms", durationMs),
			}

			if id := fields.contextID(); id != "" {
				attrs = append(attrs, slog.String("context_id", id))
			}
			if userID := fields.userID(); userID != "" {
				attrs = append(attrs, slog.String("user_id", userID))
			}

			level := slog.LevelInfo
			if rec.statusCode >= 500 {
				level = slog.LevelError
			} else if rec.statusCode >= 400 {
				level = slog.LevelWarn
			}

			args := make([]any, len(attrs))
			for i, attr := range attrs {
				args[i] = attr
			}

			logger.Log(r.Context(), level, "http_request", args...)
		})
	}
}

// StatusRecorder はHTTPステータスコードを記録する。
type StatusRecorder interface {
	RecordHTTPStatus(statusCode int)
}

// NewStatusMetricsMiddleware はレスポンスのステータスコードをメトリクスに記録するミドルウェアを返す。
func NewStatusMetricsMiddleware(recorder StatusRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)
			recorder.RecordHTTPStatus(rec.statusCode)
		})
	}
}
