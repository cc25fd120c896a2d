package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hitoshi/ebuddy/internal/middleware"
	"github.com/hitoshi/ebuddy/internal/model"
	"github.com/hitoshi/ebuddy/internal/session"
	"github.com/hitoshi/ebuddy/internal/store"
)

const (
	// writeWait はWebSocketへの1回の書き込みに許容する時間。
	writeWait = 10 * time.Second
	// pongWait はクライアントからのpongを待つ時間。
	pongWait = 60 * time.Second
	// pingPeriod はpingの送信間隔。pongWaitより短くする。
	pingPeriod = (pongWait * 9) / 10
)

// SessionReloader は同期が停止したブラウザコンテキストの同期をやり直す。
// session.Managerが実装する。
type SessionReloader interface {
	Reload(bc *session.Context) error
}

// SessionHandler はセッション状態の参照と購読のハンドラー。
type SessionHandler struct {
	reloader SessionReloader
	upgrader websocket.Upgrader
	pages    *WebHandler
}

// NewSessionHandler はSessionHandlerを生成する。
// pagesはリロード失敗時のエラーページ描画に使う。
func NewSessionHandler(reloader SessionReloader, pages *WebHandler) *SessionHandler {
	return &SessionHandler{
		reloader: reloader,
		pages:    pages,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// snapshotResponse はセッション状態のJSON表現。
type snapshotResponse struct {
	Session model.Session `json:"session"`
	State   store.State   `json:"state"`
	Sync    string        `json:"sync"`
}

func newSnapshotResponse(bc *session.Context, st store.State) snapshotResponse {
	resp := snapshotResponse{Session: st.Session(), State: st, Sync: session.Uninitialized.String()}
	if sync := bc.Sync(); sync != nil {
		resp.Sync = sync.State().String()
	}
	return resp
}

// Me は現在のセッション状態をJSONで返す。
// GET /auth/me
func (h *SessionHandler) Me(w http.ResponseWriter, r *http.Request) {
	bc, ok := middleware.BrowserContextFromContext(r.Context())
	if !ok {
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	json.NewEncoder(w).Encode(newSnapshotResponse(bc, bc.Store.Snapshot()))
}

// Stream はセッション状態の変化をWebSocketで配信する。
// 接続直後に現在の状態を送り、以降は状態が変わるたびに最新の状態を送る。
// GET /ws/session
func (h *SessionHandler) Stream(w http.ResponseWriter, r *http.Request) {
	bc, ok := middleware.BrowserContextFromContext(r.Context())
	if !ok {
		middleware.WriteInternalServerError(w)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgradeがエラーレスポンスを書き込み済み
		slog.Warn("websocket upgrade failed",
			slog.String("context_id", bc.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	defer conn.Close()

	updates, cancel := bc.Store.Watch()
	defer cancel()

	// 受信側はpongと切断の検知のみ行う
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case st, ok := <-updates:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(newSnapshotResponse(bc, st)); err != nil {
				slog.Debug("websocket write failed",
					slog.String("context_id", bc.ID),
					slog.String("error", err.Error()),
				)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// Reload は停止した同期をやり直して元のページに戻る。
// POST /session/reload
func (h *SessionHandler) Reload(w http.ResponseWriter, r *http.Request) {
	bc, ok := middleware.BrowserContextFromContext(r.Context())
	if !ok {
		middleware.WriteInternalServerError(w)
		return
	}

	if err := h.reloader.Reload(bc); err != nil {
		slog.Error("failed to reload session sync",
			slog.String("context_id", bc.ID),
			slog.String("error", err.Error()),
		)
		h.pages.RenderError(w, r, http.StatusInternalServerError, err)
		return
	}
	http.Redirect(w, r, safeReturnPath(r.PostFormValue("return")), http.StatusSeeOther)
}
