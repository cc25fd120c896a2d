package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/ebuddy/internal/identity"
	"github.com/hitoshi/ebuddy/internal/store"
)

var _ identity.SessionCache = (*store.Store)(nil)

// ErrContextClosed は破棄済みのブラウザコンテキストに対する操作で返される。
var ErrContextClosed = errors.New("browser context closed")

// Recorder はブラウザコンテキストのメトリクスを記録する。
type Recorder interface {
	RecordSyncTransition(from, to string)
	SetBrowserContexts(n int)
}

type noopRecorder struct{}

func (noopRecorder) RecordSyncTransition(string, string) {}
func (noopRecorder) SetBrowserContexts(int)              {}

// Context はブラウザ1つ分の状態。プロバイダーセッション、ストア、同期を保持する。
type Context struct {
	ID        string
	Auth      *identity.Auth
	Store     *store.Store
	Client    *identity.Client
	UserAgent string
	CreatedAt time.Time

	// reloadMu は同期の停止・開始・差し替えと破棄を直列化する。
	reloadMu sync.Mutex

	mu       sync.Mutex
	sync     *Synchronizer
	lastSeen time.Time
	closed   bool
}

// Sync は現在のSynchronizerを返す。
func (c *Context) Sync() *Synchronizer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sync
}

// LastSeen は最後にアクセスされた時刻を返す。
func (c *Context) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// Closed はコンテキストが破棄済みかどうかを返す。
func (c *Context) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// shutdown はコンテキストを破棄済みにし、同期を停止する。実行中のReloadの完了を待つ。
func (c *Context) shutdown() {
	c.reloadMu.Lock()
	defer c.reloadMu.Unlock()

	c.mu.Lock()
	c.closed = true
	current := c.sync
	c.mu.Unlock()
	current.Stop()
}

func (c *Context) touch(now time.Time) {
	c.mu.Lock()
	c.lastSeen = now
	c.mu.Unlock()
}

// ManagerConfig はManagerの設定。
type ManagerConfig struct {
	Backend           identity.Backend
	PlaceholderUserID string
	MaxIdle           time.Duration
	Recorder          Recorder
}

// Manager はブラウザコンテキストを生成・保持・破棄する。
type Manager struct {
	cfg ManagerConfig
	now func() time.Time

	mu       sync.Mutex
	contexts map[string]*Context
}

// NewManager はManagerを生成する。
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Recorder == nil {
		cfg.Recorder = noopRecorder{}
	}
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = 24 * time.Hour
	}
	return &Manager{
		cfg:      cfg,
		now:      time.Now,
		contexts: make(map[string]*Context),
	}
}

// Create は新しいブラウザコンテキストを生成し、同期を開始する。
func (m *Manager) Create(userAgent string) (*Context, error) {
	now := m.now()
	auth := identity.NewAuth(m.cfg.Backend)
	st := store.New()

	var opts []identity.ClientOption
	if m.cfg.PlaceholderUserID != "" {
		opts = append(opts, identity.WithPlaceholderUserID(m.cfg.PlaceholderUserID))
	}

	bc := &Context{
		ID:        uuid.NewString(),
		Auth:      auth,
		Store:     st,
		Client:    identity.NewClient(auth, st, opts...),
		UserAgent: DescribeUserAgent(userAgent),
		CreatedAt: now,
		lastSeen:  now,
	}
	bc.sync = m.newSynchronizer(bc)
	if err := bc.sync.Start(context.Background()); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.contexts[bc.ID] = bc
	n := len(m.contexts)
	m.mu.Unlock()
	m.cfg.Recorder.SetBrowserContexts(n)

	slog.Debug("browser context created",
		slog.String("context_id", bc.ID),
		slog.String("client", bc.UserAgent),
	)
	return bc, nil
}

// Get はIDに対応するコンテキストを返し、最終アクセス時刻を更新する。
func (m *Manager) Get(id string) (*Context, bool) {
	m.mu.Lock()
	bc, ok := m.contexts[id]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	bc.touch(m.now())
	return bc, true
}

// Reload は同期を新しい購読でやり直す。Failed状態からの復旧に使用する。
// 同じコンテキストへの同時呼び出しは直列化され、破棄済みのコンテキストにはErrContextClosedを返す。
func (m *Manager) Reload(bc *Context) error {
	bc.reloadMu.Lock()
	defer bc.reloadMu.Unlock()

	bc.mu.Lock()
	if bc.closed {
		bc.mu.Unlock()
		return ErrContextClosed
	}
	old := bc.sync
	bc.mu.Unlock()
	old.Stop()

	next := m.newSynchronizer(bc)
	if err := next.Start(context.Background()); err != nil {
		return err
	}
	bc.mu.Lock()
	bc.sync = next
	bc.mu.Unlock()
	return nil
}

// Remove はコンテキストを破棄し、同期を停止する。
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	bc, ok := m.contexts[id]
	delete(m.contexts, id)
	n := len(m.contexts)
	m.mu.Unlock()
	if !ok {
		return
	}
	bc.shutdown()
	m.cfg.Recorder.SetBrowserContexts(n)
}

// Sweep はMaxIdleより長くアクセスのないコンテキストを破棄し、破棄した数を返す。
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	cutoff := m.now().Add(-m.cfg.MaxIdle)

	m.mu.Lock()
	var expired []*Context
	for id, bc := range m.contexts {
		if bc.LastSeen().Before(cutoff) {
			expired = append(expired, bc)
			delete(m.contexts, id)
		}
	}
	n := len(m.contexts)
	m.mu.Unlock()

	for _, bc := range expired {
		if err := ctx.Err(); err != nil {
			return len(expired), err
		}
		bc.shutdown()
	}
	if len(expired) > 0 {
		m.cfg.Recorder.SetBrowserContexts(n)
	}
	return len(expired), nil
}

// Len は保持しているコンテキスト数を返す。
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.contexts)
}

// Close はすべてのコンテキストの同期を停止する。
func (m *Manager) Close() {
	m.mu.Lock()
	all := make([]*Context, 0, len(m.contexts))
	for _, bc := range m.contexts {
		all = append(all, bc)
	}
	m.contexts = make(map[string]*Context)
	m.mu.Unlock()

	for _, bc := range all {
		bc.shutdown()
	}
	m.cfg.Recorder.SetBrowserContexts(0)
}

func (m *Manager) newSynchronizer(bc *Context) *Synchronizer {
	return NewSynchronizer(bc.Auth, bc.Store, WithTransitionFunc(func(from, to State) {
		m.cfg.Recorder.RecordSyncTransition(from.String(), to.String())
		slog.Debug("session sync transition",
			slog.String("context_id", bc.ID),
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	}))
}
