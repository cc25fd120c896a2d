package identity

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// defaultRefreshSkew はIDトークンの有効期限切れ前に更新を行う余裕時間。
const defaultRefreshSkew = 5 * time.Minute

// Event はプロバイダーセッションの変化通知。
// Userがnilの場合はサインアウト状態を表す。Errが設定されている場合は購読エラー。
type Event struct {
	User *User
	Err  error
}

// Auth はブラウザコンテキストごとのプロバイダーセッション。
// 現在のユーザーとトークンを保持し、状態変化を購読者に順番に通知する。
type Auth struct {
	backend     Backend
	now         func() time.Time
	refreshSkew time.Duration

	mu     sync.Mutex
	user   *User
	tokens Tokens
	subs   map[uint64]*Subscription
	nextID uint64
}

// AuthOption はAuthの設定を変更する。
type AuthOption func(*Auth)

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) AuthOption {
	return func(a *Auth) { a.now = now }
}

// WithRefreshSkew はトークン更新の余裕時間を変更する。
func WithRefreshSkew(d time.Duration) AuthOption {
	return func(a *Auth) { a.refreshSkew = d }
}

// NewAuth はサインアウト状態のAuthを生成する。
func NewAuth(backend Backend, opts ...AuthOption) *Auth {
	a := &Auth{
		backend:     backend,
		now:         time.Now,
		refreshSkew: defaultRefreshSkew,
		subs:        make(map[uint64]*Subscription),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SignInWithEmailAndPassword はメールアドレスとパスワードでサインインする。
func (a *Auth) SignInWithEmailAndPassword(ctx context.Context, email, password string) (*User, error) {
	cred, err := a.backend.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	a.setSession(cred.User, cred.Tokens)
	return cred.User.Clone(), nil
}

// CreateUserWithEmailAndPassword はユーザーを作成し、そのユーザーでサインインする。
func (a *Auth) CreateUserWithEmailAndPassword(ctx context.Context, email, password string) (*User, error) {
	cred, err := a.backend.SignUp(ctx, email, password)
	if err != nil {
		return nil, err
	}
	a.setSession(cred.User, cred.Tokens)
	return cred.User.Clone(), nil
}

// UpdateProfile は現在のユーザーの表示名を更新する。
// 更新後のユーザーを購読者に通知する。
func (a *Auth) UpdateProfile(ctx context.Context, displayName string) (*User, error) {
	token, err := a.IDToken(ctx, false)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	uid := ""
	if a.user != nil {
		uid = a.user.UID
	}
	a.mu.Unlock()

	cred, err := a.backend.UpdateProfile(ctx, token, displayName)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.user == nil || a.user.UID != uid {
		return nil, ErrNoCurrentUser
	}
	a.user.DisplayName = displayName
	if cred != nil {
		if cred.User != nil && cred.User.Email != "" {
			a.user.Email = cred.User.Email
		}
		a.mergeTokensLocked(cred.Tokens)
	}
	a.publishLocked(Event{User: a.user.Clone()})
	return a.user.Clone(), nil
}

// SignOut はリフレッシュトークンを無効化してセッションを破棄する。
// 無効化に失敗した場合はセッションを維持したままエラーを返す。
func (a *Auth) SignOut(ctx context.Context) error {
	a.mu.Lock()
	if a.user == nil {
		a.mu.Unlock()
		return nil
	}
	refreshToken := a.tokens.RefreshToken
	a.mu.Unlock()

	if err := a.backend.Revoke(ctx, refreshToken); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.clearLocked()
	return nil
}

// CurrentUser は現在のユーザーのコピーを返す。サインアウト状態ではnil。
func (a *Auth) CurrentUser() *User {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.user.Clone()
}

// IDToken は現在のユーザーのIDトークンを返す。
// 有効期限が近い場合、またはforceRefreshがtrueの場合はリフレッシュする。
// リフレッシュがセッション喪失を示すエラーで失敗した場合はサインアウト状態を通知し、
// それ以外の失敗は購読者にエラーとして通知する。
func (a *Auth) IDToken(ctx context.Context, forceRefresh bool) (string, error) {
	a.mu.Lock()
	if a.user == nil {
		a.mu.Unlock()
		return "", ErrNoCurrentUser
	}
	if !forceRefresh && a.tokens.IDToken != "" && a.now().Add(a.refreshSkew).Before(a.tokens.ExpiresAt) {
		token := a.tokens.IDToken
		a.mu.Unlock()
		return token, nil
	}
	uid := a.user.UID
	refreshToken := a.tokens.RefreshToken
	a.mu.Unlock()

	tokens, err := a.backend.Refresh(ctx, refreshToken)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.user == nil || a.user.UID != uid {
		return "", ErrNoCurrentUser
	}
	if err != nil {
		if IsSessionLoss(err) {
			slog.Warn("provider session lost during token refresh",
				slog.String("user_id", uid),
				slog.String("code", CodeOf(err)),
			)
			a.clearLocked()
		} else {
			a.publishLocked(Event{Err: err})
		}
		return "", err
	}
	a.mergeTokensLocked(*tokens)
	return a.tokens.IDToken, nil
}

// OnAuthStateChanged は状態変化の購読を開始する。
// 最初に現在の状態が通知され、以降の変化は発生順に1件ずつ配送される。
func (a *Auth) OnAuthStateChanged() *Subscription {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.nextID++
	s := newSubscription(a.nextID, a)
	s.enqueue(Event{User: a.user.Clone()})
	a.subs[s.id] = s
	go s.pump()
	return s
}

func (a *Auth) setSession(user *User, tokens Tokens) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.user = user.Clone()
	a.tokens = tokens
	a.publishLocked(Event{User: a.user.Clone()})
}

func (a *Auth) clearLocked() {
	a.user = nil
	a.tokens = Tokens{}
	a.publishLocked(Event{})
}

func (a *Auth) mergeTokensLocked(t Tokens) {
	if t.IDToken != "" {
		a.tokens.IDToken = t.IDToken
		a.tokens.ExpiresAt = t.ExpiresAt
	}
	if t.RefreshToken != "" {
		a.tokens.RefreshToken = t.RefreshToken
	}
}

func (a *Auth) publishLocked(ev Event) {
	for _, s := range a.subs {
		s.enqueue(Event{User: ev.User.Clone(), Err: ev.Err})
	}
}

func (a *Auth) removeSubscription(id uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.subs, id)
}

// SubscriberCount は有効な購読の数を返す。
func (a *Auth) SubscriberCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.subs)
}
