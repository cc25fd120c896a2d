package identity

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hitoshi/ebuddy/internal/model"
)

// SessionCache はストアに保存された最後の既知のユーザーIDを読み出す。
// CurrentUserIDのフォールバックに使用する。
type SessionCache interface {
	// CachedAuthUID は認証パーティションのユーザーIDを返す。
	CachedAuthUID() string
	// CachedProfileID はユーザーパーティションにキャッシュされたプロフィールのIDを返す。
	CachedProfileID() string
}

// ClientOption はClientの設定を変更する。
type ClientOption func(*Client)

// WithPlaceholderUserID はユーザーIDが解決できない場合に返す固定IDを設定する。
// 空文字の場合は解決失敗として扱う。
func WithPlaceholderUserID(id string) ClientOption {
	return func(c *Client) { c.placeholder = id }
}

// Client はアプリケーションから見た認証操作を提供する。
// プロバイダーへの委譲のみを行い、ストアの更新は行わない。
type Client struct {
	auth        *Auth
	cache       SessionCache
	placeholder string
}

// NewClient はClientを生成する。cacheはnilでもよい。
func NewClient(auth *Auth, cache SessionCache, opts ...ClientOption) *Client {
	c := &Client{auth: auth, cache: cache}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Auth は基盤となるプロバイダーセッションを返す。
func (c *Client) Auth() *Auth {
	return c.auth
}

// SignIn はメールアドレスとパスワードでサインインする。
func (c *Client) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	u, err := c.auth.SignInWithEmailAndPassword(ctx, email, password)
	if err != nil {
		slog.Error("error signing in",
			slog.String("code", CodeOf(err)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return &model.Session{UserID: u.UID, IsAuthenticated: true}, nil
}

// SignUp はユーザーを作成してサインインする。
func (c *Client) SignUp(ctx context.Context, email, password string) (*model.Session, error) {
	u, err := c.auth.CreateUserWithEmailAndPassword(ctx, email, password)
	if err != nil {
		slog.Error("error signing up",
			slog.String("code", CodeOf(err)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return &model.Session{UserID: u.UID, IsAuthenticated: true}, nil
}

// UpdateDisplayName は現在のユーザーの表示名を更新し、シリアライズしたユーザーを返す。
func (c *Client) UpdateDisplayName(ctx context.Context, name string) (*model.AuthUser, error) {
	u, err := c.auth.UpdateProfile(ctx, name)
	if err != nil {
		slog.Error("error updating display name",
			slog.String("code", CodeOf(err)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return u.Serialize(), nil
}

// SignOut はサインアウトする。
func (c *Client) SignOut(ctx context.Context) error {
	if err := c.auth.SignOut(ctx); err != nil {
		slog.Error("error signing out", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// CurrentUser は現在のユーザーをシリアライズして返す。サインアウト状態ではnil。
func (c *Client) CurrentUser() *model.AuthUser {
	return c.auth.CurrentUser().Serialize()
}

// CurrentUserID は現在のユーザーIDを次の順で解決する。
//  1. プロバイダーセッション
//  2. ストアの認証パーティション
//  3. ストアのユーザーパーティション
//  4. 設定されたプレースホルダーID（未設定なら解決失敗）
func (c *Client) CurrentUserID() (string, bool) {
	if u := c.auth.CurrentUser(); u != nil && u.UID != "" {
		return u.UID, true
	}
	if c.cache != nil {
		if uid := c.cache.CachedAuthUID(); uid != "" {
			return uid, true
		}
		if id := c.cache.CachedProfileID(); id != "" {
			return id, true
		}
	}
	if c.placeholder != "" {
		return c.placeholder, true
	}
	return "", false
}

// CurrentIDToken はプロバイダーセッションからIDトークンを取得する。
// セッションがない場合や取得に失敗した場合は("", false)を返し、エラーにはしない。
func (c *Client) CurrentIDToken(ctx context.Context) (string, bool) {
	token, err := c.auth.IDToken(ctx, false)
	if err != nil {
		if !errors.Is(err, ErrNoCurrentUser) {
			slog.Warn("error getting auth token", slog.String("error", err.Error()))
		}
		return "", false
	}
	return token, token != ""
}

// DisplayFields はプロフィール生成に使う表示名とメールアドレスを返す。
// サインアウト状態では空文字を返す。
func (c *Client) DisplayFields() (name, email string) {
	u := c.auth.CurrentUser()
	if u == nil {
		return "", ""
	}
	return u.DisplayName, u.Email
}
