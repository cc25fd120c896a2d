package identity

import "context"

// Backend は外部IDプロバイダーのリモート操作を表す。
type Backend interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Credential, error)
	SignUp(ctx context.Context, email, password string) (*Credential, error)
	// UpdateProfile はIDトークンのユーザーの表示名を更新する。
	// 新しいトークンが発行された場合はCredential.Tokensに含めて返す。
	UpdateProfile(ctx context.Context, idToken, displayName string) (*Credential, error)
	Refresh(ctx context.Context, refreshToken string) (*Tokens, error)
	// Revoke はリフレッシュトークンを無効化する。無効化の仕組みがないプロバイダーでは何もしない。
	Revoke(ctx context.Context, refreshToken string) error
}
