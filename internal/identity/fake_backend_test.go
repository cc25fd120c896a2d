package identity

import (
	"context"
	"sync"
	"time"
)

// fakeBackend は関数フィールドで振る舞いを差し替えられるBackend。
type fakeBackend struct {
	mu sync.Mutex

	signInFn  func(ctx context.Context, email, password string) (*Credential, error)
	signUpFn  func(ctx context.Context, email, password string) (*Credential, error)
	updateFn  func(ctx context.Context, idToken, displayName string) (*Credential, error)
	refreshFn func(ctx context.Context, refreshToken string) (*Tokens, error)
	revokeFn  func(ctx context.Context, refreshToken string) error

	signInCalls  int
	refreshCalls int
}

func (f *fakeBackend) SignInWithPassword(ctx context.Context, email, password string) (*Credential, error) {
	f.mu.Lock()
	f.signInCalls++
	f.mu.Unlock()
	if f.signInFn != nil {
		return f.signInFn(ctx, email, password)
	}
	return testCredential("uid-1", email), nil
}

func (f *fakeBackend) SignUp(ctx context.Context, email, password string) (*Credential, error) {
	if f.signUpFn != nil {
		return f.signUpFn(ctx, email, password)
	}
	return testCredential("uid-new", email), nil
}

func (f *fakeBackend) UpdateProfile(ctx context.Context, idToken, displayName string) (*Credential, error) {
	if f.updateFn != nil {
		return f.updateFn(ctx, idToken, displayName)
	}
	return &Credential{}, nil
}

func (f *fakeBackend) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	f.mu.Lock()
	f.refreshCalls++
	f.mu.Unlock()
	if f.refreshFn != nil {
		return f.refreshFn(ctx, refreshToken)
	}
	return &Tokens{IDToken: "refreshed-token", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *fakeBackend) Revoke(ctx context.Context, refreshToken string) error {
	if f.revokeFn != nil {
		return f.revokeFn(ctx, refreshToken)
	}
	return nil
}

func testCredential(uid, email string) *Credential {
	return &Credential{
		User: &User{UID: uid, Email: email, DisplayName: "Test User"},
		Tokens: Tokens{
			IDToken:      "id-token-" + uid,
			RefreshToken: "refresh-" + uid,
			ExpiresAt:    time.Now().Add(time.Hour),
		},
	}
}
