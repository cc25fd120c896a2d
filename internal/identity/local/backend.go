// Package local はプロセス内で完結するidentity.Backendを提供する。
// 開発環境とテストで外部IDプロバイダーの代わりに使用する。
package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/ebuddy/internal/identity"
)

// emailPattern はメールアドレスの形式チェックに使用する。
var emailPattern = regexp.MustCompile(`(?i)^[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}$`)

// minPasswordLength はパスワードの最小文字数。
const minPasswordLength = 6

// Config はBackendの設定。
type Config struct {
	SigningKey string
	TokenTTL   time.Duration
	// MaxFailedAttempts 回連続でパスワードを誤るとLockoutDurationの間サインインを拒否する。
	MaxFailedAttempts int
	LockoutDuration   time.Duration
	BcryptCost        int
}

type account struct {
	user         identity.User
	passwordHash []byte
	failures     int
	lockedUntil  time.Time
	disabled     bool
}

// Backend はメモリ上にアカウントを保持するIDプロバイダー。
type Backend struct {
	cfg    Config
	signer *TokenSigner
	verify *Verifier
	now    func() time.Time

	mu       sync.Mutex
	byEmail  map[string]*account
	byUID    map[string]*account
	sessions map[string]string // refresh token -> uid
}

// New はBackendを生成する。
func New(cfg Config) (*Backend, error) {
	if cfg.SigningKey == "" {
		return nil, errors.New("local identity backend requires a signing key")
	}
	if cfg.MaxFailedAttempts <= 0 {
		cfg.MaxFailedAttempts = 5
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = 15 * time.Minute
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	b := &Backend{
		cfg:      cfg,
		signer:   NewTokenSigner(cfg.SigningKey, cfg.TokenTTL),
		verify:   NewVerifier(cfg.SigningKey),
		now:      time.Now,
		byEmail:  make(map[string]*account),
		byUID:    make(map[string]*account),
		sessions: make(map[string]string),
	}
	b.verify.now = func() time.Time { return b.now() }
	return b, nil
}

// SetClock は現在時刻の取得関数を差し替える（テスト用）。
func (b *Backend) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

// SignInWithPassword はパスワードを検証してトークンを発行する。
func (b *Backend) SignInWithPassword(ctx context.Context, email, password string) (*identity.Credential, error) {
	key := normalizeEmail(email)
	if !emailPattern.MatchString(key) {
		return nil, identity.NewAuthError(identity.CodeInvalidEmail, "INVALID_EMAIL")
	}
	if password == "" {
		return nil, identity.NewAuthError(identity.CodeMissingPassword, "MISSING_PASSWORD")
	}

	b.mu.Lock()
	acct, ok := b.byEmail[key]
	if !ok {
		b.mu.Unlock()
		return nil, identity.NewAuthError(identity.CodeUserNotFound, "EMAIL_NOT_FOUND")
	}
	if acct.disabled {
		b.mu.Unlock()
		return nil, identity.NewAuthError(identity.CodeUserDisabled, "USER_DISABLED")
	}
	if b.now().Before(acct.lockedUntil) {
		b.mu.Unlock()
		return nil, identity.NewAuthError(identity.CodeTooManyRequests, "TOO_MANY_ATTEMPTS_TRY_LATER")
	}
	hash := acct.passwordHash
	b.mu.Unlock()

	compareErr := bcrypt.CompareHashAndPassword(hash, []byte(password))

	b.mu.Lock()
	defer b.mu.Unlock()
	if compareErr != nil {
		if !errors.Is(compareErr, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, &identity.AuthError{Code: identity.CodeInternalError, Message: "password verification failed", Err: compareErr}
		}
		acct.failures++
		if acct.failures >= b.cfg.MaxFailedAttempts {
			acct.lockedUntil = b.now().Add(b.cfg.LockoutDuration)
			acct.failures = 0
			slog.Warn("local account locked after repeated failures", slog.String("user_id", acct.user.UID))
		}
		return nil, identity.NewAuthError(identity.CodeWrongPassword, "INVALID_PASSWORD")
	}

	acct.failures = 0
	acct.user.LastLoginAt = b.now().UTC()
	return b.issueLocked(acct)
}

// SignUp はアカウントを作成してトークンを発行する。
func (b *Backend) SignUp(ctx context.Context, email, password string) (*identity.Credential, error) {
	key := normalizeEmail(email)
	if !emailPattern.MatchString(key) {
		return nil, identity.NewAuthError(identity.CodeInvalidEmail, "INVALID_EMAIL")
	}
	if len(password) < minPasswordLength {
		return nil, identity.NewAuthError(identity.CodeWeakPassword, "WEAK_PASSWORD : Password should be at least 6 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, identity.NewAuthError(identity.CodeWeakPassword, "password is too long")
		}
		return nil, &identity.AuthError{Code: identity.CodeInternalError, Message: "could not hash password", Err: err}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.byEmail[key]; exists {
		return nil, identity.NewAuthError(identity.CodeEmailAlreadyInUse, "EMAIL_EXISTS")
	}

	now := b.now().UTC()
	acct := &account{
		user: identity.User{
			UID:         uuid.NewString(),
			Email:       key,
			CreatedAt:   now,
			LastLoginAt: now,
		},
		passwordHash: hash,
	}
	b.byEmail[key] = acct
	b.byUID[acct.user.UID] = acct

	slog.Info("local account created", slog.String("user_id", acct.user.UID))
	return b.issueLocked(acct)
}

// UpdateProfile はIDトークンを検証して表示名を更新する。
func (b *Backend) UpdateProfile(ctx context.Context, idToken, displayName string) (*identity.Credential, error) {
	claims, err := b.verify.Verify(idToken)
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return nil, identity.NewAuthError(identity.CodeUserTokenExpired, "TOKEN_EXPIRED")
		}
		return nil, identity.NewAuthError(identity.CodeInvalidUserToken, "INVALID_ID_TOKEN")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	acct, ok := b.byUID[claims.Subject]
	if !ok {
		return nil, identity.NewAuthError(identity.CodeUserNotFound, "USER_NOT_FOUND")
	}
	acct.user.DisplayName = displayName
	u := acct.user
	return &identity.Credential{User: &u}, nil
}

// Refresh はリフレッシュトークンから新しいIDトークンを発行する。
func (b *Backend) Refresh(ctx context.Context, refreshToken string) (*identity.Tokens, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	uid, ok := b.sessions[refreshToken]
	if !ok {
		return nil, identity.NewAuthError(identity.CodeInvalidUserToken, "INVALID_REFRESH_TOKEN")
	}
	acct, ok := b.byUID[uid]
	if !ok {
		delete(b.sessions, refreshToken)
		return nil, identity.NewAuthError(identity.CodeUserNotFound, "USER_NOT_FOUND")
	}
	if acct.disabled {
		return nil, identity.NewAuthError(identity.CodeUserDisabled, "USER_DISABLED")
	}

	token, expiresAt, err := b.signer.Issue(&acct.user, b.now())
	if err != nil {
		return nil, &identity.AuthError{Code: identity.CodeInternalError, Message: "could not issue token", Err: err}
	}
	return &identity.Tokens{IDToken: token, RefreshToken: refreshToken, ExpiresAt: expiresAt}, nil
}

// Revoke はリフレッシュトークンを無効化する。
func (b *Backend) Revoke(ctx context.Context, refreshToken string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, refreshToken)
	return nil
}

// Disable はアカウントを無効化し、発行済みのリフレッシュトークンを使えなくする。
func (b *Backend) Disable(email string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	acct, ok := b.byEmail[normalizeEmail(email)]
	if !ok {
		return fmt.Errorf("account not found: %s", email)
	}
	acct.disabled = true
	return nil
}

// Verifier はこのBackendが発行したIDトークンの検証器を返す。
func (b *Backend) Verifier() *Verifier {
	return b.verify
}

func (b *Backend) issueLocked(acct *account) (*identity.Credential, error) {
	token, expiresAt, err := b.signer.Issue(&acct.user, b.now())
	if err != nil {
		return nil, &identity.AuthError{Code: identity.CodeInternalError, Message: "could not issue token", Err: err}
	}
	refresh, err := newRefreshToken()
	if err != nil {
		return nil, &identity.AuthError{Code: identity.CodeInternalError, Message: "could not issue token", Err: err}
	}
	b.sessions[refresh] = acct.user.UID

	u := acct.user
	return &identity.Credential{
		User:   &u,
		Tokens: identity.Tokens{IDToken: token, RefreshToken: refresh, ExpiresAt: expiresAt},
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
