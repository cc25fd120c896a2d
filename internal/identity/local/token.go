package local

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/ebuddy/internal/identity"
)

// Issuer はローカルプロバイダーが発行するIDトークンのiss。
const Issuer = "ebuddy-local"

// トークン検証エラー
var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("invalid token")
)

// Claims はIDトークンのクレーム。subにユーザーIDを持つ。
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// TokenSigner はHS256でIDトークンに署名する。
type TokenSigner struct {
	key []byte
	ttl time.Duration
}

// NewTokenSigner はTokenSignerを生成する。
func NewTokenSigner(key string, ttl time.Duration) *TokenSigner {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenSigner{key: []byte(key), ttl: ttl}
}

// Issue はユーザーのIDトークンを発行し、有効期限とともに返す。
func (s *TokenSigner) Issue(u *identity.User, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email: u.Email,
		Name:  u.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.UID,
			Issuer:    Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign id token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verifier はローカルプロバイダーのIDトークンを検証する。
// プロフィールAPIのBearer認証でも使用する。
type Verifier struct {
	key []byte
	now func() time.Time
}

// NewVerifier はVerifierを生成する。
func NewVerifier(key string) *Verifier {
	return &Verifier{key: []byte(key), now: time.Now}
}

// Verify は署名・アルゴリズム・発行者・有効期限を検証し、クレームを返す。
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" || len(v.key) == 0 {
		return nil, ErrTokenInvalid
	}

	claims := new(Claims)
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return v.key, nil
	},
		jwt.WithIssuer(Issuer),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// Subject はトークンを検証してsub（ユーザーID）を返す。
func (v *Verifier) Subject(tokenString string) (string, error) {
	claims, err := v.Verify(tokenString)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// newRefreshToken は不透明なリフレッシュトークンを生成する。
func newRefreshToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
