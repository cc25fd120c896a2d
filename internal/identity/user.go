// Package identity は外部IDプロバイダーとの境界を提供する。
// Backendがプロバイダーのリモート操作を、Authがブラウザコンテキストごとのプロバイダーセッションを、
// Clientがアプリケーションから見た認証操作を表す。
package identity

import (
	"time"

	"github.com/hitoshi/ebuddy/internal/model"
)

// User はIDプロバイダーのユーザー。
type User struct {
	UID           string
	Email         string
	EmailVerified bool
	DisplayName   string
	PhotoURL      string
	PhoneNumber   string
	IsAnonymous   bool
	CreatedAt     time.Time
	LastLoginAt   time.Time
}

// Clone はユーザーのコピーを返す。
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// Serialize はストアに保存できる形に変換する。nilの場合はnilを返す。
func (u *User) Serialize() *model.AuthUser {
	if u == nil {
		return nil
	}
	au := &model.AuthUser{
		UID:           u.UID,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		DisplayName:   u.DisplayName,
		PhotoURL:      u.PhotoURL,
		PhoneNumber:   u.PhoneNumber,
		IsAnonymous:   u.IsAnonymous,
	}
	if !u.CreatedAt.IsZero() {
		au.Metadata.CreationTime = u.CreatedAt.UTC().Format(time.RFC1123)
	}
	if !u.LastLoginAt.IsZero() {
		au.Metadata.LastSignInTime = u.LastLoginAt.UTC().Format(time.RFC1123)
	}
	return au
}

// Tokens はプロバイダーが発行したIDトークンとリフレッシュトークン。
type Tokens struct {
	IDToken      string
	RefreshToken string
	ExpiresAt    time.Time
}

// Credential はサインイン・サインアップの結果。
type Credential struct {
	User   *User
	Tokens Tokens
}
