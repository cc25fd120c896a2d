// Package model はドメインモデルを定義する。
package model

import (
	"encoding/json"
	"strings"
	"time"
)

// TimeLayout はプロフィールのタイムスタンプをJSONに書き出す際のISO-8601形式。
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// UserProfile はユーザーのプロフィールレコードを表す。
// IDは作成後に変更されず、UpdatedAtは常にCreatedAt以上である。
type UserProfile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MarshalJSON はタイムスタンプをUTCのミリ秒精度（TimeLayout）で書き出す。
func (p UserProfile) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		CreatedAt string `json:"createdAt"`
		UpdatedAt string `json:"updatedAt"`
	}{
		ID:        p.ID,
		Name:      p.Name,
		Email:     p.Email,
		CreatedAt: p.CreatedAt.UTC().Format(TimeLayout),
		UpdatedAt: p.UpdatedAt.UTC().Format(TimeLayout),
	})
}

// Clone はプロフィールのコピーを返す。nilの場合はnilを返す。
func (p *UserProfile) Clone() *UserProfile {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// ProfilePatch はプロフィールの部分更新を表す。
// nilのフィールドは変更しない。
type ProfilePatch struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
}

// IsEmpty は更新対象のフィールドが1つもない場合にtrueを返す。
func (p ProfilePatch) IsEmpty() bool {
	return p.Name == nil && p.Email == nil
}

// NewProfilePatch は名前とメールアドレスの両方を指定したパッチを生成する。
func NewProfilePatch(name, email string) ProfilePatch {
	return ProfilePatch{Name: &name, Email: &email}
}

// NewDefaultProfile は表示名とメールアドレスからデフォルトのプロフィールを生成する。
func NewDefaultProfile(id, name, email string, now time.Time) *UserProfile {
	now = now.UTC().Truncate(time.Millisecond)
	return &UserProfile{
		ID:        id,
		Name:      name,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ApplyPatch はパッチをフィールド単位の後勝ちでマージした新しいプロフィールを返す。
// IDとCreatedAtは維持し、UpdatedAtはNextUpdatedAtで更新する。
func ApplyPatch(p *UserProfile, patch ProfilePatch, now time.Time) *UserProfile {
	next := p.Clone()
	if patch.Name != nil {
		next.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Email != nil {
		next.Email = strings.TrimSpace(*patch.Email)
	}
	next.UpdatedAt = NextUpdatedAt(p.UpdatedAt, now)
	if next.UpdatedAt.Before(next.CreatedAt) {
		next.UpdatedAt = next.CreatedAt
	}
	return next
}

// NextUpdatedAt は直前のupdatedAtより厳密に大きい更新時刻を返す。
// タイムスタンプはミリ秒精度でシリアライズされるため、同一ミリ秒内の連続更新は1ms進める。
func NextUpdatedAt(prev, now time.Time) time.Time {
	now = now.UTC().Truncate(time.Millisecond)
	if prev.IsZero() || now.After(prev) {
		return now
	}
	return prev.UTC().Truncate(time.Millisecond).Add(time.Millisecond)
}

// AuthUser はIdPのユーザーオブジェクトをストアに保存するためにシリアライズした形。
type AuthUser struct {
	UID           string           `json:"uid"`
	Email         string           `json:"email,omitempty"`
	EmailVerified bool             `json:"emailVerified"`
	DisplayName   string           `json:"displayName,omitempty"`
	PhotoURL      string           `json:"photoURL,omitempty"`
	PhoneNumber   string           `json:"phoneNumber,omitempty"`
	IsAnonymous   bool             `json:"isAnonymous"`
	Metadata      AuthUserMetadata `json:"metadata"`
}

// AuthUserMetadata はIdPユーザーの作成日時と最終サインイン日時。
type AuthUserMetadata struct {
	CreationTime   string `json:"creationTime,omitempty"`
	LastSignInTime string `json:"lastSignInTime,omitempty"`
}

// Clone はAuthUserのコピーを返す。nilの場合はnilを返す。
func (u *AuthUser) Clone() *AuthUser {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// Session はローカルに保持する認証状態のスナップショット。
// ストアから導出され、他のコンポーネントは読み取りのみ行う。
type Session struct {
	UserID          string `json:"userId"`
	IsAuthenticated bool   `json:"isAuthenticated"`
	LastError       string `json:"lastError,omitempty"`
}

// OpState は非同期操作（ログイン、プロフィール取得、更新など）ごとの進行状態。
// 同じ操作の新しい試行が始まるたびにリセットされる。
type OpState struct {
	Pending bool   `json:"pending"`
	Error   string `json:"error,omitempty"`
}
