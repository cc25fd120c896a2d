package store

import "github.com/hitoshi/ebuddy/internal/model"

// Action はストアに対する変更要求。Dispatch以外にストアを変更する手段はない。
type Action interface {
	// Type はログ出力用のアクション名を返す。
	Type() string
}

// 認証パーティションのアクション
type (
	// LoginPending はログイン開始。
	LoginPending struct{}
	// LoginFulfilled はログイン成功。
	LoginFulfilled struct{ User *model.AuthUser }
	// LoginRejected はログイン失敗。Messageはユーザー向けメッセージ。
	LoginRejected struct{ Message string }
	// LogoutPending はログアウト開始。
	LogoutPending struct{}
	// LogoutFulfilled はログアウト成功。
	LogoutFulfilled struct{}
	// LogoutRejected はログアウト失敗。
	LogoutRejected struct{ Message string }
	// SetAuthUser は登録直後などにユーザーを直接設定する。
	SetAuthUser struct{ User *model.AuthUser }
	// ClearAuthError は認証エラーを消去する。
	ClearAuthError struct{}
)

// セッション同期のアクション（両パーティションが反応する）
type (
	// SessionChanged はプロバイダーのセッション変化。Userがnilならサインアウト。
	SessionChanged struct{ User *model.AuthUser }
	// SyncFailed は同期の購読エラー。
	SyncFailed struct{ Message string }
)

// ユーザーパーティションのアクション
type (
	FetchUserStart   struct{}
	FetchUserSuccess struct{ Profile *model.UserProfile }
	FetchUserFailure struct{ Message string }

	UpdateUserStart   struct{}
	UpdateUserSuccess struct{ Profile *model.UserProfile }
	UpdateUserFailure struct{ Message string }
)

func (LoginPending) Type() string    { return "auth/login/pending" }
func (LoginFulfilled) Type() string  { return "auth/login/fulfilled" }
func (LoginRejected) Type() string   { return "auth/login/rejected" }
func (LogoutPending) Type() string   { return "auth/logout/pending" }
func (LogoutFulfilled) Type() string { return "auth/logout/fulfilled" }
func (LogoutRejected) Type() string  { return "auth/logout/rejected" }
func (SetAuthUser) Type() string     { return "auth/setUser" }
func (ClearAuthError) Type() string  { return "auth/clearError" }

func (SessionChanged) Type() string { return "session/changed" }
func (SyncFailed) Type() string     { return "session/syncFailed" }

func (FetchUserStart) Type() string    { return "user/fetchUserStart" }
func (FetchUserSuccess) Type() string  { return "user/fetchUserSuccess" }
func (FetchUserFailure) Type() string  { return "user/fetchUserFailure" }
func (UpdateUserStart) Type() string   { return "user/updateUserStart" }
func (UpdateUserSuccess) Type() string { return "user/updateUserSuccess" }
func (UpdateUserFailure) Type() string { return "user/updateUserFailure" }
