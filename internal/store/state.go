package store

import "github.com/hitoshi/ebuddy/internal/model"

// AuthState は認証パーティション。
type AuthState struct {
	User   *model.AuthUser `json:"user"`
	Login  model.OpState   `json:"login"`
	Logout model.OpState   `json:"logout"`
	// Error は直近の認証エラー（ログイン、ログアウト、同期）。
	Error string `json:"error,omitempty"`
}

// UserState はプロフィールのパーティション。
type UserState struct {
	Profile    *model.UserProfile `json:"user"`
	IsLoggedIn bool               `json:"isLoggedIn"`
	Fetch      model.OpState      `json:"fetch"`
	Update     model.OpState      `json:"update"`
	Error      string             `json:"error,omitempty"`
}

// Loading はプロフィールの取得または更新が進行中かどうかを返す。
func (u UserState) Loading() bool {
	return u.Fetch.Pending || u.Update.Pending
}

// State はストア全体の状態。
type State struct {
	Auth AuthState `json:"auth"`
	User UserState `json:"user"`
	// Version はDispatchごとに1増える。
	Version uint64 `json:"version"`
}

// Clone はポインタフィールドを含めた完全なコピーを返す。
func (s State) Clone() State {
	s.Auth.User = s.Auth.User.Clone()
	s.User.Profile = s.User.Profile.Clone()
	return s
}

// Session はストアの状態から導出したセッション。
func (s State) Session() model.Session {
	sess := model.Session{LastError: s.Auth.Error}
	switch {
	case s.Auth.User != nil:
		sess.UserID = s.Auth.User.UID
		sess.IsAuthenticated = true
	case s.User.IsLoggedIn && s.User.Profile != nil:
		sess.UserID = s.User.Profile.ID
		sess.IsAuthenticated = true
	}
	return sess
}
