package store

import "github.com/hitoshi/ebuddy/internal/model"

// reduceAuth は認証パーティションのreducer。入力を変更せず新しい状態を返す。
func reduceAuth(s AuthState, action Action) AuthState {
	switch a := action.(type) {
	case LoginPending:
		s.Login = model.OpState{Pending: true}
		s.Error = ""
	case LoginFulfilled:
		s.User = a.User.Clone()
		s.Login = model.OpState{}
		s.Error = ""
	case LoginRejected:
		s.Login = model.OpState{Error: a.Message}
		s.Error = a.Message
	case LogoutPending:
		s.Logout = model.OpState{Pending: true}
		s.Error = ""
	case LogoutFulfilled:
		s.User = nil
		s.Logout = model.OpState{}
		s.Error = ""
	case LogoutRejected:
		s.Logout = model.OpState{Error: a.Message}
		s.Error = a.Message
	case SetAuthUser:
		s.User = a.User.Clone()
	case ClearAuthError:
		s.Error = ""
		s.Login.Error = ""
		s.Logout.Error = ""
	case SessionChanged:
		s.User = a.User.Clone()
		if a.User == nil {
			s.Error = ""
		}
	case SyncFailed:
		s.Login.Pending = false
		s.Logout.Pending = false
		s.Error = a.Message
	}
	return s
}

// reduceUser はユーザーパーティションのreducer。入力を変更せず新しい状態を返す。
func reduceUser(s UserState, action Action) UserState {
	switch a := action.(type) {
	case SessionChanged:
		if a.User == nil {
			s.Profile = nil
			s.IsLoggedIn = false
			s.Error = ""
			break
		}
		s.IsLoggedIn = true
		s.Error = ""
		// 別ユーザーのプロフィールは保持しない
		if s.Profile != nil && s.Profile.ID != a.User.UID {
			s.Profile = nil
		}
	case LogoutFulfilled:
		s.Profile = nil
		s.IsLoggedIn = false
		s.Error = ""
	case FetchUserStart:
		s.Fetch = model.OpState{Pending: true}
		s.Error = ""
	case FetchUserSuccess:
		s.Profile = a.Profile.Clone()
		s.Fetch = model.OpState{}
		s.Error = ""
	case FetchUserFailure:
		s.Fetch = model.OpState{Error: a.Message}
		s.Error = a.Message
	case UpdateUserStart:
		s.Update = model.OpState{Pending: true}
		s.Error = ""
	case UpdateUserSuccess:
		s.Profile = a.Profile.Clone()
		s.Update = model.OpState{}
		s.Error = ""
	case UpdateUserFailure:
		s.Update = model.OpState{Error: a.Message}
		s.Error = a.Message
	}
	return s
}
