// Package auth はログイン、登録、ログアウトのユースケースとフォーム検証を提供する。
package auth

import (
	"context"
	"log/slog"

	"github.com/hitoshi/ebuddy/internal/identity"
	"github.com/hitoshi/ebuddy/internal/model"
	"github.com/hitoshi/ebuddy/internal/store"
)

// DefaultLogoutMessage はログアウト失敗時のメッセージ。
const DefaultLogoutMessage = "Logout failed"

// 試行結果（メトリクスのresultラベル）
const (
	ResultSuccess = "success"
	ResultInvalid = "invalid"
	ResultFailure = "failure"
)

// Provider はIDプロバイダーに対する認証操作。identity.Clientが実装する。
type Provider interface {
	SignIn(ctx context.Context, email, password string) (*model.Session, error)
	SignUp(ctx context.Context, email, password string) (*model.Session, error)
	UpdateDisplayName(ctx context.Context, name string) (*model.AuthUser, error)
	SignOut(ctx context.Context) error
	CurrentUser() *model.AuthUser
}

// Dispatcher はストアへのアクション送信。store.Storeが実装する。
type Dispatcher interface {
	Dispatch(action store.Action)
}

// Recorder は認証試行のメトリクスを記録する。
type Recorder interface {
	RecordAuthAttempt(operation, result string)
}

var (
	_ Provider   = (*identity.Client)(nil)
	_ Dispatcher = (*store.Store)(nil)
)

// Error はプロバイダー操作の失敗。Messageはフォームに表示するメッセージ。
type Error struct {
	Message string
	Err     error
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string { return e.Message }

// Unwrap は元のプロバイダーエラーを返す。
func (e *Error) Unwrap() error { return e.Err }

// Kind は元のエラーの分類を返す。
func (e *Error) Kind() model.ErrorKind { return model.KindOf(e.Err) }

// Service は認証に関するユースケースを提供する。
type Service struct {
	recorder Recorder
}

// NewService はServiceを生成する。recorderはnilでもよい。
func NewService(recorder Recorder) *Service {
	return &Service{recorder: recorder}
}

// Login はフォームを検証し、サインインしてストアに結果を反映する。
// 検証エラーの場合はFieldErrorsを返し、プロバイダーとストアには触れない。
func (s *Service) Login(ctx context.Context, p Provider, d Dispatcher, form LoginForm) error {
	if errs := form.Validate(); errs != nil {
		s.record("login", ResultInvalid)
		return errs
	}

	d.Dispatch(store.LoginPending{})
	if _, err := p.SignIn(ctx, form.Email, form.Password); err != nil {
		msg := identity.LoginErrorMessage(identity.CodeOf(err))
		d.Dispatch(store.LoginRejected{Message: msg})
		s.record("login", ResultFailure)
		return &Error{Message: msg, Err: err}
	}

	user := p.CurrentUser()
	d.Dispatch(store.LoginFulfilled{User: user})
	s.record("login", ResultSuccess)
	if user != nil {
		slog.Info("user logged in", slog.String("user_id", user.UID))
	}
	return nil
}

// Register はフォームを検証し、ユーザーを作成して表示名を設定する。
// 成功時はシリアライズしたユーザーをストアに設定する。
func (s *Service) Register(ctx context.Context, p Provider, d Dispatcher, form RegisterForm) error {
	if errs := form.Validate(); errs != nil {
		s.record("register", ResultInvalid)
		return errs
	}

	if _, err := p.SignUp(ctx, form.Email, form.Password); err != nil {
		s.record("register", ResultFailure)
		return &Error{Message: identity.RegisterErrorMessage(identity.CodeOf(err)), Err: err}
	}

	user, err := p.UpdateDisplayName(ctx, form.Name)
	if err != nil {
		s.record("register", ResultFailure)
		return &Error{Message: identity.RegisterErrorMessage(identity.CodeOf(err)), Err: err}
	}

	d.Dispatch(store.SetAuthUser{User: user})
	s.record("register", ResultSuccess)
	slog.Info("user registered", slog.String("user_id", user.UID))
	return nil
}

// Logout はサインアウトしてストアに結果を反映する。
func (s *Service) Logout(ctx context.Context, p Provider, d Dispatcher) error {
	d.Dispatch(store.LogoutPending{})
	if err := p.SignOut(ctx); err != nil {
		d.Dispatch(store.LogoutRejected{Message: DefaultLogoutMessage})
		s.record("logout", ResultFailure)
		return &Error{Message: DefaultLogoutMessage, Err: err}
	}
	d.Dispatch(store.LogoutFulfilled{})
	s.record("logout", ResultSuccess)
	return nil
}

func (s *Service) record(operation, result string) {
	if s.recorder != nil {
		s.recorder.RecordAuthAttempt(operation, result)
	}
}
