// Package account はプロフィールの取得・更新のユースケースを提供する。
// 結果はブラウザコンテキストのストアに反映する。
package account

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hitoshi/ebuddy/internal/auth"
	"github.com/hitoshi/ebuddy/internal/identity"
	"github.com/hitoshi/ebuddy/internal/model"
	"github.com/hitoshi/ebuddy/internal/profile"
	"github.com/hitoshi/ebuddy/internal/store"
)

// NoUserIDMessage はユーザーIDが解決できない場合のメッセージ。
const NoUserIDMessage = "No user ID available"

// ErrNoUserID はユーザーIDが解決できないことを表す。
var ErrNoUserID = &model.ValidationError{Field: "userId", Message: NoUserIDMessage}

// Caller はプロフィール操作の呼び出し元。identity.Clientが実装する。
type Caller interface {
	profile.Caller
	CurrentUserID() (string, bool)
}

// Gateway はプロフィールゲートウェイ。profile.Gatewayが実装する。
type Gateway interface {
	FetchProfile(ctx context.Context, caller profile.Caller, userID string) (*model.UserProfile, error)
	UpdateProfile(ctx context.Context, caller profile.Caller, userID string, patch model.ProfilePatch) (*model.UserProfile, error)
}

// Sanitizer はプロフィールのテキスト入力を無害化する。
type Sanitizer interface {
	Sanitize(raw string) string
}

var (
	_ Caller  = (*identity.Client)(nil)
	_ Gateway = (*profile.Gateway)(nil)
)

// Service はプロフィールのユースケースを提供する。
type Service struct {
	gateway   Gateway
	sanitizer Sanitizer
}

// NewService はServiceを生成する。
func NewService(gateway Gateway, sanitizer Sanitizer) *Service {
	return &Service{gateway: gateway, sanitizer: sanitizer}
}

// FetchUserData はプロフィールを取得してストアに反映する。
// userIDが空の場合はCurrentUserIDで解決する。解決できない場合はストアに触れずにErrNoUserIDを返す。
func (s *Service) FetchUserData(ctx context.Context, c Caller, d auth.Dispatcher, userID string) (*model.UserProfile, error) {
	id, ok := resolveUserID(c, userID)
	if !ok {
		return nil, ErrNoUserID
	}

	d.Dispatch(store.FetchUserStart{})
	p, err := s.gateway.FetchProfile(ctx, c, id)
	if err != nil {
		msg := failureMessage(err, profile.FetchFailedMessage)
		d.Dispatch(store.FetchUserFailure{Message: msg})
		slog.Error("error fetching user data",
			slog.String("user_id", id),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	d.Dispatch(store.FetchUserSuccess{Profile: p})
	return p, nil
}

// UpdateUserData はプロフィールを部分更新してストアに反映する。
// 名前とメールアドレスは無害化し、メールアドレスの形式が不正な場合はストアに触れずにエラーを返す。
func (s *Service) UpdateUserData(ctx context.Context, c Caller, d auth.Dispatcher, patch model.ProfilePatch, userID string) (*model.UserProfile, error) {
	id, ok := resolveUserID(c, userID)
	if !ok {
		return nil, ErrNoUserID
	}

	patch, err := s.cleanPatch(patch)
	if err != nil {
		return nil, err
	}

	d.Dispatch(store.UpdateUserStart{})
	p, err := s.gateway.UpdateProfile(ctx, c, id, patch)
	if err != nil {
		msg := failureMessage(err, profile.UpdateFailedMessage)
		d.Dispatch(store.UpdateUserFailure{Message: msg})
		slog.Error("error updating user data",
			slog.String("user_id", id),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	d.Dispatch(store.UpdateUserSuccess{Profile: p})
	slog.Info("user profile updated", slog.String("user_id", id))
	return p, nil
}

func (s *Service) cleanPatch(patch model.ProfilePatch) (model.ProfilePatch, error) {
	var out model.ProfilePatch
	if patch.Name != nil {
		name := s.sanitize(*patch.Name)
		out.Name = &name
	}
	if patch.Email != nil {
		email := s.sanitize(*patch.Email)
		if email != "" && !auth.ValidEmail(email) {
			return out, &model.ValidationError{Field: "email", Message: auth.MsgEmailInvalid}
		}
		out.Email = &email
	}
	return out, nil
}

func (s *Service) sanitize(v string) string {
	if s.sanitizer == nil {
		return strings.TrimSpace(v)
	}
	return s.sanitizer.Sanitize(v)
}

func resolveUserID(c Caller, userID string) (string, bool) {
	if userID != "" {
		return userID, true
	}
	return c.CurrentUserID()
}

func failureMessage(err error, fallback string) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}
