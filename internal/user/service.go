// Package user はプロフィールAPIのドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/ebuddy/internal/auth"
	"github.com/hitoshi/ebuddy/internal/model"
	"github.com/hitoshi/ebuddy/internal/repository"
)

// maxNameLength は名前の最大文字数。
const maxNameLength = 100

// Sanitizer はテキスト入力を無害化する。
type Sanitizer interface {
	Sanitize(raw string) string
}

// Service はプロフィールAPIのサービス層。
type Service struct {
	repo      repository.ProfileRepository
	sanitizer Sanitizer
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.ProfileRepository, sanitizer Sanitizer) *Service {
	return &Service{
		repo:      repo,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// GetProfile は指定IDのプロフィールを取得する。
// 存在しない場合はUSER_NOT_FOUNDのAPIErrorを返す。
func (s *Service) GetProfile(ctx context.Context, id string) (*model.UserProfile, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if p == nil {
		return nil, model.NewUserNotFoundError()
	}
	return p, nil
}

// UpdateProfile はプロフィールを部分更新する。存在しない場合は作成する。
// idとcreatedAtは変更されず、updatedAtは直前の値より厳密に大きくなる。
func (s *Service) UpdateProfile(ctx context.Context, id string, patch model.ProfilePatch) (*model.UserProfile, error) {
	clean, err := s.validate(patch)
	if err != nil {
		return nil, err
	}

	p, created, err := s.repo.Upsert(ctx, id, clean, s.now())
	if err != nil {
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}

	if created {
		slog.Info("プロフィールを作成しました", slog.String("user_id", id))
	} else {
		slog.Info("プロフィールを更新しました", slog.String("user_id", id))
	}
	return p, nil
}

// DeleteProfile はプロフィールを削除する。
func (s *Service) DeleteProfile(ctx context.Context, id string) error {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if p == nil {
		return model.NewUserNotFoundError()
	}

	if err := s.repo.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("プロフィールの削除に失敗しました: %w", err)
	}

	slog.Info("プロフィールを削除しました", slog.String("user_id", id))
	return nil
}

func (s *Service) validate(patch model.ProfilePatch) (model.ProfilePatch, error) {
	var out model.ProfilePatch
	if patch.Name != nil {
		name := s.clean(*patch.Name)
		if len([]rune(name)) > maxNameLength {
			return out, model.NewInvalidProfileError(fmt.Sprintf("Name must be at most %d characters", maxNameLength))
		}
		out.Name = &name
	}
	if patch.Email != nil {
		email := s.clean(*patch.Email)
		if email != "" && !auth.ValidEmail(email) {
			return out, model.NewInvalidProfileError(auth.MsgEmailInvalid)
		}
		out.Email = &email
	}
	return out, nil
}

func (s *Service) clean(v string) string {
	if s.sanitizer == nil {
		return strings.TrimSpace(v)
	}
	return s.sanitizer.Sanitize(v)
}
