// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/ebuddy/internal/model"
)

// ProfileRepository はユーザープロフィールの永続化インターフェース。
type ProfileRepository interface {
	// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.UserProfile, error)

	// Upsert はパッチを適用したプロフィールを保存する。
	// レコードが存在しない場合は空のプロフィールにパッチを適用して作成する。
	// updated_atは直前の値より厳密に大きくなる。createdはレコードを新規作成した場合にtrue。
	Upsert(ctx context.Context, id string, patch model.ProfilePatch, now time.Time) (profile *model.UserProfile, created bool, err error)

	// DeleteByID は指定IDのプロフィールを削除する。
	DeleteByID(ctx context.Context, id string) error
}
