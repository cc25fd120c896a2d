package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/ebuddy/internal/model"
)

// ErrProfileNotFound は削除対象のプロフィールが存在しないことを表す。
var ErrProfileNotFound = errors.New("profile not found")

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*model.UserProfile, error) {
	p := &model.UserProfile{}
	if err := row.Scan(&p.ID, &p.Name, &p.Email, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByID(ctx context.Context, id string) (*model.UserProfile, error) {
	p, err := scanProfile(r.db.QueryRowContext(ctx,
		`SELECT id, name, email, created_at, updated_at FROM user_profiles WHERE id = $1`,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile by ID: %w", err)
	}
	return p, nil
}

// Upsert はパッチを適用したプロフィールを保存する。
// 同一IDへの同時更新は行ロックで直列化する。
func (r *PostgresProfileRepo) Upsert(ctx context.Context, id string, patch model.ProfilePatch, now time.Time) (*model.UserProfile, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 初回作成の競合に備えて空レコードを先に確保する
	base := model.NewDefaultProfile(id, "", "", now)
	res, err := tx.ExecContext(ctx,
		`INSERT INTO user_profiles (id, name, email, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		base.ID, base.Name, base.Email, base.CreatedAt, base.UpdatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert profile: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	current, err := scanProfile(tx.QueryRowContext(ctx,
		`SELECT id, name, email, created_at, updated_at FROM user_profiles WHERE id = $1 FOR UPDATE`,
		id,
	))
	if err != nil {
		return nil, false, fmt.Errorf("failed to lock profile: %w", err)
	}

	next := model.ApplyPatch(current, patch, now)
	if inserted == 1 {
		// 新規作成時は作成時刻と更新時刻を揃える
		next.UpdatedAt = next.CreatedAt
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE user_profiles SET name = $2, email = $3, updated_at = $4 WHERE id = $1`,
		next.ID, next.Name, next.Email, next.UpdatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to update profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return next, inserted == 1, nil
}

// DeleteByID は指定IDのプロフィールを削除する。
func (r *PostgresProfileRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM user_profiles WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}
	return nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
