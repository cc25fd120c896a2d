// Package cleanup はアクセスのないブラウザコンテキストの定期破棄ジョブを提供する。
// 破棄されたコンテキストは同期を停止し、次のリクエストで新しいコンテキストが発行される。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Sweeper はアイドルなコンテキストの破棄を抽象化するインターフェース。
// session.Managerが実装する。
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
	Len() int
}

// CleanupJob はアイドルなブラウザコンテキストを破棄するジョブ。
// 冪等で、破棄対象がない場合もエラーにならない。
type CleanupJob struct {
	sweeper Sweeper
	logger  *slog.Logger
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(sweeper Sweeper, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		sweeper: sweeper,
		logger:  logger,
	}
}

// Run はアイドル期間を超えたコンテキストを1回破棄する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	swept, err := j.sweeper.Sweep(ctx)
	if err != nil {
		j.logger.Error("コンテキストクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("swept_count", swept),
		)
		return fmt.Errorf("コンテキストクリーンアップの実行に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("コンテキストクリーンアップジョブが完了しました",
		slog.Int("swept_count", swept),
		slog.Int("active_count", j.sweeper.Len()),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return nil
}

// Start はintervalごとにRunを実行する。ctxがキャンセルされるまでブロックする。
// 失敗はログに記録して次の周期で再試行する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("コンテキストクリーンアップジョブを開始しました",
		slog.Duration("interval", interval),
	)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("コンテキストクリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
