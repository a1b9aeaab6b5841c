// Package cleanup は期限切れセッションの自動削除ジョブを提供する。
// SESSION_MAX_AGEが0（既定）の場合、セッションは失効しないため何も削除しない。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/moodmate/internal/metrics"
)

// SessionPurger は作成日時がcutoffより前のセッションを削除するインターフェース。
// *repository.PostgresSessionRepo が満たす。
type SessionPurger interface {
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupJob は最大有効期間を超過したセッションの削除ジョブ。
// 冪等な削除処理で、何度実行しても結果は変わらない。
type CleanupJob struct {
	purger  SessionPurger
	logger  *slog.Logger
	metrics metrics.MetricsCollector
	now     func() time.Time

	MaxAge time.Duration // セッションの最大有効期間（0以下で無効）
}

// NewCleanupJob は新しいCleanupJobを生成する。collectorがnilの場合はメトリクスを記録しない。
func NewCleanupJob(purger SessionPurger, logger *slog.Logger, collector metrics.MetricsCollector, maxAge time.Duration) *CleanupJob {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &CleanupJob{
		purger:  purger,
		logger:  logger,
		metrics: collector,
		now:     time.Now,
		MaxAge:  maxAge,
	}
}

// Run は作成からMaxAgeを超えたセッションを削除し、削除件数を返す。
func (j *CleanupJob) Run(ctx context.Context) (int64, error) {
	if j.MaxAge <= 0 {
		j.logger.Debug("セッションの最大有効期間が未設定のためクリーンアップをスキップします")
		return 0, nil
	}

	start := time.Now()
	cutoff := j.now().Add(-j.MaxAge)

	deleted, err := j.purger.DeleteCreatedBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Duration("max_age", j.MaxAge),
		)
		return 0, fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	j.metrics.RecordSessionsCleaned(deleted)
	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Duration("max_age", j.MaxAge),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return deleted, nil
}

// Start はinterval間隔でRunを繰り返す。起動直後に1回実行し、
// コンテキストがキャンセルされるまで継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("セッションクリーンアップを開始しました",
		slog.Duration("interval", interval),
		slog.Duration("max_age", j.MaxAge),
	)

	// エラーはRun内で記録済み
	_, _ = j.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("セッションクリーンアップを停止しました")
			return
		case <-ticker.C:
			_, _ = j.Run(ctx)
		}
	}
}
