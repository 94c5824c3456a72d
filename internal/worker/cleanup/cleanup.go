// Package cleanup は認証関連データの自動削除ジョブを提供する。
// 期限切れのセッションと、保持期間（デフォルト7日）を過ぎたログインリンクを
// 定期バッチで削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const (
	deleteExpiredSessionsQuery = `DELETE FROM sessions WHERE expires_at < now()`
	deleteStaleMagicLinksQuery = `DELETE FROM magic_links WHERE expires_at < now() - $1::interval`
)

// CleanupJob は期限切れの認証データを削除するジョブ。
// 何度実行しても結果が変わらない。
type CleanupJob struct {
	db            Executor
	logger        *slog.Logger
	RetentionDays int // 期限切れログインリンクの保持日数（デフォルト: 7）
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:            db,
		logger:        logger,
		RetentionDays: 7,
	}
}

// Start はジョブをティッカーで定期実行する。起動直後に1回実行する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	_ = j.Run(ctx)
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("クリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}

// Run は期限切れのセッションと保持期間を過ぎたログインリンクを削除する。
// 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	sessions, err := j.exec(ctx, "sessions", deleteExpiredSessionsQuery)
	if err != nil {
		return err
	}

	interval := fmt.Sprintf("%d days", j.RetentionDays)
	links, err := j.exec(ctx, "magic_links", deleteStaleMagicLinksQuery, interval)
	if err != nil {
		return err
	}

	duration := time.Since(start)
	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_sessions", sessions),
		slog.Int64("deleted_magic_links", links),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

func (j *CleanupJob) exec(ctx context.Context, table, query string, args ...interface{}) (int64, error) {
	result, err := j.db.ExecContext(ctx, query, args...)
	if err != nil {
		j.logger.Error("クリーンアップジョブの実行に失敗しました",
			slog.String("table", table),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("%sのクリーンアップに失敗: %w", table, err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}
	return deleted, nil
}
