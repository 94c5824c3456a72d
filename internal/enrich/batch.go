package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/newsdigest/internal/repository"
)

// PreviewFetcher はリンクプレビュー取得のインターフェース。
// テスト時にモックに差し替え可能。
type PreviewFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Preview, error)
}

// Recorder は補完結果のメトリクス記録インターフェース。metrics.Collector が実装する。
type Recorder interface {
	RecordEnrichment(success bool)
	RecordFetchLatency(duration time.Duration)
}

// BatchConfig は補完バッチジョブの設定パラメータ。
type BatchConfig struct {
	// Interval はバッチジョブの実行間隔（デフォルト: 15分）。
	Interval time.Duration
	// RequestInterval はページ取得の最低間隔（デフォルト: 2秒）。
	RequestInterval time.Duration
	// BatchSize は1サイクルで処理する記事の最大数（デフォルト: 50）。
	BatchSize int
}

// DefaultBatchConfig はデフォルトのバッチジョブ設定を返す。
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		Interval:        15 * time.Minute,
		RequestInterval: 2 * time.Second,
		BatchSize:       50,
	}
}

// BatchJob は画像・スニペットが空の記事をリンク先ページのメタデータで補完するジョブ。
// 取得に失敗した記事も補完日時を記録し、次のサイクルで再取得しない。
type BatchJob struct {
	itemRepo          repository.EnrichmentItemRepository
	fetcher           PreviewFetcher
	logger            *slog.Logger
	config            BatchConfig
	recorder          Recorder
	now               func() time.Time
	consecutiveErrors int
	backoffUntil      time.Time
}

// NewBatchJob はBatchJobの新しいインスタンスを生成する。
func NewBatchJob(
	itemRepo repository.EnrichmentItemRepository,
	fetcher PreviewFetcher,
	logger *slog.Logger,
	config BatchConfig,
) *BatchJob {
	return &BatchJob{
		itemRepo: itemRepo,
		fetcher:  fetcher,
		logger:   logger,
		config:   config,
		now:      time.Now,
	}
}

// WithRecorder はメトリクス記録先を設定する。
func (b *BatchJob) WithRecorder(r Recorder) *BatchJob {
	b.recorder = r
	return b
}

// Start はバッチジョブをティッカーで定期実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (b *BatchJob) Start(ctx context.Context) {
	ticker := time.NewTicker(b.config.Interval)
	defer ticker.Stop()

	b.logger.Info("記事補完バッチジョブを開始しました",
		slog.Duration("interval", b.config.Interval),
		slog.Duration("request_interval", b.config.RequestInterval),
		slog.Int("batch_size", b.config.BatchSize),
	)

	// 起動直後に1回実行
	if err := b.RunOnce(ctx); err != nil {
		b.logger.Error("記事補完バッチサイクルの実行に失敗しました", slog.String("error", err.Error()))
	}

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("記事補完バッチジョブを停止しました")
			return
		case <-ticker.C:
			if err := b.RunOnce(ctx); err != nil {
				b.logger.Error("記事補完バッチサイクルの実行に失敗しました", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce は1回のバッチサイクルを実行する。
func (b *BatchJob) RunOnce(ctx context.Context) error {
	start := b.now()

	if !b.backoffUntil.IsZero() && start.Before(b.backoffUntil) {
		b.logger.Info("記事補完バッチジョブはバックオフ中のためスキップします",
			slog.Time("backoff_until", b.backoffUntil),
		)
		return nil
	}

	items, err := b.itemRepo.ListNeedingEnrichment(ctx, b.config.BatchSize)
	if err != nil {
		return fmt.Errorf("補完対象記事の取得に失敗しました: %w", err)
	}
	if len(items) == 0 {
		return nil
	}

	var fetched, updated int
	for _, item := range items {
		if item.URL == "" {
			continue
		}

		if fetched > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(b.config.RequestInterval):
			}
		}
		fetched++

		var imageURL, snippet string
		started := time.Now()
		preview, err := b.fetcher.Fetch(ctx, item.URL)
		if ctx.Err() == nil && b.recorder != nil {
			b.recorder.RecordFetchLatency(time.Since(started))
			b.recorder.RecordEnrichment(err == nil)
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Warn("リンク先メタデータの取得に失敗しました",
				slog.String("item_id", item.ID),
				slog.String("url", item.URL),
				slog.String("error", err.Error()),
			)
			b.consecutiveErrors++
			if backoff := calculateErrorBackoff(b.consecutiveErrors); backoff > 0 {
				b.backoffUntil = b.now().Add(backoff)
				b.logger.Warn("連続エラーによりバックオフを適用します",
					slog.Int("consecutive_errors", b.consecutiveErrors),
					slog.Duration("backoff_duration", backoff),
				)
				break
			}
		} else {
			b.consecutiveErrors = 0
			if item.ImageURL == "" {
				imageURL = preview.ImageURL
			}
			if item.Snippet == "" {
				snippet = preview.Description
			}
		}

		if err := b.itemRepo.UpdateEnrichment(ctx, item.ID, imageURL, snippet, b.now()); err != nil {
			b.logger.Error("記事の補完結果の保存に失敗しました",
				slog.String("item_id", item.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		updated++
	}

	b.logger.Info("記事補完バッチサイクルが完了しました",
		slog.Int("fetched", fetched),
		slog.Int("updated", updated),
		slog.Duration("duration", b.now().Sub(start)),
	)
	return nil
}

// calculateErrorBackoff は連続エラー回数に応じたバックオフ時間を返す。
func calculateErrorBackoff(consecutiveErrors int) time.Duration {
	switch {
	case consecutiveErrors >= 10:
		return 6 * time.Hour
	case consecutiveErrors >= 5:
		return 1 * time.Hour
	case consecutiveErrors >= 3:
		return 30 * time.Minute
	default:
		return 0
	}
}
