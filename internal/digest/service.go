// Package digest はダイジェスト（日付ごとの記事まとめ）の管理機能を提供する。
package digest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/newsdigest/internal/model"
	"github.com/hitoshi/newsdigest/internal/repository"
)

// frenchMonths はフランス語の月名（1月始まり）。
var frenchMonths = [...]string{
	"janvier", "février", "mars", "avril", "mai", "juin",
	"juillet", "août", "septembre", "octobre", "novembre", "décembre",
}

// DefaultTitle はダイジェストの既定タイトルを返す。
// 例: 2026-01-02 → "Digest du 2 janvier 2026"
func DefaultTitle(date time.Time) string {
	return fmt.Sprintf("Digest du %d %s %d", date.Day(), frenchMonths[date.Month()-1], date.Year())
}

// Service はダイジェストのCRUDと公開状態を管理するサービス。
type Service struct {
	digestRepo repository.DigestRepository
	now        func() time.Time
}

// NewService はServiceを生成する。
func NewService(digestRepo repository.DigestRepository) *Service {
	return &Service{
		digestRepo: digestRepo,
		now:        time.Now,
	}
}

// List はダイジェストを日付の降順で返す。publishedOnlyがtrueの場合は公開済みのみ。
func (s *Service) List(ctx context.Context, publishedOnly bool) ([]*model.Digest, error) {
	return s.digestRepo.List(ctx, publishedOnly)
}

// Get は指定IDのダイジェストを返す。
func (s *Service) Get(ctx context.Context, id string) (*model.Digest, error) {
	d, err := s.digestRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, model.NewDigestNotFoundError(id)
	}
	return d, nil
}

// Latest は公開済みで日付が最も新しいダイジェストを返す。
// 公開済みが1件もない場合はnilを返す。
func (s *Service) Latest(ctx context.Context) (*model.Digest, error) {
	return s.digestRepo.FindLatestPublished(ctx)
}

// Create はダイジェストを作成する。
// 日付の指定がない場合は当日、タイトルの指定がない場合はフランス語の既定タイトルを使う。
// 同じ日付のダイジェストが既に存在する場合はエラーを返す。
func (s *Service) Create(ctx context.Context, input model.DigestInput) (*model.Digest, error) {
	now := s.now()

	date := truncateToDate(now)
	if input.Date != nil {
		date = truncateToDate(*input.Date)
	}

	if err := s.ensureDateAvailable(ctx, date, ""); err != nil {
		return nil, err
	}

	title := DefaultTitle(date)
	if input.Title != nil && strings.TrimSpace(*input.Title) != "" {
		title = strings.TrimSpace(*input.Title)
	}

	d := &model.Digest{
		ID:        uuid.New().String(),
		Date:      date,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if input.Summary != nil {
		d.Summary = strings.TrimSpace(*input.Summary)
	}

	if err := s.digestRepo.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("ダイジェストの作成に失敗しました: %w", err)
	}

	slog.Info("ダイジェストを作成しました",
		slog.String("digest_id", d.ID),
		slog.String("date", d.Date.Format(time.DateOnly)),
	)
	return d, nil
}

// Update はダイジェストの日付・タイトル・概要を更新する。nilのフィールドは変更しない。
func (s *Service) Update(ctx context.Context, id string, input model.DigestInput) (*model.Digest, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Date != nil {
		date := truncateToDate(*input.Date)
		if !date.Equal(truncateToDate(d.Date)) {
			if err := s.ensureDateAvailable(ctx, date, d.ID); err != nil {
				return nil, err
			}
		}
		d.Date = date
	}
	if input.Title != nil {
		d.Title = strings.TrimSpace(*input.Title)
	}
	if input.Summary != nil {
		d.Summary = strings.TrimSpace(*input.Summary)
	}
	d.UpdatedAt = s.now()

	if err := s.digestRepo.Update(ctx, d); err != nil {
		return nil, fmt.Errorf("ダイジェストの更新に失敗しました: %w", err)
	}
	return d, nil
}

// Delete はダイジェストと所属する記事を削除する。
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.digestRepo.DeleteByID(ctx, id); err != nil {
		return err
	}
	slog.Info("ダイジェストを削除しました", slog.String("digest_id", id))
	return nil
}

// Publish はダイジェストを公開する。公開日時は現在時刻になる。
func (s *Service) Publish(ctx context.Context, id string) (*model.Digest, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := s.digestRepo.SetPublishedAt(ctx, id, &now); err != nil {
		return nil, err
	}
	d.PublishedAt = &now
	d.UpdatedAt = now

	slog.Info("ダイジェストを公開しました", slog.String("digest_id", id))
	return d, nil
}

// Unpublish はダイジェストを非公開（下書き）に戻す。
func (s *Service) Unpublish(ctx context.Context, id string) (*model.Digest, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.digestRepo.SetPublishedAt(ctx, id, nil); err != nil {
		return nil, err
	}
	d.PublishedAt = nil
	d.UpdatedAt = s.now()

	slog.Info("ダイジェストを非公開にしました", slog.String("digest_id", id))
	return d, nil
}

// ensureDateAvailable は日付が他のダイジェストに使われていないことを確認する。
func (s *Service) ensureDateAvailable(ctx context.Context, date time.Time, selfID string) error {
	existing, err := s.digestRepo.FindByDate(ctx, date)
	if err != nil {
		return err
	}
	if existing != nil && existing.ID != selfID {
		return model.NewDigestDateConflictError(date.Format(time.DateOnly))
	}
	return nil
}

// truncateToDate は時刻を切り捨ててUTCの日付にする。
func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
