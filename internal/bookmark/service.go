// Package bookmark は読者の記事ブックマークを扱う。
package bookmark

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/newsdigest/internal/model"
	"github.com/hitoshi/newsdigest/internal/repository"
)

// ItemFinder は読者に公開されている記事を取得するインターフェース。
type ItemFinder interface {
	GetPublished(ctx context.Context, id string) (*model.Item, error)
}

// Service はブックマークの切り替えと一覧を提供するサービス。
type Service struct {
	bookmarkRepo repository.BookmarkRepository
	items        ItemFinder
	now          func() time.Time
}

// NewService はServiceを生成する。
func NewService(bookmarkRepo repository.BookmarkRepository, items ItemFinder) *Service {
	return &Service{
		bookmarkRepo: bookmarkRepo,
		items:        items,
		now:          time.Now,
	}
}

// Toggle はブックマークを付け外しし、切り替え後にブックマーク済みかどうかを返す。
func (s *Service) Toggle(ctx context.Context, userID, itemID string) (bool, error) {
	if _, err := s.items.GetPublished(ctx, itemID); err != nil {
		return false, err
	}

	exists, err := s.bookmarkRepo.Exists(ctx, userID, itemID)
	if err != nil {
		return false, err
	}
	if exists {
		if err := s.bookmarkRepo.Delete(ctx, userID, itemID); err != nil {
			return false, fmt.Errorf("ブックマークの解除に失敗しました: %w", err)
		}
		return false, nil
	}

	b := &model.Bookmark{UserID: userID, ItemID: itemID, CreatedAt: s.now()}
	if err := s.bookmarkRepo.Create(ctx, b); err != nil {
		return false, fmt.Errorf("ブックマークの登録に失敗しました: %w", err)
	}
	return true, nil
}

// IsBookmarked はユーザーが記事をブックマーク済みかを返す。
func (s *Service) IsBookmarked(ctx context.Context, userID, itemID string) (bool, error) {
	return s.bookmarkRepo.Exists(ctx, userID, itemID)
}

// List はユーザーがブックマークした公開記事を新しい順に返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.Item, error) {
	items, err := s.bookmarkRepo.ListItemsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*model.Item{}
	}
	return items, nil
}
