// Package reaction は記事への絵文字リアクションを扱う。
package reaction

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/newsdigest/internal/model"
	"github.com/hitoshi/newsdigest/internal/repository"
)

// ItemFinder は読者に公開されている記事を取得するインターフェース。
// item.Service が実装する。
type ItemFinder interface {
	GetPublished(ctx context.Context, id string) (*model.Item, error)
}

// Service はリアクションの集計と切り替えを行うサービス。
type Service struct {
	reactionRepo repository.ReactionRepository
	items        ItemFinder
	now          func() time.Time
}

// NewService はServiceを生成する。
func NewService(reactionRepo repository.ReactionRepository, items ItemFinder) *Service {
	return &Service{
		reactionRepo: reactionRepo,
		items:        items,
		now:          time.Now,
	}
}

// Counts は記事のリアクション数を model.Reactions の順に返す。
// 0件の絵文字も含む。viewerIDが空でない場合はその閲覧者が付けたかどうかも設定する。
func (s *Service) Counts(ctx context.Context, itemID, viewerID string) ([]model.ReactionCount, error) {
	if _, err := s.items.GetPublished(ctx, itemID); err != nil {
		return nil, err
	}

	counts, err := s.reactionRepo.CountByItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	mine := make(map[string]bool)
	if viewerID != "" {
		emojis, err := s.reactionRepo.ListEmojisByUser(ctx, itemID, viewerID)
		if err != nil {
			return nil, err
		}
		for _, e := range emojis {
			mine[e] = true
		}
	}

	result := make([]model.ReactionCount, 0, len(model.Reactions))
	for _, emoji := range model.Reactions {
		result = append(result, model.ReactionCount{
			Emoji:      emoji,
			Count:      counts[emoji],
			HasReacted: mine[emoji],
		})
	}
	return result, nil
}

// Toggle はユーザーのリアクションを付け外しし、更新後の集計を返す。
func (s *Service) Toggle(ctx context.Context, itemID, userID, emoji string) ([]model.ReactionCount, error) {
	if !model.IsAllowedReaction(emoji) {
		return nil, model.NewInvalidReactionError(emoji)
	}
	if _, err := s.items.GetPublished(ctx, itemID); err != nil {
		return nil, err
	}

	existing, err := s.reactionRepo.Find(ctx, itemID, userID, emoji)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		if err := s.reactionRepo.DeleteByID(ctx, existing.ID); err != nil {
			return nil, fmt.Errorf("リアクションの削除に失敗しました: %w", err)
		}
	} else {
		r := &model.Reaction{
			ID:        uuid.New().String(),
			ItemID:    itemID,
			UserID:    userID,
			Emoji:     emoji,
			CreatedAt: s.now(),
		}
		if err := s.reactionRepo.Create(ctx, r); err != nil {
			return nil, fmt.Errorf("リアクションの登録に失敗しました: %w", err)
		}
	}

	slog.Debug("リアクションを切り替えました",
		slog.String("item_id", itemID),
		slog.String("user_id", userID),
		slog.Bool("added", existing == nil),
	)
	return s.Counts(ctx, itemID, userID)
}
