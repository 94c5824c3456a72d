package importer

import (
	"context"
	"fmt"

	"github.com/hitoshi/newsdigest/internal/model"
)

// ItemCreator は一括インポートで使用する記事作成の依存。
type ItemCreator interface {
	CountItems(ctx context.Context, digestID string) (int, error)
	CreateFromParsed(ctx context.Context, digestID string, item model.ParsedItem) (*model.Item, error)
}

// BatchError は一括インポートの途中失敗を表す。
// Created 件は作成済みのまま残る（ロールバックしない）。
type BatchError struct {
	Index   int // 失敗した要素の位置（0始まり）
	Created int // 失敗までに作成できた件数
	Err     error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("import stopped at item %d (%d created): %v", e.Index, e.Created, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// Batch は解析済みの記事を1件ずつ順番に作成する。
type Batch struct {
	creator ItemCreator
}

// NewBatch は新しいBatchを生成する。
func NewBatch(creator ItemCreator) *Batch {
	return &Batch{creator: creator}
}

// Import はダイジェストの現在の記事数 n を取得し、i 番目の記事を rank = n+i+1 で作成する。
// 作成は直列に行い、最初の失敗で中断して *BatchError を返す。
func (b *Batch) Import(ctx context.Context, digestID string, items []model.ParsedItem) (int, error) {
	count, err := b.creator.CountItems(ctx, digestID)
	if err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return i, &BatchError{Index: i, Created: i, Err: err}
		}

		item.Rank = count + i + 1
		if _, err := b.creator.CreateFromParsed(ctx, digestID, item); err != nil {
			return i, &BatchError{Index: i, Created: i, Err: err}
		}
	}

	return len(items), nil
}
