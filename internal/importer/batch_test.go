package importer

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/newsdigest/internal/model"
)

// mockItemCreator はItemCreatorのテスト用モック。
type mockItemCreator struct {
	count    int
	countErr error
	failAt   int // この位置の作成で失敗する（-1で失敗しない）
	createFn func(ctx context.Context, digestID string, item model.ParsedItem) (*model.Item, error)

	created []model.ParsedItem
}

func (m *mockItemCreator) CountItems(_ context.Context, _ string) (int, error) {
	return m.count, m.countErr
}

func (m *mockItemCreator) CreateFromParsed(ctx context.Context, digestID string, item model.ParsedItem) (*model.Item, error) {
	if m.createFn != nil {
		return m.createFn(ctx, digestID, item)
	}
	if m.failAt >= 0 && len(m.created) == m.failAt {
		return nil, errors.New("insert failed")
	}
	m.created = append(m.created, item)
	return &model.Item{ID: "item", DigestID: digestID, Title: item.Title, Rank: item.Rank}, nil
}

func parsedItems(titles ...string) []model.ParsedItem {
	items := make([]model.ParsedItem, len(titles))
	for i, title := range titles {
		items[i] = model.ParsedItem{Title: title}
	}
	return items
}

// TestBatch_Import_AssignsSequentialRanks は既存件数の後ろから順に rank が振られることを検証する。
func TestBatch_Import_AssignsSequentialRanks(t *testing.T) {
	creator := &mockItemCreator{count: 3, failAt: -1}
	batch := NewBatch(creator)

	created, err := batch.Import(context.Background(), "digest-1", parsedItems("A", "B", "C"))
	if err != nil {
		t.Fatalf("Import() error: %v", err)
	}
	if created != 3 {
		t.Errorf("created = %d, want 3", created)
	}

	for i, item := range creator.created {
		if want := 3 + i + 1; item.Rank != want {
			t.Errorf("item %d (%s) rank = %d, want %d", i, item.Title, item.Rank, want)
		}
	}
	if creator.created[0].Title != "A" || creator.created[2].Title != "C" {
		t.Errorf("items created out of order: %+v", creator.created)
	}
}

// TestBatch_Import_StopsAtFirstFailure は最初の失敗で中断し、作成済み件数を返すことを検証する。
func TestBatch_Import_StopsAtFirstFailure(t *testing.T) {
	creator := &mockItemCreator{count: 0, failAt: 1}
	batch := NewBatch(creator)

	created, err := batch.Import(context.Background(), "digest-1", parsedItems("A", "B", "C"))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if created != 1 {
		t.Errorf("created = %d, want 1", created)
	}

	var batchErr *BatchError
	if !errors.As(err, &batchErr) {
		t.Fatalf("expected *BatchError, got %T", err)
	}
	if batchErr.Index != 1 || batchErr.Created != 1 {
		t.Errorf("BatchError = %+v", batchErr)
	}
	if len(creator.created) != 1 {
		t.Errorf("expected no creation after failure, got %d items", len(creator.created))
	}
}

// TestBatch_Import_CountError は件数取得の失敗で何も作成しないことを検証する。
func TestBatch_Import_CountError(t *testing.T) {
	creator := &mockItemCreator{countErr: errors.New("db down"), failAt: -1}
	batch := NewBatch(creator)

	created, err := batch.Import(context.Background(), "digest-1", parsedItems("A"))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if created != 0 || len(creator.created) != 0 {
		t.Errorf("expected nothing created, got %d", created)
	}
}

// TestBatch_Import_ContextCanceled はコンテキストのキャンセルで残りを作成しないことを検証する。
func TestBatch_Import_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	creator := &mockItemCreator{failAt: -1}
	creator.createFn = func(_ context.Context, _ string, item model.ParsedItem) (*model.Item, error) {
		creator.created = append(creator.created, item)
		cancel()
		return &model.Item{}, nil
	}

	created, err := NewBatch(creator).Import(ctx, "digest-1", parsedItems("A", "B"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if created != 1 {
		t.Errorf("created = %d, want 1", created)
	}
}
