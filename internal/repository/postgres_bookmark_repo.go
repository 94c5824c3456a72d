package repository

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/hitoshi/newsdigest/internal/model"
)

// PostgresBookmarkRepo はPostgreSQLを使用したブックマークリポジトリ。
type PostgresBookmarkRepo struct {
	db *sql.DB
}

// NewPostgresBookmarkRepo はPostgresBookmarkRepoを生成する。
func NewPostgresBookmarkRepo(db *sql.DB) *PostgresBookmarkRepo {
	return &PostgresBookmarkRepo{db: db}
}

// Exists はブックマーク済みかを返す。
func (r *PostgresBookmarkRepo) Exists(ctx context.Context, userID, itemID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM bookmarks WHERE user_id = $1 AND item_id = $2)`,
		userID, itemID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ブックマークの確認に失敗しました: %w", err)
	}
	return exists, nil
}

// Create はブックマークを作成する。既にある場合は何もしない。
func (r *PostgresBookmarkRepo) Create(ctx context.Context, bookmark *model.Bookmark) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO bookmarks (user_id, item_id, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, item_id) DO NOTHING`,
		bookmark.UserID, bookmark.ItemID, bookmark.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("ブックマークの作成に失敗しました: %w", err)
	}
	return nil
}

// Delete はブックマークを削除する。
func (r *PostgresBookmarkRepo) Delete(ctx context.Context, userID, itemID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM bookmarks WHERE user_id = $1 AND item_id = $2`,
		userID, itemID,
	)
	if err != nil {
		return fmt.Errorf("ブックマークの削除に失敗しました: %w", err)
	}
	return nil
}

// bookmarkedItemsQuery はユーザーのブックマーク記事一覧クエリを組み立てる。
// 非公開になった記事・ダイジェストの記事は含めない。
func bookmarkedItemsQuery(userID string) sq.SelectBuilder {
	return psql.Select(itemColumns("i")...).
		From("bookmarks b").
		Join("items i ON i.id = b.item_id").
		Join("digests d ON d.id = i.digest_id").
		Where(sq.Eq{"b.user_id": userID, "i.is_published": true}).
		Where(sq.NotEq{"d.published_at": nil}).
		OrderBy("b.created_at DESC")
}

// ListItemsByUser はユーザーがブックマークした公開記事を新しい順に返す。
func (r *PostgresBookmarkRepo) ListItemsByUser(ctx context.Context, userID string) ([]*model.Item, error) {
	query, args, err := bookmarkedItemsQuery(userID).ToSql()
	if err != nil {
		return nil, fmt.Errorf("ブックマーク一覧クエリの生成に失敗しました: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ブックマーク一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// compile-time interface check
var _ BookmarkRepository = (*PostgresBookmarkRepo)(nil)
