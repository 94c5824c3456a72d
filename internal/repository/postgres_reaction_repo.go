package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/newsdigest/internal/model"
)

// PostgresReactionRepo はPostgreSQLを使用したリアクションリポジトリ。
type PostgresReactionRepo struct {
	db *sql.DB
}

// NewPostgresReactionRepo はPostgresReactionRepoを生成する。
func NewPostgresReactionRepo(db *sql.DB) *PostgresReactionRepo {
	return &PostgresReactionRepo{db: db}
}

// CountByItem は記事の絵文字ごとのリアクション数を返す。
func (r *PostgresReactionRepo) CountByItem(ctx context.Context, itemID string) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT emoji, count(*) FROM reactions WHERE item_id = $1 GROUP BY emoji`,
		itemID,
	)
	if err != nil {
		return nil, fmt.Errorf("リアクション数の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var emoji string
		var count int
		if err := rows.Scan(&emoji, &count); err != nil {
			return nil, fmt.Errorf("リアクション数の読み取りに失敗しました: %w", err)
		}
		counts[emoji] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("リアクション数の走査に失敗しました: %w", err)
	}
	return counts, nil
}

// ListEmojisByUser はユーザーが記事に付けた絵文字を返す。
func (r *PostgresReactionRepo) ListEmojisByUser(ctx context.Context, itemID, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT emoji FROM reactions WHERE item_id = $1 AND user_id = $2`,
		itemID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("ユーザーのリアクション取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var emojis []string
	for rows.Next() {
		var emoji string
		if err := rows.Scan(&emoji); err != nil {
			return nil, fmt.Errorf("ユーザーのリアクションの読み取りに失敗しました: %w", err)
		}
		emojis = append(emojis, emoji)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ユーザーのリアクションの走査に失敗しました: %w", err)
	}
	return emojis, nil
}

// Find は(item, user, emoji)のリアクションを取得する。見つからない場合はnilを返す。
func (r *PostgresReactionRepo) Find(ctx context.Context, itemID, userID, emoji string) (*model.Reaction, error) {
	reaction := &model.Reaction{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, item_id, user_id, emoji, created_at
		 FROM reactions
		 WHERE item_id = $1 AND user_id = $2 AND emoji = $3`,
		itemID, userID, emoji,
	).Scan(&reaction.ID, &reaction.ItemID, &reaction.UserID, &reaction.Emoji, &reaction.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("リアクションの取得に失敗しました: %w", err)
	}
	return reaction, nil
}

// Create はリアクションを作成する。同じリアクションが既にある場合は何もしない。
func (r *PostgresReactionRepo) Create(ctx context.Context, reaction *model.Reaction) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reactions (id, item_id, user_id, emoji, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (item_id, user_id, emoji) DO NOTHING`,
		reaction.ID, reaction.ItemID, reaction.UserID, reaction.Emoji, reaction.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("リアクションの作成に失敗しました: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのリアクションを削除する。
func (r *PostgresReactionRepo) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM reactions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("リアクションの削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ReactionRepository = (*PostgresReactionRepo)(nil)
