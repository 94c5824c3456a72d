package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/newsdigest/internal/model"
)

// PostgresMagicLinkRepo はPostgreSQLを使用したログインリンクリポジトリ。
type PostgresMagicLinkRepo struct {
	db *sql.DB
}

// NewPostgresMagicLinkRepo はPostgresMagicLinkRepoを生成する。
func NewPostgresMagicLinkRepo(db *sql.DB) *PostgresMagicLinkRepo {
	return &PostgresMagicLinkRepo{db: db}
}

// Create はログインリンクを保存する。
func (r *PostgresMagicLinkRepo) Create(ctx context.Context, link *model.MagicLink) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO magic_links (id, email, token_hash, redirect_path, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		link.ID, link.Email, link.TokenHash, link.RedirectPath, link.ExpiresAt, link.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create magic link: %w", err)
	}
	return nil
}

// FindByTokenHash はトークンハッシュでリンクを取得する。見つからない場合はnilを返す。
func (r *PostgresMagicLinkRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.MagicLink, error) {
	link := &model.MagicLink{}
	var usedAt sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, token_hash, redirect_path, expires_at, used_at, created_at
		 FROM magic_links
		 WHERE token_hash = $1`,
		tokenHash,
	).Scan(&link.ID, &link.Email, &link.TokenHash, &link.RedirectPath, &link.ExpiresAt, &usedAt, &link.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find magic link: %w", err)
	}

	link.UsedAt = nullTimePtr(usedAt)
	return link, nil
}

// MarkUsed は未使用かつ有効期限内のリンクを使用済みにする。
// 同じリンクで同時にコールバックされても、trueを返すのは1回だけ。
func (r *PostgresMagicLinkRepo) MarkUsed(ctx context.Context, id string, usedAt time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE magic_links SET used_at = $2
		 WHERE id = $1 AND used_at IS NULL AND expires_at > $2`,
		id, usedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark magic link as used: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// compile-time interface check
var _ MagicLinkRepository = (*PostgresMagicLinkRepo)(nil)
