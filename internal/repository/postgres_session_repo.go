package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/hitoshi/newsdigest/internal/model"
)

var sessionColumns = []string{"id", "user_id", "provider", "expires_at", "created_at"}

// PostgresSessionRepo はログインセッションを sessions テーブルに保存する。
type PostgresSessionRepo struct {
	db *sql.DB
}

func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// activeSessionQuery は有効期限内のセッションだけを引くクエリ。期限切れの行はクリーンアップジョブが消す。
func activeSessionQuery(id string) sq.SelectBuilder {
	return psql.Select(sessionColumns...).
		From("sessions").
		Where(sq.Eq{"id": id}).
		Where(sq.Expr("expires_at > now()"))
}

// deleteSessionsQuery は条件に一致するセッションを消すクエリ。
func deleteSessionsQuery(where sq.Eq) sq.DeleteBuilder {
	return psql.Delete("sessions").Where(where)
}

func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	query, args, err := psql.Insert("sessions").
		Columns(sessionColumns...).
		Values(session.ID, session.UserID, session.Provider, session.ExpiresAt, session.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("セッション作成クエリの生成に失敗しました: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("セッションの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は有効なセッションを返す。存在しないか期限切れならnil。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	query, args, err := activeSessionQuery(id).ToSql()
	if err != nil {
		return nil, fmt.Errorf("セッション取得クエリの生成に失敗しました: %w", err)
	}

	var s model.Session
	err = r.db.QueryRowContext(ctx, query, args...).
		Scan(&s.ID, &s.UserID, &s.Provider, &s.ExpiresAt, &s.CreatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("セッションの取得に失敗しました: %w", err)
	}
	return &s, nil
}

func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	return r.delete(ctx, sq.Eq{"id": id})
}

// DeleteByUserID はユーザーの全端末のセッションを消す。退会時に使う。
func (r *PostgresSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	return r.delete(ctx, sq.Eq{"user_id": userID})
}

func (r *PostgresSessionRepo) delete(ctx context.Context, where sq.Eq) error {
	query, args, err := deleteSessionsQuery(where).ToSql()
	if err != nil {
		return fmt.Errorf("セッション削除クエリの生成に失敗しました: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}
	return nil
}

var _ SessionRepository = (*PostgresSessionRepo)(nil)
