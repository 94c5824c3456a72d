package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresRoleRepo はPostgreSQLを使用したロールリポジトリ。
type PostgresRoleRepo struct {
	db *sql.DB
}

// NewPostgresRoleRepo はPostgresRoleRepoを生成する。
func NewPostgresRoleRepo(db *sql.DB) *PostgresRoleRepo {
	return &PostgresRoleRepo{db: db}
}

// HasRole はユーザーが指定ロールを持つかを返す。
func (r *PostgresRoleRepo) HasRole(ctx context.Context, userID, role string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_roles WHERE user_id = $1 AND role = $2)`,
		userID, role,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user role: %w", err)
	}
	return exists, nil
}

// Grant はユーザーにロールを付与する。付与済みの場合は何もしない。
func (r *PostgresRoleRepo) Grant(ctx context.Context, userID, role string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role) VALUES ($1, $2)
		 ON CONFLICT (user_id, role) DO NOTHING`,
		userID, role,
	)
	if err != nil {
		return fmt.Errorf("failed to grant role: %w", err)
	}
	return nil
}

// compile-time interface check
var _ RoleRepository = (*PostgresRoleRepo)(nil)
