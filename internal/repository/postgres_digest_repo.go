package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/newsdigest/internal/model"
)

// PostgresDigestRepo はPostgreSQLを使用したダイジェストリポジトリ。
type PostgresDigestRepo struct {
	db *sql.DB
}

// NewPostgresDigestRepo はPostgresDigestRepoを生成する。
func NewPostgresDigestRepo(db *sql.DB) *PostgresDigestRepo {
	return &PostgresDigestRepo{db: db}
}

const digestColumns = `id, date, title, summary, published_at, created_at, updated_at`

func scanDigest(row rowScanner) (*model.Digest, error) {
	d := &model.Digest{}
	var title, summary sql.NullString
	var publishedAt sql.NullTime
	if err := row.Scan(&d.ID, &d.Date, &title, &summary, &publishedAt, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Title = nullStringValue(title)
	d.Summary = nullStringValue(summary)
	d.PublishedAt = nullTimePtr(publishedAt)
	return d, nil
}

func (r *PostgresDigestRepo) findOne(ctx context.Context, query string, args ...any) (*model.Digest, error) {
	d, err := scanDigest(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// FindByID は指定IDのダイジェストを取得する。見つからない場合はnilを返す。
func (r *PostgresDigestRepo) FindByID(ctx context.Context, id string) (*model.Digest, error) {
	d, err := r.findOne(ctx, `SELECT `+digestColumns+` FROM digests WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("ダイジェストの取得に失敗しました: %w", err)
	}
	return d, nil
}

// FindByDate は指定日付のダイジェストを取得する。見つからない場合はnilを返す。
func (r *PostgresDigestRepo) FindByDate(ctx context.Context, date time.Time) (*model.Digest, error) {
	d, err := r.findOne(ctx, `SELECT `+digestColumns+` FROM digests WHERE date = $1::date`, date.Format(time.DateOnly))
	if err != nil {
		return nil, fmt.Errorf("日付によるダイジェストの取得に失敗しました: %w", err)
	}
	return d, nil
}

// FindLatestPublished は公開済みで日付が最も新しいダイジェストを取得する。
func (r *PostgresDigestRepo) FindLatestPublished(ctx context.Context) (*model.Digest, error) {
	d, err := r.findOne(ctx,
		`SELECT `+digestColumns+`
		 FROM digests
		 WHERE published_at IS NOT NULL
		 ORDER BY date DESC
		 LIMIT 1`,
	)
	if err != nil {
		return nil, fmt.Errorf("最新ダイジェストの取得に失敗しました: %w", err)
	}
	return d, nil
}

// List はダイジェストを日付の降順で返す。
func (r *PostgresDigestRepo) List(ctx context.Context, publishedOnly bool) ([]*model.Digest, error) {
	query := `SELECT ` + digestColumns + ` FROM digests`
	if publishedOnly {
		query += ` WHERE published_at IS NOT NULL`
	}
	query += ` ORDER BY date DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ダイジェスト一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	digests := []*model.Digest{}
	for rows.Next() {
		d, err := scanDigest(rows)
		if err != nil {
			return nil, fmt.Errorf("ダイジェストの読み取りに失敗しました: %w", err)
		}
		digests = append(digests, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ダイジェスト一覧の走査に失敗しました: %w", err)
	}
	return digests, nil
}

// Create はダイジェストを作成する。
func (r *PostgresDigestRepo) Create(ctx context.Context, digest *model.Digest) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO digests (id, date, title, summary, published_at, created_at, updated_at)
		 VALUES ($1, $2::date, $3, $4, $5, $6, $7)`,
		digest.ID,
		digest.Date.Format(time.DateOnly),
		nullString(digest.Title),
		nullString(digest.Summary),
		digest.PublishedAt,
		digest.CreatedAt,
		digest.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ダイジェストの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はダイジェストの日付・タイトル・概要を更新する。
func (r *PostgresDigestRepo) Update(ctx context.Context, digest *model.Digest) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE digests SET
		    date = $2::date,
		    title = $3,
		    summary = $4,
		    updated_at = $5
		 WHERE id = $1`,
		digest.ID,
		digest.Date.Format(time.DateOnly),
		nullString(digest.Title),
		nullString(digest.Summary),
		digest.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ダイジェストの更新に失敗しました: %w", err)
	}
	return nil
}

// SetPublishedAt は公開日時を設定する。nilの場合は非公開に戻す。
func (r *PostgresDigestRepo) SetPublishedAt(ctx context.Context, id string, publishedAt *time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE digests SET published_at = $2, updated_at = now() WHERE id = $1`,
		id, publishedAt,
	)
	if err != nil {
		return fmt.Errorf("ダイジェストの公開状態の更新に失敗しました: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのダイジェストを削除する。記事はCASCADE削除される。
func (r *PostgresDigestRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM digests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ダイジェストの削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ DigestRepository = (*PostgresDigestRepo)(nil)
