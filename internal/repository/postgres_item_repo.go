package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/hitoshi/newsdigest/internal/model"
)

// ErrItemNotInDigest は並び替え対象の記事が指定ダイジェストに属さない場合のエラー。
var ErrItemNotInDigest = errors.New("item does not belong to digest")

// DefaultSearchLimit は検索件数の指定がない場合の上限。
const DefaultSearchLimit = 20

// psql はPostgreSQLのプレースホルダ（$n）を使うクエリビルダー。
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var itemColumnNames = []string{
	"id", "digest_id", "title", "snippet", "content_md", "source", "url",
	"image_url", "video_url", "rank", "tags", "read_time_minutes",
	"is_published", "is_breaking", "enriched_at", "created_at", "updated_at",
}

// itemColumns はテーブル別名を付けた記事のカラム一覧を返す。
func itemColumns(alias string) []string {
	if alias == "" {
		return itemColumnNames
	}
	cols := make([]string, len(itemColumnNames))
	for i, c := range itemColumnNames {
		cols[i] = alias + "." + c
	}
	return cols
}

func scanItem(row rowScanner) (*model.Item, error) {
	item := &model.Item{}
	var snippet, contentMD, source, url, imageURL, videoURL sql.NullString
	var tags pq.StringArray
	var enrichedAt sql.NullTime

	if err := row.Scan(
		&item.ID, &item.DigestID, &item.Title, &snippet, &contentMD, &source, &url,
		&imageURL, &videoURL, &item.Rank, &tags, &item.ReadTimeMinutes,
		&item.IsPublished, &item.IsBreaking, &enrichedAt, &item.CreatedAt, &item.UpdatedAt,
	); err != nil {
		return nil, err
	}

	item.Snippet = nullStringValue(snippet)
	item.ContentMD = nullStringValue(contentMD)
	item.Source = nullStringValue(source)
	item.URL = nullStringValue(url)
	item.ImageURL = nullStringValue(imageURL)
	item.VideoURL = nullStringValue(videoURL)
	item.Tags = []string(tags)
	item.EnrichedAt = nullTimePtr(enrichedAt)
	return item, nil
}

// scanItems は記事の結果セットを全件読み取る。
func scanItems(rows *sql.Rows) ([]*model.Item, error) {
	items := []*model.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("記事の読み取りに失敗しました: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("記事一覧の走査に失敗しました: %w", err)
	}
	return items, nil
}

// tagsValue はtagsをNOT NULLの配列カラムに書き込める値に変換する。
func tagsValue(tags []string) pq.StringArray {
	if tags == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(tags)
}

// escapeLike はLIKEパターンのワイルドカード文字をエスケープする。
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// PostgresItemRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresItemRepo struct {
	db *sql.DB
}

// NewPostgresItemRepo はPostgresItemRepoを生成する。
func NewPostgresItemRepo(db *sql.DB) *PostgresItemRepo {
	return &PostgresItemRepo{db: db}
}

// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
func (r *PostgresItemRepo) FindByID(ctx context.Context, id string) (*model.Item, error) {
	query, args, err := psql.Select(itemColumns("")...).From("items").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("記事取得クエリの生成に失敗しました: %w", err)
	}

	item, err := scanItem(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	return item, nil
}

// listByDigestQuery はダイジェストの記事一覧クエリを組み立てる。
func listByDigestQuery(digestID string, filter model.ItemFilter) sq.SelectBuilder {
	q := psql.Select(itemColumns("")...).
		From("items").
		Where(sq.Eq{"digest_id": digestID})
	if filter.Published != nil {
		q = q.Where(sq.Eq{"is_published": *filter.Published})
	}
	if filter.Breaking != nil {
		q = q.Where(sq.Eq{"is_breaking": *filter.Breaking})
	}
	return q.OrderBy("rank ASC", "created_at ASC")
}

// ListByDigest はダイジェストの記事を rank 昇順、作成順で返す。
func (r *PostgresItemRepo) ListByDigest(ctx context.Context, digestID string, filter model.ItemFilter) ([]*model.Item, error) {
	query, args, err := listByDigestQuery(digestID, filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("記事一覧クエリの生成に失敗しました: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("記事一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// CountByDigest はダイジェストの記事数を返す。
func (r *PostgresItemRepo) CountByDigest(ctx context.Context, digestID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM items WHERE digest_id = $1`,
		digestID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("記事数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// searchQuery は公開記事の検索クエリを組み立てる。
// 公開済みダイジェストの公開記事のみを対象に、日付の新しいダイジェストから順に返す。
func searchQuery(search model.ItemSearch) sq.SelectBuilder {
	q := psql.Select(itemColumns("i")...).
		From("items i").
		Join("digests d ON d.id = i.digest_id").
		Where(sq.Eq{"i.is_published": true}).
		Where(sq.NotEq{"d.published_at": nil})

	if text := strings.TrimSpace(search.Query); text != "" {
		pattern := "%" + escapeLike(text) + "%"
		q = q.Where(sq.Or{
			sq.ILike{"i.title": pattern},
			sq.ILike{"i.snippet": pattern},
		})
	}
	if tag := strings.TrimSpace(search.Tag); tag != "" {
		q = q.Where(sq.Expr("? = ANY(i.tags)", tag))
	}

	limit := search.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	offset := search.Offset
	if offset < 0 {
		offset = 0
	}

	return q.OrderBy("d.date DESC", "i.rank ASC", "i.created_at ASC").
		Limit(uint64(limit)).
		Offset(uint64(offset))
}

// Search は公開済みダイジェストの公開記事をタイトル・スニペットとタグで検索する。
func (r *PostgresItemRepo) Search(ctx context.Context, search model.ItemSearch) ([]*model.Item, error) {
	query, args, err := searchQuery(search).ToSql()
	if err != nil {
		return nil, fmt.Errorf("検索クエリの生成に失敗しました: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("記事の検索に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// Create は記事を作成する。
func (r *PostgresItemRepo) Create(ctx context.Context, item *model.Item) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO items (id, digest_id, title, snippet, content_md, source, url,
		                    image_url, video_url, rank, tags, read_time_minutes,
		                    is_published, is_breaking, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		item.ID, item.DigestID, item.Title,
		nullString(item.Snippet), nullString(item.ContentMD), nullString(item.Source), nullString(item.URL),
		nullString(item.ImageURL), nullString(item.VideoURL),
		item.Rank, tagsValue(item.Tags), item.ReadTimeMinutes,
		item.IsPublished, item.IsBreaking, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("記事の作成に失敗しました: %w", err)
	}
	return nil
}

// updateItemQuery は記事の全フィールドを上書きするクエリを組み立てる。
func updateItemQuery(item *model.Item) sq.UpdateBuilder {
	return psql.Update("items").
		SetMap(map[string]any{
			"title":             item.Title,
			"snippet":           nullString(item.Snippet),
			"content_md":        nullString(item.ContentMD),
			"source":            nullString(item.Source),
			"url":               nullString(item.URL),
			"image_url":         nullString(item.ImageURL),
			"video_url":         nullString(item.VideoURL),
			"rank":              item.Rank,
			"tags":              tagsValue(item.Tags),
			"read_time_minutes": item.ReadTimeMinutes,
			"is_published":      item.IsPublished,
			"is_breaking":       item.IsBreaking,
			"updated_at":        item.UpdatedAt,
		}).
		Where(sq.Eq{"id": item.ID})
}

// Update は記事の全フィールドを上書きする。
func (r *PostgresItemRepo) Update(ctx context.Context, item *model.Item) error {
	query, args, err := updateItemQuery(item).ToSql()
	if err != nil {
		return fmt.Errorf("記事更新クエリの生成に失敗しました: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("記事の更新に失敗しました: %w", err)
	}
	return nil
}

// UpdateRanks はダイジェスト内の記事の rank を itemIDs の並び順（1始まり）で書き換える。
// 1件でもダイジェストに属さない記事があればロールバックしErrItemNotInDigestを返す。
func (r *PostgresItemRepo) UpdateRanks(ctx context.Context, digestID string, itemIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`UPDATE items SET rank = $1, updated_at = now() WHERE id = $2 AND digest_id = $3`,
	)
	if err != nil {
		return fmt.Errorf("並び替えクエリの準備に失敗しました: %w", err)
	}
	defer stmt.Close()

	for i, id := range itemIDs {
		result, err := stmt.ExecContext(ctx, i+1, id, digestID)
		if err != nil {
			return fmt.Errorf("記事の並び替えに失敗しました: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrItemNotInDigest, id)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SetPublished は記事の公開フラグを設定する。
func (r *PostgresItemRepo) SetPublished(ctx context.Context, id string, published bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE items SET is_published = $2, updated_at = now() WHERE id = $1`,
		id, published,
	)
	if err != nil {
		return fmt.Errorf("記事の公開状態の更新に失敗しました: %w", err)
	}
	return nil
}

// DeleteByID は指定IDの記事を削除する。
func (r *PostgresItemRepo) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, id); err != nil {
		return fmt.Errorf("記事の削除に失敗しました: %w", err)
	}
	return nil
}

// ListNeedingEnrichment はURLを持ち未補完の記事を作成日時の古い順に取得する。
func (r *PostgresItemRepo) ListNeedingEnrichment(ctx context.Context, limit int) ([]*model.Item, error) {
	query, args, err := psql.Select(itemColumns("")...).
		From("items").
		Where(sq.Eq{"enriched_at": nil}).
		Where(sq.NotEq{"url": nil}).
		OrderBy("created_at ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("補完対象クエリの生成に失敗しました: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("補完対象記事の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanItems(rows)
}

// UpdateEnrichment は空だった画像URL・スニペットを補完し、補完日時を記録する。
func (r *PostgresItemRepo) UpdateEnrichment(ctx context.Context, itemID, imageURL, snippet string, enrichedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE items SET
		    image_url = COALESCE(image_url, $2),
		    snippet = COALESCE(snippet, $3),
		    enriched_at = $4,
		    updated_at = now()
		 WHERE id = $1`,
		itemID, nullString(imageURL), nullString(snippet), enrichedAt,
	)
	if err != nil {
		return fmt.Errorf("記事の補完結果の保存に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var (
	_ ItemRepository           = (*PostgresItemRepo)(nil)
	_ EnrichmentItemRepository = (*PostgresItemRepo)(nil)
)
