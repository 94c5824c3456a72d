// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/newsdigest/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。大文字小文字は区別しない。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// UpdatePasswordHash は管理者ログイン用のパスワードハッシュを更新する。
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するidentities、sessions、user_roles、reactions、bookmarksはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)

	// Create は既存ユーザーにidentityを紐付ける。
	Create(ctx context.Context, identity *model.Identity) error

	// ListProvidersByUser はユーザーに紐付くプロバイダー名を名前順で返す。
	ListProvidersByUser(ctx context.Context, userID string) ([]string, error)
}

// RoleRepository はユーザーロールの永続化インターフェース。
type RoleRepository interface {
	// HasRole はユーザーが指定ロールを持つかを返す。
	HasRole(ctx context.Context, userID, role string) (bool, error)

	// Grant はユーザーにロールを付与する。付与済みの場合は何もしない。
	Grant(ctx context.Context, userID, role string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// MagicLinkRepository はメールログインリンクの永続化インターフェース。
type MagicLinkRepository interface {
	// Create はログインリンクを保存する。
	Create(ctx context.Context, link *model.MagicLink) error

	// FindByTokenHash はトークンハッシュでリンクを取得する。見つからない場合はnilを返す。
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.MagicLink, error)

	// MarkUsed は未使用かつ有効期限内のリンクを使用済みにする。
	// 既に使用済み・期限切れの場合はfalseを返す。
	MarkUsed(ctx context.Context, id string, usedAt time.Time) (bool, error)
}

// DigestRepository はダイジェストの永続化インターフェース。
type DigestRepository interface {
	// FindByID は指定IDのダイジェストを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Digest, error)

	// FindByDate は指定日付のダイジェストを取得する。見つからない場合はnilを返す。
	FindByDate(ctx context.Context, date time.Time) (*model.Digest, error)

	// FindLatestPublished は公開済みで日付が最も新しいダイジェストを取得する。
	// 公開済みが1件もない場合はnilを返す。
	FindLatestPublished(ctx context.Context) (*model.Digest, error)

	// List はダイジェストを日付の降順で返す。publishedOnlyがtrueの場合は公開済みのみ。
	List(ctx context.Context, publishedOnly bool) ([]*model.Digest, error)

	// Create はダイジェストを作成する。
	Create(ctx context.Context, digest *model.Digest) error

	// Update はダイジェストの日付・タイトル・概要を更新する。
	Update(ctx context.Context, digest *model.Digest) error

	// SetPublishedAt は公開日時を設定する。nilの場合は非公開に戻す。
	SetPublishedAt(ctx context.Context, id string, publishedAt *time.Time) error

	// DeleteByID は指定IDのダイジェストを削除する。記事はCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// ItemRepository は記事データの永続化インターフェース。
type ItemRepository interface {
	// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Item, error)

	// ListByDigest はダイジェストの記事を rank 昇順、作成順で返す。
	ListByDigest(ctx context.Context, digestID string, filter model.ItemFilter) ([]*model.Item, error)

	// CountByDigest はダイジェストの記事数を返す。
	CountByDigest(ctx context.Context, digestID string) (int, error)

	// Search は公開済みダイジェストの公開記事をタイトル・スニペットとタグで検索する。
	Search(ctx context.Context, search model.ItemSearch) ([]*model.Item, error)

	// Create は記事を作成する。
	Create(ctx context.Context, item *model.Item) error

	// Update は記事の全フィールドを上書きする。
	Update(ctx context.Context, item *model.Item) error

	// UpdateRanks はダイジェスト内の記事の rank を itemIDs の並び順（1始まり）で
	// 同一トランザクション内に書き換える。
	UpdateRanks(ctx context.Context, digestID string, itemIDs []string) error

	// SetPublished は記事の公開フラグを設定する。
	SetPublished(ctx context.Context, id string, published bool) error

	// DeleteByID は指定IDの記事を削除する。
	DeleteByID(ctx context.Context, id string) error
}

// EnrichmentItemRepository はリンクメタデータ補完に必要な記事データ操作のインターフェース。
type EnrichmentItemRepository interface {
	// ListNeedingEnrichment はURLを持ち未補完の記事を作成日時の古い順に取得する。
	ListNeedingEnrichment(ctx context.Context, limit int) ([]*model.Item, error)

	// UpdateEnrichment は空だった画像URL・スニペットを補完し、補完日時を記録する。
	// 空文字のフィールドは変更しない。
	UpdateEnrichment(ctx context.Context, itemID, imageURL, snippet string, enrichedAt time.Time) error
}

// ReactionRepository はリアクションの永続化インターフェース。
type ReactionRepository interface {
	// CountByItem は記事の絵文字ごとのリアクション数を返す。
	CountByItem(ctx context.Context, itemID string) (map[string]int, error)

	// ListEmojisByUser はユーザーが記事に付けた絵文字を返す。
	ListEmojisByUser(ctx context.Context, itemID, userID string) ([]string, error)

	// Find は(item, user, emoji)のリアクションを取得する。見つからない場合はnilを返す。
	Find(ctx context.Context, itemID, userID, emoji string) (*model.Reaction, error)

	// Create はリアクションを作成する。
	Create(ctx context.Context, reaction *model.Reaction) error

	// DeleteByID は指定IDのリアクションを削除する。
	DeleteByID(ctx context.Context, id string) error
}

// BookmarkRepository はブックマークの永続化インターフェース。
type BookmarkRepository interface {
	// Exists はブックマーク済みかを返す。
	Exists(ctx context.Context, userID, itemID string) (bool, error)

	// Create はブックマークを作成する。
	Create(ctx context.Context, bookmark *model.Bookmark) error

	// Delete はブックマークを削除する。
	Delete(ctx context.Context, userID, itemID string) error

	// ListItemsByUser はユーザーがブックマークした公開記事を新しい順に返す。
	ListItemsByUser(ctx context.Context, userID string) ([]*model.Item, error)
}
