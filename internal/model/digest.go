// Package model はドメインモデルを定義する。
package model

import "time"

// Digest は1日分の記事まとめ（ダイジェスト）を表す。
// 日付ごとに1件のみ存在する。
type Digest struct {
	ID          string
	Date        time.Time
	Title       string
	Summary     string
	PublishedAt *time.Time // nilの場合は下書き
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsPublished はダイジェストが公開済みかどうかを返す。
func (d *Digest) IsPublished() bool {
	return d.PublishedAt != nil
}

// DigestInput はダイジェストの作成・更新リクエストの内容を表す。
// nilのフィールドは更新しない。
type DigestInput struct {
	Date    *time.Time
	Title   *string
	Summary *string
}
