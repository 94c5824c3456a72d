// Package model はドメインモデルを定義する。
package model

import "time"

// DefaultReadTimeMinutes は読了時間が指定されなかった場合の既定値（分）。
const DefaultReadTimeMinutes = 2

// MaxTags は1記事に付与できるタグの最大数。
const MaxTags = 5

// Item はダイジェストに含まれる記事を表す。
// 並び順は rank 昇順、同順位は作成順。
type Item struct {
	ID              string
	DigestID        string
	Title           string
	Snippet         string
	ContentMD       string // Markdown本文
	Source          string // 配信元ドメイン
	URL             string
	ImageURL        string
	VideoURL        string
	Rank            int
	Tags            []string
	ReadTimeMinutes int
	IsPublished     bool
	IsBreaking      bool
	EnrichedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ItemFilter は記事一覧の絞り込み条件を表す。
// nilのフィールドは条件に含めない。
type ItemFilter struct {
	Published *bool
	Breaking  *bool
}

// ItemSearch は公開記事検索の条件を表す。
type ItemSearch struct {
	Query  string
	Tag    string
	Limit  int
	Offset int
}

// ItemInput は記事の作成・更新リクエストの内容を表す。
// nilのフィールドは更新しない。
type ItemInput struct {
	Title           *string
	Snippet         *string
	ContentMD       *string
	Source          *string
	URL             *string
	ImageURL        *string
	VideoURL        *string
	Rank            *int
	Tags            []string
	ReadTimeMinutes *int
	IsPublished     *bool
	IsBreaking      *bool
}

// ParsedItem はインポート時に解析された未保存の記事データを表す。
// タイトル以外の文字列フィールドは、空白のみの値を持たず空文字（未設定）となる。
type ParsedItem struct {
	Title           string   `json:"title"`
	URL             string   `json:"url,omitempty"`
	Source          string   `json:"source,omitempty"`
	Snippet         string   `json:"snippet,omitempty"`
	ContentMD       string   `json:"content_md,omitempty"`
	Tags            []string `json:"tags,omitempty"`
	ImageURL        string   `json:"image_url,omitempty"`
	VideoURL        string   `json:"video_url,omitempty"`
	ReadTimeMinutes int      `json:"read_time_minutes,omitempty"`
	IsBreaking      bool     `json:"is_breaking,omitempty"`
	Rank            int      `json:"rank,omitempty"`
}
