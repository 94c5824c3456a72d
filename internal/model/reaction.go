package model

import "time"

// Reactions はリアクションとして受け付ける絵文字の一覧（表示順）。
var Reactions = []string{"👍", "🔥", "💡", "❤️", "🎯"}

// IsAllowedReaction は絵文字がリアクションとして許可されているかを返す。
func IsAllowedReaction(emoji string) bool {
	for _, r := range Reactions {
		if r == emoji {
			return true
		}
	}
	return false
}

// Reaction はユーザーが記事に付けた絵文字リアクション。
// (item_id, user_id, emoji) の組で一意。
type Reaction struct {
	ID        string
	ItemID    string
	UserID    string
	Emoji     string
	CreatedAt time.Time
}

// ReactionCount は絵文字ごとのリアクション集計。
type ReactionCount struct {
	Emoji      string `json:"emoji"`
	Count      int    `json:"count"`
	HasReacted bool   `json:"has_reacted"`
}

// Bookmark はユーザーが保存した記事。
type Bookmark struct {
	UserID    string
	ItemID    string
	CreatedAt time.Time
}
