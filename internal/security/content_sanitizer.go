// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は外部から取得したHTML（フィードの記事、リンクプレビューのメタデータ）を
// 記事のプレーンテキストに変換する。bluemondayのStrictPolicyで全タグを除去した後、
// HTMLエンティティを復元し、空白を1つにまとめる。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はHTMLからプレーンテキストを取り出す機能のインターフェースを定義する。
type TextSanitizerService interface {
	// StripHTML はHTMLのタグを全て除去し、エンティティを復元したテキストを返す。
	// script, style要素は中身ごと除去される。
	// 連続する空白・改行は1つの空白にまとめ、前後の空白を取り除く。
	// 空文字列の入力には空文字列を返す。
	StripHTML(rawHTML string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのポリシーはスレッドセーフに利用できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// StripHTML はHTMLのタグを全て除去したテキストを返す。
func (s *textSanitizer) StripHTML(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}

	// ブロック要素の境界で単語が連結されないよう、タグの前に空白を入れる
	spaced := strings.ReplaceAll(rawHTML, "<", " <")
	text := html.UnescapeString(s.policy.Sanitize(spaced))
	return strings.Join(strings.Fields(text), " ")
}
