// Package importer は記事の一括インポートのための正規化パイプラインを提供する。
//
// 管理画面に貼り付けられた JSON または自由形式のテキストを解析し、
// プレビュー可能な model.ParsedItem の一覧に変換する。
//
//	JSON:     Clean → (Repair) → ExtractItems
//	テキスト: Segment → Synthesize
//	フィード: FeedSource.Analyze（gofeed）→ Synthesize系ヘルパー
//
// 解析処理はすべて純粋関数で、I/Oを伴うのは FeedSource と Batch のみ。
package importer

import (
	"fmt"
	"strings"

	"github.com/hitoshi/newsdigest/internal/model"
)

// Mode はインポート画面の入力モードを表す。
type Mode string

const (
	// ModeJSON はJSON貼り付けモード。
	ModeJSON Mode = "json"
	// ModeText は自由形式テキスト（Markdown）貼り付けモード。
	ModeText Mode = "text"
	// ModeFeed はRSS/AtomフィードURL指定モード。
	ModeFeed Mode = "feed"
)

// ParseMode は文字列からModeを解析する。空文字の場合はModeJSONを返す。
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeJSON:
		return ModeJSON, nil
	case ModeText:
		return ModeText, nil
	case ModeFeed:
		return ModeFeed, nil
	default:
		return "", fmt.Errorf("unknown import mode: %q", s)
	}
}

// AnalyzeResult は解析結果（プレビュー内容）を表す。
type AnalyzeResult struct {
	Items    []model.ParsedItem `json:"items"`
	Warnings []string           `json:"warnings"`
	// Fixes はJSONモードで解析前にクリーナーが適用した修正。
	Fixes []string `json:"fixes,omitempty"`
}

// Analyze は貼り付けられた入力をモードに応じて解析する。
// ModeFeed はネットワークアクセスを伴うため対象外で、FeedSource を使用する。
func Analyze(mode Mode, raw string) (*AnalyzeResult, error) {
	switch mode {
	case ModeJSON:
		return AnalyzeJSON(raw)
	case ModeText:
		return AnalyzeText(raw)
	default:
		return nil, model.NewInvalidRequestError(fmt.Sprintf("mode « %s » non supporté ici", mode))
	}
}

// AnalyzeJSON は入力に Clean（必要なら構造修復まで）を適用してから記事を抽出する。
// 入力そのものは書き換えず、適用した修正を Fixes で返す。
func AnalyzeJSON(raw string) (*AnalyzeResult, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, model.NewEmptyInputError("Collez d'abord du JSON à importer")
	}

	cleaned := Clean(raw)
	extracted, err := ExtractItems(cleaned.Text)
	if err != nil {
		return nil, err
	}

	return &AnalyzeResult{
		Items:    extracted.Items,
		Warnings: extracted.Warnings(),
		Fixes:    cleaned.Fixes,
	}, nil
}

// AnalyzeText は自由形式テキストをブロックに分割し、各ブロックから記事を合成する。
func AnalyzeText(raw string) (*AnalyzeResult, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, model.NewEmptyInputError("Collez d'abord du texte à importer")
	}

	blocks := Segment(raw)
	if len(blocks) == 0 {
		return nil, model.NewNoItemsDetectedError()
	}

	items := make([]model.ParsedItem, len(blocks))
	for i, b := range blocks {
		items[i] = Synthesize(b)
	}

	return &AnalyzeResult{Items: items, Warnings: []string{}}, nil
}
