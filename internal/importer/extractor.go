package importer

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/newsdigest/internal/model"
)

// snippetMaxRunes はスニペットの最大文字数。
const snippetMaxRunes = 220

// errorContextRunes はJSON構文エラーの前後に表示する文字数。
const errorContextRunes = 20

// ExtractResult はJSONからの記事抽出結果を表す。
type ExtractResult struct {
	Items   []model.ParsedItem
	Dropped int // titleがないため除外した要素数
}

// Warnings は除外した要素があればその件数を警告として返す。
func (r *ExtractResult) Warnings() []string {
	if r.Dropped == 0 {
		return []string{}
	}
	return []string{fmt.Sprintf("%d article(s) ignoré(s) : champ 'title' manquant", r.Dropped)}
}

// ExtractItems はJSONテキストを厳密にパースし、記事の一覧に正規化する。
// トップレベルは配列、または items 配列を持つオブジェクトのみ受け付ける。
func ExtractItems(text string) (*ExtractResult, error) {
	var parsed any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, jsonSyntaxError(text, err)
	}

	entries, ok := itemEntries(parsed)
	if !ok {
		return nil, model.NewUnsupportedFormatError()
	}

	result := &ExtractResult{Items: make([]model.ParsedItem, 0, len(entries))}
	for _, e := range entries {
		obj, ok := e.(map[string]any)
		if !ok {
			result.Dropped++
			continue
		}
		item, ok := normalizeEntry(obj)
		if !ok {
			result.Dropped++
			continue
		}
		result.Items = append(result.Items, item)
	}

	if len(result.Items) == 0 {
		return nil, model.NewNoValidItemsError()
	}
	return result, nil
}

func itemEntries(parsed any) ([]any, bool) {
	switch v := parsed.(type) {
	case []any:
		return v, true
	case map[string]any:
		items, ok := v["items"].([]any)
		return items, ok
	default:
		return nil, false
	}
}

// normalizeEntry は1件分のオブジェクトを ParsedItem に変換する。
// 空白以外の文字を含む文字列の title がない場合は false を返す。
func normalizeEntry(obj map[string]any) (model.ParsedItem, bool) {
	title := strings.TrimSpace(stringField(obj, "title"))
	if title == "" {
		return model.ParsedItem{}, false
	}

	item := model.ParsedItem{
		Title:    title,
		URL:      httpURLField(obj, "url"),
		Source:   strings.TrimSpace(stringField(obj, "source")),
		Snippet:  strings.TrimSpace(stringField(obj, "snippet")),
		ImageURL: httpURLField(obj, "image_url"),
		VideoURL: httpURLField(obj, "video_url"),
		Tags:     tagsField(obj["tags"]),
	}

	for _, key := range []string{"content_md", "paragraphe", "paragraph"} {
		if v := stringField(obj, key); strings.TrimSpace(v) != "" {
			item.ContentMD = v
			break
		}
	}

	if item.Source == "" {
		item.Source = DomainOf(item.URL)
	}
	if item.Snippet == "" && item.ContentMD != "" {
		item.Snippet = truncateAtWord(collapseSpaces(item.ContentMD), snippetMaxRunes, snippetMaxRunes/2)
	}

	item.ReadTimeMinutes = readTimeField(obj["read_time_minutes"])
	if item.ReadTimeMinutes == 0 {
		item.ReadTimeMinutes = EstimateReadTime(strings.Join([]string{item.Title, item.Snippet, item.ContentMD}, " "))
	}

	item.IsBreaking = boolField(obj, "is_breaking") || boolField(obj, "breaking")

	return item, true
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

// httpURLField は絶対URL（http/https）のみを返す。それ以外は未設定として扱う。
func httpURLField(obj map[string]any, key string) string {
	u := strings.TrimSpace(stringField(obj, key))
	if u == "" || !isHTTPURL(u) {
		return ""
	}
	return u
}

func boolField(obj map[string]any, key string) bool {
	b, _ := obj[key].(bool)
	return b
}

// tagsField は文字列配列またはカンマ区切り文字列のタグを正規化する。
// 空のタグと重複は除外する。
func tagsField(v any) []string {
	var raw []string
	switch t := v.(type) {
	case []any:
		for _, e := range t {
			if e == nil {
				continue
			}
			if s, ok := e.(string); ok {
				raw = append(raw, s)
			} else {
				raw = append(raw, fmt.Sprint(e))
			}
		}
	case string:
		raw = strings.Split(t, ",")
	}

	var tags []string
	seen := make(map[string]bool)
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		tags = append(tags, s)
	}
	return tags
}

// readTimeField は正の数（切り上げ）または数値文字列を読了時間として解釈する。
// 解釈できない場合は0を返す。
func readTimeField(v any) int {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}

	if math.IsNaN(f) || f <= 0 || f > math.MaxInt32 {
		return 0
	}
	return int(math.Ceil(f))
}

// jsonSyntaxError はパーサーのバイトオフセットから行・列と周辺文字列を求めて
// INVALID_JSON エラーを生成する。
func jsonSyntaxError(text string, err error) error {
	var syntaxErr *json.SyntaxError
	if !errors.As(err, &syntaxErr) {
		return model.NewInvalidJSONError(err.Error(), 1, 1, "")
	}

	pos := int(syntaxErr.Offset)
	if pos > len(text) {
		pos = len(text)
	}

	reason := "fin de texte inattendue"
	if pos > 0 && !strings.Contains(syntaxErr.Error(), "end of JSON input") {
		// Offset は問題の文字を読み込んだ後の位置を指す
		pos--
		for pos > 0 && !utf8.RuneStart(text[pos]) {
			pos--
		}
		r, _ := utf8.DecodeRuneInString(text[pos:])
		reason = fmt.Sprintf("caractère inattendu '%c'", r)
	}

	line, column := lineColumn(text, pos)
	return model.NewInvalidJSONError(reason, line, column, contextAround(text, pos))
}

// lineColumn はバイト位置 pos の行番号と列番号（いずれも1始まり、列は文字単位）を返す。
func lineColumn(text string, pos int) (int, int) {
	before := text[:pos]
	line := strings.Count(before, "\n") + 1
	lastNL := strings.LastIndexByte(before, '\n')
	column := utf8.RuneCountInString(before[lastNL+1:]) + 1
	return line, column
}

// contextAround はバイト位置 pos の前後 errorContextRunes 文字を1行にまとめて返す。
func contextAround(text string, pos int) string {
	before := []rune(text[:pos])
	after := []rune(text[pos:])

	if len(before) > errorContextRunes {
		before = before[len(before)-errorContextRunes:]
	}
	if len(after) > errorContextRunes {
		after = after[:errorContextRunes]
	}

	near := string(before) + string(after)
	near = strings.Join(strings.Fields(near), " ")
	return near
}
