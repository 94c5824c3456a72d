package importer

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// CleanResult はテキストクリーナーの結果を表す。
// Fixes には実際に変更を加えたパスの説明のみが含まれる。
type CleanResult struct {
	Text  string   `json:"text"`
	Fixes []string `json:"fixes"`
}

// cleanPass はクリーナーの1工程。
// apply は変更後の文字列と、変更があったかどうかを返す。
type cleanPass struct {
	name        string
	description string
	apply       func(string) (string, bool)
}

// cleanPasses は適用順に並べたクリーナーの工程。順序に意味がある。
var cleanPasses = []cleanPass{
	{"unwrap-literal", "Guillemets englobants retirés", unwrapQuotedLiteral},
	{"line-endings", "Fins de ligne normalisées", normalizeLineEndings},
	{"control-chars", "Caractères invisibles supprimés", stripControlChars},
	{"smart-quotes", "Guillemets et tirets typographiques remplacés", replaceTypographicPunctuation},
	{"trailing-commas", "Virgules finales supprimées", removeTrailingCommas},
	{"interior-quotes", "Guillemets internes échappés", escapeInteriorQuotes},
	{"structural-repair", "Structure JSON réparée", repairStructure},
}

// Clean はLLMやエディタからコピーされた壊れかけのJSONテキストを修復する。
// エラーを返すことはなく、同じ結果に再適用しても変化しない（冪等）。
func Clean(raw string) CleanResult {
	text := raw
	fixes := []string{}

	for _, p := range cleanPasses {
		out, applied := p.apply(text)
		if !applied {
			continue
		}
		text = out
		fixes = append(fixes, p.description)
	}

	return CleanResult{Text: text, Fixes: fixes}
}

// PassNames はクリーナーの工程名を適用順に返す。
func PassNames() []string {
	names := make([]string, len(cleanPasses))
	for i, p := range cleanPasses {
		names[i] = p.name
	}
	return names
}

// unwrapQuotedLiteral は全体が "…" または '…' で囲まれた文字列リテラルとして
// 貼り付けられたJSONから外側の引用符を1層だけ取り除く。
// 中身が { または [ で始まる場合のみ対象とする。曲引用符で囲まれている場合も同様に扱う。
func unwrapQuotedLiteral(s string) (string, bool) {
	rs := []rune(trimInvisible(s))
	if len(rs) < 2 {
		return s, false
	}

	open, close := quoteClass(rs[0]), quoteClass(rs[len(rs)-1])
	if open == 0 || open != close {
		return s, false
	}

	inner := trimInvisible(string(rs[1 : len(rs)-1]))
	if inner == "" || (inner[0] != '{' && inner[0] != '[') {
		return s, false
	}

	r := strings.NewReplacer(
		`\\`, `\`,
		`\`+string(open), string(open),
		`\n`, "\n",
		`\r`, "\r",
		`\t`, "\t",
	)
	return r.Replace(inner), true
}

// quoteClass は引用符の種類を ASCII の " または ' で返す。引用符でなければ0を返す。
func quoteClass(r rune) rune {
	switch r {
	case '"', '\u201c', '\u201d', '\u201e', '\u201f', '\u2033', '\u00ab', '\u00bb':
		return '"'
	case '\'', '\u2018', '\u2019', '\u201a', '\u201b', '\u2032', '\u2039', '\u203a':
		return '\''
	}
	return 0
}

// trimInvisible は前後の空白と、stripControlChars が除去する文字を取り除く。
func trimInvisible(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		if unicode.IsSpace(r) {
			return true
		}
		keep, _ := cleanRune(r)
		return !keep
	})
}

func normalizeLineEndings(s string) (string, bool) {
	if !strings.Contains(s, "\r") {
		return s, false
	}
	out := strings.ReplaceAll(s, "\r\n", "\n")
	out = strings.ReplaceAll(out, "\r", "\n")
	return out, true
}

// stripControlChars は改行とタブ以外の制御文字・ゼロ幅文字を除去し、
// 行区切り・段落区切りを改行に、ノーブレークスペースを通常の空白に置き換える。
// 最後にNFC正規化を行う。
func stripControlChars(s string) (string, bool) {
	var b strings.Builder
	b.Grow(len(s))

	for _, r := range s {
		if keep, repl := cleanRune(r); keep {
			b.WriteRune(repl)
		}
	}

	out := norm.NFC.String(b.String())
	return out, out != s
}

// cleanRune は1文字を残すかどうかと、置き換え後の文字を返す。
func cleanRune(r rune) (bool, rune) {
	switch r {
	case '\n', '\t':
		return true, r
	case '\u2028', '\u2029':
		return true, '\n'
	case '\u00a0', '\u202f', '\u2007':
		return true, ' '
	case '\ufeff', '\u200b', '\u2060', '\u00ad':
		return false, 0
	}
	if unicode.IsControl(r) {
		return false, 0
	}
	return true, r
}

// typographicReplacer は曲引用符・ギュメ・ダッシュをASCIIに置き換える。
// 文字列値の中に残った " は次の interior-quotes で処理される。
var typographicReplacer = strings.NewReplacer(
	"\u201c", `"`, "\u201d", `"`, "\u201e", `"`, "\u201f", `"`, "\u2033", `"`,
	"\u00ab", `"`, "\u00bb", `"`,
	"\u2018", "'", "\u2019", "'", "\u201a", "'", "\u201b", "'", "\u2032", "'",
	"\u2039", "'", "\u203a", "'",
	"\u2014", "-", "\u2013", "-",
)

func replaceTypographicPunctuation(s string) (string, bool) {
	out := typographicReplacer.Replace(s)
	return out, out != s
}

// trailingCommaPattern は閉じ括弧直前のカンマ（連続も含む）にマッチする。
var trailingCommaPattern = regexp.MustCompile(`(?:,\s*)+([}\]])`)

func removeTrailingCommas(s string) (string, bool) {
	out := trailingCommaPattern.ReplaceAllString(s, "$1")
	return out, out != s
}

// escapeInteriorQuotes は文字列値の内側に紛れ込んだ " をエスケープする。
//
// 文字列の内側で " を見つけたとき、次の空白以外の文字が , } ] : のいずれか
// （または入力末尾）であれば文字列の終端とみなし、それ以外は内部の引用符として
// \" に置き換える。文字列内の生の改行・タブも \n・\t に置き換える。
// これはヒューリスティックであり、内部の引用符の直後にカンマが続く場合は
// 終端と誤認する。
func escapeInteriorQuotes(s string) (string, bool) {
	rs := []rune(s)

	var b strings.Builder
	b.Grow(len(s) + 16)

	changed := false
	inString := false

	for i := 0; i < len(rs); i++ {
		r := rs[i]

		if !inString {
			if r == '"' {
				inString = true
			}
			b.WriteRune(r)
			continue
		}

		switch r {
		case '\\':
			b.WriteRune(r)
			if i+1 < len(rs) {
				i++
				b.WriteRune(rs[i])
			}
		case '\n':
			b.WriteString(`\n`)
			changed = true
		case '\t':
			b.WriteString(`\t`)
			changed = true
		case '"':
			if closesString(rs, i+1) {
				inString = false
				b.WriteRune(r)
			} else {
				b.WriteString(`\"`)
				changed = true
			}
		default:
			b.WriteRune(r)
		}
	}

	if !changed {
		return s, false
	}
	return b.String(), true
}

// closesString は from 以降の最初の空白以外の文字が文字列終端の後に
// 続きうる区切り文字かどうかを判定する。
func closesString(rs []rune, from int) bool {
	for j := from; j < len(rs); j++ {
		switch rs[j] {
		case ' ', '\t', '\n', '\r':
			continue
		case ',', '}', ']', ':':
			return true
		default:
			return false
		}
	}
	return true
}

// repairStructure は厳密なパースに失敗する場合のみ Repair を適用する。
// 修復結果が正しいJSONにならない場合は元の文字列を維持する。
func repairStructure(s string) (string, bool) {
	if strings.TrimSpace(s) == "" || json.Valid([]byte(s)) {
		return s, false
	}

	out := Repair(s)
	if out == s || !json.Valid([]byte(out)) {
		return s, false
	}
	return out, true
}
