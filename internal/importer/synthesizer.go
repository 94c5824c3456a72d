package importer

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hitoshi/newsdigest/internal/model"
)

const (
	titleMaxRunes      = 80
	titleMinCutRunes   = 40
	colonTitleMinRunes = 10
	dashTitleMinRunes  = 3

	snippetMinRunes         = 50
	snippetFallbackRunes    = 200
	snippetFallbackMinRunes = 150

	wordsPerMinute = 200
)

// UntitledPlaceholder はタイトルを合成できなかった場合のタイトル。
const UntitledPlaceholder = "Article sans titre"

var (
	headerTagPattern  = regexp.MustCompile(`(?m)^##[ \t]+(.+)$`)
	hashtagTagPattern = regexp.MustCompile(`(?m)(?:^|[\s(])#(\p{L}[\p{L}\p{N}_]*)`)
)

// Synthesize はテキストブロックから記事の各フィールドを合成する。
func Synthesize(b Block) model.ParsedItem {
	title := SynthesizeTitle(b.Text)
	return model.ParsedItem{
		Title:           title,
		URL:             b.URL,
		Source:          DomainOf(b.URL),
		Snippet:         SynthesizeSnippet(b.Text, title),
		ContentMD:       b.Text,
		Tags:            ExtractTags(b.Raw),
		ReadTimeMinutes: EstimateReadTime(b.Text),
	}
}

// SynthesizeTitle はブロックの最初の行からタイトルを合成する。
//
//  1. 最初の区切り（— または :）より前の部分が所定の長さに収まればそれを使う
//  2. 最初の文が80文字以内ならそれを使う
//  3. 80文字で切り、40文字目より後ろの最後の空白で切り詰めて … を付ける
//
// 結果は空にならず、81文字を超えない。
func SynthesizeTitle(text string) string {
	line := titleLine(text)
	if line == "" {
		return UntitledPlaceholder
	}

	if prefix, ok := headlinePrefix(line); ok {
		return prefix
	}
	if s := firstSentence(line); s != "" && utf8.RuneCountInString(s) <= titleMaxRunes {
		return s
	}
	return truncateAtWord(line, titleMaxRunes, titleMinCutRunes)
}

// titleLine はURLを除いたテキストの最初の空でない行を、見出し記号と強調記号を除いて返す。
func titleLine(text string) string {
	lead, _ := splitLeadLine(text)
	return lead
}

// splitLeadLine はURLを除いたテキストを、正規化した最初の空でない行とそれ以降に分ける。
// タイトルとスニペットは同じ正規化済みの行を基準にする。
func splitLeadLine(text string) (lead, rest string) {
	lines := strings.Split(urlPattern.ReplaceAllString(text, ""), "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		line = strings.TrimSpace(strings.TrimLeft(line, "#"))
		line = strings.ReplaceAll(line, "**", "")
		if line = collapseSpaces(line); line != "" {
			return line, strings.Join(lines[i+1:], "\n")
		}
	}
	return "", ""
}

// headlinePrefix は最初の — または : より前の部分を返す。
// :// のコロンは区切りとみなさない。最初の区切りのみを対象とする。
func headlinePrefix(line string) (string, bool) {
	for i, r := range line {
		var min int
		switch r {
		case '—':
			min = dashTitleMinRunes
		case ':':
			if strings.HasPrefix(line[i:], "://") {
				continue
			}
			min = colonTitleMinRunes
		default:
			continue
		}

		prefix := strings.TrimSpace(line[:i])
		n := utf8.RuneCountInString(prefix)
		return prefix, n >= min && n <= titleMaxRunes
	}
	return "", false
}

// firstSentence は文末記号（. ! ?）の後に空白または行末が続く位置までを返す。
// 文末記号自体は含めない。
func firstSentence(line string) string {
	if end := sentenceEnd(line); end >= 0 {
		return strings.TrimSpace(line[:end])
	}
	return strings.TrimSpace(line)
}

// sentenceEnd は最初の文末記号のバイト位置を返す。見つからなければ-1。
func sentenceEnd(s string) int {
	for i, r := range s {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		next, _ := utf8.DecodeRuneInString(s[i+1:])
		if i+1 >= len(s) || unicode.IsSpace(next) {
			return i
		}
	}
	return -1
}

// SynthesizeSnippet はタイトル部分とURLを除いた本文からスニペットを合成する。
// 220文字を超えない範囲で文を積み上げ、50文字未満にしかならない場合は snippetFallback を使う。
func SynthesizeSnippet(text, title string) string {
	lead, rest := splitLeadLine(text)
	if title != "" && strings.HasPrefix(lead, title) {
		lead = strings.TrimLeft(lead[len(title):], "—–:- \t")
	}
	content := collapseSpaces(lead + " " + rest)
	if content == "" {
		return ""
	}

	snippet := ""
	for _, s := range splitSentences(content) {
		candidate := strings.TrimSpace(snippet + " " + s)
		if utf8.RuneCountInString(candidate) > snippetMaxRunes {
			break
		}
		snippet = candidate
	}

	if utf8.RuneCountInString(snippet) < snippetMinRunes {
		snippet = snippetFallback(content)
	}
	return snippet
}

// snippetFallback は先頭200文字を取り、最後の空白が150文字目より後ろにあれば
// そこで切って … を付ける。そうでなければ200文字のまま返す。
func snippetFallback(content string) string {
	rs := []rune(content)
	if len(rs) > snippetFallbackRunes {
		rs = rs[:snippetFallbackRunes]
	}
	rs = []rune(strings.TrimSpace(string(rs)))
	for i := len(rs) - 1; i > snippetFallbackMinRunes; i-- {
		if unicode.IsSpace(rs[i]) {
			return string(rs[:i]) + "…"
		}
	}
	return string(rs)
}

// splitSentences は文末記号の直後の空白で文を分割する。文末記号は文に含める。
func splitSentences(s string) []string {
	var sentences []string
	for s != "" {
		end := sentenceEnd(s)
		if end < 0 {
			sentences = append(sentences, s)
			break
		}
		sentences = append(sentences, strings.TrimSpace(s[:end+1]))
		s = strings.TrimSpace(s[end+1:])
	}
	return sentences
}

// ExtractTags は "## 見出し" 行と #ハッシュタグ をタグとして出現順に抽出する。
// 重複は除き、最大5件まで返す。
func ExtractTags(raw string) []string {
	type found struct {
		pos int
		tag string
	}
	var all []found

	for _, m := range headerTagPattern.FindAllStringSubmatchIndex(raw, -1) {
		all = append(all, found{m[0], strings.TrimSpace(raw[m[2]:m[3]])})
	}
	for _, m := range hashtagTagPattern.FindAllStringSubmatchIndex(raw, -1) {
		all = append(all, found{m[2], raw[m[2]:m[3]]})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].pos < all[j].pos })

	var tags []string
	seen := make(map[string]bool)
	for _, f := range all {
		if f.tag == "" || seen[f.tag] {
			continue
		}
		seen[f.tag] = true
		tags = append(tags, f.tag)
		if len(tags) == model.MaxTags {
			break
		}
	}
	return tags
}

// EstimateReadTime は1分あたり200語として読了時間（分）を見積もる。最小1分。
func EstimateReadTime(text string) int {
	words := len(strings.Fields(text))
	minutes := (words + wordsPerMinute - 1) / wordsPerMinute
	if minutes < 1 {
		return 1
	}
	return minutes
}

// DomainOf はURLのホスト名から先頭の "www." を除いたものを返す。
// http(s) の絶対URLでなければ空文字を返す。
func DomainOf(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// truncateAtWord は s が max 文字を超える場合に max 文字で切り、
// minCut 文字目より後ろに空白があればそこで切り詰めて … を付ける。
func truncateAtWord(s string, max, minCut int) string {
	rs := []rune(s)
	if len(rs) <= max {
		return s
	}

	cut := rs[:max]
	for i := len(cut) - 1; i > minCut; i-- {
		if unicode.IsSpace(cut[i]) {
			cut = cut[:i]
			break
		}
	}
	return strings.TrimRightFunc(string(cut), unicode.IsSpace) + "…"
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
