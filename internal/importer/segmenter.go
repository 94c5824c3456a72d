package importer

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// minBlockRunes はブロックとして扱う最小文字数（マーカー除去後）。
const minBlockRunes = 20

// Block は自由形式テキストから切り出した記事候補。
type Block struct {
	Raw  string // 分割直後のブロック（マーカー除去前）
	Text string // マーカーを除去し前後の空白を取り除いた本文
	URL  string // ブロック内で最初に見つかったURL
}

var urlPattern = regexp.MustCompile("https?://[^\\s<>\"{}|\\\\^`\\[\\]]+")

// Segment は自由形式テキストを記事ブロックに分割する。
//
// 空行（空白のみの行を含む）と、行頭の箇条書き記号・番号・絵文字の直後に空白が
// 続く行がブロックの区切りとなる。マーカー除去後20文字未満のブロックは捨て、
// 既出のURLを含むブロックは後のものをスキップする。
func Segment(raw string) []Block {
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var chunks []string
	var current []string
	flush := func() {
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, "\n"))
			current = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		if markerLen(line) > 0 {
			flush()
		}
		current = append(current, line)
	}
	flush()

	var blocks []Block
	seen := make(map[string]bool)
	for _, chunk := range chunks {
		rawBlock := strings.TrimSpace(chunk)
		body := strings.TrimSpace(rawBlock[markerLen(rawBlock):])
		if utf8.RuneCountInString(body) < minBlockRunes {
			continue
		}

		u := FirstURL(body)
		if u != "" {
			if seen[u] {
				continue
			}
			seen[u] = true
		}

		blocks = append(blocks, Block{Raw: rawBlock, Text: body, URL: u})
	}
	return blocks
}

// markerLen は行頭のマーカー（直後の空白1文字を含む）のバイト長を返す。
// マーカーでなければ0を返す。
func markerLen(s string) int {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return 0
	}

	var n int
	switch {
	case strings.ContainsRune("-*•●▪◦‣–", r):
		n = size
	case r >= '0' && r <= '9':
		i := 0
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if i >= len(s) || (s[i] != '.' && s[i] != ')') {
			return 0
		}
		n = i + 1
	case isEmoji(r):
		n = size
		for n < len(s) {
			next, sz := utf8.DecodeRuneInString(s[n:])
			if !isEmoji(next) && next != '\ufe0f' && next != '\u200d' {
				break
			}
			n += sz
		}
	default:
		return 0
	}

	next, sz := utf8.DecodeRuneInString(s[n:])
	if sz == 0 || !unicode.IsSpace(next) {
		return 0
	}
	return n + sz
}

// isEmoji は記号・絵文字のコードポイント範囲に含まれるかを判定する。
func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F000 && r <= 0x1FAFF:
		return true
	case r >= 0x2600 && r <= 0x27BF:
		return true
	case r >= 0x2B00 && r <= 0x2BFF:
		return true
	case r >= 0x231A && r <= 0x23FF:
		return true
	case r >= 0x25AA && r <= 0x25FE:
		return true
	case r == 0x2122 || r == 0x2139 || r == 0x203C || r == 0x2049 || r == 0x3030 || r == 0x303D:
		return true
	}
	return false
}

// FirstURL はテキスト中で最初に現れる http(s) URL を返す。
// 末尾の句読点と対応しない閉じ括弧は取り除く。ホストを持たないURLは無視する。
func FirstURL(text string) string {
	for _, m := range urlPattern.FindAllString(text, -1) {
		m = trimURLPunctuation(m)
		if isHTTPURL(m) {
			return m
		}
	}
	return ""
}

func trimURLPunctuation(u string) string {
	for u != "" {
		r, size := utf8.DecodeLastRuneInString(u)
		switch {
		case strings.ContainsRune(".,;:!?»'\"*", r):
			u = u[:len(u)-size]
		case r == ')' && strings.Count(u, "(") < strings.Count(u, ")"):
			u = u[:len(u)-size]
		default:
			return u
		}
	}
	return u
}

// isHTTPURL は http または https の絶対URLでホストを持つかを判定する。
func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Hostname() != ""
}
