package importer

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// maxRepairDepth はネストの上限。超えた部分は null として打ち切る。
const maxRepairDepth = 512

var jsonNumberPattern = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?(?:[eE][+-]?\d+)?$`)

// Repair は壊れたJSONテキストを寛容に読み取り、できる限り正しいJSONとして書き直す。
//
// 対応する崩れ:
//   - Markdownのコードフェンスや前後の説明文
//   - // および /* */ コメント
//   - シングルクォート文字列、引用符のないキー・値
//   - True/False/None などの表記
//   - 要素間のカンマ抜け、余分なカンマ、コロン抜け
//   - 閉じられていない文字列・括弧、対応しない閉じ括弧
//
// トップレベルに複数の値がある場合は配列にまとめる。
// { も [ も含まない入力はそのまま返す。結果が正しいJSONである保証はない。
func Repair(s string) string {
	s = stripCodeFence(s)

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}

	p := &repairer{src: []rune(s[start:])}

	var values []string
	for {
		p.skipSpace()
		if p.eof() {
			break
		}
		if c := p.peek(); c != '{' && c != '[' {
			p.pos++
			continue
		}

		from := p.out.Len()
		p.parseValue()
		values = append(values, p.out.String()[from:])
	}

	switch len(values) {
	case 0:
		return s
	case 1:
		return values[0]
	default:
		return "[" + strings.Join(values, ",") + "]"
	}
}

// stripCodeFence は最初の { / [ より前に ``` がある場合、
// 最初のフェンス行の次の行から次のフェンスまでを取り出す。
func stripCodeFence(s string) string {
	i := strings.Index(s, "```")
	if i < 0 {
		return s
	}
	if j := strings.IndexAny(s, "{["); j >= 0 && j < i {
		return s
	}

	rest := s[i+3:]
	nl := strings.IndexByte(rest, '\n')
	if nl < 0 {
		return s
	}

	body := rest[nl+1:]
	if j := strings.Index(body, "```"); j >= 0 {
		body = body[:j]
	}
	return body
}

type repairer struct {
	src   []rune
	pos   int
	out   strings.Builder
	stack []rune
}

func (p *repairer) eof() bool {
	return p.pos >= len(p.src)
}

func (p *repairer) peek() rune {
	return p.src[p.pos]
}

// skipSpace は空白とコメントを読み飛ばす。
func (p *repairer) skipSpace() {
	for !p.eof() {
		r := p.peek()
		if unicode.IsSpace(r) {
			p.pos++
			continue
		}
		if r == '/' && p.pos+1 < len(p.src) {
			switch p.src[p.pos+1] {
			case '/':
				for !p.eof() && p.peek() != '\n' {
					p.pos++
				}
				continue
			case '*':
				end := indexRunes(p.src, p.pos+2, "*/")
				if end < 0 {
					p.pos = len(p.src)
				} else {
					p.pos = end + 2
				}
				continue
			}
		}
		return
	}
}

// hasOpen は外側に指定した種類の括弧が開いているかを返す。
// 現在のコンテナ自身（スタックの末尾）は含めない。
func (p *repairer) hasOpen(open rune) bool {
	for i := len(p.stack) - 2; i >= 0; i-- {
		if p.stack[i] == open {
			return true
		}
	}
	return false
}

func (p *repairer) parseValue() {
	p.skipSpace()
	if p.eof() {
		p.out.WriteString("null")
		return
	}

	switch c := p.peek(); c {
	case '{':
		p.parseContainer('{', '}', ']')
	case '[':
		p.parseContainer('[', ']', '}')
	case '"', '\'':
		p.parseString()
	default:
		p.parseBare(false)
	}
}

// parseContainer はオブジェクトまたは配列を読み取る。
// other は対応しない種類の閉じ括弧で、外側に対応するコンテナがあれば
// そこで自身を閉じ、なければ読み飛ばす。
func (p *repairer) parseContainer(open, close, other rune) {
	p.pos++
	if len(p.stack) >= maxRepairDepth {
		p.pos = len(p.src)
		p.out.WriteString("null")
		return
	}

	p.out.WriteRune(open)
	p.stack = append(p.stack, open)
	defer func() { p.stack = p.stack[:len(p.stack)-1] }()

	isObject := open == '{'
	first := true

	for {
		p.skipSpace()
		if p.eof() {
			break
		}

		c := p.peek()
		if c == close {
			p.pos++
			break
		}
		if c == other {
			if p.hasOpen(otherOpen(other)) {
				break
			}
			p.pos++
			continue
		}
		if c == ',' || (!isObject && c == ':') {
			p.pos++
			continue
		}

		if !first {
			p.out.WriteByte(',')
		}
		first = false

		if isObject {
			p.parseMember()
		} else {
			p.parseValue()
		}
	}

	p.out.WriteRune(close)
}

func otherOpen(close rune) rune {
	if close == ']' {
		return '['
	}
	return '{'
}

// parseMember はオブジェクトの "キー": 値 を1組読み取る。
func (p *repairer) parseMember() {
	switch c := p.peek(); c {
	case '"', '\'':
		p.parseString()
	case '{', '[':
		p.out.WriteString(`""`)
		p.out.WriteByte(':')
		p.parseValue()
		return
	default:
		p.parseBare(true)
	}

	p.skipSpace()
	if !p.eof() && p.peek() == ':' {
		p.pos++
	}
	p.out.WriteByte(':')

	p.skipSpace()
	if p.eof() {
		p.out.WriteString("null")
		return
	}
	switch p.peek() {
	case ',', '}', ']':
		p.out.WriteString("null")
	default:
		p.parseValue()
	}
}

// parseString は " または ' で囲まれた文字列を読み取り、ダブルクォート文字列として書き出す。
// エスケープはデコードせずにそのまま書き出す。
func (p *repairer) parseString() {
	quote := p.peek()
	p.pos++
	p.out.WriteByte('"')

	for !p.eof() {
		r := p.peek()
		switch {
		case r == '\\':
			p.writeEscape()
		case r == quote:
			p.pos++
			if quoteEndsString(p.src, p.pos) {
				p.out.WriteByte('"')
				return
			}
			if quote == '"' {
				p.out.WriteString(`\"`)
			} else {
				p.out.WriteRune(r)
			}
		case r == '"':
			p.pos++
			p.out.WriteString(`\"`)
		default:
			p.pos++
			writeStringRune(&p.out, r)
		}
	}

	p.out.WriteByte('"')
}

// writeEscape はバックスラッシュから始まるエスケープを書き出す。
// JSONとして不正なエスケープはバックスラッシュ自体をエスケープする。
func (p *repairer) writeEscape() {
	if p.pos+1 >= len(p.src) {
		p.pos++
		p.out.WriteString(`\\`)
		return
	}

	switch n := p.src[p.pos+1]; n {
	case '"', '\\', '/', 'b', 'f', 'n', 'r', 't':
		p.out.WriteByte('\\')
		p.out.WriteRune(n)
		p.pos += 2
	case '\'':
		p.out.WriteByte('\'')
		p.pos += 2
	case 'u':
		if p.pos+6 <= len(p.src) && isHex4(p.src[p.pos+2:p.pos+6]) {
			p.out.WriteString(string(p.src[p.pos : p.pos+6]))
			p.pos += 6
			return
		}
		p.out.WriteString(`\\`)
		p.pos++
	default:
		p.out.WriteString(`\\`)
		p.pos++
	}
}

// parseBare は引用符のないトークンを読み取る。
// キーは : まで、値は , } ] " または改行までを1トークンとする。
func (p *repairer) parseBare(key bool) {
	start := p.pos
	for !p.eof() {
		r := p.peek()
		if r == '\n' || r == ',' || r == '}' || r == ']' {
			break
		}
		if key && (r == ':' || r == '{' || r == '[' || r == '"' || r == '\'') {
			break
		}
		if !key && r == '"' {
			break
		}
		if r == '/' && p.pos+1 < len(p.src) && (p.src[p.pos+1] == '/' || p.src[p.pos+1] == '*') &&
			(p.pos == start || unicode.IsSpace(p.src[p.pos-1])) {
			break
		}
		p.pos++
	}

	tok := strings.TrimSpace(string(p.src[start:p.pos]))
	if key {
		writeQuoted(&p.out, tok)
		return
	}

	switch tok {
	case "true", "True", "TRUE":
		p.out.WriteString("true")
	case "false", "False", "FALSE":
		p.out.WriteString("false")
	case "null", "Null", "NULL", "None", "undefined", "NaN", "Infinity", "-Infinity", "":
		p.out.WriteString("null")
	default:
		if jsonNumberPattern.MatchString(tok) {
			p.out.WriteString(tok)
			return
		}
		writeQuoted(&p.out, tok)
	}
}

// quoteEndsString は閉じ引用符の候補の後ろを見て、文字列の終端とみなせるかを判定する。
// closesString の判定に加え、次の値が改行の後に続く場合も終端とみなす。
func quoteEndsString(rs []rune, from int) bool {
	for j := from; j < len(rs); j++ {
		switch rs[j] {
		case ' ', '\t', '\r':
			continue
		case '\n':
			return true
		default:
			return closesString(rs, j)
		}
	}
	return true
}

func writeQuoted(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		default:
			writeStringRune(b, r)
		}
	}
	b.WriteByte('"')
}

// writeStringRune は文字列内の1文字を書き出す。制御文字はエスケープする。
func writeStringRune(b *strings.Builder, r rune) {
	switch {
	case r == '\n':
		b.WriteString(`\n`)
	case r == '\r':
		b.WriteString(`\r`)
	case r == '\t':
		b.WriteString(`\t`)
	case r < 0x20:
		fmt.Fprintf(b, `\u%04x`, r)
	default:
		b.WriteRune(r)
	}
}

func isHex4(rs []rune) bool {
	for _, r := range rs {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return len(rs) == 4
}

func indexRunes(rs []rune, from int, sub string) int {
	target := []rune(sub)
	for i := from; i+len(target) <= len(rs); i++ {
		match := true
		for k, t := range target {
			if rs[i+k] != t {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
