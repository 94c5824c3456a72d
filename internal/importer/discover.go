package importer

import (
	"bytes"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// feedLinkTypes は <link rel="alternate"> でフィードとみなす type 属性。
var feedLinkTypes = map[string]bool{
	"application/rss+xml":  true,
	"application/atom+xml": true,
}

// discoverFeedLink はHTMLページの head から最初のRSS/Atomリンクを探し、絶対URLで返す。
// サイトのトップページURLが貼られた場合に使う。body に入った時点で探索をやめる。
func discoverFeedLink(page []byte, base *url.URL) (string, bool) {
	z := html.NewTokenizer(bytes.NewReader(page))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return "", false
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			switch string(name) {
			case "body":
				return "", false
			case "link":
				if !hasAttr {
					continue
				}
				if href, ok := feedHref(z); ok {
					if resolved, ok := resolveLink(base, href); ok {
						return resolved, true
					}
				}
			}
		}
	}
}

// feedHref は link 要素がフィードへの alternate リンクなら href を返す。
func feedHref(z *html.Tokenizer) (string, bool) {
	var rel, typ, href string
	for {
		key, val, more := z.TagAttr()
		switch strings.ToLower(string(key)) {
		case "rel":
			rel = strings.ToLower(string(val))
		case "type":
			typ = strings.ToLower(strings.TrimSpace(string(val)))
		case "href":
			href = strings.TrimSpace(string(val))
		}
		if !more {
			break
		}
	}

	isAlternate := false
	for _, r := range strings.Fields(rel) {
		if r == "alternate" {
			isAlternate = true
		}
	}
	return href, isAlternate && feedLinkTypes[typ] && href != ""
}

// resolveLink は相対URLを base 基準で解決する。http(s) 以外は捨てる。
func resolveLink(base *url.URL, href string) (string, bool) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	return abs.String(), true
}
