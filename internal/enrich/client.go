// Package enrich は記事URLのページからリンクプレビュー用のメタデータを取得する。
// 管理画面のリンクプレビューと、画像・スニペットを補完するバッチジョブで使われる。
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/hitoshi/newsdigest/internal/model"
)

// maxDescriptionRunes はプレビュー説明文の最大文字数。
const maxDescriptionRunes = 300

// URLGuard はSSRF対策済みのURL検証とHTTPクライアント生成のインターフェース。
type URLGuard interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// TextSanitizer はHTMLからプレーンテキストを取り出すインターフェース。
type TextSanitizer interface {
	StripHTML(rawHTML string) string
}

// Preview はページから取得したリンクプレビュー情報。
type Preview struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	SiteName    string `json:"site_name,omitempty"`
}

// Client はページを取得してメタデータを抽出する。
type Client struct {
	guard     URLGuard
	sanitizer TextSanitizer
	client    *http.Client
	logger    *slog.Logger
}

// NewClient はClientを生成する。
func NewClient(guard URLGuard, sanitizer TextSanitizer, logger *slog.Logger, timeout time.Duration, maxSize int64) *Client {
	return &Client{
		guard:     guard,
		sanitizer: sanitizer,
		client:    guard.NewSafeClient(timeout, maxSize),
		logger:    logger,
	}
}

// Fetch はURLのページを取得し、og:・twitter:・標準のmetaタグからプレビュー情報を組み立てる。
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Preview, error) {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, model.NewInvalidURLError("URL http(s) attendue")
	}
	if err := c.guard.ValidateURL(rawURL); err != nil {
		c.logger.Warn("link preview blocked", slog.String("url", rawURL), slog.String("error", err.Error()))
		return nil, model.NewSSRFBlockedError()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", "NewsDigest/1.0 (+link preview)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("link preview fetch failed", slog.String("url", rawURL), slog.String("error", err.Error()))
		return nil, model.NewFetchFailedError("page injoignable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, model.NewFetchFailedError(fmt.Sprintf("statut HTTP %d", resp.StatusCode))
	}
	if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mt != "" && mt != "text/html" && mt != "application/xhtml+xml" {
		return nil, model.NewFetchFailedError("la page n'est pas du HTML")
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, model.NewFetchFailedError("page illisible")
	}

	base := resp.Request.URL
	if base == nil {
		base = u
	}
	return c.extract(doc, base), nil
}

// extract はHTMLドキュメントからプレビュー情報を取り出す。
func (c *Client) extract(doc *goquery.Document, base *url.URL) *Preview {
	p := &Preview{URL: base.String()}

	p.Title = c.clean(firstNonEmpty(
		metaContent(doc, "property", "og:title"),
		metaContent(doc, "name", "twitter:title"),
		doc.Find("title").First().Text(),
	))
	p.Description = truncateRunes(c.clean(firstNonEmpty(
		metaContent(doc, "property", "og:description"),
		metaContent(doc, "name", "twitter:description"),
		metaContent(doc, "name", "description"),
	)), maxDescriptionRunes)
	p.SiteName = c.clean(metaContent(doc, "property", "og:site_name"))
	if p.SiteName == "" {
		p.SiteName = strings.TrimPrefix(strings.ToLower(base.Hostname()), "www.")
	}

	image := firstNonEmpty(
		metaContent(doc, "property", "og:image:secure_url"),
		metaContent(doc, "property", "og:image"),
		metaContent(doc, "name", "twitter:image"),
		metaContent(doc, "name", "twitter:image:src"),
	)
	if href, ok := doc.Find(`link[rel="image_src"]`).Attr("href"); ok && image == "" {
		image = href
	}
	p.ImageURL = resolveHTTPURL(base, image)

	return p
}

func (c *Client) clean(s string) string {
	if s == "" {
		return ""
	}
	return strings.Join(strings.Fields(c.sanitizer.StripHTML(s)), " ")
}

// metaContent は <meta attr="value" content="..."> のcontentを返す。
func metaContent(doc *goquery.Document, attr, value string) string {
	var content string
	doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, _ := s.Attr(attr); strings.EqualFold(v, value) {
			content, _ = s.Attr("content")
			content = strings.TrimSpace(content)
			return content == ""
		}
		return true
	})
	return content
}

// resolveHTTPURL は相対URLをページURL基準で解決し、http(s)のみを返す。
func resolveHTTPURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(r)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	return abs.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	cut := string(runes[:n])
	if i := strings.LastIndexByte(cut, ' '); i > n/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,;:") + "…"
}
