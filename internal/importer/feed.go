package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/newsdigest/internal/model"
)

// URLGuard はSSRF検証のインターフェース。
type URLGuard interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// TextSanitizer はHTMLからプレーンテキストを取り出すインターフェース。
type TextSanitizer interface {
	StripHTML(rawHTML string) string
}

// FeedSource はRSS/AtomフィードのURLから記事候補を生成する。
// 取得はSSRF防止付きクライアントで行い、本文のHTMLはテキストに変換する。
type FeedSource struct {
	guard       URLGuard
	sanitizer   TextSanitizer
	logger      *slog.Logger
	timeout     time.Duration
	maxBodySize int64
}

// NewFeedSource はFeedSourceの新しいインスタンスを生成する。
func NewFeedSource(
	guard URLGuard,
	sanitizer TextSanitizer,
	logger *slog.Logger,
	timeout time.Duration,
	maxBodySize int64,
) *FeedSource {
	return &FeedSource{
		guard:       guard,
		sanitizer:   sanitizer,
		logger:      logger,
		timeout:     timeout,
		maxBodySize: maxBodySize,
	}
}

// Analyze はフィードを取得・パースし、記事候補の一覧を返す。
// リンクが重複する記事、タイトルも本文もない記事は除外し、件数を警告に含める。
func (s *FeedSource) Analyze(ctx context.Context, feedURL string) (*AnalyzeResult, error) {
	feedURL = strings.TrimSpace(feedURL)
	if feedURL == "" {
		return nil, model.NewEmptyInputError("Saisissez d'abord l'URL du flux RSS")
	}

	parsed, err := url.Parse(feedURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, model.NewInvalidURLError("l'URL doit commencer par http:// ou https://")
	}
	if err := s.guard.ValidateURL(feedURL); err != nil {
		s.logger.Warn("SSRF検証に失敗しました",
			slog.String("feed_url", feedURL),
			slog.String("error", err.Error()),
		)
		return nil, model.NewSSRFBlockedError()
	}

	feed, feedURL, err := s.load(ctx, feedURL, parsed)
	if err != nil {
		return nil, err
	}

	items, skipped := s.convertItems(feed)
	if len(items) == 0 {
		return nil, model.NewNoItemsDetectedError()
	}

	warnings := []string{}
	if skipped > 0 {
		warnings = append(warnings, fmt.Sprintf("%d entrée(s) du flux ignorée(s) : doublon ou contenu vide", skipped))
	}

	s.logger.Info("フィードを解析しました",
		slog.String("feed_url", feedURL),
		slog.Int("items", len(items)),
		slog.Int("skipped", skipped),
	)

	return &AnalyzeResult{Items: items, Warnings: warnings}, nil
}

// load はURLを取得してフィードとしてパースする。
// HTMLページだった場合は head のフィードリンクを1回だけ辿り、実際に読んだフィードのURLを返す。
func (s *FeedSource) load(ctx context.Context, pageURL string, base *url.URL) (*gofeed.Feed, string, error) {
	body, err := s.fetch(ctx, pageURL)
	if err != nil {
		return nil, pageURL, err
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(body))
	if err == nil {
		return feed, pageURL, nil
	}

	link, ok := discoverFeedLink(body, base)
	if !ok || link == pageURL {
		s.logger.Warn("フィードのパースに失敗しました",
			slog.String("feed_url", pageURL),
			slog.String("error", err.Error()),
		)
		return nil, pageURL, model.NewParseFailedError()
	}

	if err := s.guard.ValidateURL(link); err != nil {
		s.logger.Warn("検出したフィードURLがSSRF検証に失敗しました",
			slog.String("page_url", pageURL),
			slog.String("feed_url", link),
			slog.String("error", err.Error()),
		)
		return nil, pageURL, model.NewSSRFBlockedError()
	}

	s.logger.Info("ページからフィードを検出しました",
		slog.String("page_url", pageURL),
		slog.String("feed_url", link),
	)

	body, err = s.fetch(ctx, link)
	if err != nil {
		return nil, link, err
	}
	feed, err = parser.ParseString(string(body))
	if err != nil {
		s.logger.Warn("フィードのパースに失敗しました",
			slog.String("feed_url", link),
			slog.String("error", err.Error()),
		)
		return nil, link, model.NewParseFailedError()
	}
	return feed, link, nil
}

// fetch はフィードの本文を最大サイズまで読み込む。
func (s *FeedSource) fetch(ctx context.Context, feedURL string) ([]byte, error) {
	client := s.guard.NewSafeClient(s.timeout, s.maxBodySize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", "NewsDigest/1.0 Feed Importer")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	resp, err := client.Do(req)
	if err != nil {
		s.logger.Warn("フィードの取得に失敗しました",
			slog.String("feed_url", feedURL),
			slog.String("error", err.Error()),
		)
		return nil, model.NewFetchFailedError("le serveur ne répond pas")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, model.NewFetchFailedError(fmt.Sprintf("statut HTTP %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBodySize))
	if err != nil {
		return nil, model.NewFetchFailedError("lecture de la réponse impossible")
	}
	return body, nil
}

// convertItems はgofeedの記事をParsedItemに変換する。
func (s *FeedSource) convertItems(feed *gofeed.Feed) ([]model.ParsedItem, int) {
	items := make([]model.ParsedItem, 0, len(feed.Items))
	seen := make(map[string]bool)
	skipped := 0

	for _, fi := range feed.Items {
		if fi == nil {
			continue
		}

		link := strings.TrimSpace(fi.Link)
		if link == "" && isHTTPURL(fi.GUID) {
			link = fi.GUID
		}
		if !isHTTPURL(link) {
			link = ""
		}
		if link != "" {
			if seen[link] {
				skipped++
				continue
			}
			seen[link] = true
		}

		title := s.sanitizer.StripHTML(fi.Title)
		description := s.sanitizer.StripHTML(fi.Description)
		content := s.sanitizer.StripHTML(fi.Content)
		if content == "" {
			content = description
		}
		if title == "" && content == "" {
			skipped++
			continue
		}

		if title == "" {
			title = SynthesizeTitle(content)
		} else {
			title = truncateAtWord(title, titleMaxRunes, titleMinCutRunes)
		}

		snippet := description
		if snippet == "" || snippet == content {
			snippet = SynthesizeSnippet(content, title)
		}

		items = append(items, model.ParsedItem{
			Title:           title,
			URL:             link,
			Source:          feedSourceName(feed, link),
			Snippet:         truncateAtWord(snippet, snippetMaxRunes, snippetMaxRunes/2),
			ContentMD:       content,
			Tags:            feedTags(fi.Categories),
			ImageURL:        feedImage(fi),
			ReadTimeMinutes: EstimateReadTime(title + " " + content),
		})
	}

	return items, skipped
}

// feedSourceName は記事URLのドメインを返す。URLがなければフィードのサイトのドメインを使う。
func feedSourceName(feed *gofeed.Feed, link string) string {
	if d := DomainOf(link); d != "" {
		return d
	}
	return DomainOf(feed.Link)
}

// feedTags はカテゴリをタグとして最大5件返す。
func feedTags(categories []string) []string {
	var tags []string
	seen := make(map[string]bool)
	for _, c := range categories {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		tags = append(tags, c)
		if len(tags) == model.MaxTags {
			break
		}
	}
	return tags
}

// feedImage は記事の画像、なければ画像タイプのエンクロージャのURLを返す。
func feedImage(fi *gofeed.Item) string {
	if fi.Image != nil && isHTTPURL(fi.Image.URL) {
		return fi.Image.URL
	}
	for _, enc := range fi.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && isHTTPURL(enc.URL) {
			return enc.URL
		}
	}
	return ""
}
