// Package item はダイジェスト内の記事の管理と読者向けフィードを提供する。
package item

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/newsdigest/internal/importer"
	"github.com/hitoshi/newsdigest/internal/model"
	"github.com/hitoshi/newsdigest/internal/repository"
)

// FeedKind は読者向けフィードの種類を表す。
type FeedKind string

const (
	// FeedLatest は最新ダイジェストの全公開記事。
	FeedLatest FeedKind = "latest"
	// FeedBreaking は速報（カルーセル表示）の記事。
	FeedBreaking FeedKind = "breaking"
	// FeedRegular は速報以外の記事。
	FeedRegular FeedKind = "regular"
)

// ParseFeedKind は文字列をFeedKindに変換する。
func ParseFeedKind(s string) (FeedKind, bool) {
	switch k := FeedKind(s); k {
	case FeedLatest, FeedBreaking, FeedRegular:
		return k, true
	}
	return "", false
}

// Service は記事のCRUD、並び替え、公開切替、フィード、検索を提供するサービス。
// importer.ItemCreator も実装する。
type Service struct {
	itemRepo   repository.ItemRepository
	digestRepo repository.DigestRepository
	now        func() time.Time
}

var _ importer.ItemCreator = (*Service)(nil)

// NewService はServiceを生成する。
func NewService(itemRepo repository.ItemRepository, digestRepo repository.DigestRepository) *Service {
	return &Service{
		itemRepo:   itemRepo,
		digestRepo: digestRepo,
		now:        time.Now,
	}
}

// List はダイジェストの記事を rank 昇順で返す。
func (s *Service) List(ctx context.Context, digestID string, filter model.ItemFilter) ([]*model.Item, error) {
	if _, err := s.findDigest(ctx, digestID); err != nil {
		return nil, err
	}
	return s.itemRepo.ListByDigest(ctx, digestID, filter)
}

// Get は指定IDの記事を返す。
func (s *Service) Get(ctx context.Context, id string) (*model.Item, error) {
	item, err := s.itemRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, model.NewItemNotFoundError(id)
	}
	return item, nil
}

// GetPublished は読者に見せてよい記事を返す。
// 記事が非公開、または所属ダイジェストが未公開の場合は見つからない扱いにする。
func (s *Service) GetPublished(ctx context.Context, id string) (*model.Item, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !item.IsPublished {
		return nil, model.NewItemNotFoundError(id)
	}

	d, err := s.digestRepo.FindByID(ctx, item.DigestID)
	if err != nil {
		return nil, err
	}
	if d == nil || !d.IsPublished() {
		return nil, model.NewItemNotFoundError(id)
	}
	return item, nil
}

// Create はダイジェストに記事を追加する。
// rank 未指定の場合は末尾、読了時間未指定の場合は既定値、公開フラグ未指定の場合は公開になる。
func (s *Service) Create(ctx context.Context, digestID string, input model.ItemInput) (*model.Item, error) {
	if input.Title == nil || strings.TrimSpace(*input.Title) == "" {
		return nil, model.NewInvalidItemError("le titre est obligatoire")
	}
	if _, err := s.findDigest(ctx, digestID); err != nil {
		return nil, err
	}

	now := s.now()
	item := &model.Item{
		ID:              uuid.New().String(),
		DigestID:        digestID,
		ReadTimeMinutes: model.DefaultReadTimeMinutes,
		IsPublished:     true,
		Tags:            []string{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := applyInput(item, input); err != nil {
		return nil, err
	}

	if input.Rank == nil {
		count, err := s.itemRepo.CountByDigest(ctx, digestID)
		if err != nil {
			return nil, fmt.Errorf("記事数の取得に失敗しました: %w", err)
		}
		item.Rank = count + 1
	}
	fillDerived(item)

	if err := s.itemRepo.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("記事の作成に失敗しました: %w", err)
	}

	slog.Info("記事を作成しました",
		slog.String("item_id", item.ID),
		slog.String("digest_id", digestID),
		slog.Int("rank", item.Rank),
	)
	return item, nil
}

// Update は記事を部分更新する。nilのフィールドは変更しない。
func (s *Service) Update(ctx context.Context, id string, input model.ItemInput) (*model.Item, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if input.Title != nil && strings.TrimSpace(*input.Title) == "" {
		return nil, model.NewInvalidItemError("le titre est obligatoire")
	}

	if err := applyInput(item, input); err != nil {
		return nil, err
	}
	fillDerived(item)
	item.UpdatedAt = s.now()

	if err := s.itemRepo.Update(ctx, item); err != nil {
		return nil, fmt.Errorf("記事の更新に失敗しました: %w", err)
	}
	return item, nil
}

// Delete は記事を削除する。
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.itemRepo.DeleteByID(ctx, id); err != nil {
		return err
	}
	slog.Info("記事を削除しました", slog.String("item_id", id))
	return nil
}

// Reorder はダイジェスト内の記事を itemIDs の順に並べ替える。
// rank は1から振り直され、全件が同一トランザクションで更新される。
func (s *Service) Reorder(ctx context.Context, digestID string, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return model.NewInvalidRequestError("aucun article à réordonner")
	}
	seen := make(map[string]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		if _, dup := seen[id]; dup {
			return model.NewInvalidRequestError("un article apparaît plusieurs fois")
		}
		seen[id] = struct{}{}
	}

	if _, err := s.findDigest(ctx, digestID); err != nil {
		return err
	}

	if err := s.itemRepo.UpdateRanks(ctx, digestID, itemIDs); err != nil {
		if errors.Is(err, repository.ErrItemNotInDigest) {
			return model.NewItemNotFoundError("")
		}
		return fmt.Errorf("記事の並び替えに失敗しました: %w", err)
	}

	slog.Info("記事を並び替えました",
		slog.String("digest_id", digestID),
		slog.Int("count", len(itemIDs)),
	)
	return nil
}

// TogglePublish は記事の公開フラグを反転する。
func (s *Service) TogglePublish(ctx context.Context, id string) (*model.Item, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	item.IsPublished = !item.IsPublished
	if err := s.itemRepo.SetPublished(ctx, id, item.IsPublished); err != nil {
		return nil, err
	}
	item.UpdatedAt = s.now()
	return item, nil
}

// Feed は最新の公開ダイジェストから読者向けの記事一覧を返す。
// 公開ダイジェストが無い場合は (nil, nil, nil) を返す。
func (s *Service) Feed(ctx context.Context, kind FeedKind) (*model.Digest, []*model.Item, error) {
	d, err := s.digestRepo.FindLatestPublished(ctx)
	if err != nil {
		return nil, nil, err
	}
	if d == nil {
		return nil, nil, nil
	}

	published := true
	filter := model.ItemFilter{Published: &published}
	switch kind {
	case FeedBreaking:
		breaking := true
		filter.Breaking = &breaking
	case FeedRegular:
		breaking := false
		filter.Breaking = &breaking
	}

	items, err := s.itemRepo.ListByDigest(ctx, d.ID, filter)
	if err != nil {
		return nil, nil, err
	}
	return d, items, nil
}

// Search は公開ダイジェストの公開記事を検索する。
func (s *Service) Search(ctx context.Context, search model.ItemSearch) ([]*model.Item, error) {
	search.Query = strings.TrimSpace(search.Query)
	search.Tag = strings.TrimSpace(search.Tag)
	if search.Query == "" && search.Tag == "" {
		return []*model.Item{}, nil
	}
	if search.Limit <= 0 || search.Limit > 100 {
		search.Limit = repository.DefaultSearchLimit
	}
	if search.Offset < 0 {
		search.Offset = 0
	}
	return s.itemRepo.Search(ctx, search)
}

// CountItems はダイジェストの記事数を返す。
func (s *Service) CountItems(ctx context.Context, digestID string) (int, error) {
	return s.itemRepo.CountByDigest(ctx, digestID)
}

// CreateFromParsed はインポートで解析された記事を保存する。
// rank は呼び出し側（importer.Batch）が決める。
func (s *Service) CreateFromParsed(ctx context.Context, digestID string, parsed model.ParsedItem) (*model.Item, error) {
	title := parsed.Title
	rank := parsed.Rank
	input := model.ItemInput{
		Title:      &title,
		Rank:       &rank,
		Tags:       parsed.Tags,
		IsBreaking: &parsed.IsBreaking,
	}
	for _, f := range []struct {
		value string
		dst   **string
	}{
		{parsed.Snippet, &input.Snippet},
		{parsed.ContentMD, &input.ContentMD},
		{parsed.Source, &input.Source},
		{parsed.URL, &input.URL},
		{parsed.ImageURL, &input.ImageURL},
		{parsed.VideoURL, &input.VideoURL},
	} {
		if f.value != "" {
			v := f.value
			*f.dst = &v
		}
	}
	if parsed.ReadTimeMinutes > 0 {
		minutes := parsed.ReadTimeMinutes
		input.ReadTimeMinutes = &minutes
	}
	return s.Create(ctx, digestID, input)
}

func (s *Service) findDigest(ctx context.Context, digestID string) (*model.Digest, error) {
	d, err := s.digestRepo.FindByID(ctx, digestID)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, model.NewDigestNotFoundError(digestID)
	}
	return d, nil
}

// applyInput は入力値を検証して記事に反映する。
func applyInput(item *model.Item, input model.ItemInput) error {
	if input.Title != nil {
		item.Title = strings.TrimSpace(*input.Title)
	}
	if input.Snippet != nil {
		item.Snippet = strings.TrimSpace(*input.Snippet)
	}
	if input.ContentMD != nil {
		item.ContentMD = strings.TrimSpace(*input.ContentMD)
	}
	if input.Source != nil {
		item.Source = strings.TrimSpace(*input.Source)
	}

	for _, f := range []struct {
		name  string
		value *string
		dst   *string
	}{
		{"url", input.URL, &item.URL},
		{"image_url", input.ImageURL, &item.ImageURL},
	} {
		if f.value == nil {
			continue
		}
		v, err := normalizeURL(f.name, *f.value)
		if err != nil {
			return err
		}
		*f.dst = v
	}

	if input.VideoURL != nil {
		v := strings.TrimSpace(*input.VideoURL)
		if id := YouTubeID(v); id != "" && !strings.Contains(v, "/") {
			v = "https://www.youtube.com/watch?v=" + id
		}
		v, err := normalizeURL("video_url", v)
		if err != nil {
			return err
		}
		item.VideoURL = v
	}

	if input.Rank != nil {
		if *input.Rank < 0 {
			return model.NewInvalidItemError("le rang doit être positif")
		}
		item.Rank = *input.Rank
	}
	if input.Tags != nil {
		item.Tags = normalizeTags(input.Tags)
		if len(item.Tags) > model.MaxTags {
			return model.NewInvalidItemError(fmt.Sprintf("%d tags maximum", model.MaxTags))
		}
	}
	if input.ReadTimeMinutes != nil {
		if *input.ReadTimeMinutes <= 0 {
			return model.NewInvalidItemError("le temps de lecture doit être d'au moins 1 minute")
		}
		item.ReadTimeMinutes = *input.ReadTimeMinutes
	}
	if input.IsPublished != nil {
		item.IsPublished = *input.IsPublished
	}
	if input.IsBreaking != nil {
		item.IsBreaking = *input.IsBreaking
	}
	return nil
}

// fillDerived は入力から導出できる空欄を埋める。
// 配信元はURLのドメイン、画像はYouTube動画のサムネイル。
func fillDerived(item *model.Item) {
	if item.Source == "" && item.URL != "" {
		item.Source = importer.DomainOf(item.URL)
	}
	if item.ImageURL == "" && item.VideoURL != "" {
		item.ImageURL = YouTubeThumbnail(item.VideoURL)
	}
}

// normalizeURL は空またはhttp(s)の絶対URLのみを受け付ける。
func normalizeURL(field, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", model.NewInvalidItemError(field + " doit être une URL http(s)")
	}
	return raw, nil
}

// normalizeTags は前後の空白と重複を取り除く。
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tag), "#"))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
