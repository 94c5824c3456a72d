package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/newsdigest/internal/model"
)

type mockDigestService struct {
	digests   []*model.Digest
	latest    *model.Digest
	createFn  func(input model.DigestInput) (*model.Digest, error)
	updateFn  func(id string, input model.DigestInput) (*model.Digest, error)
	deleteErr error

	listPublishedOnly *bool
	published         []string
}

func (m *mockDigestService) List(_ context.Context, publishedOnly bool) ([]*model.Digest, error) {
	m.listPublishedOnly = &publishedOnly
	return m.digests, nil
}

func (m *mockDigestService) Get(_ context.Context, id string) (*model.Digest, error) {
	for _, d := range m.digests {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, model.NewDigestNotFoundError(id)
}

func (m *mockDigestService) Latest(context.Context) (*model.Digest, error) {
	return m.latest, nil
}

func (m *mockDigestService) Create(_ context.Context, input model.DigestInput) (*model.Digest, error) {
	return m.createFn(input)
}

func (m *mockDigestService) Update(_ context.Context, id string, input model.DigestInput) (*model.Digest, error) {
	return m.updateFn(id, input)
}

func (m *mockDigestService) Delete(context.Context, string) error {
	return m.deleteErr
}

func (m *mockDigestService) Publish(ctx context.Context, id string) (*model.Digest, error) {
	d, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	d.PublishedAt = &now
	m.published = append(m.published, id)
	return d, nil
}

func (m *mockDigestService) Unpublish(ctx context.Context, id string) (*model.Digest, error) {
	d, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	d.PublishedAt = nil
	return d, nil
}

func newDigestTestRouter(svc DigestServiceInterface) http.Handler {
	h := NewDigestHandler(svc)
	r := chi.NewRouter()
	r.Get("/api/digests", h.ListPublished)
	r.Get("/api/digests/latest", h.Latest)
	r.Get("/api/admin/digests", h.ListAll)
	r.Post("/api/admin/digests", h.Create)
	r.Get("/api/admin/digests/{id}", h.Get)
	r.Patch("/api/admin/digests/{id}", h.Update)
	r.Delete("/api/admin/digests/{id}", h.Delete)
	r.Post("/api/admin/digests/{id}/publish", h.Publish)
	r.Post("/api/admin/digests/{id}/unpublish", h.Unpublish)
	return r
}

func testDigest(id string, date time.Time) *model.Digest {
	return &model.Digest{
		ID:        id,
		Date:      date,
		Title:     "L'essentiel du jour",
		CreatedAt: date,
		UpdatedAt: date,
	}
}

func TestDigestHandler_ListPublished_OnlyPublished(t *testing.T) {
	svc := &mockDigestService{digests: []*model.Digest{
		testDigest("d1", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)),
	}}
	router := newDigestTestRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/digests", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if svc.listPublishedOnly == nil || !*svc.listPublishedOnly {
		t.Error("List should be called with publishedOnly=true")
	}

	var body struct {
		Digests []digestResponse `json:"digests"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if len(body.Digests) != 1 || body.Digests[0].Date != "2024-05-01" {
		t.Errorf("digests = %+v, want one digest dated 2024-05-01", body.Digests)
	}
}

func TestDigestHandler_ListAll_IncludesDrafts(t *testing.T) {
	svc := &mockDigestService{}
	router := newDigestTestRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/digests", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if svc.listPublishedOnly == nil || *svc.listPublishedOnly {
		t.Error("List should be called with publishedOnly=false")
	}
	if !strings.Contains(w.Body.String(), `"digests":[]`) {
		t.Errorf("body = %s, want empty digests array", w.Body.String())
	}
}

func TestDigestHandler_Latest(t *testing.T) {
	t.Run("公開済みがなければnull", func(t *testing.T) {
		router := newDigestTestRouter(&mockDigestService{})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/digests/latest", nil))

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		if strings.TrimSpace(w.Body.String()) != `{"digest":null}` {
			t.Errorf("body = %s, want {\"digest\":null}", w.Body.String())
		}
	})

	t.Run("最新の公開ダイジェストを返す", func(t *testing.T) {
		d := testDigest("d9", time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC))
		published := d.CreatedAt
		d.PublishedAt = &published
		router := newDigestTestRouter(&mockDigestService{latest: d})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/digests/latest", nil))

		var body struct {
			Digest *digestResponse `json:"digest"`
		}
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		if body.Digest == nil || body.Digest.ID != "d9" || !body.Digest.IsPublished {
			t.Errorf("digest = %+v, want published d9", body.Digest)
		}
	})
}

func TestDigestHandler_Create(t *testing.T) {
	var got model.DigestInput
	svc := &mockDigestService{
		createFn: func(input model.DigestInput) (*model.Digest, error) {
			got = input
			return testDigest("new", *input.Date), nil
		},
	}
	router := newDigestTestRouter(svc)

	body := `{"date":"2024-05-03","title":"Édition du vendredi"}`
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/admin/digests", strings.NewReader(body)))

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (body=%s)", w.Code, http.StatusCreated, w.Body.String())
	}
	if got.Date == nil || !got.Date.Equal(time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("input.Date = %v, want 2024-05-03", got.Date)
	}
	if got.Title == nil || *got.Title != "Édition du vendredi" {
		t.Errorf("input.Title = %v, want Édition du vendredi", got.Title)
	}
	if got.Summary != nil {
		t.Errorf("input.Summary = %v, want nil", got.Summary)
	}
}

func TestDigestHandler_Create_InvalidDate(t *testing.T) {
	svc := &mockDigestService{
		createFn: func(model.DigestInput) (*model.Digest, error) {
			t.Fatal("Create should not be called")
			return nil, nil
		},
	}
	router := newDigestTestRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/admin/digests", strings.NewReader(`{"date":"03/05/2024"}`)))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if code := decodeErrorCode(t, w); code != model.ErrCodeInvalidRequest {
		t.Errorf("code = %q, want %q", code, model.ErrCodeInvalidRequest)
	}
}

func TestDigestHandler_Update_DateConflict(t *testing.T) {
	svc := &mockDigestService{
		updateFn: func(string, model.DigestInput) (*model.Digest, error) {
			return nil, model.NewDigestDateConflictError("2024-05-01")
		},
	}
	router := newDigestTestRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPatch, "/api/admin/digests/d1", strings.NewReader(`{"date":"2024-05-01"}`)))

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestDigestHandler_PublishAndUnpublish(t *testing.T) {
	svc := &mockDigestService{digests: []*model.Digest{
		testDigest("d1", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)),
	}}
	router := newDigestTestRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/admin/digests/d1/publish", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("publish status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp digestResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if !resp.IsPublished || resp.PublishedAt == nil {
		t.Errorf("after publish: %+v, want published", resp)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/admin/digests/d1/unpublish", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("unpublish status = %d, want %d", w.Code, http.StatusOK)
	}
	resp = digestResponse{}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if resp.IsPublished || resp.PublishedAt != nil {
		t.Errorf("after unpublish: %+v, want draft", resp)
	}
}

func TestDigestHandler_GetAndDelete_NotFound(t *testing.T) {
	svc := &mockDigestService{deleteErr: model.NewDigestNotFoundError("missing")}
	router := newDigestTestRouter(svc)

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(method, "/api/admin/digests/missing", nil))
		if w.Code != http.StatusNotFound {
			t.Errorf("%s status = %d, want %d", method, w.Code, http.StatusNotFound)
		}
	}
}
