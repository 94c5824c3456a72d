package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/newsdigest/internal/importer"
	"github.com/hitoshi/newsdigest/internal/metrics"
	"github.com/hitoshi/newsdigest/internal/model"
)

type mockFeedAnalyzer struct {
	url    string
	result *importer.AnalyzeResult
	err    error
}

func (m *mockFeedAnalyzer) Analyze(_ context.Context, feedURL string) (*importer.AnalyzeResult, error) {
	m.url = feedURL
	return m.result, m.err
}

type mockItemImporter struct {
	digestID string
	items    []model.ParsedItem
	created  int
	err      error
}

func (m *mockItemImporter) Import(_ context.Context, digestID string, items []model.ParsedItem) (int, error) {
	m.digestID = digestID
	m.items = items
	if m.err != nil {
		return m.created, m.err
	}
	return len(items), nil
}

type recordedAnalyze struct{ mode, outcome string }

type mockImportMetrics struct {
	analyzes []recordedAnalyze
	imports  []int
	failures int
}

func (m *mockImportMetrics) RecordAnalyze(mode, outcome string) {
	m.analyzes = append(m.analyzes, recordedAnalyze{mode, outcome})
}

func (m *mockImportMetrics) RecordImport(created int, failed bool) {
	m.imports = append(m.imports, created)
	if failed {
		m.failures++
	}
}

func newImportTestRouter(h *ImportHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/admin/import/clean", h.Clean)
	r.Post("/api/admin/import/analyze", h.Analyze)
	r.Post("/api/admin/digests/{id}/import", h.Import)
	return r
}

func postJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, strings.NewReader(string(b))))
	return w
}

func TestImportHandler_Clean(t *testing.T) {
	router := newImportTestRouter(NewImportHandler(nil, &mockItemImporter{}, nil))

	t.Run("末尾カンマを除去して修正内容を返す", func(t *testing.T) {
		w := postJSON(t, router, "/api/admin/import/clean", map[string]string{"text": `[{"title":"Un titre",}]`})
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
		}
		var res importer.CleanResult
		if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		if res.Text != `[{"title":"Un titre"}]` {
			t.Errorf("Text = %q", res.Text)
		}
		if len(res.Fixes) == 0 {
			t.Error("Fixes should not be empty")
		}
	})

	t.Run("空入力は400", func(t *testing.T) {
		w := postJSON(t, router, "/api/admin/import/clean", map[string]string{"text": "   "})
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
		if code := decodeErrorCode(t, w); code != model.ErrCodeEmptyInput {
			t.Errorf("code = %q, want %q", code, model.ErrCodeEmptyInput)
		}
	})
}

func TestImportHandler_Analyze(t *testing.T) {
	tests := []struct {
		name       string
		body       map[string]any
		wantStatus int
		wantCode   string
		wantItems  int
		wantFixes  []string
		wantText   bool
		wantMode   string
	}{
		{
			name:       "JSONモード",
			body:       map[string]any{"mode": "json", "text": `[{"title":"Premier"},{"title":"Second"},{"snippet":"sans titre"}]`},
			wantStatus: http.StatusOK,
			wantItems:  2,
			wantMode:   "json",
		},
		{
			name:       "JSONモードでクリーン付き",
			body:       map[string]any{"mode": "json", "clean": true, "text": `[{"title":"Premier",},]`},
			wantStatus: http.StatusOK,
			wantItems:  1,
			wantFixes:  []string{"Virgules finales supprimées"},
			wantText:   true,
			wantMode:   "json",
		},
		{
			name:       "クリーン指定なしでも解析前に修復する",
			body:       map[string]any{"mode": "json", "text": `[{"title": "Un "grand" débat",}]`},
			wantStatus: http.StatusOK,
			wantItems:  1,
			wantFixes:  []string{"Virgules finales supprimées", "Guillemets internes échappés"},
			wantMode:   "json",
		},
		{
			name:       "修復できないJSON",
			body:       map[string]any{"mode": "json", "text": `titre: Premier article`},
			wantStatus: http.StatusBadRequest,
			wantCode:   model.ErrCodeInvalidJSON,
			wantMode:   "json",
		},
		{
			name:       "未対応のJSON形式",
			body:       map[string]any{"mode": "json", "text": `{"title":"seul"}`},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   model.ErrCodeUnsupportedFormat,
			wantMode:   "json",
		},
		{
			name: "テキストモード",
			body: map[string]any{"mode": "text", "text": "- Le Parlement adopte la réforme des retraites après un long débat\n" +
				"- La BCE maintient ses taux directeurs pour le troisième mois consécutif"},
			wantStatus: http.StatusOK,
			wantItems:  2,
			wantMode:   "text",
		},
		{
			name:       "テキストモードで空入力",
			body:       map[string]any{"mode": "text", "text": " \n "},
			wantStatus: http.StatusBadRequest,
			wantCode:   model.ErrCodeEmptyInput,
			wantMode:   "text",
		},
		{
			name:       "未知のモード",
			body:       map[string]any{"mode": "xml", "text": "<a/>"},
			wantStatus: http.StatusBadRequest,
			wantCode:   model.ErrCodeInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockImportMetrics{}
			router := newImportTestRouter(NewImportHandler(nil, &mockItemImporter{}, m))

			w := postJSON(t, router, "/api/admin/import/analyze", tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body=%s)", w.Code, tt.wantStatus, w.Body.String())
			}

			if tt.wantCode != "" {
				if code := decodeErrorCode(t, w); code != tt.wantCode {
					t.Errorf("code = %q, want %q", code, tt.wantCode)
				}
			} else {
				var resp analyzeResponse
				if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
					t.Fatalf("failed to decode: %v", err)
				}
				if len(resp.Items) != tt.wantItems {
					t.Errorf("items = %d, want %d", len(resp.Items), tt.wantItems)
				}
				if resp.Warnings == nil {
					t.Error("Warnings should not be nil")
				}
				if !slices.Equal(resp.Fixes, tt.wantFixes) {
					t.Errorf("fixes = %v, want %v", resp.Fixes, tt.wantFixes)
				}
				if (resp.Text != "") != tt.wantText {
					t.Errorf("text = %q, want returned=%t", resp.Text, tt.wantText)
				}
			}

			if tt.wantMode == "" {
				if len(m.analyzes) != 0 {
					t.Errorf("analyzes = %+v, want none", m.analyzes)
				}
				return
			}
			wantOutcome := metrics.OutcomeOK
			if tt.wantCode != "" {
				wantOutcome = tt.wantCode
			}
			if len(m.analyzes) != 1 || m.analyzes[0] != (recordedAnalyze{tt.wantMode, wantOutcome}) {
				t.Errorf("analyzes = %+v, want [{%s %s}]", m.analyzes, tt.wantMode, wantOutcome)
			}
		})
	}
}

func TestImportHandler_Analyze_FeedMode(t *testing.T) {
	feeds := &mockFeedAnalyzer{result: &importer.AnalyzeResult{
		Items: []model.ParsedItem{{Title: "Depuis le flux", URL: "https://example.fr/a"}},
	}}
	router := newImportTestRouter(NewImportHandler(feeds, &mockItemImporter{}, nil))

	w := postJSON(t, router, "/api/admin/import/analyze", map[string]string{"mode": "feed", "url": "https://example.fr/rss"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if feeds.url != "https://example.fr/rss" {
		t.Errorf("url = %q", feeds.url)
	}

	feeds.err = model.NewSSRFBlockedError()
	w = postJSON(t, router, "/api/admin/import/analyze", map[string]string{"mode": "feed", "url": "http://127.0.0.1/rss"})
	if w.Code != http.StatusForbidden {
		t.Errorf("blocked status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestImportHandler_Import(t *testing.T) {
	t.Run("全件作成", func(t *testing.T) {
		imp := &mockItemImporter{}
		m := &mockImportMetrics{}
		router := newImportTestRouter(NewImportHandler(nil, imp, m))

		w := postJSON(t, router, "/api/admin/digests/d1/import", map[string]any{
			"items": []model.ParsedItem{{Title: "Un"}, {Title: "Deux"}},
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
		}
		if strings.TrimSpace(w.Body.String()) != `{"created":2}` {
			t.Errorf("body = %s", w.Body.String())
		}
		if imp.digestID != "d1" {
			t.Errorf("digestID = %q, want d1", imp.digestID)
		}
		if len(m.imports) != 1 || m.imports[0] != 2 || m.failures != 0 {
			t.Errorf("metrics = %+v", m)
		}
	})

	t.Run("記事なしは422", func(t *testing.T) {
		router := newImportTestRouter(NewImportHandler(nil, &mockItemImporter{}, nil))
		w := postJSON(t, router, "/api/admin/digests/d1/import", map[string]any{"items": []model.ParsedItem{}})
		if w.Code != http.StatusUnprocessableEntity {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
		}
	})

	t.Run("途中失敗は作成済み件数を返す", func(t *testing.T) {
		imp := &mockItemImporter{
			created: 1,
			err:     &importer.BatchError{Index: 1, Created: 1, Err: errors.New("db down")},
		}
		m := &mockImportMetrics{}
		router := newImportTestRouter(NewImportHandler(nil, imp, m))

		w := postJSON(t, router, "/api/admin/digests/d1/import", map[string]any{
			"items": []model.ParsedItem{{Title: "Un"}, {Title: "Deux"}},
		})
		if w.Code != http.StatusBadGateway {
			t.Fatalf("status = %d, want %d", w.Code, http.StatusBadGateway)
		}
		var body importFailedResponse
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode: %v", err)
		}
		if body.Code != model.ErrCodeImportFailed || body.Created != 1 || body.FailedIndex != 1 {
			t.Errorf("body = %+v", body)
		}
		if strings.Contains(body.Message, "db down") {
			t.Error("internal error must not be exposed")
		}
		if m.failures != 1 || m.imports[0] != 1 {
			t.Errorf("metrics = %+v", m)
		}
	})

	t.Run("ダイジェストが存在しない", func(t *testing.T) {
		imp := &mockItemImporter{
			err: &importer.BatchError{Index: 0, Created: 0, Err: model.NewDigestNotFoundError("d404")},
		}
		router := newImportTestRouter(NewImportHandler(nil, imp, nil))

		w := postJSON(t, router, "/api/admin/digests/d404/import", map[string]any{
			"items": []model.ParsedItem{{Title: "Un"}},
		})
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}
