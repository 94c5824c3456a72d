package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q, want text exposition format", ct)
	}
	body, err := io.ReadAll(w.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

// 取り込み・補完・HTTPの各系列がスクレイプ結果に出ることを確認する。
func TestHandler_ExposesRecordedSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordAnalyze("markdown", OutcomeOK)
	c.RecordImport(3, false)
	c.RecordEnrichment(false)
	c.RecordHTTPStatus(http.StatusTooManyRequests)
	c.RecordFetchLatency(120 * time.Millisecond)

	body := scrape(t, reg)
	for _, want := range []string{
		`newsdigest_import_analyze_total{mode="markdown",outcome="ok"} 1`,
		`newsdigest_import_batches_total{result="success"} 1`,
		`newsdigest_items_imported_total 3`,
		`newsdigest_enrichment_total{result="failure"} 1`,
		`newsdigest_http_status_total{status_code="429"} 1`,
		`newsdigest_fetch_latency_seconds_count 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("スクレイプ結果に %q がない:\n%s", want, body)
		}
	}
}

// 未記録のラベル付き系列は出力されない。
func TestHandler_OmitsUnobservedLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)

	body := scrape(t, reg)
	if strings.Contains(body, "newsdigest_import_analyze_total{") {
		t.Errorf("記録前の解析系列が出力されている:\n%s", body)
	}
	if !strings.Contains(body, "newsdigest_items_imported_total 0") {
		t.Errorf("ラベルなしカウンターは0で出力されるはず:\n%s", body)
	}
}
