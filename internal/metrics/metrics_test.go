package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordAnalyze_LabelsByModeAndOutcome(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.RecordAnalyze("json", OutcomeOK)
	c.RecordAnalyze("json", OutcomeOK)
	c.RecordAnalyze("text", "NO_ITEMS_DETECTED")

	if got := testutil.ToFloat64(c.analyze.WithLabelValues("json", OutcomeOK)); got != 2 {
		t.Errorf("analyze{json,ok} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.analyze.WithLabelValues("text", "NO_ITEMS_DETECTED")); got != 1 {
		t.Errorf("analyze{text,NO_ITEMS_DETECTED} = %v, want 1", got)
	}
}

func TestRecordImport(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.RecordImport(3, false)
	c.RecordImport(1, true)

	if got := testutil.ToFloat64(c.importBatches.WithLabelValues("success")); got != 1 {
		t.Errorf("import_batches{success} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.importBatches.WithLabelValues("failure")); got != 1 {
		t.Errorf("import_batches{failure} = %v, want 1", got)
	}
	// 失敗したバッチでも作成済みの件数は数える
	if got := testutil.ToFloat64(c.itemsImported); got != 4 {
		t.Errorf("items_imported = %v, want 4", got)
	}
}

func TestRecordHTTPStatus(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(429)

	if got := testutil.ToFloat64(c.httpStatus.WithLabelValues("200")); got != 2 {
		t.Errorf("http_status{200} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.httpStatus.WithLabelValues("429")); got != 1 {
		t.Errorf("http_status{429} = %v, want 1", got)
	}
}

func TestRecordEnrichment(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.RecordEnrichment(true)
	c.RecordEnrichment(false)
	c.RecordEnrichment(false)

	if got := testutil.ToFloat64(c.enrichment.WithLabelValues("failure")); got != 2 {
		t.Errorf("enrichment{failure} = %v, want 2", got)
	}
}

func TestRecordFetchLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordFetchLatency(150 * time.Millisecond)

	if n := testutil.CollectAndCount(c.fetchLatency); n != 1 {
		t.Errorf("fetch_latency series = %d, want 1", n)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == "newsdigest_fetch_latency_seconds" {
			if count := mf.GetMetric()[0].GetHistogram().GetSampleCount(); count != 1 {
				t.Errorf("sample count = %d, want 1", count)
			}
			return
		}
	}
	t.Error("newsdigest_fetch_latency_seconds が見つからない")
}

func TestNewCollector_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)

	defer func() {
		if recover() == nil {
			t.Error("同じレジストリへの二重登録は panic するべき")
		}
	}()
	NewCollector(reg)
}
