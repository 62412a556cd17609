package metricsagg

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/tutu-network/orchestrator/internal/domain"
)

func newTestAggregator(t *testing.T) *Aggregator {
	t.Helper()
	dir := t.TempDir()
	a, err := New(Options{SQLitePath: filepath.Join(dir, "metrics.db")})
	if err != nil {
		t.Fatalf("new aggregator: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestRecordAndSummary(t *testing.T) {
	a := newTestAggregator(t)
	a.Record("latency_ms", 10, nil)
	a.Record("latency_ms", 20, nil)
	a.Record("latency_ms", 30, nil)

	sum := a.Summary("latency_ms", domain.Range1h)
	if sum.Min != 10 || sum.Max != 30 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if sum.Avg != 20 {
		t.Fatalf("expected avg 20, got %v", sum.Avg)
	}
}

func TestTimeSeries_FiltersByTag(t *testing.T) {
	a := newTestAggregator(t)
	a.Record("tokens", 5, map[string]string{"model_id": "a"})
	a.Record("tokens", 9, map[string]string{"model_id": "b"})

	points, _ := a.TimeSeries("tokens", domain.Range1h, map[string]string{"model_id": "a"})
	if len(points) != 1 || points[0].Value != 5 {
		t.Fatalf("unexpected filtered points: %+v", points)
	}
}

func TestTimeSeries_Downsamples24h(t *testing.T) {
	a := newTestAggregator(t)
	now := time.Now().Unix()
	a.mu.Lock()
	r := newRing(100)
	r.push(domain.MetricDataPoint{Timestamp: now - 100, Value: 1})
	r.push(domain.MetricDataPoint{Timestamp: now - 90, Value: 3})
	a.rings["m"] = r
	a.mu.Unlock()

	points, _ := a.TimeSeries("m", domain.Range24h, nil)
	if len(points) != 1 {
		t.Fatalf("expected both points merged into one 10-minute bucket, got %d", len(points))
	}
	if points[0].Value != 2 {
		t.Fatalf("expected averaged value 2, got %v", points[0].Value)
	}
}

func TestModelBreakdown(t *testing.T) {
	a := newTestAggregator(t)
	a.Record("tokens", 10, map[string]string{"model_id": "a"})
	a.Record("tokens", 20, map[string]string{"model_id": "a"})
	a.Record("tokens", 100, map[string]string{"model_id": "b"})

	breakdown := a.ModelBreakdown("tokens", domain.Range1h)
	if breakdown["a"].Avg != 15 {
		t.Fatalf("unexpected breakdown for a: %+v", breakdown["a"])
	}
	if breakdown["b"].Avg != 100 {
		t.Fatalf("unexpected breakdown for b: %+v", breakdown["b"])
	}
}

func TestCompare_ReturnsOneSeriesPerMetric(t *testing.T) {
	a := newTestAggregator(t)
	a.Record("m1", 1, nil)
	a.Record("m2", 2, nil)

	series := a.Compare([]string{"m1", "m2"}, domain.Range1h)
	if len(series) != 2 {
		t.Fatalf("expected 2 series, got %d", len(series))
	}
}

func TestRecordQueryRun_PersistsRow(t *testing.T) {
	a := newTestAggregator(t)
	if err := a.RecordQueryRun("q1", domain.ModeSimple, true, 123.4); err != nil {
		t.Fatalf("record query run: %v", err)
	}
	var count int
	if err := a.db.QueryRow(`SELECT COUNT(*) FROM query_runs WHERE query_id = ?`, "q1").Scan(&count); err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row, got %d", count)
	}
}

func TestRingSweepBefore(t *testing.T) {
	r := newRing(10)
	r.push(domain.MetricDataPoint{Timestamp: 100, Value: 1})
	r.push(domain.MetricDataPoint{Timestamp: 200, Value: 2})
	r.sweepBefore(150)
	pts := r.points()
	if len(pts) != 1 || pts[0].Timestamp != 200 {
		t.Fatalf("expected only the point after cutoff to survive, got %+v", pts)
	}
}
