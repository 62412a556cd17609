// Package metricsagg ingests MetricDataPoint samples into per-metric
// ring buffers, answers time-series/summary/compare/breakdown queries
// with downsampling, durably records completed query runs in SQLite
// (WAL mode, adapted from the teacher's sqlite store), and mirrors
// counters into Prometheus via promauto (adapted from the teacher's
// metrics package).
package metricsagg

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	_ "modernc.org/sqlite"

	"github.com/tutu-network/orchestrator/internal/domain"
)

var (
	queryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "orchestrator",
		Name:      "query_latency_seconds",
		Help:      "Orchestrator query latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"mode"})

	queriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Name:      "queries_total",
		Help:      "Total queries handled, by mode and outcome.",
	}, []string{"mode", "outcome"})

	modelRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchestrator",
		Name:      "model_requests_total",
		Help:      "Total generation requests per model.",
	}, []string{"model_id"})

	serversActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "orchestrator",
		Name:      "servers_active",
		Help:      "Number of currently active inference servers.",
	})
)

// RingCapacityDefault is the default per-metric ring size (spec.md §3).
const RingCapacityDefault = 500_000

// Aggregator owns one ring buffer per metric name and a durable sqlite
// store of completed query runs.
type Aggregator struct {
	mu             sync.Mutex
	rings          map[string]*ring
	ringCapacity   int
	retention      time.Duration
	db             *sql.DB
	stopSweep      chan struct{}
	sweepStoppedCh chan struct{}
}

// Options configures an Aggregator.
type Options struct {
	RingCapacity  int
	RetentionDays int
	SQLitePath    string
}

// New opens (or creates) the sqlite run-history database and returns a
// ready-to-use Aggregator. The hourly TTL sweep goroutine is started
// immediately; call Close to stop it.
func New(opts Options) (*Aggregator, error) {
	cap := opts.RingCapacity
	if cap <= 0 {
		cap = RingCapacityDefault
	}
	retentionDays := opts.RetentionDays
	if retentionDays <= 0 {
		retentionDays = 30
	}

	db, err := openDB(opts.SQLitePath)
	if err != nil {
		return nil, err
	}

	a := &Aggregator{
		rings:          make(map[string]*ring),
		ringCapacity:   cap,
		retention:      time.Duration(retentionDays) * 24 * time.Hour,
		db:             db,
		stopSweep:      make(chan struct{}),
		sweepStoppedCh: make(chan struct{}),
	}
	go a.sweepLoop()
	return a, nil
}

func openDB(path string) (*sql.DB, error) {
	if path == "" {
		path = filepath.Join(".", "metrics.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create metrics dir: %w", err)
	}
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS query_runs (
		query_id   TEXT PRIMARY KEY,
		mode       TEXT NOT NULL,
		success    BOOLEAN NOT NULL,
		millis     REAL NOT NULL,
		started_at INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate query_runs: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_query_runs_started ON query_runs(started_at)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate query_runs index: %w", err)
	}
	return db, nil
}

// Close stops the sweep loop and closes the database.
func (a *Aggregator) Close() error {
	close(a.stopSweep)
	<-a.sweepStoppedCh
	return a.db.Close()
}

// Record ingests one sample into the named metric's ring buffer.
func (a *Aggregator) Record(metric string, value float64, tags map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.rings[metric]
	if !ok {
		r = newRing(a.ringCapacity)
		a.rings[metric] = r
	}
	r.push(domain.MetricDataPoint{Timestamp: time.Now().Unix(), Value: value, Tags: tags})
}

// RecordQueryRun durably persists a completed query and mirrors it into
// the Prometheus counters/histogram.
func (a *Aggregator) RecordQueryRun(queryID string, mode domain.QueryMode, success bool, millis float64) error {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	queryLatency.WithLabelValues(string(mode)).Observe(millis / 1000.0)
	queriesTotal.WithLabelValues(string(mode), outcome).Inc()

	_, err := a.db.Exec(
		`INSERT INTO query_runs (query_id, mode, success, millis, started_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(query_id) DO UPDATE SET mode=excluded.mode, success=excluded.success, millis=excluded.millis`,
		queryID, string(mode), success, millis, time.Now().Unix(),
	)
	return err
}

// RecordModelRequest increments the per-model request counter.
func (a *Aggregator) RecordModelRequest(modelID string) {
	modelRequestsTotal.WithLabelValues(modelID).Inc()
}

// SetServersActive mirrors the current active server count into the gauge.
func (a *Aggregator) SetServersActive(n int) {
	serversActive.Set(float64(n))
}

// TimeSeries returns downsampled points for metric over the window,
// filtered by tags, with a summary over the same points.
func (a *Aggregator) TimeSeries(metric string, r domain.MetricRange, filterTags map[string]string) ([]domain.MetricDataPoint, domain.MetricSummary) {
	points := a.filteredPoints(metric, r, filterTags)
	bucketed := downsample(points, r.BucketInterval())
	return bucketed, summarize(bucketed)
}

// Summary returns the percentile/extent summary for metric over range r.
func (a *Aggregator) Summary(metric string, r domain.MetricRange) domain.MetricSummary {
	points := a.filteredPoints(metric, r, nil)
	return summarize(points)
}

// CompareSeries is one metric's aligned-bucket series within a compare call.
type CompareSeries struct {
	Metric string
	Points []domain.MetricDataPoint
}

// Compare returns aligned-bucket series for multiple metrics using the
// compare endpoint's distinct (finer) bucket schedule.
func (a *Aggregator) Compare(metrics []string, r domain.MetricRange) []CompareSeries {
	out := make([]CompareSeries, 0, len(metrics))
	for _, m := range metrics {
		points := a.filteredPoints(m, r, nil)
		bucketed := downsample(points, r.CompareBucketInterval())
		out = append(out, CompareSeries{Metric: m, Points: bucketed})
	}
	return out
}

// ModelBreakdown aggregates metric into a summary per model_id tag.
func (a *Aggregator) ModelBreakdown(metric string, r domain.MetricRange) map[string]domain.MetricSummary {
	points := a.filteredPoints(metric, r, nil)
	byModel := make(map[string][]domain.MetricDataPoint)
	for _, p := range points {
		id := p.Tags["model_id"]
		byModel[id] = append(byModel[id], p)
	}
	out := make(map[string]domain.MetricSummary, len(byModel))
	for id, pts := range byModel {
		out[id] = summarize(pts)
	}
	return out
}

func (a *Aggregator) filteredPoints(metric string, r domain.MetricRange, filterTags map[string]string) []domain.MetricDataPoint {
	a.mu.Lock()
	ring, ok := a.rings[metric]
	var all []domain.MetricDataPoint
	if ok {
		all = ring.points()
	}
	a.mu.Unlock()

	cutoff := time.Now().Add(-r.Window()).Unix()
	out := make([]domain.MetricDataPoint, 0, len(all))
	for _, p := range all {
		if p.Timestamp < cutoff {
			continue
		}
		if !matchesTags(p.Tags, filterTags) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func matchesTags(have, want map[string]string) bool {
	for k, v := range want {
		if have[k] != v {
			return false
		}
	}
	return true
}

// downsample averages values within bucket boundaries and preserves the
// dominant tag set from the bucket's first point. bucket == 0 means no
// downsampling (raw points, already time-ordered).
func downsample(points []domain.MetricDataPoint, bucket time.Duration) []domain.MetricDataPoint {
	if bucket <= 0 || len(points) == 0 {
		return points
	}
	secs := int64(bucket.Seconds())
	type acc struct {
		sum   float64
		count int
		tags  map[string]string
		ts    int64
	}
	buckets := make(map[int64]*acc)
	var order []int64
	for _, p := range points {
		key := p.Timestamp / secs
		a, ok := buckets[key]
		if !ok {
			a = &acc{tags: p.Tags, ts: key * secs}
			buckets[key] = a
			order = append(order, key)
		}
		a.sum += p.Value
		a.count++
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	out := make([]domain.MetricDataPoint, 0, len(order))
	for _, k := range order {
		a := buckets[k]
		out = append(out, domain.MetricDataPoint{Timestamp: a.ts, Value: a.sum / float64(a.count), Tags: a.tags})
	}
	return out
}

func summarize(points []domain.MetricDataPoint) domain.MetricSummary {
	if len(points) == 0 {
		return domain.MetricSummary{}
	}
	values := make([]float64, len(points))
	var sum float64
	for i, p := range points {
		values[i] = p.Value
		sum += p.Value
	}
	sort.Float64s(values)

	return domain.MetricSummary{
		Min: values[0],
		Max: values[len(values)-1],
		Avg: sum / float64(len(values)),
		P50: percentile(values, 0.50),
		P95: percentile(values, 0.95),
		P99: percentile(values, 0.99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// sweepLoop enforces TTL beyond the ring's automatic eviction, once an
// hour (spec.md §4.9).
func (a *Aggregator) sweepLoop() {
	defer close(a.sweepStoppedCh)
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-a.stopSweep:
			return
		case <-ticker.C:
			a.sweepOnce()
		}
	}
}

func (a *Aggregator) sweepOnce() {
	cutoff := time.Now().Add(-a.retention).Unix()
	a.mu.Lock()
	for _, r := range a.rings {
		r.sweepBefore(cutoff)
	}
	a.mu.Unlock()
	a.db.Exec(`DELETE FROM query_runs WHERE started_at < ?`, cutoff) //nolint:errcheck
}
