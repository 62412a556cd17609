package domain

import "time"

// MetricDataPoint is one sample in a metric's ring buffer.
type MetricDataPoint struct {
	Timestamp int64             `json:"timestamp"` // seconds since epoch
	Value     float64           `json:"value"`
	Tags      map[string]string `json:"tags,omitempty"`
}

// MetricRange is the closed set of query ranges accepted by the
// Metrics Aggregator (spec.md §4.9).
type MetricRange string

const (
	Range1h  MetricRange = "1h"
	Range6h  MetricRange = "6h"
	Range24h MetricRange = "24h"
	Range7d  MetricRange = "7d"
	Range30d MetricRange = "30d"
)

// Window returns the wall-clock duration a range covers.
func (r MetricRange) Window() time.Duration {
	switch r {
	case Range1h:
		return time.Hour
	case Range6h:
		return 6 * time.Hour
	case Range24h:
		return 24 * time.Hour
	case Range7d:
		return 7 * 24 * time.Hour
	case Range30d:
		return 30 * 24 * time.Hour
	default:
		return time.Hour
	}
}

// BucketInterval returns the downsampling bucket width for the range,
// per spec.md §4.9: 1h/6h raw (bucket = 0, meaning "no downsampling"),
// 24h → 10-minute buckets, 7d/30d → 1-hour buckets.
func (r MetricRange) BucketInterval() time.Duration {
	switch r {
	case Range1h, Range6h:
		return 0
	case Range24h:
		return 10 * time.Minute
	case Range7d, Range30d:
		return time.Hour
	default:
		return 0
	}
}

// CompareBucketInterval returns the bucket width used by the `compare`
// endpoint, which uses a distinct (finer) schedule than time_series:
// 1m/5m/10m/1h/1h for 1h/6h/24h/7d/30d.
func (r MetricRange) CompareBucketInterval() time.Duration {
	switch r {
	case Range1h:
		return time.Minute
	case Range6h:
		return 5 * time.Minute
	case Range24h:
		return 10 * time.Minute
	case Range7d, Range30d:
		return time.Hour
	default:
		return time.Minute
	}
}

// MetricSummary holds the standard percentile/extent summary.
type MetricSummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}
