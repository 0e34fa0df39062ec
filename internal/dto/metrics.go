package dto

import "time"

// MetricsSnapshot is a JSON friendly digest of the Prometheus counters.
type MetricsSnapshot struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	Scans                    uint64    `json:"scans"`
	Confirmations            uint64    `json:"confirmations"`
	Renumbered               uint64    `json:"renumbered"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
