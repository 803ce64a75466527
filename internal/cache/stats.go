package cache

// Stats holds cache performance metrics.
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	Entries   int     `json:"entries"`
	Capacity  int     `json:"capacity"`
	HitRate   float64 `json:"hit_rate"`
}

// LayerStats aggregates stats from both resolution caches for the
// control surface and the monitor.
type LayerStats struct {
	Tool      Stats `json:"tool"`
	Extension Stats `json:"extension"`
}
