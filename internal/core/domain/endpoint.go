package domain

import "time"

// Endpoint is a probed source mirror. Endpoints are transient: the list is
// rebuilt on every probe cycle and cached as a ranked slice.
type Endpoint struct {
	URL          string        `json:"url"`
	Latency      time.Duration `json:"latency"`
	Available    bool          `json:"available"`
	LastProbedAt time.Time     `json:"last_probed_at"`
}
