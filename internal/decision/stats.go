package decision

import (
	"math"
	"sync"
)

// Response sources counted in statistics.
const (
	SourceFlow       = "flow"
	SourceConfigured = "configured"
	SourceAPI        = "api"
	SourceFallback   = "fallback"
	SourceError      = "error"
)

// SourceStats is the share of requests answered by one source.
type SourceStats struct {
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Statistics summarizes answered requests.
type Statistics struct {
	TotalRequests int64                  `json:"total_requests"`
	Sources       map[string]SourceStats `json:"sources"`
}

type counters struct {
	mu         sync.Mutex
	total      int64
	flow       int64
	configured int64
	api        int64
}

func (c *counters) request() {
	c.mu.Lock()
	c.total++
	c.mu.Unlock()
}

func (c *counters) answered(source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch source {
	case SourceFlow:
		c.flow++
	case SourceConfigured:
		c.configured++
	case SourceAPI:
		c.api++
	}
}

func (c *counters) snapshot() Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()
	share := func(n int64) SourceStats {
		if c.total == 0 {
			return SourceStats{}
		}
		return SourceStats{Count: n, Percentage: math.Round(float64(n)/float64(c.total)*10000) / 100}
	}
	return Statistics{
		TotalRequests: c.total,
		Sources: map[string]SourceStats{
			SourceFlow:       share(c.flow),
			SourceConfigured: share(c.configured),
			SourceAPI:        share(c.api),
		},
	}
}

func (c *counters) reset() {
	c.mu.Lock()
	c.total, c.flow, c.configured, c.api = 0, 0, 0, 0
	c.mu.Unlock()
}
