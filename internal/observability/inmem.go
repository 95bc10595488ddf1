package observability

import "sync"

type Inmem struct {
	mu     sync.Mutex
	last   []any
	max    int
	totals struct {
		cacheHits, cacheMiss     int
		streamEvents, reconnects int
		invalidations            int
	}
}

func NewInmem(max int) *Inmem {
	return &Inmem{
		max: max,
	}
}

func (m *Inmem) push(v any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = append(m.last, v)
	if len(m.last) > m.max {
		m.last = m.last[1:]
	}
}

func (m *Inmem) ObserveFetch(kind string, durMs float64, ok bool) {
	m.push(struct {
		Kind     string
		Resource string
		Dur      float64
		OK       bool
	}{"fetch", kind, durMs, ok})
}

func (m *Inmem) ObserveRequest(method, route string, status int, durMs float64) {
	m.push(struct {
		Kind          string
		Method, Route string
		Status        int
		Dur           float64
	}{"request", method, route, status, durMs})
}

func (m *Inmem) IncInvalidation(tag string) {
	m.mu.Lock()
	m.totals.invalidations++
	m.mu.Unlock()
	m.push(struct {
		Kind string
		Tag  string
	}{"invalidation", tag})
}

func (m *Inmem) IncStreamEvent(name string) {
	m.mu.Lock()
	m.totals.streamEvents++
	m.mu.Unlock()
	m.push(struct {
		Kind  string
		Event string
	}{"stream_event", name})
}

func (m *Inmem) IncStreamReconnect() {
	m.mu.Lock()
	m.totals.reconnects++
	m.mu.Unlock()
}

func (m *Inmem) IncCacheHit() {
	m.mu.Lock()
	m.totals.cacheHits++
	m.mu.Unlock()
}

func (m *Inmem) IncCacheMiss() {
	m.mu.Lock()
	m.totals.cacheMiss++
	m.mu.Unlock()
}

// Totals returns the counters accumulated so far.
func (m *Inmem) Totals() (cacheHits, cacheMiss, streamEvents, reconnects, invalidations int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.totals
	return t.cacheHits, t.cacheMiss, t.streamEvents, t.reconnects, t.invalidations
}

// Last returns a copy of the most recent observations, newest last.
func (m *Inmem) Last() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]any, len(m.last))
	copy(out, m.last)
	return out
}
