package observability

// Metrics collects client-side signals: cache effectiveness, fetch latency,
// and stream health. Implementations must be safe for concurrent use.
type Metrics interface {
	IncCacheHit()
	IncCacheMiss()
	ObserveFetch(kind string, durMs float64, ok bool)
	IncInvalidation(tag string)
	ObserveRequest(method, route string, status int, durMs float64)
	IncStreamEvent(name string)
	IncStreamReconnect()
}

type Noop struct{}

func NewNoop() Noop { return Noop{} }

func (Noop) IncCacheHit()                                {}
func (Noop) IncCacheMiss()                               {}
func (Noop) ObserveFetch(string, float64, bool)          {}
func (Noop) IncInvalidation(string)                      {}
func (Noop) ObserveRequest(string, string, int, float64) {}
func (Noop) IncStreamEvent(string)                       {}
func (Noop) IncStreamReconnect()                         {}
