package cache

import (
	"github.com/appmarket/orders-client/internal/domain"

	"go.uber.org/zap"
)

// subscriptionBuffer bounds pending notifications per observer. An observer
// that falls behind coalesces naturally: a dropped notice is followed by the
// refetch triggered by an earlier one.
const subscriptionBuffer = 16

// Subscription delivers invalidation notices for a set of watched tags.
// Consumers read C and refetch; Close releases the subscription and is safe
// to call more than once.
type Subscription struct {
	C chan domain.Tag

	cache   *Cache
	watched map[string]struct{}
	closed  bool
}

// Subscribe registers interest in the given tags. Each matching Invalidate
// call delivers the matched tag on the subscription channel.
func (c *Cache) Subscribe(tags ...domain.Tag) *Subscription {
	watched := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		watched[t.String()] = struct{}{}
	}

	s := &Subscription{
		C:       make(chan domain.Tag, subscriptionBuffer),
		cache:   c,
		watched: watched,
	}

	c.subMu.Lock()
	c.subs[s] = struct{}{}
	c.subMu.Unlock()
	return s
}

// Close unregisters the subscription. No notices are delivered afterwards.
func (s *Subscription) Close() {
	s.cache.subMu.Lock()
	defer s.cache.subMu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	delete(s.cache.subs, s)
	close(s.C)
}

// notify fans invalidated tags out to matching subscriptions. Slow observers
// lose notices rather than blocking invalidation.
func (c *Cache) notify(tags []domain.Tag) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for s := range c.subs {
		for _, t := range tags {
			if _, ok := s.watched[t.String()]; !ok {
				continue
			}
			select {
			case s.C <- t:
			default:
				c.logger.Warn("observer behind, dropping invalidation notice",
					zap.Stringer("tag", t),
				)
			}
		}
	}
}
