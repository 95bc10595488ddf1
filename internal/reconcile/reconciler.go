package reconcile

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/appmarket/orders-client/internal/config"
	"github.com/appmarket/orders-client/internal/domain"
	"github.com/appmarket/orders-client/internal/observability"
	"github.com/appmarket/orders-client/internal/pkg/breaker"
	"github.com/appmarket/orders-client/internal/pkg/retry"
	"github.com/appmarket/orders-client/internal/stream"

	"go.uber.org/zap"
)

//go:generate mockgen -source internal/reconcile/reconciler.go -destination=internal/reconcile/reconciler_mock_test.go -package=reconcile

// Invalidator is the slice of the resource cache the reconciler needs. Push
// events go through the same invalidation entry point as local mutations, so
// both origins converge on one reconciliation path.
type Invalidator interface {
	Invalidate(tags ...domain.Tag)
}

// Subscriber owns one streaming connection per call; it returns when the
// connection ends and reports why.
type Subscriber interface {
	Subscribe(ctx context.Context, userID string, handle func(stream.Event)) error
}

type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

const (
	eventConnected   = "connected"
	eventOrderUpdate = "order-update"
)

// Reconciler keeps the cache converged with backend state by mapping pushed
// order events to tag invalidations. One Run call services one identity; the
// session layer cancels and restarts it when the identity changes.
type Reconciler struct {
	stream  Subscriber
	cache   Invalidator
	policy  config.Stream
	brk     *breaker.Breaker
	logger  *zap.Logger
	metrics observability.Metrics

	state atomic.Int32
}

func New(sub Subscriber, cache Invalidator, policy config.Stream, logger *zap.Logger, metrics observability.Metrics) *Reconciler {
	if metrics == nil {
		metrics = observability.Noop{}
	}
	return &Reconciler{
		stream:  sub,
		cache:   cache,
		policy:  policy,
		brk:     breaker.New(policy.Breaker),
		logger:  logger,
		metrics: metrics,
	}
}

func (r *Reconciler) State() State {
	return State(r.state.Load())
}

func (r *Reconciler) setState(s State) {
	old := State(r.state.Swap(int32(s)))
	if old != s {
		r.logger.Debug("stream state changed",
			zap.Stringer("from", old),
			zap.Stringer("to", s),
		)
	}
}

// Run owns the streaming subscription for userID until ctx is cancelled.
// Connection drops degrade to reconnection with backoff; they never escalate.
// After Run returns no further event can touch the cache.
func (r *Reconciler) Run(ctx context.Context, userID string) error {
	defer r.setState(Disconnected)

	r.setState(Connecting)

	attempt := 0
	err := retry.Do(ctx, r.policy.Retry, func() error {
		if attempt > 0 {
			r.setState(Reconnecting)
			r.metrics.IncStreamReconnect()
		}
		attempt++

		if err := r.brk.Allow(); err != nil {
			// Circuit open after repeated connect failures: skip the dial,
			// let the backoff spend the open window.
			return err
		}

		err := r.stream.Subscribe(ctx, userID, r.handler(ctx, userID))
		if ctx.Err() != nil {
			return nil
		}
		r.brk.Failure()
		r.logger.Warn("event stream ended, will reconnect",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return err
	})

	if err != nil && ctx.Err() == nil {
		r.logger.Error("event stream gave up reconnecting", zap.Error(err))
		return err
	}
	return nil
}

// handler decodes one inbound event and applies its invalidation. Malformed
// or unrecognized events are logged and dropped, never fatal. The ctx guard
// keeps a cancelled identity's events from mutating the cache.
func (r *Reconciler) handler(ctx context.Context, userID string) func(stream.Event) {
	return func(ev stream.Event) {
		if ctx.Err() != nil {
			return
		}

		r.setState(Connected)
		r.brk.Success()
		r.metrics.IncStreamEvent(ev.Name)

		switch ev.Name {
		case eventConnected:
			r.logger.Info("subscription acknowledged",
				zap.String("user_id", userID),
				zap.ByteString("payload", ev.Data),
			)

		case eventOrderUpdate:
			var order domain.Order
			if err := json.Unmarshal(ev.Data, &order); err != nil {
				r.logger.Warn("malformed order-update payload, ignoring", zap.Error(err))
				return
			}
			if order.ID == "" {
				r.logger.Warn("order-update without id, ignoring")
				return
			}

			owner := order.UserID
			if owner == "" {
				owner = userID
			}

			// The account tag is invalidated on every order event: a payment
			// outcome may have moved the owner's balance and the payload does
			// not say whether it did.
			r.cache.Invalidate(
				domain.OrderTag(order.ID),
				domain.OrderListTag(),
				domain.AccountTag(owner),
			)
			r.logger.Info("order update reconciled",
				zap.String("order_id", order.ID),
				zap.String("status", string(order.Status)),
			)

		default:
			r.logger.Debug("unrecognized stream event, ignoring",
				zap.String("event", ev.Name),
			)
		}
	}
}
