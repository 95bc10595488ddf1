package gateway

import (
	"context"
	"time"

	"github.com/appmarket/orders-client/internal/cache"
	"github.com/appmarket/orders-client/internal/domain"
	"github.com/appmarket/orders-client/internal/observability"

	"go.uber.org/zap"
)

// Gateway issues reads and writes against the two backend domains and drives
// cache population and invalidation from request outcomes. Reads go through
// the resource cache; writes go straight to the backend and invalidate the
// affected tags only on success.
//
// The push reconciler issues the same Invalidate calls for remote-origin
// changes, so cached state converges through one code path no matter who
// changed the data.
type Gateway struct {
	Orders   *OrdersClient
	Payments *PaymentsClient

	cache  *cache.Cache
	logger *zap.Logger
}

func New(baseURL string, timeout time.Duration, c *cache.Cache, logger *zap.Logger, metrics observability.Metrics) *Gateway {
	hc := newHTTPClient(baseURL, timeout, logger, metrics)
	return &Gateway{
		Orders:   &OrdersClient{http: hc},
		Payments: &PaymentsClient{http: hc},
		cache:    c,
		logger:   logger,
	}
}

func orderKey(id string) string         { return "Order:" + id }
func orderListKey(userID string) string { return "Order:list:" + userID }
func accountKey(userID string) string   { return "Account:" + userID }

// CreateOrder submits a new order. Success invalidates the order list so the
// next listing shows it; no per-id tag is touched since the id did not exist
// before.
func (g *Gateway) CreateOrder(ctx context.Context, userID string) (*domain.Order, error) {
	order, err := g.Orders.CreateOrder(ctx, userID)
	if err != nil {
		return nil, err
	}
	g.cache.Invalidate(domain.OrderListTag())
	g.logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("user_id", userID),
	)
	return order, nil
}

// Order is a cached single-order read tagged with the order's identity.
func (g *Gateway) Order(ctx context.Context, id string) (*domain.Order, error) {
	return cache.GetOrFetch(ctx, g.cache, orderKey(id),
		func(ctx context.Context) (*domain.Order, []domain.Tag, error) {
			order, err := g.Orders.Order(ctx, id)
			if err != nil {
				return nil, nil, err
			}
			return order, []domain.Tag{domain.OrderTag(id)}, nil
		})
}

// UserOrders is a cached list read. The entry carries the LIST tag plus each
// member's identity tag, so both a changed member and a brand-new order force
// a fresh pull.
func (g *Gateway) UserOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	return cache.GetOrFetch(ctx, g.cache, orderListKey(userID),
		func(ctx context.Context) ([]domain.Order, []domain.Tag, error) {
			orders, err := g.Orders.UserOrders(ctx, userID)
			if err != nil {
				return nil, nil, err
			}
			tags := make([]domain.Tag, 0, len(orders)+1)
			tags = append(tags, domain.OrderListTag())
			for _, o := range orders {
				tags = append(tags, domain.OrderTag(o.ID))
			}
			return orders, tags, nil
		})
}

// CreateAccount bootstraps an anonymous account. Nothing is cached: the
// caller persists the returned identity and subsequent reads are scoped to it.
func (g *Gateway) CreateAccount(ctx context.Context) (*domain.Account, error) {
	account, err := g.Payments.CreateAccount(ctx)
	if err != nil {
		return nil, err
	}
	g.logger.Info("account created",
		zap.String("account_id", account.ID),
		zap.String("user_id", account.UserID),
	)
	return account, nil
}

// Account is a cached balance read tagged with the owner's identity.
func (g *Gateway) Account(ctx context.Context, userID string) (*domain.Account, error) {
	return cache.GetOrFetch(ctx, g.cache, accountKey(userID),
		func(ctx context.Context) (*domain.Account, []domain.Tag, error) {
			account, err := g.Payments.Account(ctx, userID)
			if err != nil {
				return nil, nil, err
			}
			return account, []domain.Tag{domain.AccountTag(userID)}, nil
		})
}

// TopUp credits the account. The amount is validated before any I/O; a failed
// request leaves the cached balance untouched.
func (g *Gateway) TopUp(ctx context.Context, userID string, amount float64) (*domain.Account, error) {
	if amount <= 0 {
		return nil, ErrNonPositiveAmount
	}
	account, err := g.Payments.TopUp(ctx, userID, amount)
	if err != nil {
		return nil, err
	}
	g.cache.Invalidate(domain.AccountTag(userID))
	g.logger.Info("account topped up",
		zap.String("user_id", userID),
		zap.Float64("amount", amount),
	)
	return account, nil
}
