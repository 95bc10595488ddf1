package gateway

import (
	"context"
	"net/http"

	"github.com/appmarket/orders-client/internal/domain"
)

// OrdersClient talks to the orders-api domain.
type OrdersClient struct {
	http *httpClient
}

func (c *OrdersClient) CreateOrder(ctx context.Context, userID string) (*domain.Order, error) {
	var order domain.Order
	err := c.http.doJSON(ctx, http.MethodPost, "/orders-api/orders",
		domain.CreateOrderRequest{UserID: userID}, &order)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *OrdersClient) Order(ctx context.Context, id string) (*domain.Order, error) {
	var order domain.Order
	if err := c.http.doJSON(ctx, http.MethodGet, "/orders-api/orders/"+id, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// UserOrders returns the backend's ordering as-is; a null body reads as an
// empty list.
func (c *OrdersClient) UserOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	var orders []domain.Order
	if err := c.http.doJSON(ctx, http.MethodGet, "/orders-api/orders/user/"+userID, nil, &orders); err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	return orders, nil
}

func (c *OrdersClient) Health(ctx context.Context) (string, error) {
	var info struct {
		Status string `json:"status"`
	}
	if err := c.http.doJSON(ctx, http.MethodGet, "/orders-api/info", nil, &info); err != nil {
		return "", err
	}
	return info.Status, nil
}
