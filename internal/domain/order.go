package domain

import "time"

type OrderStatus string

const (
	StatusCreated        OrderStatus = "created"
	StatusPaymentPending OrderStatus = "payment_pending"
	StatusPaid           OrderStatus = "paid"
	StatusPaymentFailed  OrderStatus = "payment_failed"
	StatusCompleted      OrderStatus = "completed"
	StatusCancelled      OrderStatus = "cancelled"
)

// Terminal reports whether no further status transition can follow.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusPaymentFailed, StatusCancelled:
		return true
	}
	return false
}

// Order is the client-side projection of an order owned by the orders
// backend. Field names follow the orders-api wire format.
type Order struct {
	ID          string      `json:"id"`
	UserID      string      `json:"userID"`
	Amount      float64     `json:"amount"`
	Currency    string      `json:"currency"`
	Status      OrderStatus `json:"status"`
	PaymentID   string      `json:"paymentID,omitempty"`
	ErrorReason string      `json:"errorReason,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

type CreateOrderRequest struct {
	UserID string `json:"user_id"`
}
