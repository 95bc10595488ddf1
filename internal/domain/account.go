package domain

import "time"

// Account is the client-side projection of a payments-api account.
// The payments backend serializes snake_case, unlike the orders backend.
type Account struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Balance   float64   `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

type TopUpRequest struct {
	Amount float64 `json:"amount"`
}
