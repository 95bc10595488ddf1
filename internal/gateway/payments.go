package gateway

import (
	"context"
	"net/http"

	"github.com/appmarket/orders-client/internal/domain"
)

// PaymentsClient talks to the payments-api domain.
type PaymentsClient struct {
	http *httpClient
}

// CreateAccount bootstraps a fresh anonymous account; the caller persists
// the returned user id as the active identity.
func (c *PaymentsClient) CreateAccount(ctx context.Context) (*domain.Account, error) {
	var account domain.Account
	if err := c.http.doJSON(ctx, http.MethodPost, "/payments-api/accounts", nil, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

func (c *PaymentsClient) Account(ctx context.Context, userID string) (*domain.Account, error) {
	var account domain.Account
	if err := c.http.doJSON(ctx, http.MethodGet, "/payments-api/accounts/"+userID, nil, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

func (c *PaymentsClient) TopUp(ctx context.Context, userID string, amount float64) (*domain.Account, error) {
	var account domain.Account
	err := c.http.doJSON(ctx, http.MethodPost, "/payments-api/accounts/"+userID+"/topup",
		domain.TopUpRequest{Amount: amount}, &account)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (c *PaymentsClient) Health(ctx context.Context) (string, error) {
	var info struct {
		Status string `json:"status"`
	}
	if err := c.http.doJSON(ctx, http.MethodGet, "/payments-api/info", nil, &info); err != nil {
		return "", err
	}
	return info.Status, nil
}
