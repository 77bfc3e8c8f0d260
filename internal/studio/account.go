package studio

import (
	"context"
	"fmt"

	"contentdesk/internal/app/model"
	"contentdesk/internal/credits"
)

const (
	pathCreditBalance = "/api/v1/credits/balance"
	pathCreditUse     = "/api/v1/credits/use"
	pathSessions      = "/api/v1/sessions"
)

var _ credits.Biller = (*Client)(nil)

type balanceResponse struct {
	Balance int `json:"balance"`
}

func (c *Client) Balance(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Status)
	defer cancel()

	var resp balanceResponse
	if err := c.get(ctx, pathCreditBalance, &resp); err != nil {
		return 0, fmt.Errorf("credit balance: %w", err)
	}
	return resp.Balance, nil
}

// Use records credit usage. 5xx and network failures are retried with backoff.
func (c *Client) Use(ctx context.Context, usage credits.UsageRequest) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Status)
	defer cancel()

	if err := c.postJSON(ctx, c.retry, pathCreditUse, usage, nil); err != nil {
		return fmt.Errorf("record credit usage: %w", err)
	}
	return nil
}

// SaveSession stores one session record with a single request. Callers
// guarantee at most one call per generation result; failed saves are retried
// through reconciliation, not here.
func (c *Client) SaveSession(ctx context.Context, record model.SessionRecord) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Status)
	defer cancel()

	if err := c.postJSON(ctx, c.http, pathSessions, record, nil); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}
