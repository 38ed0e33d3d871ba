// Package commerce adds BOM lines to the commerce service's cart.
package commerce

import (
	"context"
	"net/http"
	"time"

	"github.com/erazemk/makerledger/internal/bom"
	"github.com/erazemk/makerledger/internal/clients"
	"github.com/erazemk/makerledger/internal/model"
)

// IdempotencyHeader carries the per-line idempotency key.
const IdempotencyHeader = "Idempotency-Key"

// Client talks to the commerce service.
type Client struct {
	base clients.Base
}

var _ bom.Cart = (*Client)(nil)

// New returns a commerce client. The export executor bounds each call with
// its own timeout; timeout here caps the transport as a backstop.
func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{base: clients.New(baseURL, token, timeout, model.ErrCommerceUnavailable)}
}

// AddToCart submits one line. Retrying with the same idempotency key must not
// add the line twice.
func (c *Client) AddToCart(ctx context.Context, line bom.CartLine) (bom.CartReceipt, error) {
	h := http.Header{}
	h.Set(IdempotencyHeader, line.IdempotencyKey)

	resp, err := c.base.Do(ctx, http.MethodPost, "/cart/items", line, h)
	if err != nil {
		return bom.CartReceipt{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var receipt bom.CartReceipt
		if err := c.base.Decode(resp, &receipt); err != nil {
			return bom.CartReceipt{}, err
		}
		return receipt, nil
	default:
		return bom.CartReceipt{}, c.base.Unexpected(resp)
	}
}
