// Package catalog resolves part codes and names to commerce SKUs.
package catalog

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/erazemk/makerledger/internal/clients"
	"github.com/erazemk/makerledger/internal/model"
)

// Client talks to the catalog service.
type Client struct {
	base clients.Base
}

// New returns a catalog client.
func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{base: clients.New(baseURL, token, timeout, model.ErrCatalogUnavailable)}
}

// LookupSKU asks the catalog for the SKU of a part. The catalog prefers the
// part code and falls back to the name. A 404 means the part is unmapped.
func (c *Client) LookupSKU(ctx context.Context, partCode, partName string) (string, error) {
	q := url.Values{}
	if partCode != "" {
		q.Set("part_code", partCode)
	}
	if partName != "" {
		q.Set("part_name", partName)
	}

	resp, err := c.base.Do(ctx, http.MethodGet, "/catalog/sku-mappings?"+q.Encode(), nil, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var body struct {
			SKU string `json:"sku"`
		}
		if err := c.base.Decode(resp, &body); err != nil {
			return "", err
		}
		return body.SKU, nil
	case http.StatusNotFound:
		return "", nil
	default:
		return "", c.base.Unexpected(resp)
	}
}
