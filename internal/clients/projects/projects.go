// Package projects reads bills of materials from the projects service.
package projects

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/erazemk/makerledger/internal/clients"
	"github.com/erazemk/makerledger/internal/model"
)

// Client talks to the projects service.
type Client struct {
	base clients.Base
}

// New returns a projects client.
func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{base: clients.New(baseURL, token, timeout, model.ErrProjectsUnavailable)}
}

// BOM returns the bill of materials of a project.
func (c *Client) BOM(ctx context.Context, projectID string) ([]model.BOMItem, error) {
	resp, err := c.base.Do(ctx, http.MethodGet, "/projects/"+url.PathEscape(projectID)+"/bom", nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var body struct {
			Items []model.BOMItem `json:"items"`
		}
		if err := c.base.Decode(resp, &body); err != nil {
			return nil, err
		}
		if body.Items == nil {
			body.Items = []model.BOMItem{}
		}
		return body.Items, nil
	case http.StatusNotFound:
		return nil, model.Errorf(model.ErrProjectNotFound, "project %s not found", projectID)
	default:
		return nil, c.base.Unexpected(resp)
	}
}
