// Package cloudkitty fetches rated usage reports from CloudKitty.
package cloudkitty

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/cloudportal/projectd/internal/apiclient"
)

// Client implements usage.BillingClient.
type Client struct {
	api *apiclient.Client
}

// New creates a CloudKitty client.
func New(cfg apiclient.Config) (*Client, error) {
	api, err := apiclient.New("cloudkitty", cfg)
	if err != nil {
		return nil, err
	}
	return &Client{api: api}, nil
}

// GetReport returns the summary report of a tenant, passed through
// unmodified. Nil bounds are left to CloudKitty's defaults.
func (c *Client) GetReport(ctx context.Context, tenantID string, start, end *time.Time) (json.RawMessage, error) {
	query := url.Values{
		"filters": {"project_id:" + tenantID},
		"groupby": {"type"},
	}
	if start != nil {
		query.Set("begin", start.UTC().Format(time.RFC3339))
	}
	if end != nil {
		query.Set("end", end.UTC().Format(time.RFC3339))
	}

	var report json.RawMessage
	if err := c.api.Do(ctx, "get_report", http.MethodGet, "/v2/summary", query, nil, &report); err != nil {
		return nil, err
	}
	return report, nil
}
