package usage

import (
	"context"
	"encoding/json"
	"time"
)

// Source fetches raw compute usage for a tenant.
type Source interface {
	ComputeUsage(ctx context.Context, tenantID string, start, end time.Time) ([]ServerUsage, error)
}

// BillingClient fetches rated usage reports.
type BillingClient interface {
	GetReport(ctx context.Context, tenantID string, start, end *time.Time) (json.RawMessage, error)
}

// Store is a key/value store with per-entry expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
