package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/coder/quartz"
)

// Service computes tenant usage, memoizing compute reports in a Cache.
type Service struct {
	cache   *Cache
	source  Source
	billing BillingClient
	ttl     time.Duration
	clock   quartz.Clock
	logger  *slog.Logger
}

// NewService creates a usage service. ttl is how long a fetched compute
// report stays cached.
func NewService(cache *Cache, source Source, billing BillingClient, ttl time.Duration, clock quartz.Clock, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Service{
		cache:   cache,
		source:  source,
		billing: billing,
		ttl:     ttl,
		clock:   clock,
		logger:  logger,
	}
}

// DefaultWindow returns the first of the current month and today, both at
// midnight.
func (s *Service) DefaultWindow() Window {
	now := s.clock.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return Window{
		Start: time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()),
		End:   today,
	}
}

func (s *Service) resolve(w Window) Window {
	def := s.DefaultWindow()
	if w.Start.IsZero() {
		w.Start = def.Start
	}
	if w.End.IsZero() {
		w.End = def.End
	}
	return w
}

// ComputeUsage returns the compute usage report of a tenant. An empty tenant
// id means the project is not provisioned and yields no data.
func (s *Service) ComputeUsage(ctx context.Context, tenantID string, w Window) ([]ServerUsage, error) {
	if tenantID == "" {
		return nil, nil
	}
	w = s.resolve(w)

	if list, ok := s.cache.Get(ctx, tenantID, w.Start, w.End); ok {
		return list, nil
	}

	list, err := s.source.ComputeUsage(ctx, tenantID, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("fetching compute usage: %w", err)
	}
	s.cache.Set(ctx, tenantID, w.Start, w.End, list, s.ttl)
	return list, nil
}

// Summary totals the active instances of the tenant's usage. It returns nil
// when there is no usage or no active instance.
func (s *Service) Summary(ctx context.Context, tenantID string, w Window) (*Summary, error) {
	list, err := s.ComputeUsage(ctx, tenantID, w)
	if err != nil {
		return nil, err
	}
	return Summarize(list)
}

// ActiveCount returns the number of active instances in the default window.
func (s *Service) ActiveCount(ctx context.Context, tenantID string) (int, error) {
	summary, err := s.Summary(ctx, tenantID, Window{})
	if err != nil || summary == nil {
		return 0, err
	}
	return summary.Total, nil
}

// Rate returns the billing report for the tenant. Unprovisioned projects
// have no report.
func (s *Service) Rate(ctx context.Context, tenantID string, start, end *time.Time) (json.RawMessage, error) {
	if tenantID == "" {
		return nil, nil
	}
	report, err := s.billing.GetReport(ctx, tenantID, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetching rating report: %w", err)
	}
	return report, nil
}

// Summarize totals the active entries of list. Active entries lacking
// memory_mb or vcpus fail with ErrMalformedUsage.
func Summarize(list []ServerUsage) (*Summary, error) {
	if len(list) == 0 {
		return nil, nil
	}

	active := make([]ServerUsage, 0, len(list))
	for _, item := range list {
		if item.State == StateActive {
			active = append(active, item)
		}
	}
	if len(active) == 0 {
		return nil, nil
	}

	summary := &Summary{Total: len(active)}
	for i, item := range active {
		if item.MemoryMB == nil {
			return nil, fmt.Errorf("active entry %d (%s): missing memory_mb: %w", i, item.InstanceID, ErrMalformedUsage)
		}
		if item.VCPUs == nil {
			return nil, fmt.Errorf("active entry %d (%s): missing vcpus: %w", i, item.InstanceID, ErrMalformedUsage)
		}
		summary.RAM += *item.MemoryMB
		summary.VCPUs += *item.VCPUs
	}
	return summary, nil
}
