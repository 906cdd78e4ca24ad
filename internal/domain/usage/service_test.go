package usage_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/cloudportal/projectd/internal/domain/usage"
	"github.com/cloudportal/projectd/internal/repository/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mapStore struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
}

func newMapStore() *mapStore {
	return &mapStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (s *mapStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *mapStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	s.ttls[key] = ttl
	return nil
}

func num(v float64) *float64 { return &v }

func server(state string, ram, vcpus float64) usage.ServerUsage {
	return usage.ServerUsage{State: state, MemoryMB: num(ram), VCPUs: num(vcpus)}
}

func newClock(t *testing.T) *quartz.Mock {
	clock := quartz.NewMock(t)
	clock.Set(time.Date(2024, time.March, 15, 14, 30, 0, 0, time.UTC))
	return clock
}

var (
	marchStart = time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	marchToday = time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)
)

func TestSummarize_ActiveOnly(t *testing.T) {
	summary, err := usage.Summarize([]usage.ServerUsage{
		server("active", 512, 2),
		server("shutoff", 1024, 4),
	})
	require.NoError(t, err)
	require.Equal(t, &usage.Summary{Total: 1, RAM: 512, VCPUs: 2}, summary)
}

func TestSummarize_NoActive(t *testing.T) {
	summary, err := usage.Summarize([]usage.ServerUsage{
		server("shutoff", 1024, 4),
		server("error", 256, 1),
	})
	require.NoError(t, err)
	require.Nil(t, summary)
}

func TestSummarize_Empty(t *testing.T) {
	summary, err := usage.Summarize([]usage.ServerUsage{})
	require.NoError(t, err)
	require.Nil(t, summary)

	summary, err = usage.Summarize(nil)
	require.NoError(t, err)
	require.Nil(t, summary)
}

func TestSummarize_MissingFields(t *testing.T) {
	_, err := usage.Summarize([]usage.ServerUsage{
		server("active", 512, 2),
		{State: "active", VCPUs: num(1)},
	})
	require.ErrorIs(t, err, usage.ErrMalformedUsage)

	_, err = usage.Summarize([]usage.ServerUsage{
		{State: "active", MemoryMB: num(128)},
	})
	require.ErrorIs(t, err, usage.ErrMalformedUsage)
}

func TestSummarize_InactiveMalformedIgnored(t *testing.T) {
	summary, err := usage.Summarize([]usage.ServerUsage{
		server("active", 2048, 8),
		server("active", 1024, 2),
		{State: "deleted"},
	})
	require.NoError(t, err)
	require.Equal(t, &usage.Summary{Total: 2, RAM: 3072, VCPUs: 10}, summary)
}

func TestKey_DayGranularity(t *testing.T) {
	a := usage.Key("t1", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC))
	b := usage.Key("t1", time.Date(2024, 3, 1, 9, 5, 0, 0, time.UTC), time.Date(2024, 3, 15, 23, 59, 0, 0, time.UTC))
	require.Equal(t, "compute_usage.t1.2024-Mar-01-2024-Mar-15", a)
	require.Equal(t, a, b)
	require.NotEqual(t, a, usage.Key("t2", marchStart, marchToday))
}

func TestService_ComputeUsage_NotProvisioned(t *testing.T) {
	source := &mocks.UsageSource{}
	svc := usage.NewService(usage.NewCache(newMapStore(), nil), source, nil, time.Hour, newClock(t), nil)

	list, err := svc.ComputeUsage(context.Background(), "", usage.Window{})
	require.NoError(t, err)
	require.Nil(t, list)
	source.AssertNotCalled(t, "ComputeUsage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestService_ComputeUsage_DefaultWindowAndCache(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	source := &mocks.UsageSource{}
	report := []usage.ServerUsage{server("active", 512, 2)}
	source.On("ComputeUsage", ctx, "tenant1", marchStart, marchToday).Return(report, nil).Once()

	svc := usage.NewService(usage.NewCache(store, nil), source, nil, 10*time.Minute, newClock(t), nil)

	first, err := svc.ComputeUsage(ctx, "tenant1", usage.Window{})
	require.NoError(t, err)
	second, err := svc.ComputeUsage(ctx, "tenant1", usage.Window{})
	require.NoError(t, err)

	require.Equal(t, report, first)
	require.Equal(t, first, second)
	source.AssertNumberOfCalls(t, "ComputeUsage", 1)

	key := usage.Key("tenant1", marchStart, marchToday)
	require.Contains(t, store.data, key)
	require.Equal(t, 10*time.Minute, store.ttls[key])
}

func TestService_ComputeUsage_CachesEmptyReport(t *testing.T) {
	ctx := context.Background()
	source := &mocks.UsageSource{}
	source.On("ComputeUsage", ctx, "tenant1", marchStart, marchToday).Return([]usage.ServerUsage{}, nil).Once()

	svc := usage.NewService(usage.NewCache(newMapStore(), nil), source, nil, time.Hour, newClock(t), nil)

	for range 2 {
		summary, err := svc.Summary(ctx, "tenant1", usage.Window{})
		require.NoError(t, err)
		require.Nil(t, summary)
	}
	source.AssertNumberOfCalls(t, "ComputeUsage", 1)
}

func TestService_ComputeUsage_ExplicitWindow(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2023, time.December, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, time.December, 31, 0, 0, 0, 0, time.UTC)

	source := &mocks.UsageSource{}
	source.On("ComputeUsage", ctx, "tenant1", start, end).Return([]usage.ServerUsage{}, nil).Once()

	svc := usage.NewService(usage.NewCache(newMapStore(), nil), source, nil, time.Hour, newClock(t), nil)
	_, err := svc.ComputeUsage(ctx, "tenant1", usage.Window{Start: start, End: end})
	require.NoError(t, err)
	source.AssertExpectations(t)
}

func TestService_ComputeUsage_StoreFailureFallsThrough(t *testing.T) {
	ctx := context.Background()
	store := &mocks.Store{}
	store.On("Get", ctx, mock.Anything).Return(nil, false, errors.New("connection refused"))
	store.On("Set", ctx, mock.Anything, mock.Anything, time.Hour).Return(errors.New("connection refused"))

	source := &mocks.UsageSource{}
	report := []usage.ServerUsage{server("active", 256, 1)}
	source.On("ComputeUsage", ctx, "tenant1", marchStart, marchToday).Return(report, nil)

	svc := usage.NewService(usage.NewCache(store, nil), source, nil, time.Hour, newClock(t), nil)
	list, err := svc.ComputeUsage(ctx, "tenant1", usage.Window{})
	require.NoError(t, err)
	require.Equal(t, report, list)
}

func TestService_ComputeUsage_SourceError(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	source := &mocks.UsageSource{}
	source.On("ComputeUsage", ctx, "tenant1", marchStart, marchToday).Return(nil, errors.New("boom"))

	svc := usage.NewService(usage.NewCache(store, nil), source, nil, time.Hour, newClock(t), nil)
	_, err := svc.ComputeUsage(ctx, "tenant1", usage.Window{})
	require.Error(t, err)
	require.Empty(t, store.data)
}

func TestService_Summary(t *testing.T) {
	ctx := context.Background()
	source := &mocks.UsageSource{}
	source.On("ComputeUsage", ctx, "tenant1", marchStart, marchToday).Return([]usage.ServerUsage{
		server("active", 512, 2),
		server("shutoff", 1024, 4),
	}, nil)

	svc := usage.NewService(usage.NewCache(newMapStore(), nil), source, nil, time.Hour, newClock(t), nil)
	summary, err := svc.Summary(ctx, "tenant1", usage.Window{})
	require.NoError(t, err)
	require.Equal(t, &usage.Summary{Total: 1, RAM: 512, VCPUs: 2}, summary)

	count, err := svc.ActiveCount(ctx, "tenant1")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestService_DefaultWindow(t *testing.T) {
	svc := usage.NewService(nil, nil, nil, time.Hour, newClock(t), nil)
	w := svc.DefaultWindow()
	require.Equal(t, marchStart, w.Start)
	require.Equal(t, marchToday, w.End)
}

func TestService_Rate(t *testing.T) {
	ctx := context.Background()
	billing := &mocks.BillingClient{}
	report := json.RawMessage(`{"summary":[{"rate":"12.5"}]}`)
	billing.On("GetReport", ctx, "tenant1", (*time.Time)(nil), (*time.Time)(nil)).Return(report, nil)

	svc := usage.NewService(nil, nil, billing, time.Hour, newClock(t), nil)

	got, err := svc.Rate(ctx, "tenant1", nil, nil)
	require.NoError(t, err)
	require.JSONEq(t, string(report), string(got))

	got, err = svc.Rate(ctx, "", nil, nil)
	require.NoError(t, err)
	require.Nil(t, got)
	billing.AssertNumberOfCalls(t, "GetReport", 1)
}
