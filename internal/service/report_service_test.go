package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/library-api/internal/models"
	appErrors "github.com/noah-isme/library-api/pkg/errors"
)

type stubReportRepo struct {
	calls   int
	asOf    time.Time
	loanErr error
}

func (s *stubReportRepo) LoanTotals(ctx context.Context, asOf time.Time) (models.LoanTotals, error) {
	s.calls++
	s.asOf = asOf
	if s.loanErr != nil {
		return models.LoanTotals{}, s.loanErr
	}
	return models.LoanTotals{Open: 4, Overdue: 1, Returned: 7, TotalPenalties: decimal.RequireFromString("12.00")}, nil
}

func (s *stubReportRepo) CatalogTotals(ctx context.Context) (models.CatalogTotals, error) {
	return models.CatalogTotals{Titles: 3, TotalCopies: 10, AvailableCopies: 5, LentCopies: 5}, nil
}

func (s *stubReportRepo) RosterTotals(ctx context.Context) (models.RosterTotals, error) {
	return models.RosterTotals{Students: 6, ActiveStudents: 5}, nil
}

type memCache struct {
	entries map[string]interface{}
	getErr  error
	deletes int
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]interface{})}
}

func (c *memCache) Get(ctx context.Context, key string, dest interface{}) error {
	if c.getErr != nil {
		return c.getErr
	}
	v, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	stats, ok := dest.(*models.Statistics)
	if !ok {
		return errors.New("unexpected destination")
	}
	*stats = *(v.(*models.Statistics))
	return nil
}

func (c *memCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.entries[key] = value
	return nil
}

func (c *memCache) Delete(ctx context.Context, keys ...string) error {
	c.deletes++
	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}

func TestAggregateUsesCacheUntilLedgerWrite(t *testing.T) {
	repo := &stubReportRepo{}
	backing := newMemCache()
	cache := NewCacheService(backing, NewMetricsService(), time.Minute, nil, true)
	svc := NewReportService(repo, cache, time.Minute, nil)
	ctx := context.Background()

	first, hit, err := svc.Aggregate(ctx, time.Time{})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, int64(1), first.Loans.Overdue)
	assert.Equal(t, "12.00", first.Loans.TotalPenalties.StringFixed(2))

	_, hit, err = svc.Aggregate(ctx, time.Time{})
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, repo.calls)

	store := newMemStore()
	store.addBook("978-1", "Dune", 1)
	store.addStudent("S1", "Ana", "Lima", true)
	ledger := NewLoanService(memLoans{store}, LoanPolicy{PenaltyPerDay: testPenaltyRate}, cache, nil, nil, nil)
	_, err = ledger.OpenLoan(ctx, models.OpenLoanRequest{ISBN: "978-1", StudentCode: "S1"})
	require.NoError(t, err)

	_, hit, err = svc.Aggregate(ctx, time.Time{})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, repo.calls)
}

func TestAggregateWithExplicitAsOfSkipsCache(t *testing.T) {
	repo := &stubReportRepo{}
	backing := newMemCache()
	svc := NewReportService(repo, NewCacheService(backing, nil, time.Minute, nil, true), time.Minute, nil)
	asOf := time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)

	stats, hit, err := svc.Aggregate(context.Background(), asOf)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, asOf, stats.AsOf)
	assert.Equal(t, asOf, repo.asOf)
	assert.Empty(t, backing.entries)
}

func TestAggregateSurvivesCacheOutage(t *testing.T) {
	repo := &stubReportRepo{}
	backing := newMemCache()
	backing.getErr = errors.New("redis: connection refused")
	svc := NewReportService(repo, NewCacheService(backing, nil, time.Minute, nil, true), time.Minute, nil)

	stats, hit, err := svc.Aggregate(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, int64(6), stats.Roster.Students)
}

func TestAggregatePropagatesStoreFailure(t *testing.T) {
	repo := &stubReportRepo{loanErr: errors.New("boom")}
	svc := NewReportService(repo, nil, time.Minute, nil)

	_, _, err := svc.Aggregate(context.Background(), time.Time{})
	assert.True(t, errors.Is(err, appErrors.ErrPersistence))
}
